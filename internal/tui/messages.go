package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/usersync"
)

// Message types for the TUI

// SyncStartedMsg signals that a controller was created for the user at Index
type SyncStartedMsg struct {
	Index      int
	Controller *usersync.Controller
}

// SyncProgressMsg carries one progress snapshot and the command that reads the next
type SyncProgressMsg struct {
	Index    int
	Progress domain.SyncProgress
	next     tea.Cmd
}

// SyncFinishedMsg signals that a user's sync and export are over
type SyncFinishedMsg struct {
	Index      int
	Summary    usersync.Summary
	ExportPath string
	Err        error
}
