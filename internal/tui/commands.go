package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/usersync"
)

// ControllerFactory creates the controller for one identifier
type ControllerFactory func(identifier string) (*usersync.Controller, error)

// FinishFunc runs after a controller stops, typically to write its export.
// It returns the export path, or "" when nothing was written.
type FinishFunc func(c *usersync.Controller, sum usersync.Summary, err error) (string, error)

// Command factories for async operations

// StartSyncCmd creates the controller for the user at index
func StartSyncCmd(index int, identifier string, factory ControllerFactory) tea.Cmd {
	return func() tea.Msg {
		c, err := factory(identifier)
		if err != nil {
			return SyncFinishedMsg{Index: index, Err: err}
		}
		return SyncStartedMsg{Index: index, Controller: c}
	}
}

// RunSyncCmd runs c to completion with streaming progress updates.
// Uses a continuation pattern to pump all progress messages to the UI.
func RunSyncCmd(index int, c *usersync.Controller, finish FinishFunc) tea.Cmd {
	return func() tea.Msg {
		progressCh := make(chan domain.SyncProgress, 16)
		resultCh := make(chan SyncFinishedMsg, 1)

		go func() {
			defer close(progressCh)
			sum, err := c.Run(NewChannelObserver(progressCh))

			var path string
			if finish != nil {
				var ferr error
				path, ferr = finish(c, sum, err)
				if err == nil {
					err = ferr
				}
			}
			resultCh <- SyncFinishedMsg{Index: index, Summary: sum, ExportPath: path, Err: err}
		}()

		return readSyncProgress(index, progressCh, resultCh)
	}
}

// readSyncProgress reads one message from the channel and returns it with
// the continuation command embedded. Once the channel closes the final
// result is returned.
func readSyncProgress(
	index int,
	progressCh <-chan domain.SyncProgress,
	resultCh <-chan SyncFinishedMsg,
) tea.Msg {
	progress, ok := <-progressCh
	if !ok {
		return <-resultCh
	}
	return SyncProgressMsg{
		Index:    index,
		Progress: progress,
		next: func() tea.Msg {
			return readSyncProgress(index, progressCh, resultCh)
		},
	}
}
