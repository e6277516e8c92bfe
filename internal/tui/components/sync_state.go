package components

import (
	"fmt"

	"github.com/mmcdole/rdioexport/internal/tui/styles"
)

// UserStatus represents the sync status of one user
type UserStatus int

const (
	StatusPending UserStatus = iota
	StatusSyncing
	StatusDone
	StatusCancelled
	StatusError
)

// UserSyncState tracks sync progress for a single user
type UserSyncState struct {
	Identifier string
	Status     UserStatus
	State      string // Current SyncState name
	Label      string // Human-readable phase
	Synced     int    // Objects fetched so far
	Total      int    // Objects known so far
	ExportPath string
	Error      error
}

// Percent returns the completed fraction of known objects
func (s UserSyncState) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Synced) / float64(s.Total)
}

// Glyph renders the status indicator. spinner is shown while syncing.
func (s UserSyncState) Glyph(spinner string) string {
	switch s.Status {
	case StatusSyncing:
		return spinner
	case StatusDone:
		return styles.SuccessStyle.Render(styles.DoneChar)
	case StatusCancelled:
		return styles.WarningStyle.Render(styles.CancelledChar)
	case StatusError:
		return styles.ErrorStyle.Render(styles.FailedChar)
	default:
		return styles.DimStyle.Render(styles.PendingChar)
	}
}

// Detail renders the text after the identifier
func (s UserSyncState) Detail() string {
	switch s.Status {
	case StatusPending:
		return styles.DimStyle.Render("waiting")
	case StatusError:
		return styles.ErrorStyle.Render(s.Error.Error())
	case StatusCancelled:
		if s.State == "" {
			return styles.DimStyle.Render("skipped")
		}
		return styles.WarningStyle.Render(fmt.Sprintf("cancelled at %s (%d/%d objects)", s.Label, s.Synced, s.Total))
	case StatusDone:
		return styles.SubtitleStyle.Render(fmt.Sprintf("%d objects → %s", s.Total, s.ExportPath))
	default:
		if s.Total > 0 {
			return styles.SubtitleStyle.Render(fmt.Sprintf("%s (%d/%d)", s.Label, s.Synced, s.Total))
		}
		return styles.SubtitleStyle.Render(s.Label)
	}
}
