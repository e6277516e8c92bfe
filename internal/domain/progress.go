package domain

// ProgressFunc reports object sync progress.
// Called after every completed chunk: (50, 120), (100, 180), ...
// Totals grow while discovery surfaces new keys.
type ProgressFunc func(synced, total int)

// SyncProgress is a point-in-time view of one user sync for observers.
type SyncProgress struct {
	Identifier    string
	State         string
	TotalObjects  int
	SyncedObjects int
	Done          bool
	Cancelled     bool
	Error         error
}

// SyncObserver receives progress updates during sync operations.
type SyncObserver interface {
	OnProgress(progress SyncProgress)
}

// NoOpObserver discards progress updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnProgress(SyncProgress) {}
