// Package usersync drives the export of one user's object graph.
//
// A Controller is a step-driven state machine. Each call to Step performs
// the work of leaving the current state and arriving at the next one, so a
// caller (the CLI or the TUI) can observe every phase and stop between any
// two of them. The SyncingObjects step fetches the transitive closure of the
// user's keys through a workqueue.Processor fed by the controller itself,
// acting as the key visitor for every fetched object.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/metrics"
	"github.com/mmcdole/rdioexport/internal/workqueue"
)

var (
	// ErrEmptyIdentifier is returned when no email or vanity name is given
	ErrEmptyIdentifier = errors.New("usersync: identifier must not be empty")

	// ErrNilStore is returned when no shared object store is given
	ErrNilStore = errors.New("usersync: object store is required")

	// ErrNilSource is returned when no remote source is given
	ErrNilSource = errors.New("usersync: source is required")
)

// Controller syncs one user into a shared object store.
type Controller struct {
	identifier string
	source     domain.Source
	store      domain.ObjectStore

	logger      *slog.Logger
	recorder    metrics.Recorder
	chunkSize   int
	concurrency int

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex // Protects state, user, keys and the object counters
	state         SyncState
	user          *domain.User
	keys          *domain.UserKeyStore
	totalObjects  int
	syncedObjects int

	// Set for the duration of a SyncingObjects step
	processor atomic.Pointer[workqueue.Processor[string]]
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Every line carries the run's sync_id.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithChunkSize sets how many keys are fetched per request.
func WithChunkSize(n int) Option {
	return func(c *Controller) { c.chunkSize = n }
}

// WithConcurrency sets how many fetches may be in flight at once.
func WithConcurrency(n int) Option {
	return func(c *Controller) { c.concurrency = n }
}

// NewController creates a controller for identifier, an email address or a
// vanity name. The store is shared, not owned: several controllers may sync
// into it one after another. Cancelling parent cancels the controller.
func NewController(
	parent context.Context,
	identifier string,
	source domain.Source,
	store domain.ObjectStore,
	opts ...Option,
) (*Controller, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrEmptyIdentifier
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if source == nil {
		return nil, ErrNilSource
	}
	if parent == nil {
		parent = context.Background()
	}

	c := &Controller{
		identifier: identifier,
		source:     source,
		store:      store,
		logger:     slog.Default(),
		recorder:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("sync_id", uuid.NewString(), "identifier", identifier)
	c.ctx, c.cancel = context.WithCancel(parent)
	return c, nil
}

// Identifier returns the email address or vanity name being synced
func (c *Controller) Identifier() string { return c.identifier }

// Cancel stops the sync. A step in progress returns once its in-flight
// fetches finish; everything fetched so far stays in the store.
func (c *Controller) Cancel() {
	c.logger.Info("sync cancelled")
	c.cancel()
}

// Cancelled reports whether Cancel was called or the parent context ended
func (c *Controller) Cancelled() bool {
	return c.ctx.Err() != nil
}

// State returns the current state
func (c *Controller) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the resolved user, or nil before FoundUser
func (c *Controller) User() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// UserKeys returns the user's key store, or nil before SyncingUserKeys
func (c *Controller) UserKeys() *domain.UserKeyStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys
}

// Progress returns the object counters of the current or last
// SyncingObjects step
func (c *Controller) Progress() (synced, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncedObjects, c.totalObjects
}

// Step performs the work of the current state and advances to the next.
//
// On failure the state is left unchanged and the error is returned, so the
// caller may call Step again to retry. A cancelled step is not a failure:
// Step returns the unchanged state with a nil error and Cancelled reports
// true. onProgress, which may be nil, is called as objects are fetched.
func (c *Controller) Step(onProgress domain.ProgressFunc) (SyncState, error) {
	current := c.State()
	if current == Finished {
		return Finished, nil
	}
	if c.Cancelled() {
		return current, nil
	}

	next := current.Next()
	start := time.Now()
	err := c.perform(current, onProgress)
	c.recorder.ObserveStepDuration(current.String(), time.Since(start))

	if err != nil {
		if c.Cancelled() && errors.Is(err, context.Canceled) {
			c.logger.Info("sync step interrupted", "state", current)
			return current, nil
		}
		c.recorder.IncStepResult(current.String(), false)
		c.logger.Error("sync step failed", "state", current, "error", err)
		return current, err
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()

	c.recorder.IncStepResult(current.String(), true)
	c.logger.Debug("sync step completed", "state", next, "duration", time.Since(start))
	return next, nil
}

func (c *Controller) perform(current SyncState, onProgress domain.ProgressFunc) error {
	switch current {
	case FindingUser:
		user, err := c.findUser()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.user = user
		c.mu.Unlock()
		c.logger.Info("found user", "key", user.Key, "name", user.DisplayName())
		return nil

	case SyncingUserKeys:
		return c.syncUserKeys()

	case SyncingObjects:
		return c.syncObjects(onProgress)

	default:
		// Observation points: nothing to do
		return nil
	}
}

func (c *Controller) findUser() (*domain.User, error) {
	var email, vanityName string
	if strings.IndexByte(c.identifier, '@') > 0 {
		email = c.identifier
	} else {
		vanityName = c.identifier
	}

	user, err := c.source.FindUser(c.ctx, email, vanityName)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrUserIsProtected) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, &domain.UserNotFoundError{Identifier: c.identifier}
	}
	if user.IsProtected {
		return nil, &domain.UserIsProtectedError{User: user}
	}
	return user, nil
}

// syncUserKeys fills a fresh key store so a retried step starts clean.
// The store is published before loading so a cancelled step keeps what it got.
func (c *Controller) syncUserKeys() error {
	c.mu.Lock()
	keys := domain.NewUserKeyStore(c.user)
	c.keys = keys
	c.mu.Unlock()

	for _, kind := range domain.PlaylistKinds() {
		if err := c.source.LoadUserPlaylists(c.ctx, kind, keys); err != nil {
			return fmt.Errorf("failed to load %s playlists: %w", kind, err)
		}
	}
	if err := c.source.LoadFavoritesAndSyncedKeys(c.ctx, keys); err != nil {
		return fmt.Errorf("failed to load favorites and synced keys: %w", err)
	}

	c.logger.Info("loaded user keys", "count", len(keys.AllKeys()))
	return nil
}

func (c *Controller) syncObjects(onProgress domain.ProgressFunc) error {
	keys := c.UserKeys()
	if keys == nil {
		return errors.New("usersync: user keys have not been loaded")
	}

	var seed []string
	for _, k := range keys.AllKeys() {
		if !c.store.ContainsKey(k) {
			seed = append(seed, k)
		}
	}

	p := workqueue.New(seed, c.processChunk, func(pr workqueue.Progress) {
		c.mu.Lock()
		c.totalObjects = pr.Enqueued
		c.syncedObjects = pr.Processed
		c.mu.Unlock()
		if onProgress != nil {
			onProgress(pr.Processed, pr.Enqueued)
		}
	}, workqueue.WithChunkSize(c.chunkSize), workqueue.WithConcurrency(c.concurrency))

	c.mu.Lock()
	c.totalObjects = len(seed)
	c.syncedObjects = 0
	c.mu.Unlock()
	if onProgress != nil {
		onProgress(0, len(seed))
	}

	c.processor.Store(p)
	defer c.processor.Store(nil)

	c.logger.Info("fetching objects", "seed", len(seed))
	if err := p.Process(c.ctx); err != nil {
		return err
	}

	synced, total := c.Progress()
	c.logger.Info("fetched objects", "synced", synced, "total", total)
	return nil
}

// processChunk fetches the keys of one chunk that are still missing from
// the store. Another controller sharing the store may have fetched some of
// them since they were queued.
func (c *Controller) processChunk(ctx context.Context, keys []string) error {
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if !c.store.ContainsKey(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	c.recorder.AddObjectsFetched(len(missing))
	err := c.source.LoadObjects(ctx, c.store, missing, func(obj *domain.Object) {
		obj.AcceptVisitor(c)
	})
	if err != nil {
		return fmt.Errorf("failed to load objects: %w", err)
	}
	return nil
}

// VisitObjectKey queues a key found inside a fetched object. Keys already
// in the store, and keys found while no fetch is running, are ignored.
func (c *Controller) VisitObjectKey(key string) {
	p := c.processor.Load()
	if p == nil || !p.IsProcessing() || c.store.ContainsKey(key) {
		return
	}
	if p.Add(key) {
		c.recorder.AddObjectsDiscovered(1)
	}
}

// Summary describes a finished or stopped Run.
type Summary struct {
	Identifier    string
	State         SyncState
	TotalObjects  int
	SyncedObjects int
	Cancelled     bool
	Duration      time.Duration
}

// Run steps until Finished, cancellation, or the first error. observer,
// which may be nil, receives a snapshot after every step and every
// progress update, and a final snapshot with Done set.
func (c *Controller) Run(observer domain.SyncObserver) (Summary, error) {
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	start := time.Now()

	onProgress := func(synced, total int) {
		observer.OnProgress(c.snapshot())
	}

	var err error
	for c.State() != Finished && !c.Cancelled() {
		if _, err = c.Step(onProgress); err != nil {
			break
		}
		observer.OnProgress(c.snapshot())
	}

	sum := c.summary(time.Since(start))
	c.recorder.ObserveSyncDuration(sum.Duration)
	switch {
	case err != nil:
		c.recorder.IncSyncOutcome(metrics.OutcomeFailed)
	case sum.Cancelled:
		c.recorder.IncSyncOutcome(metrics.OutcomeCancelled)
	default:
		c.recorder.IncSyncOutcome(metrics.OutcomeSuccess)
	}

	final := c.snapshot()
	final.Done = true
	final.Error = err
	observer.OnProgress(final)

	return sum, err
}

func (c *Controller) snapshot() domain.SyncProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.SyncProgress{
		Identifier:    c.identifier,
		State:         c.state.String(),
		TotalObjects:  c.totalObjects,
		SyncedObjects: c.syncedObjects,
		Cancelled:     c.state != Finished && c.ctx.Err() != nil,
	}
}

func (c *Controller) summary(d time.Duration) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		Identifier:    c.identifier,
		State:         c.state,
		TotalObjects:  c.totalObjects,
		SyncedObjects: c.syncedObjects,
		Cancelled:     c.state != Finished && c.ctx.Err() != nil,
		Duration:      d,
	}
}
