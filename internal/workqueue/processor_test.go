package workqueue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// graph maps a key to the keys it references
type graph map[string][]string

// crawler fetches keys from a graph and feeds references back into the processor
type crawler struct {
	g      graph
	mu     sync.Mutex
	stored map[string]int // key -> fetch count
	p      *Processor[string]
}

func newCrawler(g graph, preloaded ...string) *crawler {
	c := &crawler{g: g, stored: make(map[string]int)}
	for _, k := range preloaded {
		c.stored[k] = 0
	}
	return c
}

func (c *crawler) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stored[key]
	return ok
}

func (c *crawler) handle(_ context.Context, keys []string) error {
	for _, k := range keys {
		c.mu.Lock()
		c.stored[k]++
		c.mu.Unlock()
		for _, ref := range c.g[k] {
			if c.p.IsProcessing() && !c.contains(ref) {
				c.p.Add(ref)
			}
		}
	}
	return nil
}

func (c *crawler) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestProcess_DiscoversReferencedKeys(t *testing.T) {
	c := newCrawler(graph{"a": {"c"}})
	var last Progress
	c.p = New([]string{"a", "b"}, c.handle, func(p Progress) { last = p }, WithChunkSize(1))

	require.NoError(t, c.p.Process(t.Context()))

	require.Equal(t, []string{"a", "b", "c"}, c.keys())
	for _, k := range c.keys() {
		require.Equal(t, 1, c.stored[k], "key %s fetched more than once", k)
	}
	require.Equal(t, Progress{Enqueued: 3, Processed: 3}, c.p.Progress())
	require.Equal(t, Progress{Enqueued: 3, Processed: 3}, last)
	require.False(t, c.p.IsProcessing())
}

func TestProcess_TerminatesOnCycles(t *testing.T) {
	g := graph{
		"a": {"b"},
		"b": {"c", "a"},
		"c": {"a", "d"},
		"d": {"b", "d"},
	}
	c := newCrawler(g)
	c.p = New([]string{"a"}, c.handle, nil, WithChunkSize(2), WithConcurrency(3))

	done := make(chan error, 1)
	go func() { done <- c.p.Process(t.Context()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not terminate on a cyclic graph")
	}

	require.Equal(t, []string{"a", "b", "c", "d"}, c.keys())
	for _, k := range c.keys() {
		require.Equal(t, 1, c.stored[k])
	}
}

func TestProcess_SkipsStoredKeys(t *testing.T) {
	c := newCrawler(graph{"a": {"x", "y"}}, "x")
	c.p = New([]string{"a"}, c.handle, nil)

	require.NoError(t, c.p.Process(t.Context()))

	require.Equal(t, 0, c.stored["x"], "stored key must not be fetched again")
	require.Equal(t, 1, c.stored["y"])
	require.Equal(t, 2, c.p.Progress().Enqueued)
}

func TestNew_DeduplicatesSeedKeys(t *testing.T) {
	p := New([]string{"a", "b", "a", "b", "c"}, func(context.Context, []string) error { return nil }, nil)
	require.Equal(t, 3, p.Progress().Enqueued)
	require.Equal(t, 3, p.Pending())
}

func TestAdd_RejectsDuplicatesAndCompletedRuns(t *testing.T) {
	p := New([]string{"a"}, func(context.Context, []string) error { return nil }, nil)

	require.False(t, p.Add("a"))
	require.True(t, p.Add("b"))
	require.NoError(t, p.Process(t.Context()))

	require.False(t, p.Add("c"), "add after completion must be refused")
	require.Equal(t, Progress{Enqueued: 2, Processed: 2}, p.Progress())
}

func TestProcess_RespectsConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int32
	handle := func(_ context.Context, keys []string) error {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	seed := make([]string, 40)
	for i := range seed {
		seed[i] = string(rune('a' + i%26)) + string(rune('A'+i/26))
	}
	p := New(seed, handle, nil, WithChunkSize(1), WithConcurrency(3))

	require.NoError(t, p.Process(t.Context()))
	require.LessOrEqual(t, peak.Load(), int32(3))
	require.Equal(t, 40, p.Progress().Processed)
}

func TestProcess_ChunksRespectChunkSize(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	handle := func(_ context.Context, keys []string) error {
		mu.Lock()
		sizes = append(sizes, len(keys))
		mu.Unlock()
		return nil
	}

	p := New([]string{"1", "2", "3", "4", "5", "6", "7"}, handle, nil, WithChunkSize(3), WithConcurrency(1))
	require.NoError(t, p.Process(t.Context()))
	require.Equal(t, []int{3, 3, 1}, sizes)
}

func TestProcess_ProgressIsMonotonic(t *testing.T) {
	g := graph{}
	for i := 0; i < 30; i++ {
		k := string(rune('a' + i))
		g[k] = []string{string(rune('a' + (i+1)%30)), string(rune('a' + (i+7)%30))}
	}
	c := newCrawler(g)

	var mu sync.Mutex
	var observed []Progress
	c.p = New([]string{"a"}, c.handle, func(p Progress) {
		mu.Lock()
		observed = append(observed, p)
		mu.Unlock()
	}, WithChunkSize(2), WithConcurrency(4))

	require.NoError(t, c.p.Process(t.Context()))
	require.NotEmpty(t, observed)

	prev := Progress{}
	for _, p := range observed {
		require.LessOrEqual(t, p.Processed, p.Enqueued)
		require.GreaterOrEqual(t, p.Enqueued, prev.Enqueued)
		require.GreaterOrEqual(t, p.Processed, prev.Processed)
		prev = p
	}
	require.Equal(t, Progress{Enqueued: 30, Processed: 30}, prev)
}

func TestProcess_CancelStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var calls atomic.Int32
	release := make(chan struct{})
	handle := func(_ context.Context, keys []string) error {
		if calls.Add(1) == 1 {
			cancel()
			<-release
		}
		return nil
	}

	p := New([]string{"a", "b", "c", "d"}, handle, nil, WithChunkSize(1), WithConcurrency(1))

	done := make(chan error, 1)
	go func() { done <- p.Process(ctx) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("processor hung after cancellation")
	}

	require.Equal(t, int32(1), calls.Load(), "no chunk may start after cancellation")
	require.Equal(t, Progress{Enqueued: 4, Processed: 1}, p.Progress())
}

func TestProcess_InFlightChunkFinishesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var finished atomic.Bool
	var p *Processor[string]
	handle := func(_ context.Context, keys []string) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		p.Add("discovered")
		finished.Store(true)
		return nil
	}
	p = New([]string{"a"}, handle, nil)

	err := p.Process(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, finished.Load())
	require.Equal(t, 1, p.Pending(), "discovered key is kept but not drained")
}

func TestProcess_HandlerErrorAbortsDrain(t *testing.T) {
	boom := errors.New("fetch failed")
	var calls atomic.Int32
	handle := func(_ context.Context, keys []string) error {
		calls.Add(1)
		if keys[0] == "b" {
			return boom
		}
		return nil
	}

	p := New([]string{"a", "b", "c", "d", "e"}, handle, nil, WithChunkSize(1), WithConcurrency(1))
	err := p.Process(t.Context())
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), calls.Load(), "no chunk may start after a failure")
}

func TestProcess_SecondCallFails(t *testing.T) {
	p := New([]string{"a"}, func(context.Context, []string) error { return nil }, nil)
	require.NoError(t, p.Process(t.Context()))
	require.ErrorIs(t, p.Process(t.Context()), ErrAlreadyStarted)
}

func TestProcess_EmptySeedCompletes(t *testing.T) {
	called := false
	p := New[string](nil, func(context.Context, []string) error {
		called = true
		return nil
	}, nil)

	require.NoError(t, p.Process(t.Context()))
	require.False(t, called)
	require.Equal(t, Progress{}, p.Progress())
}

// Regression: a key discovered by the final in-flight chunk must still be
// drained, whichever way the completion check races the Add.
func TestProcess_AddDuringLastChunkIsNotLost(t *testing.T) {
	for i := 0; i < 200; i++ {
		var p *Processor[string]
		var fetched sync.Map
		handle := func(_ context.Context, keys []string) error {
			for _, k := range keys {
				fetched.Store(k, true)
				if k == "last" {
					p.Add("tail")
				}
			}
			return nil
		}
		p = New([]string{"last"}, handle, nil, WithConcurrency(2))

		require.NoError(t, p.Process(t.Context()))
		_, ok := fetched.Load("tail")
		require.True(t, ok, "iteration %d lost the tail key", i)
		require.Equal(t, Progress{Enqueued: 2, Processed: 2}, p.Progress())
	}
}
