// Package loader fetches graph snapshots for filter states, keeping at most one
// load in flight.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/curriculum"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
)

// Source fetches the snapshot for a filter state.
type Source interface {
	Graph(ctx context.Context, st filter.State) (*graph.Snapshot, error)
}

// Status is a consistent read of the loader.
type Status struct {
	Loading  bool
	Error    string
	Snapshot *graph.Snapshot // last successful snapshot, never nil
}

// Loader runs graph loads. Starting a load cancels the previous one, and a
// superseded load never changes Status.
type Loader struct {
	src Source
	log *slog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	request  string
	cancel   context.CancelFunc
	loading  bool
	errMsg   string
	snapshot *graph.Snapshot

	listenMu  sync.Mutex
	listeners []func(*graph.Snapshot)
}

// New creates a Loader holding an empty snapshot.
func New(ctx context.Context, src Source, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	l := &Loader{
		src:      src,
		log:      log,
		snapshot: graph.Empty(filter.State{}),
	}
	l.ctx, l.stop = context.WithCancel(ctx)
	return l
}

// OnSnapshot registers fn to receive every accepted snapshot. Calls are made
// from the loading goroutine in acceptance order.
func (l *Loader) OnSnapshot(fn func(*graph.Snapshot)) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Load starts fetching the snapshot for st and returns its request id. An
// empty subject clears the loader instead.
func (l *Loader) Load(st filter.State) string {
	if st.Subject == "" {
		l.Clear()
		return ""
	}
	st = st.Clone()

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(l.ctx)
	id := uuid.NewString()
	l.request = id
	l.cancel = cancel
	l.loading = true
	l.errMsg = ""
	l.wg.Add(1)
	l.mu.Unlock()

	go l.run(ctx, id, st)
	return id
}

func (l *Loader) run(ctx context.Context, id string, st filter.State) {
	defer l.wg.Done()
	start := time.Now()
	snap, err := l.src.Graph(ctx, st)
	metrics.GraphLoadDuration.Observe(float64(time.Since(start).Milliseconds()))

	l.listenMu.Lock()
	defer l.listenMu.Unlock()

	l.mu.Lock()
	if l.request != id || ctx.Err() != nil {
		l.mu.Unlock()
		metrics.GraphLoads.WithLabelValues("stale").Inc()
		return
	}
	l.loading = false
	l.cancel = nil
	if err != nil {
		l.errMsg = message(err)
		l.mu.Unlock()
		outcome := "error"
		if errors.Is(err, graph.ErrDanglingLink) || errors.Is(err, graph.ErrDuplicateNode) {
			outcome = "invalid"
		}
		metrics.GraphLoads.WithLabelValues(outcome).Inc()
		l.log.Warn("graph load failed; keeping previous snapshot", "request", id, "subject", st.Subject, "err", err)
		return
	}
	l.snapshot = snap
	l.mu.Unlock()
	metrics.GraphLoads.WithLabelValues("ok").Inc()
	l.log.Debug("graph loaded", "request", id, "nodes", snap.NodeCount(), "links", snap.LinkCount())

	for _, fn := range l.listeners {
		fn(snap)
	}
}

// message turns a load error into the text shown to the user.
func message(err error) string {
	var se *curriculum.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err.Error() == "" {
		return curriculum.FallbackGraphMessage
	}
	return err.Error()
}

// Clear cancels the active load and drops the snapshot and error.
func (l *Loader) Clear() {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.request = ""
	l.loading = false
	l.errMsg = ""
	empty := graph.Empty(filter.State{})
	l.snapshot = empty
	l.mu.Unlock()

	for _, fn := range l.listeners {
		fn(empty)
	}
}

// Status returns the current load state.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Loading: l.loading, Error: l.errMsg, Snapshot: l.snapshot}
}

// Snapshot returns the last accepted snapshot.
func (l *Loader) Snapshot() *graph.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// Wait blocks until every load started so far has returned.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close cancels the active load and waits for it.
func (l *Loader) Close() {
	l.stop()
	l.wg.Wait()
}
