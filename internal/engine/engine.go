// Package engine wires the filter cascade, graph loader, force layout, viewport
// and interaction layer into one view.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/curriculum"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/event"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/interaction"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/loader"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/render"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/session"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

var (
	// ErrQueueFull is returned when the pointer queue has no room.
	ErrQueueFull = errors.New("engine: pointer queue full")
	// ErrTimeout is returned when a pointer event is not handled in time.
	ErrTimeout = errors.New("engine: pointer event timeout")
)

// Auth is the credential state shown to clients.
type Auth struct {
	Authenticated bool   `json:"authenticated"`
	LoginURL      string `json:"login_url,omitempty"`
}

// Status is a consistent read of everything the view shows.
type Status struct {
	Filters   filter.View `json:"filters"`
	Loading   bool        `json:"loading"`
	Error     string      `json:"error,omitempty"`
	Nodes     int         `json:"nodes"`
	Links     int         `json:"links"`
	Phase     string      `json:"layout_phase"`
	Alpha     float64     `json:"alpha"`
	Auth      Auth        `json:"auth"`
	Animating bool        `json:"animating"`
}

// Engine owns the view components and the flow between them: filter changes
// trigger graph loads, accepted snapshots restart the layout, and a settled
// layout schedules an auto-fit.
type Engine struct {
	log  *slog.Logger
	conf atomic.Pointer[config.AppConfig]

	gw     *session.Gateway
	client *curriculum.Client
	ctl    *filter.Controller
	loader *loader.Loader
	sim    *layout.Simulation
	runner *layout.Runner
	vp     *viewport.Controller
	layer  *interaction.Layer

	pointerPool *workerPool[event.Event, interaction.Result]

	ctx    context.Context
	cancel context.CancelFunc

	loadMu   sync.Mutex
	lastLoad filter.State
	loaded   bool

	fitMu      sync.Mutex
	fitPending bool
	fitTimer   *time.Timer

	rejected atomic.Bool
}

// New builds an Engine from cfg. httpClient may be nil.
func New(ctx context.Context, cfg *config.AppConfig, httpClient *http.Client, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log.With("component", "engine")}
	e.conf.Store(cfg)
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.gw = session.New(httpClient, session.Config{
		Scheme:   cfg.API.AuthScheme,
		Token:    cfg.API.ResolveToken(),
		LoginURL: cfg.API.LoginURL,
	}, log.With("component", "session"))
	e.client = curriculum.New(cfg.API.BaseURL, e.gw, cfg.API.Params)

	e.ctl = filter.New(e.ctx, e.client, filter.WithLogger(log.With("component", "filter")))
	e.loader = loader.New(e.ctx, e.client, log.With("component", "loader"))
	e.sim = layout.New(cfg.Layout)
	e.runner = layout.NewRunner(e.sim, frameInterval(cfg.Layout), nil, log.With("component", "layout"))
	e.vp = viewport.New(cfg.Viewport, cfg.Layout.Width, cfg.Layout.Height)
	e.layer = interaction.New(e.sim, e.vp)

	e.pointerPool = newWorkerPool[event.Event, interaction.Result](
		e.ctx,
		1,
		cfg.Server.EventQueueDepth,
		func(_ context.Context, ev event.Event) interaction.Result {
			return e.layer.Dispatch(ev)
		},
	)

	e.ctl.Subscribe(e.onFilters)
	e.loader.OnSnapshot(e.onSnapshot)
	e.sim.OnSettle(e.onSettle)
	e.gw.OnUnauthorized(e.onUnauthorized)
	return e
}

// Start launches the layout loop and loads the subject list. A subject-list
// failure is returned but leaves the engine running.
func (e *Engine) Start(ctx context.Context) error {
	e.runner.Start(e.ctx)
	return e.ctl.LoadSubjects(ctx)
}

// ── Component flow ──────────────────────────────────────────────────────────

func (e *Engine) onFilters(st filter.State) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loaded && st.Equal(e.lastLoad) {
		return
	}
	e.lastLoad, e.loaded = st.Clone(), true
	id := e.loader.Load(st)
	if id != "" {
		e.log.Debug("graph load started", "request", id, "subject", st.Subject, "topic", st.Topic, "group", st.Group)
	}
}

func (e *Engine) onSnapshot(snap *graph.Snapshot) {
	// Held across SetGraph so a fast settle cannot run before fitPending is set.
	e.fitMu.Lock()
	defer e.fitMu.Unlock()
	restarted := e.sim.SetGraph(snap)
	if restarted || snap.NodeCount() == 0 {
		e.stopFitLocked()
		e.fitPending = restarted
	}
}

func (e *Engine) onSettle(layout.Frame) {
	e.fitMu.Lock()
	defer e.fitMu.Unlock()
	if !e.fitPending {
		return
	}
	e.fitPending = false
	e.stopFitLocked()
	delay := time.Duration(e.conf.Load().Viewport.FitDelayMs) * time.Millisecond
	e.fitTimer = time.AfterFunc(delay, func() { e.Fit() })
}

func (e *Engine) stopFitLocked() {
	if e.fitTimer != nil {
		e.fitTimer.Stop()
		e.fitTimer = nil
	}
}

// onUnauthorized drops every piece of user-scoped state once the credential
// has been rejected.
func (e *Engine) onUnauthorized(loginURL string) {
	e.rejected.Store(true)
	e.log.Warn("session rejected; clearing view", "redirect", loginURL)
	e.ctl.Clear()
	e.loader.Clear()
	e.sim.SetGraph(nil)
	e.layer.Reset()
	e.vp.Reset()

	e.fitMu.Lock()
	e.fitPending = false
	e.stopFitLocked()
	e.fitMu.Unlock()
}

// ── Session ─────────────────────────────────────────────────────────────────

// Login stores a new credential and reloads the subject list.
func (e *Engine) Login(ctx context.Context, token string) error {
	if token == "" {
		return session.ErrNoCredential
	}
	e.gw.SetToken(token)
	e.rejected.Store(false)
	return e.ctl.LoadSubjects(ctx)
}

// Logout drops the credential and all view state.
func (e *Engine) Logout() {
	e.gw.Clear()
	e.onUnauthorized(e.conf.Load().API.LoginURL)
}

// Auth reports the credential state.
func (e *Engine) Auth() Auth {
	a := Auth{Authenticated: e.gw.Authenticated()}
	if !a.Authenticated || e.rejected.Load() {
		a.Authenticated = false
		a.LoginURL = e.conf.Load().API.LoginURL
	}
	return a
}

// ── Filters ─────────────────────────────────────────────────────────────────

// Filters exposes the cascade controller.
func (e *Engine) Filters() *filter.Controller { return e.ctl }

// ReloadSubjects refetches the subject list.
func (e *Engine) ReloadSubjects(ctx context.Context) error {
	return e.ctl.LoadSubjects(ctx)
}

// Select sets the selection at level ("subject", "topic", "group" or "subgroup").
func (e *Engine) Select(level, slug string) error {
	switch level {
	case "subject":
		return e.ctl.SelectSubject(slug)
	case filter.LevelTopic.String():
		return e.ctl.SelectTopic(slug)
	case filter.LevelGroup.String():
		return e.ctl.SelectGroup(slug)
	case filter.LevelSubgroup.String():
		return e.ctl.SelectSubgroup(slug)
	}
	return fmt.Errorf("%w: level %q", filter.ErrUnknownOption, level)
}

// ── Graph and layout ────────────────────────────────────────────────────────

// Snapshot returns the last accepted graph.
func (e *Engine) Snapshot() *graph.Snapshot { return e.loader.Snapshot() }

// Frame returns the current layout frame.
func (e *Engine) Frame() layout.Frame { return e.sim.Frame() }

// Status returns the combined view state.
func (e *Engine) Status() Status {
	ls := e.loader.Status()
	return Status{
		Filters:   e.ctl.View(),
		Loading:   ls.Loading,
		Error:     ls.Error,
		Nodes:     ls.Snapshot.NodeCount(),
		Links:     ls.Snapshot.LinkCount(),
		Phase:     e.sim.Phase().String(),
		Alpha:     e.sim.Alpha(),
		Auth:      e.Auth(),
		Animating: e.vp.Animating(),
	}
}

// Render writes the current frame as SVG with the tooltip and load error overlaid.
func (e *Engine) Render(w io.Writer) {
	render.Frame(w, e.sim.Frame(), render.Options{
		Transform: e.vp.Transform(),
		Tooltip:   e.layer.Tooltip(),
		Error:     e.loader.Status().Error,
	})
}

// ── Viewport ────────────────────────────────────────────────────────────────

// Viewport exposes the pan/zoom controller.
func (e *Engine) Viewport() *viewport.Controller { return e.vp }

// Fit animates the viewport to frame the current layout. It reports false when
// there is nothing to frame.
func (e *Engine) Fit() bool {
	f := e.sim.Frame()
	pts := make([]viewport.Point, len(f.Nodes))
	for i, n := range f.Nodes {
		pts[i] = viewport.Point{X: n.X, Y: n.Y}
	}
	if !e.vp.Fit(pts) {
		return false
	}
	metrics.Fits.Inc()
	return true
}

// ── Pointer input ───────────────────────────────────────────────────────────

// Pointer dispatches ev in order with every other pointer event and waits for
// the result.
func (e *Engine) Pointer(ctx context.Context, ev event.Event) (interaction.Result, error) {
	resultC := make(chan interaction.Result, 1)
	ev.ReceivedAt = time.Now()

	timeout := time.Duration(e.conf.Load().Server.EventTimeoutMs) * time.Millisecond
	if !e.pointerPool.Submit(ev, resultC) {
		metrics.PointerEvents.WithLabelValues("dropped").Inc()
		return interaction.Result{}, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pointerPool.QueueCap())
	}

	select {
	case res := <-resultC:
		metrics.PointerEvents.WithLabelValues("handled").Inc()
		return res, nil
	case <-time.After(timeout):
		metrics.PointerEvents.WithLabelValues("timeout").Inc()
		return interaction.Result{}, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return interaction.Result{}, ctx.Err()
	}
}

// PointerAsync enqueues ev without waiting. Returns false if the queue is full.
func (e *Engine) PointerAsync(ev event.Event) bool {
	ev.ReceivedAt = time.Now()
	if !e.pointerPool.Submit(ev, nil) {
		metrics.PointerEvents.WithLabelValues("dropped").Inc()
		return false
	}
	metrics.PointerEvents.WithLabelValues("handled").Inc()
	return true
}

// QueueUtilization returns pointer queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pointerPool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pointerPool.QueueLen()) / float64(e.pointerPool.QueueCap())
}

// Tooltip returns the hover label for the current frame.
func (e *Engine) Tooltip() interaction.Tooltip { return e.layer.Tooltip() }

// Interaction returns the hover/drag/pan record.
func (e *Engine) Interaction() interaction.State { return e.layer.State() }

// ── Lifecycle ───────────────────────────────────────────────────────────────

// ApplyConfig applies layout and viewport tunables from a reloaded config.
// API settings take effect on restart only.
func (e *Engine) ApplyConfig(cfg *config.AppConfig) {
	e.conf.Store(cfg)
	e.sim.ApplyConfig(cfg.Layout)
	e.runner.SetInterval(frameInterval(cfg.Layout))
	e.vp.ApplyConfig(cfg.Viewport, cfg.Layout.Width, cfg.Layout.Height)
	e.log.Info("config applied", "charge", cfg.Layout.Charge, "link_base", cfg.Layout.LinkBase)
}

// Wait blocks until pending option and graph fetches have returned.
func (e *Engine) Wait() {
	e.ctl.Wait()
	e.loader.Wait()
}

// Shutdown cancels in-flight fetches, stops the layout loop and drains the
// pointer queue.
func (e *Engine) Shutdown() {
	e.fitMu.Lock()
	e.stopFitLocked()
	e.fitMu.Unlock()

	e.pointerPool.Drain()
	e.cancel()
	e.ctl.Close()
	e.loader.Close()
	e.runner.Wait()
}

func frameInterval(c config.LayoutConf) time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}
