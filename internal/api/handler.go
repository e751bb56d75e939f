package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/engine"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/event"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/interaction"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/render"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

const maxBatchSize = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil, in
// which case config reload is unavailable.
func New(eng *engine.Engine, loader *config.Loader) http.Handler {
	h := &Handler{eng: eng, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /{$}", h.index)
	h.mux.HandleFunc("GET /v1/state", h.state)
	h.mux.HandleFunc("POST /v1/subjects/reload", h.reloadSubjects)
	h.mux.HandleFunc("POST /v1/filters/{level}", h.selectLevel)
	h.mux.HandleFunc("POST /v1/filters/grades/{grade}", h.toggleGrade)
	h.mux.HandleFunc("POST /v1/filters/reset", h.resetFilters)
	h.mux.HandleFunc("GET /v1/graph", h.graph)
	h.mux.HandleFunc("GET /v1/graph/summary", h.summary)
	h.mux.HandleFunc("GET /v1/frame", h.frame)
	h.mux.HandleFunc("GET /v1/frame.svg", h.frameSVG)
	h.mux.HandleFunc("GET /v1/viewport", h.viewport)
	h.mux.HandleFunc("POST /v1/viewport/pan", h.pan)
	h.mux.HandleFunc("POST /v1/viewport/zoom", h.zoom)
	h.mux.HandleFunc("POST /v1/viewport/fit", h.fit)
	h.mux.HandleFunc("POST /v1/viewport/reset", h.resetViewport)
	h.mux.HandleFunc("POST /v1/pointer", h.pointer)
	h.mux.HandleFunc("POST /v1/pointer/batch", h.pointerBatch)
	h.mux.HandleFunc("POST /v1/session", h.login)
	h.mux.HandleFunc("DELETE /v1/session", h.logout)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET / — HTML shell around the SVG frame.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	width, height := h.eng.Viewport().Size()
	page, err := render.Page(render.PageOptions{
		Width:    width,
		Height:   height,
		LoginURL: h.eng.Auth().LoginURL,
		State:    h.eng.Filters().View(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// GET /v1/state — filters, load status, layout phase and auth.
func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// POST /v1/subjects/reload — refetch the subject list.
func (h *Handler) reloadSubjects(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.ReloadSubjects(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Filters().View())
}

type selectRequest struct {
	Slug string `json:"slug"`
}

// POST /v1/filters/{level} — select a subject, topic, group or subgroup.
func (h *Handler) selectLevel(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := h.eng.Select(r.PathValue("level"), req.Slug); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Filters().View())
}

// POST /v1/filters/grades/{grade} — add or remove a grade.
func (h *Handler) toggleGrade(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("grade"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("grade %q is not a number", r.PathValue("grade")))
		return
	}
	if err := h.eng.Filters().ToggleGrade(n); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Filters().View())
}

// POST /v1/filters/reset — clear everything below the subject.
func (h *Handler) resetFilters(w http.ResponseWriter, r *http.Request) {
	h.eng.Filters().ResetFilters()
	writeJSON(w, http.StatusOK, h.eng.Filters().View())
}

type graphResponse struct {
	Filters any          `json:"filters"`
	Nodes   []graph.Node `json:"nodes"`
	Links   []graph.Link `json:"links"`
}

// GET /v1/graph — the last accepted snapshot.
func (h *Handler) graph(w http.ResponseWriter, r *http.Request) {
	snap := h.eng.Snapshot()
	resp := graphResponse{Filters: snap.Filters(), Nodes: snap.Nodes(), Links: snap.Links()}
	if resp.Nodes == nil {
		resp.Nodes = []graph.Node{}
	}
	if resp.Links == nil {
		resp.Links = []graph.Link{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/graph/summary — counts plus best and worst scored nodes.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, graph.Summarize(h.eng.Snapshot()))
}

type frameResponse struct {
	layout.Frame
	Phase     string              `json:"phase"`
	Transform viewport.Transform  `json:"transform"`
	Tooltip   interaction.Tooltip `json:"tooltip"`
}

// GET /v1/frame — node and link positions of the current frame.
func (h *Handler) frame(w http.ResponseWriter, r *http.Request) {
	f := h.eng.Frame()
	if f.Nodes == nil {
		f.Nodes = []layout.NodePos{}
	}
	if f.Links == nil {
		f.Links = []layout.LinkPos{}
	}
	writeJSON(w, http.StatusOK, frameResponse{
		Frame:     f,
		Phase:     f.Phase.String(),
		Transform: h.eng.Viewport().Transform(),
		Tooltip:   h.eng.Tooltip(),
	})
}

// GET /v1/frame.svg — the current frame drawn with overlays.
func (h *Handler) frameSVG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	h.eng.Render(&buf)
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// GET /v1/viewport — current transform.
func (h *Handler) viewport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.viewportBody())
}

func (h *Handler) viewportBody() map[string]any {
	vp := h.eng.Viewport()
	return map[string]any{
		"transform": vp.Transform(),
		"animating": vp.Animating(),
	}
}

type panRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// POST /v1/viewport/pan — shift by screen pixels.
func (h *Handler) pan(w http.ResponseWriter, r *http.Request) {
	var req panRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	h.eng.Viewport().Pan(req.DX, req.DY)
	writeJSON(w, http.StatusOK, h.viewportBody())
}

type zoomRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Factor float64 `json:"factor"`
}

// POST /v1/viewport/zoom — scale around a screen point.
func (h *Handler) zoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Factor <= 0 {
		writeError(w, http.StatusBadRequest, "factor must be positive")
		return
	}
	h.eng.Viewport().ZoomAt(req.X, req.Y, req.Factor)
	writeJSON(w, http.StatusOK, h.viewportBody())
}

// POST /v1/viewport/fit — animate to frame the current layout.
func (h *Handler) fit(w http.ResponseWriter, r *http.Request) {
	body := h.viewportBody()
	body["fitted"] = h.eng.Fit()
	writeJSON(w, http.StatusOK, body)
}

// POST /v1/viewport/reset — back to 1:1.
func (h *Handler) resetViewport(w http.ResponseWriter, r *http.Request) {
	h.eng.Viewport().Reset()
	writeJSON(w, http.StatusOK, h.viewportBody())
}

// POST /v1/pointer — synchronous single pointer event.
func (h *Handler) pointer(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if !ev.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown pointer kind %q", ev.Kind))
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	res, err := h.eng.Pointer(r.Context(), ev)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/pointer/batch — async batch of pointer events (up to 100), applied in order.
func (h *Handler) pointerBatch(w http.ResponseWriter, r *http.Request) {
	var events []event.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}

	queued, invalid := 0, 0
	for _, ev := range events {
		if !ev.Valid() {
			invalid++
			continue
		}
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if h.eng.PointerAsync(ev) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"total":    len(events),
		"queued":   queued,
		"invalid":  invalid,
		"rejected": len(events) - queued - invalid,
	})
}

type loginRequest struct {
	Token string `json:"token"`
}

// POST /v1/session — store a credential and reload subjects.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := h.eng.Login(r.Context(), req.Token); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// DELETE /v1/session — drop the credential and every view.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.eng.Logout()
	writeJSON(w, http.StatusOK, h.eng.Auth())
}

// POST /v1/config/reload — hot-reload tunables from disk.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "config reload unavailable")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.eng.ApplyConfig(cfg)
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the pointer queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
