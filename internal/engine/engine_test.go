package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/curriculum"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/engine"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/event"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/session"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

// fakeAPI serves the three curriculum endpoints and records graph requests.
type fakeAPI struct {
	reject atomic.Bool

	mu     sync.Mutex
	graphs []string // subject of every graph request
	tokens []string

	// held, when set, parks the next subject-list request sent with heldToken
	// until release is closed, then answers it with 401.
	held      chan struct{}
	release   chan struct{}
	heldToken string
}

// holdSubjects arms the parking of one subject-list request sent with token.
func (a *fakeAPI) holdSubjects(token string) (held, release chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held, a.release, a.heldToken = make(chan struct{}), make(chan struct{}), token
	return a.held, a.release
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.tokens = append(a.tokens, r.Header.Get("Authorization"))
	var held, release chan struct{}
	if a.held != nil && r.URL.Path == curriculum.SourcesPath && r.URL.Query().Get("subject") == "" &&
		r.Header.Get("Authorization") == a.heldToken {
		held, release = a.held, a.release
		a.held = nil
	}
	a.mu.Unlock()
	if held != nil {
		close(held)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if a.reject.Load() {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	switch r.URL.Path {
	case curriculum.SourcesPath:
		switch {
		case q.Get("subject") == "":
			w.Write([]byte(`{"matematik":[{"slug":"sayilar","label":"Sayılar"}],"fizik":[]}`))
		case q.Get("topic") == "":
			w.Write([]byte(`{"topics":[{"slug":"sayilar","label":"Sayılar"}]}`))
		default:
			w.Write([]byte(`{"groups":[{"slug":"dogal","label":"Doğal Sayılar"}]}`))
		}
	case curriculum.DataPath:
		subject := q.Get("subject")
		a.mu.Lock()
		a.graphs = append(a.graphs, subject)
		a.mu.Unlock()
		fmt.Fprintf(w, `{"data":{"nodes":[
			{"id":"%[1]s-t1","type":"topic","label":"Konu","radius":30},
			{"id":"%[1]s-o1","type":"outcome","label":"Kazanım 1","score":55},
			{"id":"%[1]s-o2","type":"outcome","label":"Kazanım 2","score":81.5}
		],"links":[
			{"source":"%[1]s-t1","target":"%[1]s-o1"},
			{"source":"%[1]s-t1","target":"%[1]s-o2"}
		]}}`, subject)
	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAPI) graphRequests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.graphs...)
}

func (a *fakeAPI) lastToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.tokens) == 0 {
		return ""
	}
	return a.tokens[len(a.tokens)-1]
}

func newEngine(t *testing.T, tune func(*config.AppConfig)) (*engine.Engine, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.Token = "tok"
	// Keep the layout frozen unless a test wants it to run.
	cfg.Layout.FrameIntervalMs = int(time.Hour / time.Millisecond)
	if tune != nil {
		tune(cfg)
	}

	e := engine.New(context.Background(), cfg, srv.Client(), nil)
	t.Cleanup(e.Shutdown)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Wait()
	return e, api
}

func TestStartLoadsFirstSubjectGraph(t *testing.T) {
	e, api := newEngine(t, nil)

	if got := api.graphRequests(); len(got) != 1 || got[0] != "matematik" {
		t.Fatalf("graph requests = %v, want one for matematik", got)
	}
	if n := e.Snapshot().NodeCount(); n != 3 {
		t.Errorf("snapshot nodes = %d, want 3", n)
	}
	st := e.Status()
	if st.Filters.State.Subject != "matematik" || st.Phase != "simulating" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Filters.Topics) != 1 {
		t.Errorf("topics = %+v", st.Filters.Topics)
	}
	if !st.Auth.Authenticated {
		t.Error("should be authenticated")
	}
	if api.lastToken() != "Token tok" {
		t.Errorf("authorization = %q", api.lastToken())
	}
}

func TestSubjectChangeLoadsOnce(t *testing.T) {
	e, api := newEngine(t, nil)

	if err := e.Select("subject", "fizik"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	e.Wait()
	got := api.graphRequests()
	if len(got) != 2 || got[1] != "fizik" {
		t.Fatalf("graph requests = %v, want exactly one more for fizik", got)
	}
	if _, ok := e.Snapshot().Node("fizik-t1"); !ok {
		t.Error("snapshot should hold the fizik graph")
	}

	// Selecting a topic narrows the graph; reselecting it changes nothing.
	if err := e.Select("topic", "sayilar"); err != nil {
		t.Fatalf("Select topic: %v", err)
	}
	e.Wait()
	if err := e.Select("topic", "sayilar"); err != nil {
		t.Fatalf("reselect topic: %v", err)
	}
	e.Wait()
	if got := api.graphRequests(); len(got) != 3 {
		t.Errorf("graph requests = %v, want 3", got)
	}
	if err := e.Select("level", "x"); err == nil {
		t.Error("unknown level should fail")
	}
}

func TestUnauthorizedClearsView(t *testing.T) {
	e, api := newEngine(t, nil)

	api.reject.Store(true)
	if err := e.Select("subject", "fizik"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	e.Wait()

	st := e.Status()
	if st.Filters.State.Subject != "" || len(st.Filters.Subjects) != 0 {
		t.Errorf("filters should be cleared: %+v", st.Filters.State)
	}
	if st.Nodes != 0 || len(e.Frame().Nodes) != 0 {
		t.Errorf("graph should be cleared: nodes=%d frame=%d", st.Nodes, len(e.Frame().Nodes))
	}
	if st.Phase != "idle" {
		t.Errorf("layout phase = %q, want idle", st.Phase)
	}
	if st.Auth.Authenticated || st.Auth.LoginURL != "/login" {
		t.Errorf("auth = %+v", st.Auth)
	}

	api.reject.Store(false)
	if err := e.Login(context.Background(), "fresh"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	e.Wait()
	if !e.Auth().Authenticated {
		t.Error("login should restore the session")
	}
	if api.lastToken() != "Token fresh" {
		t.Errorf("authorization = %q", api.lastToken())
	}
	if e.Snapshot().NodeCount() != 3 {
		t.Error("graph should reload after login")
	}
}

func TestPointerHoverThroughEngine(t *testing.T) {
	e, _ := newEngine(t, nil)

	f := e.Frame()
	if len(f.Nodes) == 0 {
		t.Fatal("empty frame")
	}
	top := f.Nodes[len(f.Nodes)-1]
	sx, sy := e.Viewport().Transform().Apply(top.X, top.Y)

	res, err := e.Pointer(context.Background(), event.Event{Kind: event.Move, X: sx, Y: sy})
	if err != nil {
		t.Fatalf("Pointer: %v", err)
	}
	if res.State.Hover != top.ID {
		t.Errorf("hover = %q, want %q", res.State.Hover, top.ID)
	}
	if !strings.Contains(res.Tooltip.Text, "success: 81.5") {
		t.Errorf("tooltip = %+v", res.Tooltip)
	}

	var buf bytes.Buffer
	e.Render(&buf)
	if c := strings.Count(buf.String(), "<circle"); c != 3 {
		t.Errorf("rendered %d circles, want 3", c)
	}
	if !strings.Contains(buf.String(), "success: 81.5") {
		t.Error("tooltip should be rendered")
	}

	res, err = e.Pointer(context.Background(), event.Event{Kind: event.Leave})
	if err != nil || res.Tooltip.Visible {
		t.Errorf("leave: %+v, %v", res, err)
	}
}

func TestSettledLayoutIsFitted(t *testing.T) {
	e, _ := newEngine(t, func(c *config.AppConfig) {
		c.Layout.FrameIntervalMs = 1
		c.Viewport.FitDelayMs = 1
		c.Viewport.FitDurationMs = 1
	})

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if e.Status().Phase == "settled" && e.Viewport().Transform() != viewport.Identity && !e.Viewport().Animating() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("layout never settled and fitted: phase=%s transform=%+v", e.Status().Phase, e.Viewport().Transform())
}

func TestApplyConfigClampsZoom(t *testing.T) {
	e, _ := newEngine(t, nil)

	cfg := config.Default()
	cfg.Viewport.MaxScale = 2
	e.ApplyConfig(cfg)
	if tr := e.Viewport().ZoomAt(0, 0, 10); tr.K != 2 {
		t.Errorf("scale = %g, want the new max of 2", tr.K)
	}
}

func TestStaleRejectionKeepsNewSession(t *testing.T) {
	e, api := newEngine(t, nil)

	// A subject reload issued with the old credential is still in flight.
	held, release := api.holdSubjects("Token tok")
	errc := make(chan error, 1)
	go func() { errc <- e.ReloadSubjects(context.Background()) }()
	<-held

	if err := e.Login(context.Background(), "new"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(release)
	if err := <-errc; !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("old reload err = %v, want ErrUnauthorized", err)
	}
	e.Wait()

	st := e.Status()
	if !st.Auth.Authenticated {
		t.Error("new session reported as logged out")
	}
	if st.Filters.State.Subject != "matematik" || len(st.Filters.Subjects) != 2 {
		t.Errorf("filters wiped: %+v", st.Filters)
	}
	if n := e.Snapshot().NodeCount(); n != 3 {
		t.Errorf("snapshot nodes = %d, want 3", n)
	}
	if api.lastToken() != "Token new" {
		t.Errorf("last authorization = %q", api.lastToken())
	}
}
