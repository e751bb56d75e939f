// Package session holds the API credential and performs authenticated HTTP
// exchanges with the curriculum API.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
)

var (
	// ErrUnauthorized is returned when the API rejects the credential (401 or 403).
	ErrUnauthorized = errors.New("session: unauthorized")
	// ErrNoCredential is returned when no credential is stored.
	ErrNoCredential = errors.New("session: no credential")
)

// Config holds the gateway settings.
type Config struct {
	Scheme   string // Authorization scheme, e.g. "Token" or "Bearer"
	Token    string
	LoginURL string
}

// Gateway attaches the stored credential to outgoing requests. On a 401 or 403
// response to the current credential it clears it and calls every registered
// handler with the login URL.
type Gateway struct {
	client   *http.Client
	scheme   string
	loginURL string
	log      *slog.Logger

	mu       sync.RWMutex
	token    string
	handlers []func(loginURL string)
}

// New creates a Gateway. A nil client means http.DefaultClient.
func New(client *http.Client, cfg Config, log *slog.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "Token"
	}
	return &Gateway{
		client:   client,
		scheme:   cfg.Scheme,
		loginURL: cfg.LoginURL,
		token:    cfg.Token,
		log:      log,
	}
}

// OnUnauthorized registers fn to be called after the credential was rejected.
func (g *Gateway) OnUnauthorized(fn func(loginURL string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, fn)
}

// Token returns the stored credential.
func (g *Gateway) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// SetToken replaces the stored credential.
func (g *Gateway) SetToken(tok string) {
	g.mu.Lock()
	g.token = tok
	g.mu.Unlock()
}

// Clear drops the stored credential.
func (g *Gateway) Clear() {
	g.SetToken("")
}

// Authenticated reports whether a credential is stored.
func (g *Gateway) Authenticated() bool {
	return g.Token() != ""
}

// Do sends req with the Authorization header set. A 401 or 403 response is
// consumed, the credential is cleared, and ErrUnauthorized is returned.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	tok := g.Token()
	if tok == "" {
		return nil, ErrNoCredential
	}
	req.Header.Set("Authorization", g.scheme+" "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		g.reject(tok, req.URL.Path, resp.StatusCode)
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

// reject clears tok and notifies handlers if tok is still the stored
// credential. A rejection of a replaced credential belongs to the old session
// and is only logged.
func (g *Gateway) reject(tok, path string, status int) {
	metrics.Unauthorized.Inc()
	g.mu.Lock()
	current := g.token == tok
	if current {
		g.token = ""
	}
	handlers := append([]func(string){}, g.handlers...)
	g.mu.Unlock()

	if !current {
		g.log.Info("stale credential rejected", "path", path, "status", status)
		return
	}
	g.log.Warn("credential rejected", "path", path, "status", status, "redirect", g.loginURL)
	for _, fn := range handlers {
		fn(g.loginURL)
	}
}
