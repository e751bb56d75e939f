package session_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/session"
)

func TestDoSetsAuthorization(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := session.New(srv.Client(), session.Config{Token: "abc"}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/graph/sources/", nil)
	resp, err := g.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if got != "Token abc" {
		t.Errorf("Authorization = %q, want %q", got, "Token abc")
	}
}

func TestDoWithoutCredential(t *testing.T) {
	g := session.New(nil, session.Config{}, nil)
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if _, err := g.Do(req); !errors.Is(err, session.ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestUnauthorizedClearsCredential(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		g := session.New(srv.Client(), session.Config{Scheme: "Bearer", Token: "old", LoginURL: "/login"}, nil)
		var redirect string
		calls := 0
		g.OnUnauthorized(func(u string) { redirect = u; calls++ })

		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		_, err := g.Do(req)
		srv.Close()

		if !errors.Is(err, session.ErrUnauthorized) {
			t.Errorf("status %d: err = %v, want ErrUnauthorized", status, err)
		}
		if g.Authenticated() {
			t.Errorf("status %d: credential should be cleared", status)
		}
		if calls != 1 || redirect != "/login" {
			t.Errorf("status %d: handler calls=%d redirect=%q", status, calls, redirect)
		}
	}
}

func TestRejectKeepsNewerCredential(t *testing.T) {
	var g *session.Gateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The user logs in again while the old request is in flight.
		g.SetToken("fresh")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g = session.New(srv.Client(), session.Config{Token: "old"}, nil)
	calls := 0
	g.OnUnauthorized(func(string) { calls++ })
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := g.Do(req); !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if g.Token() != "fresh" {
		t.Errorf("token = %q, newer credential should survive", g.Token())
	}
	if calls != 0 {
		t.Errorf("handlers called %d times for a replaced credential", calls)
	}
}
