// Package curriculum is the wire client for the curriculum graph API.
package curriculum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
)

const (
	SourcesPath = "/api/graph/sources/"
	DataPath    = "/api/graph/data/"

	maxBody = 32 << 20
)

// Fallback messages used when an error response carries no readable message.
const (
	FallbackSubjectsMessage = "subject list could not be loaded"
	FallbackOptionsMessage  = "filter options could not be loaded"
	FallbackGraphMessage    = "graph data could not be loaded"
)

// Doer performs an HTTP exchange. *session.Gateway and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx response together with the server's message.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// Client calls the three curriculum endpoints.
type Client struct {
	base   string
	doer   Doer
	params config.ParamNames
}

// New creates a Client rooted at baseURL.
func New(baseURL string, doer Doer, params config.ParamNames) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		doer:   doer,
		params: params,
	}
}

// Subjects lists the subjects with their default options, in server order.
func (c *Client) Subjects(ctx context.Context) ([]filter.Subject, error) {
	body, err := c.get(ctx, SourcesPath, nil, FallbackSubjectsMessage)
	if err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	subjects, err := decodeSubjects(body)
	if err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	return subjects, nil
}

// Options fetches the option lists for scope. Lists missing from the response
// are absent from the result.
func (c *Client) Options(ctx context.Context, scope filter.Scope) (filter.OptionsResponse, error) {
	q := url.Values{}
	c.setParam(q, c.params.Subject, scope.Subject)
	c.setParam(q, c.params.Topic, scope.Topic)
	c.setParam(q, c.params.Group, scope.Group)
	c.setParam(q, c.params.Grade, filter.State{Grades: scope.Grades}.GradeCSV())

	body, err := c.get(ctx, SourcesPath, q, FallbackOptionsMessage)
	if err != nil {
		return filter.OptionsResponse{}, fmt.Errorf("options: %w", err)
	}
	resp, err := decodeOptions(body)
	if err != nil {
		return filter.OptionsResponse{}, fmt.Errorf("options: %w", err)
	}
	return resp, nil
}

// Graph fetches the node/link payload for st and returns it as a snapshot
// whose filters are st.
func (c *Client) Graph(ctx context.Context, st filter.State) (*graph.Snapshot, error) {
	q := url.Values{}
	c.setParam(q, c.params.Subject, st.Subject)
	c.setParam(q, c.params.Topic, st.Topic)
	c.setParam(q, c.params.Group, st.Group)
	c.setParam(q, c.params.Subgroup, st.Subgroup)
	c.setParam(q, c.params.Grade, st.GradeCSV())

	body, err := c.get(ctx, DataPath, q, FallbackGraphMessage)
	if err != nil {
		return nil, err
	}
	nodes, links, err := decodeGraph(body)
	if err != nil {
		return nil, fmt.Errorf("graph payload: %w", err)
	}
	snap, err := graph.NewSnapshot(nodes, links, st)
	if err != nil {
		return nil, fmt.Errorf("graph payload: %w", err)
	}
	return snap, nil
}

func (c *Client) setParam(q url.Values, name, value string) {
	if name != "" && value != "" {
		q.Set(name, value)
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, fallback string) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Message: ErrorMessage(body, fallback)}
	}
	return body, nil
}

// ErrorMessage extracts the first non-empty of message, detail and error from
// a JSON error body, or returns fallback.
func ErrorMessage(body []byte, fallback string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return fallback
	}
	for _, key := range []string{"message", "detail", "error"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}
