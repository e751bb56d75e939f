package curriculum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
)

// optionKeys lists the accepted response keys per level, English first.
var optionKeys = map[filter.Level][]string{
	filter.LevelTopic:    {"topics", "konular"},
	filter.LevelGroup:    {"groups", "gruplar"},
	filter.LevelSubgroup: {"subgroups", "alt_gruplar"},
}

var scoreKeys = []string{"basari_puani", "basari", "kazanim_basarisi", "success", "score", "puan", "value"}

// decodeSubjects reads a JSON object keyed by subject slug, keeping key order.
func decodeSubjects(body []byte) ([]filter.Subject, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode: expected object, got %v", tok)
	}
	var out []filter.Subject
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		slug, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode subject %q: %w", slug, err)
		}
		s := filter.Subject{Slug: slug}
		// Defaults are informational; an unexpected shape is ignored.
		if list, err := decodeEntries(raw); err == nil {
			s.Defaults = list
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeOptions keeps the distinction between an absent key and an explicit
// list. A JSON null counts as absent.
func decodeOptions(body []byte) (filter.OptionsResponse, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return filter.OptionsResponse{}, fmt.Errorf("decode: %w", err)
	}
	var resp filter.OptionsResponse
	for _, l := range filter.Levels {
		for _, key := range optionKeys[l] {
			raw, ok := obj[key]
			if !ok || isNull(raw) {
				continue
			}
			list, err := decodeEntries(raw)
			if err != nil {
				return filter.OptionsResponse{}, fmt.Errorf("decode %s: %w", key, err)
			}
			resp.Set(l, list)
			break
		}
	}
	return resp, nil
}

func decodeEntries(raw json.RawMessage) ([]filter.OptionEntry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]filter.OptionEntry, 0, len(items))
	for _, item := range items {
		var e filter.OptionEntry
		if s, ok := asString(item); ok {
			e = filter.OptionEntry{Slug: s, Label: s}
		} else if err := json.Unmarshal(item, &e); err != nil {
			return nil, err
		}
		if e.Slug == "" {
			continue
		}
		if e.Label == "" {
			e.Label = e.Slug
		}
		out = append(out, e)
	}
	return out, nil
}

type wirePayload struct {
	Data  json.RawMessage   `json:"data"`
	Nodes []json.RawMessage `json:"nodes"`
	Links []json.RawMessage `json:"links"`
}

// decodeGraph accepts {data:{nodes,links}} or {nodes,links}.
func decodeGraph(body []byte) ([]graph.Node, []graph.Link, error) {
	var p wirePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, nil, err
	}
	if len(p.Data) > 0 && !isNull(p.Data) {
		var inner wirePayload
		if err := json.Unmarshal(p.Data, &inner); err != nil {
			return nil, nil, fmt.Errorf("data: %w", err)
		}
		p = inner
	}
	nodes := make([]graph.Node, 0, len(p.Nodes))
	for i, raw := range p.Nodes {
		n, err := decodeNode(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	links := make([]graph.Link, 0, len(p.Links))
	for i, raw := range p.Links {
		l, err := decodeLink(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("link %d: %w", i, err)
		}
		links = append(links, l)
	}
	return nodes, links, nil
}

func decodeNode(raw json.RawMessage) (graph.Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return graph.Node{}, err
	}
	var n graph.Node
	if s, ok := firstString(obj, "type"); ok {
		if t, known := graph.ParseType(s); known {
			n.Type = t
		} else {
			n.Type = graph.NodeType(strings.ToLower(s))
		}
	}
	n.Label, _ = firstString(obj, "label", "name")
	n.ID, _ = firstString(obj, "id")
	if n.ID == "" {
		if n.Label == "" {
			return graph.Node{}, fmt.Errorf("node has neither id nor label")
		}
		n.ID = string(n.Type) + "-" + n.Label
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	if r, ok := firstFloat(obj, "radius", "r"); ok {
		n.Radius = r
	}
	n.Color, _ = firstString(obj, "color")
	if v, ok := firstFloat(obj, scoreKeys...); ok {
		n.Score = &v
	}
	return n, nil
}

func decodeLink(raw json.RawMessage) (graph.Link, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return graph.Link{}, err
	}
	var l graph.Link
	l.ID, _ = firstString(obj, "id")
	l.Source = endpoint(obj["source"])
	l.Target = endpoint(obj["target"])
	if l.Source == "" || l.Target == "" {
		return graph.Link{}, fmt.Errorf("missing source or target")
	}
	return l, nil
}

// endpoint accepts an id or an object carrying one.
func endpoint(raw json.RawMessage) string {
	if s, ok := asString(raw); ok {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		s, _ := firstString(obj, "id")
		return s
	}
	return ""
}

func firstString(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		if raw, ok := obj[k]; ok {
			if s, ok := asString(raw); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func firstFloat(obj map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok || isNull(raw) {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// asString reads a JSON string or number as a string.
func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		return num.String(), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
