package graph

import "strings"

// NodeType is the curriculum level a node represents.
type NodeType string

const (
	TypeSubject  NodeType = "subject"
	TypeTopic    NodeType = "topic"
	TypeGroup    NodeType = "group"
	TypeSubgroup NodeType = "subgroup"
	TypeOutcome  NodeType = "outcome"
)

// DefaultRadius is used when the server sends no radius.
const DefaultRadius = 14.0

var typeAliases = map[string]NodeType{
	"subject":  TypeSubject,
	"ders":     TypeSubject,
	"topic":    TypeTopic,
	"konu":     TypeTopic,
	"group":    TypeGroup,
	"grup":     TypeGroup,
	"subgroup": TypeSubgroup,
	"alt_grup": TypeSubgroup,
	"outcome":  TypeOutcome,
	"kazanım":  TypeOutcome,
	"kazanim":  TypeOutcome,
}

// ParseType maps an English or Turkish wire type name to a NodeType.
func ParseType(s string) (NodeType, bool) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// DefaultColor is the fill used when the server sends no color.
func (t NodeType) DefaultColor() string {
	switch t {
	case TypeTopic:
		return "#1976d2"
	case TypeGroup:
		return "#8e24aa"
	case TypeSubgroup:
		return "#00897b"
	}
	return "#90a4ae"
}

// Labeled reports whether nodes of this type carry an on-canvas label.
func (t NodeType) Labeled() bool {
	return t == TypeTopic || t == TypeGroup || t == TypeSubgroup
}

// Node is one curriculum entity. Positions are owned by the layout engine.
type Node struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	Label  string   `json:"label"`
	Radius float64  `json:"radius"`
	Color  string   `json:"color"`
	Score  *float64 `json:"score,omitempty"` // success score in [0, 100]
}

// DisplayLabel returns the label or "Node" when it is empty.
func (n Node) DisplayLabel() string {
	if n.Label == "" {
		return "Node"
	}
	return n.Label
}

// Link connects two nodes by id.
type Link struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}
