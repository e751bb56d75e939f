package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
)

var (
	// ErrDuplicateNode is returned when two nodes share an id.
	ErrDuplicateNode = errors.New("graph: duplicate node id")
	// ErrDanglingLink is returned when a link references a node that is not present.
	ErrDanglingLink = errors.New("graph: link references missing node")
)

// NewSnapshot validates nodes and links and builds the id index. Missing
// radius, color and type are defaulted; scores are clamped to [0, 100].
func NewSnapshot(nodes []Node, links []Link, filters filter.State) (*Snapshot, error) {
	s := &Snapshot{
		nodes:     make([]Node, 0, len(nodes)),
		links:     make([]Link, 0, len(links)),
		index:     make(map[string]int, len(nodes)),
		neighbors: make(map[string][]string),
		filters:   filters.Clone(),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node %q: empty id", n.Label)
		}
		if _, dup := s.index[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		s.index[n.ID] = len(s.nodes)
		s.nodes = append(s.nodes, normalize(n))
	}
	for i, l := range links {
		if _, ok := s.index[l.Source]; !ok {
			return nil, fmt.Errorf("%w: link %d source %q", ErrDanglingLink, i, l.Source)
		}
		if _, ok := s.index[l.Target]; !ok {
			return nil, fmt.Errorf("%w: link %d target %q", ErrDanglingLink, i, l.Target)
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("%s-%s-%d", l.Source, l.Target, i)
		}
		s.links = append(s.links, l)
		s.neighbors[l.Source] = append(s.neighbors[l.Source], l.Target)
		s.neighbors[l.Target] = append(s.neighbors[l.Target], l.Source)
	}
	return s, nil
}

func normalize(n Node) Node {
	if n.Type == "" {
		n.Type = TypeOutcome
	}
	if n.Radius <= 0 || math.IsNaN(n.Radius) || math.IsInf(n.Radius, 0) {
		n.Radius = DefaultRadius
	}
	if n.Color == "" {
		n.Color = n.Type.DefaultColor()
	}
	if n.Score != nil {
		v := *n.Score
		switch {
		case math.IsNaN(v):
			n.Score = nil
		case v < 0:
			v = 0
			n.Score = &v
		case v > 100:
			v = 100
			n.Score = &v
		}
	}
	return n
}
