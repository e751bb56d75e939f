// Package graph holds the immutable node/link snapshot the layout engine consumes.
package graph

import (
	"slices"
	"strings"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
)

// Snapshot holds nodes and links plus an id index and adjacency list.
// It is immutable once built; a new load creates a new Snapshot.
type Snapshot struct {
	nodes     []Node
	links     []Link
	index     map[string]int      // id → position in nodes
	neighbors map[string][]string // id → adjacent ids in link order
	filters   filter.State
}

// Empty returns a snapshot with no nodes.
func Empty(filters filter.State) *Snapshot {
	s, _ := NewSnapshot(nil, nil, filters)
	return s
}

// Nodes returns the nodes in server order. Callers must not modify the slice.
func (s *Snapshot) Nodes() []Node { return s.nodes }

// Links returns the links in server order. Callers must not modify the slice.
func (s *Snapshot) Links() []Link { return s.links }

// Filters returns the filter state the snapshot was requested with.
func (s *Snapshot) Filters() filter.State { return s.filters.Clone() }

// Node returns a node by ID.
func (s *Snapshot) Node(id string) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Index returns the position of id in Nodes, or -1.
func (s *Snapshot) Index(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Degree returns the number of links touching id.
func (s *Snapshot) Degree(id string) int {
	return len(s.neighbors[id])
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// LinkCount returns the number of links.
func (s *Snapshot) LinkCount() int { return len(s.links) }

// IdentityKey identifies the node id set and link endpoints independent of
// order. Two snapshots with equal keys describe the same layout problem.
func (s *Snapshot) IdentityKey() string {
	ids := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID
	}
	slices.Sort(ids)
	edges := make([]string, len(s.links))
	for i, l := range s.links {
		edges[i] = l.Source + "\x1f" + l.Target
	}
	slices.Sort(edges)
	return strings.Join(ids, "\x1e") + "\x1d" + strings.Join(edges, "\x1e")
}
