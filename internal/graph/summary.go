package graph

import (
	"sort"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
)

// summaryTop is how many best and worst nodes a Summary lists.
const summaryTop = 5

// ScoredNode is one row of a Summary ranking.
type ScoredNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeType `json:"type"`
	Score float64  `json:"score"`
}

// Summary is a compact description of a snapshot.
type Summary struct {
	Filters   filter.State `json:"filters"`
	NodeCount int          `json:"node_count"`
	LinkCount int          `json:"link_count"`
	Best      []ScoredNode `json:"best_nodes"`
	Worst     []ScoredNode `json:"worst_nodes"`
}

// Summarize ranks nodes by success score. Nodes without a score rank as 0;
// ties keep server order.
func Summarize(s *Snapshot) Summary {
	rows := make([]ScoredNode, len(s.nodes))
	for i, n := range s.nodes {
		row := ScoredNode{ID: n.ID, Label: n.Label, Type: n.Type}
		if row.Label == "" {
			row.Label = n.ID
		}
		if n.Score != nil {
			row.Score = *n.Score
		}
		rows[i] = row
	}
	return Summary{
		Filters:   s.Filters(),
		NodeCount: len(s.nodes),
		LinkCount: len(s.links),
		Best:      pickTop(rows, false),
		Worst:     pickTop(rows, true),
	}
}

func pickTop(rows []ScoredNode, asc bool) []ScoredNode {
	out := append([]ScoredNode(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return out[i].Score < out[j].Score
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > summaryTop {
		out = out[:summaryTop]
	}
	return out
}
