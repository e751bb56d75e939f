// Package filter owns the subject → topic → group → subgroup selection cascade
// and the grade facet, together with the option lists each level depends on.
package filter

import (
	"slices"
	"strconv"
	"strings"
)

// Level identifies one dependent level of the cascade. The subject list is loaded
// once and is not a Level.
type Level int

const (
	LevelTopic Level = iota
	LevelGroup
	LevelSubgroup
)

// Levels lists the dependent levels in cascade order.
var Levels = []Level{LevelTopic, LevelGroup, LevelSubgroup}

func (l Level) String() string {
	switch l {
	case LevelTopic:
		return "topic"
	case LevelGroup:
		return "group"
	case LevelSubgroup:
		return "subgroup"
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// OptionEntry is one selectable value of a level.
type OptionEntry struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// Subject is one entry of the subject selector with the default options the
// server advertises for it.
type Subject struct {
	Slug     string        `json:"slug"`
	Defaults []OptionEntry `json:"defaults,omitempty"`
}

// State is the five-dimensional filter selection.
type State struct {
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Group    string `json:"group"`
	Subgroup string `json:"subgroup"`
	Grades   []int  `json:"grades"`
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	s.Grades = slices.Clone(s.Grades)
	if s.Grades == nil {
		s.Grades = []int{}
	}
	return s
}

// Selected returns the selection at level l.
func (s State) Selected(l Level) string {
	switch l {
	case LevelTopic:
		return s.Topic
	case LevelGroup:
		return s.Group
	case LevelSubgroup:
		return s.Subgroup
	}
	return ""
}

// GradeCSV renders the grade set as the comma separated list used on the wire.
func (s State) GradeCSV() string {
	parts := make([]string, len(s.Grades))
	for i, g := range s.Grades {
		parts[i] = strconv.Itoa(g)
	}
	return strings.Join(parts, ",")
}

// Equal reports whether two states select exactly the same values.
func (s State) Equal(o State) bool {
	return s.Subject == o.Subject && s.Topic == o.Topic && s.Group == o.Group &&
		s.Subgroup == o.Subgroup && slices.Equal(s.Grades, o.Grades)
}

// Scope is the set of parameters an option-list request is issued with.
type Scope struct {
	Subject string
	Topic   string
	Group   string
	Grades  []int
}

// OptionsResponse carries the option lists present in one server response.
// A level missing from Lists means "unchanged"; an empty slice means the level
// currently has no valid options.
type OptionsResponse struct {
	Lists map[Level][]OptionEntry
}

// Get returns the list for l and whether the response carried it at all.
func (r OptionsResponse) Get(l Level) ([]OptionEntry, bool) {
	if r.Lists == nil {
		return nil, false
	}
	list, ok := r.Lists[l]
	return list, ok
}

// Set records list as present for level l.
func (r *OptionsResponse) Set(l Level, list []OptionEntry) {
	if r.Lists == nil {
		r.Lists = make(map[Level][]OptionEntry)
	}
	if list == nil {
		list = []OptionEntry{}
	}
	r.Lists[l] = list
}

func containsSlug(list []OptionEntry, slug string) bool {
	for _, o := range list {
		if o.Slug == slug {
			return true
		}
	}
	return false
}
