package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
)

var (
	// ErrLevelDisabled is returned when a level is selected before its parent.
	ErrLevelDisabled = errors.New("filter: parent level not selected")
	// ErrUnknownOption is returned when a slug is not in the level's loaded option list.
	ErrUnknownOption = errors.New("filter: option not in list")
	// ErrInvalidGrade is returned for non-positive grades.
	ErrInvalidGrade = errors.New("filter: grade must be positive")
)

// OptionSource fetches subjects and scoped option lists.
type OptionSource interface {
	Subjects(ctx context.Context) ([]Subject, error)
	Options(ctx context.Context, scope Scope) (OptionsResponse, error)
}

// Phase is the fetch state of one option level.
type Phase int

const (
	PhaseIdle    Phase = iota // no list for the current scope
	PhaseLoading              // a request is in flight
	PhaseReady                // list matches the current scope
	PhaseStale                // list kept from a superseded scope or a failed fetch
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseStale:
		return "stale"
	}
	return "unknown"
}

type levelState struct {
	phase   Phase
	request string // id of the in-flight request while phase == PhaseLoading
	options []OptionEntry
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithRequestIDs overrides the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// Controller is the filter cascade. All state is mutated under mu; option
// refreshes run on their own goroutine and re-acquire mu to apply results.
type Controller struct {
	src   OptionSource
	log   *slog.Logger
	newID func() string

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu              sync.Mutex
	state           State
	subjects        []Subject
	subjectsLoading bool
	levels          [3]levelState
	gen             uint64 // bumped whenever a refresh is superseded
	epoch           uint64 // bumped by Clear
	version         uint64 // bumped on every filter-state change
	cancel          context.CancelFunc

	notifyMu  sync.Mutex
	notified  uint64
	listeners []func(State)
}

// New creates a Controller with empty selections. Cancelling ctx aborts all
// in-flight fetches.
func New(ctx context.Context, src OptionSource, opts ...Option) *Controller {
	c := &Controller{
		src:   src,
		log:   slog.Default(),
		newID: uuid.NewString,
		state: State{Grades: []int{}},
	}
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.stop = context.WithCancel(ctx)
	return c
}

// Subscribe registers fn to be called with the new state after every filter change.
// Notifications are delivered in order; a listener must not call the Controller's
// mutating operations synchronously.
func (c *Controller) Subscribe(fn func(State)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// LoadSubjects fetches the subject list and default-selects the first subject
// when none is selected yet.
func (c *Controller) LoadSubjects(ctx context.Context) error {
	c.mu.Lock()
	c.subjectsLoading = true
	epoch := c.epoch
	c.mu.Unlock()

	subjects, err := c.src.Subjects(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("load subjects: %w", err)
		}
		return nil
	}
	c.subjectsLoading = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("load subjects: %w", err)
	}
	c.subjects = subjects
	changed := false
	if c.state.Subject == "" && len(subjects) > 0 {
		c.setSubjectLocked(subjects[0].Slug)
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return nil
}

// SelectSubject switches the subject, clearing topic, group, subgroup and all
// three dependent option lists.
func (c *Controller) SelectSubject(slug string) error {
	c.mu.Lock()
	if slug == c.state.Subject {
		c.mu.Unlock()
		return nil
	}
	if slug != "" && len(c.subjects) > 0 && !c.hasSubjectLocked(slug) {
		c.mu.Unlock()
		return fmt.Errorf("%w: subject %q", ErrUnknownOption, slug)
	}
	c.setSubjectLocked(slug)
	c.mu.Unlock()
	c.notify()
	return nil
}

// SelectTopic sets the topic and clears group and subgroup with their lists.
func (c *Controller) SelectTopic(slug string) error {
	c.mu.Lock()
	if slug == c.state.Topic {
		c.mu.Unlock()
		return nil
	}
	if err := c.checkLocked(LevelTopic, slug, c.state.Subject != ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.Topic = slug
	c.clearBelowLocked(LevelTopic)
	c.version++
	c.startRefreshLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

// SelectGroup sets the group and clears the subgroup with its list.
func (c *Controller) SelectGroup(slug string) error {
	c.mu.Lock()
	if slug == c.state.Group {
		c.mu.Unlock()
		return nil
	}
	if err := c.checkLocked(LevelGroup, slug, c.state.Topic != ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.Group = slug
	c.clearBelowLocked(LevelGroup)
	c.version++
	c.startRefreshLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

// SelectSubgroup sets the subgroup. No option list depends on it, so no refresh runs.
func (c *Controller) SelectSubgroup(slug string) error {
	c.mu.Lock()
	if slug == c.state.Subgroup {
		c.mu.Unlock()
		return nil
	}
	if err := c.checkLocked(LevelSubgroup, slug, c.state.Topic != "" && c.state.Group != ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.Subgroup = slug
	c.version++
	c.mu.Unlock()
	c.notify()
	return nil
}

// ToggleGrade adds or removes grade n and refreshes all option lists at the new grade set.
func (c *Controller) ToggleGrade(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, n)
	}
	c.mu.Lock()
	if i, found := slices.BinarySearch(c.state.Grades, n); found {
		c.state.Grades = slices.Delete(slices.Clone(c.state.Grades), i, i+1)
	} else {
		c.state.Grades = slices.Insert(slices.Clone(c.state.Grades), i, n)
	}
	c.version++
	if c.state.Subject != "" {
		c.startRefreshLocked()
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// ResetFilters clears topic, group, subgroup and grades but keeps the subject.
func (c *Controller) ResetFilters() {
	c.mu.Lock()
	s := c.state
	if s.Topic == "" && s.Group == "" && s.Subgroup == "" && len(s.Grades) == 0 {
		c.mu.Unlock()
		return
	}
	c.state = State{Subject: s.Subject, Grades: []int{}}
	c.clearBelowLocked(LevelTopic)
	c.version++
	if c.state.Subject != "" {
		c.startRefreshLocked()
	}
	c.mu.Unlock()
	c.notify()
}

// Clear drops every selection, subject and option list and cancels in-flight
// fetches. Results of requests issued before Clear are discarded.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.epoch++
	c.state = State{Grades: []int{}}
	c.subjects = nil
	c.subjectsLoading = false
	c.levels = [3]levelState{}
	c.version++
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until every refresh started so far has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight fetches and waits for them to return.
func (c *Controller) Close() {
	c.stop()
	c.wg.Wait()
}

// State returns a copy of the current selection.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Options returns a copy of the option list at level l.
func (c *Controller) Options(l Level) []OptionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.levels[l].options)
}

// Phase returns the fetch phase of level l.
func (c *Controller) Phase(l Level) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[l].phase
}

// View is a consistent read of everything the selector UI needs.
type View struct {
	State             State         `json:"state"`
	Subjects          []Subject     `json:"subjects"`
	Topics            []OptionEntry `json:"topics"`
	Groups            []OptionEntry `json:"groups"`
	Subgroups         []OptionEntry `json:"subgroups"`
	Phases            [3]string     `json:"phases"`
	SubjectsLoading   bool          `json:"subjects_loading"`
	OptionsLoading    bool          `json:"options_loading"`
	CanSelectGroup    bool          `json:"can_select_group"`
	CanSelectSubgroup bool          `json:"can_select_subgroup"`
	HasAnyFilter      bool          `json:"has_any_filter"`
}

// View returns the current selector view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	v := View{
		State:             s.Clone(),
		Subjects:          slices.Clone(c.subjects),
		Topics:            nonNil(c.levels[LevelTopic].options),
		Groups:            nonNil(c.levels[LevelGroup].options),
		Subgroups:         nonNil(c.levels[LevelSubgroup].options),
		SubjectsLoading:   c.subjectsLoading,
		CanSelectGroup:    s.Topic != "",
		CanSelectSubgroup: s.Topic != "" && s.Group != "",
		HasAnyFilter:      s.Topic != "" || s.Group != "" || s.Subgroup != "" || len(s.Grades) > 0,
	}
	for i, ls := range c.levels {
		v.Phases[i] = ls.phase.String()
		if ls.phase == PhaseLoading {
			v.OptionsLoading = true
		}
	}
	return v
}

func nonNil(list []OptionEntry) []OptionEntry {
	if list == nil {
		return []OptionEntry{}
	}
	return slices.Clone(list)
}

func (c *Controller) hasSubjectLocked(slug string) bool {
	for _, s := range c.subjects {
		if s.Slug == slug {
			return true
		}
	}
	return false
}

// checkLocked validates a selection at level l. The empty slug always passes.
func (c *Controller) checkLocked(l Level, slug string, parentSelected bool) error {
	if slug == "" {
		return nil
	}
	if !parentSelected {
		return fmt.Errorf("%w: cannot select %s %q", ErrLevelDisabled, l, slug)
	}
	ls := c.levels[l]
	if ls.phase == PhaseReady && !containsSlug(ls.options, slug) {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, l, slug)
	}
	return nil
}

func (c *Controller) setSubjectLocked(slug string) {
	c.state.Subject = slug
	c.state.Topic = ""
	c.clearBelowLocked(LevelTopic)
	c.levels[LevelTopic] = levelState{}
	c.version++
	if slug != "" {
		c.startRefreshLocked()
	} else {
		c.supersedeLocked()
	}
}

// clearBelowLocked clears every selection strictly below l and their option lists.
func (c *Controller) clearBelowLocked(l Level) {
	for _, d := range Levels {
		if d <= l {
			continue
		}
		switch d {
		case LevelGroup:
			c.state.Group = ""
		case LevelSubgroup:
			c.state.Subgroup = ""
		}
		c.levels[d] = levelState{}
	}
}

// clearFromLocked clears the selection at l and everything below it. The list
// at l itself is kept.
func (c *Controller) clearFromLocked(l Level) {
	switch l {
	case LevelTopic:
		c.state.Topic = ""
	case LevelGroup:
		c.state.Group = ""
	case LevelSubgroup:
		c.state.Subgroup = ""
	}
	c.clearBelowLocked(l)
}

// supersedeLocked cancels the running refresh; levels it left loading keep their
// list but are marked stale.
func (c *Controller) supersedeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	for i := range c.levels {
		if c.levels[i].phase == PhaseLoading {
			c.levels[i].phase = PhaseStale
			c.levels[i].request = ""
		}
	}
}

func (c *Controller) startRefreshLocked() {
	c.supersedeLocked()
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	gen := c.gen
	c.wg.Add(1)
	go c.refresh(ctx, gen)
}

// refresh issues topic, group and subgroup option fetches in order, each only
// while its parent is selected.
func (c *Controller) refresh(ctx context.Context, gen uint64) {
	defer c.wg.Done()
	for _, l := range Levels {
		scope, id, ok := c.beginStage(gen, l)
		if !ok {
			return
		}
		resp, err := c.src.Options(ctx, scope)
		cont, changed := c.finishStage(ctx, l, id, resp, err)
		if changed {
			c.notify()
		}
		if !cont {
			return
		}
	}
}

func (c *Controller) beginStage(gen uint64, l Level) (Scope, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return Scope{}, "", false
	}
	s := c.state
	scope := Scope{Subject: s.Subject, Grades: slices.Clone(s.Grades)}
	switch l {
	case LevelTopic:
		if s.Subject == "" {
			return Scope{}, "", false
		}
	case LevelGroup:
		if s.Topic == "" {
			return Scope{}, "", false
		}
		scope.Topic = s.Topic
	case LevelSubgroup:
		if s.Topic == "" || s.Group == "" {
			return Scope{}, "", false
		}
		scope.Topic = s.Topic
		scope.Group = s.Group
	}
	id := c.newID()
	c.levels[l].phase = PhaseLoading
	c.levels[l].request = id
	return scope, id, true
}

// finishStage applies a stage result if its request is still the level's current
// one. It reports whether the refresh should continue and whether the filter
// state changed through reconciliation.
func (c *Controller) finishStage(ctx context.Context, l Level, id string, resp OptionsResponse, err error) (cont, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := &c.levels[l]
	if ls.phase != PhaseLoading || ls.request != id || ctx.Err() != nil {
		metrics.OptionFetches.WithLabelValues(l.String(), "stale").Inc()
		return false, false
	}
	if err != nil {
		// Keep the previous list so the selector stays usable.
		ls.phase = PhaseStale
		ls.request = ""
		metrics.OptionFetches.WithLabelValues(l.String(), "error").Inc()
		c.log.Warn("option fetch failed; keeping previous list", "level", l.String(), "err", err)
		return false, false
	}
	metrics.OptionFetches.WithLabelValues(l.String(), "ok").Inc()

	ls.phase = PhaseReady
	ls.request = ""
	// Only the stage's own level and its ancestors are read from the response;
	// absent keys leave lists untouched.
	for _, a := range Levels {
		if a > l {
			break
		}
		list, present := resp.Get(a)
		if !present {
			continue
		}
		c.levels[a].options = slices.Clone(list)
		if c.levels[a].phase != PhaseLoading {
			c.levels[a].phase = PhaseReady
		}
		if sel := c.state.Selected(a); sel != "" && !containsSlug(list, sel) {
			c.log.Debug("selection no longer offered; clearing", "level", a.String(), "slug", sel)
			c.clearFromLocked(a)
			changed = true
		}
	}
	if changed {
		c.version++
	}
	return true, changed
}

func (c *Controller) notify() {
	c.mu.Lock()
	v := c.version
	st := c.state.Clone()
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if v <= c.notified {
		return
	}
	c.notified = v
	for _, fn := range c.listeners {
		fn(st)
	}
}
