package filter_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/filter"
)

type fakeSource struct {
	mu       sync.Mutex
	subjects []filter.Subject
	calls    []filter.Scope
	handler  func(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error)
}

func (f *fakeSource) Subjects(ctx context.Context) ([]filter.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subjects, nil
}

func (f *fakeSource) Options(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return filter.OptionsResponse{}, nil
	}
	return h(ctx, s)
}

func (f *fakeSource) setHandler(h func(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeSource) callsCopy() []filter.Scope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]filter.Scope(nil), f.calls...)
}

// stageOf infers which cascade level a scope was issued for.
func stageOf(s filter.Scope) filter.Level {
	switch {
	case s.Group != "":
		return filter.LevelSubgroup
	case s.Topic != "":
		return filter.LevelGroup
	}
	return filter.LevelTopic
}

func entries(slugs ...string) []filter.OptionEntry {
	out := make([]filter.OptionEntry, len(slugs))
	for i, s := range slugs {
		out[i] = filter.OptionEntry{Slug: s, Label: s}
	}
	return out
}

func slugs(list []filter.OptionEntry) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Slug
	}
	return out
}

func respond(lists map[filter.Level][]string) filter.OptionsResponse {
	var r filter.OptionsResponse
	for l, s := range lists {
		r.Set(l, entries(s...))
	}
	return r
}

// catalogue answers like the curriculum API: group- and subgroup-scoped
// responses never re-transmit topics.
func catalogue(_ context.Context, s filter.Scope) (filter.OptionsResponse, error) {
	switch stageOf(s) {
	case filter.LevelTopic:
		if s.Subject == "turk_dili_ve_edebiyati" {
			return respond(map[filter.Level][]string{filter.LevelTopic: {"turk-dili-ve-edebiyati"}}), nil
		}
		return respond(map[filter.Level][]string{filter.LevelTopic: {"sayilar-ve-cebir", "geometri"}}), nil
	case filter.LevelGroup:
		return respond(map[filter.Level][]string{filter.LevelGroup: {"ustel-ve-log", "fonksiyonlar"}}), nil
	default:
		return respond(map[filter.Level][]string{
			filter.LevelGroup:    {"ustel-ve-log"},
			filter.LevelSubgroup: {"alt-a"},
		}), nil
	}
}

func newController(t *testing.T) (*filter.Controller, *fakeSource) {
	t.Helper()
	src := &fakeSource{
		subjects: []filter.Subject{
			{Slug: "matematik", Defaults: entries("sayilar-ve-cebir")},
			{Slug: "turk_dili_ve_edebiyati", Defaults: entries("turk-dili-ve-edebiyati")},
		},
		handler: catalogue,
	}
	c := filter.New(context.Background(), src)
	t.Cleanup(c.Close)
	return c, src
}

func loaded(t *testing.T) (*filter.Controller, *fakeSource) {
	t.Helper()
	c, src := newController(t)
	if err := c.LoadSubjects(context.Background()); err != nil {
		t.Fatalf("LoadSubjects: %v", err)
	}
	c.Wait()
	return c, src
}

func checkInvariant(t *testing.T, s filter.State) {
	t.Helper()
	if s.Group != "" && s.Topic == "" {
		t.Fatalf("group %q selected without topic: %+v", s.Group, s)
	}
	if s.Subgroup != "" && s.Group == "" {
		t.Fatalf("subgroup %q selected without group: %+v", s.Subgroup, s)
	}
}

func TestLoadSubjectsSelectsFirst(t *testing.T) {
	c, src := loaded(t)
	if got := c.State().Subject; got != "matematik" {
		t.Fatalf("default subject = %q, want matematik", got)
	}
	calls := src.callsCopy()
	if len(calls) != 1 || calls[0].Subject != "matematik" || calls[0].Topic != "" {
		t.Fatalf("expected a single topic fetch for matematik, got %+v", calls)
	}
	if got := slugs(c.Options(filter.LevelTopic)); len(got) != 2 || got[0] != "sayilar-ve-cebir" {
		t.Errorf("topics = %v", got)
	}
	if c.Phase(filter.LevelTopic) != filter.PhaseReady {
		t.Errorf("topic phase = %v, want ready", c.Phase(filter.LevelTopic))
	}
}

func TestSubjectChangeFetchesTopicsOnce(t *testing.T) {
	c, src := loaded(t)
	var mu sync.Mutex
	var seen []filter.State
	c.Subscribe(func(s filter.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	src.resetCalls()

	if err := c.SelectSubject("turk_dili_ve_edebiyati"); err != nil {
		t.Fatalf("SelectSubject: %v", err)
	}
	c.Wait()

	calls := src.callsCopy()
	if len(calls) != 1 || calls[0].Subject != "turk_dili_ve_edebiyati" {
		t.Fatalf("expected exactly one topic fetch for the new subject, got %+v", calls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Subject != "turk_dili_ve_edebiyati" {
		t.Fatalf("expected one notification for the new subject, got %+v", seen)
	}

	// Same value again is a no-op.
	if err := c.SelectSubject("turk_dili_ve_edebiyati"); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	if n := src.callCount(); n != 1 {
		t.Errorf("re-selecting the same subject issued %d fetches", n)
	}
}

func TestSubjectChangeClearsDependents(t *testing.T) {
	c, _ := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	mustSelect(t, c.SelectGroup, "ustel-ve-log")
	mustSelect(t, c.SelectSubgroup, "alt-a")

	if err := c.SelectSubject("turk_dili_ve_edebiyati"); err != nil {
		t.Fatal(err)
	}
	s := c.State()
	if s.Topic != "" || s.Group != "" || s.Subgroup != "" {
		t.Fatalf("dependents not cleared: %+v", s)
	}
	if len(c.Options(filter.LevelGroup)) != 0 || len(c.Options(filter.LevelSubgroup)) != 0 {
		t.Error("group and subgroup lists should be cleared")
	}
	c.Wait()
	if got := slugs(c.Options(filter.LevelTopic)); len(got) != 1 || got[0] != "turk-dili-ve-edebiyati" {
		t.Errorf("topics after subject change = %v", got)
	}
}

func mustSelect(t *testing.T, fn func(string) error, slug string) {
	t.Helper()
	if err := fn(slug); err != nil {
		t.Fatalf("select %q: %v", slug, err)
	}
}

func TestOmittedKeyKeepsSelections(t *testing.T) {
	c, src := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	mustSelect(t, c.SelectGroup, "ustel-ve-log")
	c.Wait()

	s := c.State()
	if s.Topic != "sayilar-ve-cebir" || s.Group != "ustel-ve-log" {
		t.Fatalf("selections lost: %+v", s)
	}
	if got := slugs(c.Options(filter.LevelTopic)); len(got) != 2 {
		t.Errorf("topic list should be unchanged by responses omitting it, got %v", got)
	}
	if got := slugs(c.Options(filter.LevelSubgroup)); len(got) != 1 || got[0] != "alt-a" {
		t.Errorf("subgroups = %v", got)
	}

	var stages []filter.Level
	for _, sc := range src.callsCopy() {
		stages = append(stages, stageOf(sc))
	}
	last := stages[len(stages)-3:]
	if last[0] != filter.LevelTopic || last[1] != filter.LevelGroup || last[2] != filter.LevelSubgroup {
		t.Errorf("group selection should refresh topic, group, subgroup in order; got %v", last)
	}
}

func TestEmptyListClearsSelection(t *testing.T) {
	c, src := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	mustSelect(t, c.SelectGroup, "ustel-ve-log")
	c.Wait()

	var mu sync.Mutex
	var last *filter.State
	c.Subscribe(func(s filter.State) { mu.Lock(); last = &s; mu.Unlock() })

	src.setHandler(func(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error) {
		if stageOf(s) == filter.LevelTopic {
			return respond(map[filter.Level][]string{filter.LevelTopic: {}}), nil
		}
		return catalogue(ctx, s)
	})
	if err := c.ToggleGrade(10); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	s := c.State()
	if s.Topic != "" || s.Group != "" || s.Subgroup != "" {
		t.Fatalf("empty topic list should clear the cascade: %+v", s)
	}
	if len(c.Options(filter.LevelGroup)) != 0 {
		t.Error("group list should be cleared with its selection")
	}
	if len(s.Grades) != 1 || s.Grades[0] != 10 {
		t.Errorf("grades = %v", s.Grades)
	}
	mu.Lock()
	defer mu.Unlock()
	if last == nil || last.Topic != "" || len(last.Grades) != 1 {
		t.Errorf("listeners should see the reconciled state, got %+v", last)
	}
}

func TestStaleResponseDropped(t *testing.T) {
	c, src := newController(t)
	started := make(chan struct{})
	release := make(chan struct{})
	src.setHandler(func(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error) {
		if s.Subject == "matematik" {
			close(started)
			<-release // ignores ctx on purpose
			return respond(map[filter.Level][]string{filter.LevelTopic: {"stale-topic"}}), nil
		}
		return catalogue(ctx, s)
	})
	if err := c.LoadSubjects(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-started
	if c.Phase(filter.LevelTopic) != filter.PhaseLoading {
		t.Fatalf("topic phase = %v, want loading", c.Phase(filter.LevelTopic))
	}
	if !c.View().OptionsLoading {
		t.Error("OptionsLoading should be true while a fetch is in flight")
	}
	if err := c.SelectSubject("turk_dili_ve_edebiyati"); err != nil {
		t.Fatal(err)
	}
	close(release)
	c.Wait()

	got := slugs(c.Options(filter.LevelTopic))
	if len(got) != 1 || got[0] != "turk-dili-ve-edebiyati" {
		t.Fatalf("stale response leaked into topics: %v", got)
	}
	if c.View().OptionsLoading {
		t.Error("OptionsLoading should be false once settled")
	}
}

func TestFetchErrorRetainsLists(t *testing.T) {
	c, src := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	src.setHandler(func(ctx context.Context, s filter.Scope) (filter.OptionsResponse, error) {
		return filter.OptionsResponse{}, errors.New("boom")
	})
	src.resetCalls()

	if err := c.ToggleGrade(9); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	if n := src.callCount(); n != 1 {
		t.Errorf("refresh should stop after the failing stage; %d fetches issued", n)
	}
	if c.Phase(filter.LevelTopic) != filter.PhaseStale {
		t.Errorf("topic phase = %v, want stale", c.Phase(filter.LevelTopic))
	}
	if got := c.Options(filter.LevelTopic); len(got) != 2 {
		t.Errorf("topic list should be retained, got %v", slugs(got))
	}
	if got := c.Options(filter.LevelGroup); len(got) != 2 {
		t.Errorf("group list should be retained, got %v", slugs(got))
	}
	if c.State().Topic != "sayilar-ve-cebir" {
		t.Error("selection should survive a failed fetch")
	}
}

func TestSelectionGuards(t *testing.T) {
	c, _ := loaded(t)
	if err := c.SelectGroup("ustel-ve-log"); !errors.Is(err, filter.ErrLevelDisabled) {
		t.Errorf("group before topic: err = %v", err)
	}
	if err := c.SelectSubgroup("alt-a"); !errors.Is(err, filter.ErrLevelDisabled) {
		t.Errorf("subgroup before group: err = %v", err)
	}
	if err := c.SelectTopic("nope"); !errors.Is(err, filter.ErrUnknownOption) {
		t.Errorf("unknown topic: err = %v", err)
	}
	if err := c.SelectSubject("fizik"); !errors.Is(err, filter.ErrUnknownOption) {
		t.Errorf("unknown subject: err = %v", err)
	}
	if err := c.ToggleGrade(0); !errors.Is(err, filter.ErrInvalidGrade) {
		t.Errorf("grade 0: err = %v", err)
	}
	v := c.View()
	if v.CanSelectGroup || v.CanSelectSubgroup || v.HasAnyFilter {
		t.Errorf("unexpected derived flags: %+v", v)
	}
}

func TestSubgroupSelectionDoesNotRefresh(t *testing.T) {
	c, src := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	mustSelect(t, c.SelectGroup, "ustel-ve-log")
	c.Wait()
	src.resetCalls()

	mustSelect(t, c.SelectSubgroup, "alt-a")
	c.Wait()
	if n := src.callCount(); n != 0 {
		t.Errorf("subgroup selection issued %d fetches", n)
	}
	v := c.View()
	if !v.CanSelectGroup || !v.CanSelectSubgroup || !v.HasAnyFilter {
		t.Errorf("derived flags = %+v", v)
	}
}

func TestToggleGradeRefetchesWithGrades(t *testing.T) {
	c, src := loaded(t)
	src.resetCalls()
	if err := c.ToggleGrade(11); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	if err := c.ToggleGrade(9); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	s := c.State()
	if s.GradeCSV() != "9,11" {
		t.Errorf("grades = %q, want 9,11", s.GradeCSV())
	}
	calls := src.callsCopy()
	last := calls[len(calls)-1]
	if len(last.Grades) != 2 || last.Grades[0] != 9 || last.Grades[1] != 11 {
		t.Errorf("last fetch grades = %v", last.Grades)
	}

	if err := c.ToggleGrade(11); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	if got := c.State().GradeCSV(); got != "9" {
		t.Errorf("grades after untoggle = %q", got)
	}
}

func TestResetKeepsSubject(t *testing.T) {
	c, _ := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	mustSelect(t, c.SelectGroup, "ustel-ve-log")
	if err := c.ToggleGrade(12); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	c.ResetFilters()
	c.Wait()
	s := c.State()
	if s.Subject != "matematik" || s.Topic != "" || s.Group != "" || len(s.Grades) != 0 {
		t.Fatalf("after reset: %+v", s)
	}
	if len(c.Options(filter.LevelTopic)) == 0 {
		t.Error("topic list should survive reset")
	}
	if c.View().HasAnyFilter {
		t.Error("HasAnyFilter should be false after reset")
	}
}

func TestClearDropsEverything(t *testing.T) {
	c, _ := loaded(t)
	mustSelect(t, c.SelectTopic, "sayilar-ve-cebir")
	c.Wait()
	c.Clear()
	c.Wait()
	v := c.View()
	if v.State.Subject != "" || len(v.Subjects) != 0 || len(v.Topics) != 0 {
		t.Fatalf("Clear left state behind: %+v", v)
	}
}

func TestCascadeInvariantUnderRandomOperations(t *testing.T) {
	c, _ := loaded(t)
	rng := rand.New(rand.NewSource(7))
	topics := []string{"", "sayilar-ve-cebir", "geometri"}
	groups := []string{"", "ustel-ve-log", "fonksiyonlar"}
	subgroups := []string{"", "alt-a"}
	subjects := []string{"matematik", "turk_dili_ve_edebiyati"}

	for i := 0; i < 300; i++ {
		switch rng.Intn(6) {
		case 0:
			_ = c.SelectSubject(subjects[rng.Intn(len(subjects))])
		case 1:
			_ = c.SelectTopic(topics[rng.Intn(len(topics))])
		case 2:
			_ = c.SelectGroup(groups[rng.Intn(len(groups))])
		case 3:
			_ = c.SelectSubgroup(subgroups[rng.Intn(len(subgroups))])
		case 4:
			_ = c.ToggleGrade(9 + rng.Intn(4))
		case 5:
			c.ResetFilters()
		}
		checkInvariant(t, c.State())
		if rng.Intn(3) == 0 {
			c.Wait()
			checkInvariant(t, c.State())
		}
	}
}
