package layout

import (
	"math"
	"testing"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
)

func finite(b body) bool {
	for _, v := range []float64{b.x, b.y, b.vx, b.vy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func TestCoincidentBodiesSeparate(t *testing.T) {
	rng := lcg{s: 1}
	bodies := []body{
		{id: "a", radius: 10, x: 50, y: 50},
		{id: "b", radius: 10, x: 50, y: 50},
	}
	applyCharge(bodies, -1600, 1, &rng)
	applyCollide(bodies, 4, 2, &rng)
	for _, b := range bodies {
		if !finite(b) {
			t.Fatalf("body %s has non-finite state: %+v", b.id, b)
		}
	}
	if bodies[0].vx == bodies[1].vx && bodies[0].vy == bodies[1].vy {
		t.Error("coincident bodies should be pushed apart")
	}
}

func TestLinkDistance(t *testing.T) {
	p := params{config.Default().Layout}
	topic := &body{typ: graph.TypeTopic, radius: 20}
	group := &body{typ: graph.TypeGroup, radius: 10}
	outcome := &body{typ: graph.TypeOutcome, radius: 10}

	if got, want := p.linkDistance(group, outcome), 30+0.9*20+5; got != want {
		t.Errorf("group→outcome = %g, want %g", got, want)
	}
	if got, want := p.linkDistance(topic, group), 30+0.9*30+60; got != want {
		t.Errorf("topic→group = %g, want %g", got, want)
	}
	if got, want := p.linkDistance(outcome, group), 30+0.9*20; got != want {
		t.Errorf("outcome→group = %g, want %g", got, want)
	}
}

func TestLinkPullsTowardRestLength(t *testing.T) {
	rng := lcg{s: 1}
	bodies := []body{{x: 0, y: 0}, {x: 200, y: 0}}
	springs := []spring{{source: 0, target: 1, distance: 100, bias: 0.5}}
	applyLinks(bodies, springs, 0.12, 1, &rng)
	if bodies[0].vx <= 0 || bodies[1].vx >= 0 {
		t.Errorf("stretched link should pull ends together: %+v", bodies)
	}
}

func TestCenterMovesMean(t *testing.T) {
	bodies := []body{{x: 0, y: 0}, {x: 10, y: 20}}
	applyCenter(bodies, 100, 100)
	mx := (bodies[0].x + bodies[1].x) / 2
	my := (bodies[0].y + bodies[1].y) / 2
	if mx != 100 || my != 100 {
		t.Errorf("mean = (%g, %g), want (100, 100)", mx, my)
	}
	applyCenter(nil, 1, 1)
}

func TestJiggleIsTiny(t *testing.T) {
	rng := lcg{s: 1}
	for i := 0; i < 100; i++ {
		if j := rng.jiggle(); math.Abs(j) > 5e-7 {
			t.Fatalf("jiggle %g out of range", j)
		}
	}
}
