package layout

import (
	"math"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
)

// body is a node's simulation state. Bodies live in an arena indexed like the
// snapshot's nodes.
type body struct {
	id     string
	typ    graph.NodeType
	radius float64
	x, y   float64
	vx, vy float64
	pinned bool
	px, py float64
}

// spring is a link resolved to arena indices.
type spring struct {
	source, target int
	distance       float64
	bias           float64 // share of the correction applied to the target
}

// lcg is the linear congruential generator used to break symmetry when two
// bodies coincide.
type lcg struct{ s uint32 }

func (g *lcg) next() float64 {
	g.s = 1664525*g.s + 1013904223
	return float64(g.s) / 4294967296
}

func (g *lcg) jiggle() float64 {
	return (g.next() - 0.5) * 1e-6
}

// linkDistance is the rest length of a link between s and t.
func (p params) linkDistance(s, t *body) float64 {
	d := p.LinkBase + 0.9*(s.radius+t.radius)
	if s.typ == graph.TypeTopic || t.typ == graph.TypeTopic {
		d += p.TopicBonus
	}
	if t.typ == graph.TypeOutcome {
		d += p.OutcomeBonus
	}
	return d
}

// applyLinks pulls linked bodies toward their rest distance. Corrections are
// split by degree so hubs move less than leaves.
func applyLinks(bodies []body, springs []spring, strength, alpha float64, rng *lcg) {
	for _, sp := range springs {
		s, t := &bodies[sp.source], &bodies[sp.target]
		x := t.x + t.vx - s.x - s.vx
		if x == 0 {
			x = rng.jiggle()
		}
		y := t.y + t.vy - s.y - s.vy
		if y == 0 {
			y = rng.jiggle()
		}
		l := math.Sqrt(x*x + y*y)
		l = (l - sp.distance) / l * alpha * strength
		x *= l
		y *= l
		t.vx -= x * sp.bias
		t.vy -= y * sp.bias
		s.vx += x * (1 - sp.bias)
		s.vy += y * (1 - sp.bias)
	}
}

// applyCharge is the direct pairwise many-body force. It is O(n²); a
// Barnes-Hut quadtree with theta 0.9 is the replacement once graphs reach
// thousands of nodes.
func applyCharge(bodies []body, strength, alpha float64, rng *lcg) {
	for i := range bodies {
		bi := &bodies[i]
		for j := range bodies {
			if i == j {
				continue
			}
			bj := &bodies[j]
			x := bj.x - bi.x
			y := bj.y - bi.y
			l := x*x + y*y
			if x == 0 {
				x = rng.jiggle()
				l += x * x
			}
			if y == 0 {
				y = rng.jiggle()
				l += y * y
			}
			if l < 1 {
				l = math.Sqrt(l)
			}
			w := strength * alpha / l
			bi.vx += x * w
			bi.vy += y * w
		}
	}
}

// applyCenter translates all bodies so their mean sits on (cx, cy).
func applyCenter(bodies []body, cx, cy float64) {
	if len(bodies) == 0 {
		return
	}
	var sx, sy float64
	for i := range bodies {
		sx += bodies[i].x
		sy += bodies[i].y
	}
	sx = sx/float64(len(bodies)) - cx
	sy = sy/float64(len(bodies)) - cy
	for i := range bodies {
		bodies[i].x -= sx
		bodies[i].y -= sy
	}
}

// applyPull nudges each body toward (cx, cy) independently per axis.
func applyPull(bodies []body, cx, cy, strength, alpha float64) {
	for i := range bodies {
		b := &bodies[i]
		b.vx += (cx - b.x) * strength * alpha
		b.vy += (cy - b.y) * strength * alpha
	}
}

// applyCollide separates overlapping circles of radius+margin using predicted
// positions, heavier (larger) bodies moving less.
func applyCollide(bodies []body, margin float64, iterations int, rng *lcg) {
	for k := 0; k < iterations; k++ {
		for i := range bodies {
			bi := &bodies[i]
			ri := bi.radius + margin
			ri2 := ri * ri
			xi := bi.x + bi.vx
			yi := bi.y + bi.vy
			for j := i + 1; j < len(bodies); j++ {
				bj := &bodies[j]
				rj := bj.radius + margin
				r := ri + rj
				x := xi - bj.x - bj.vx
				y := yi - bj.y - bj.vy
				l := x*x + y*y
				if l >= r*r {
					continue
				}
				if x == 0 {
					x = rng.jiggle()
					l += x * x
				}
				if y == 0 {
					y = rng.jiggle()
					l += y * y
				}
				d := math.Sqrt(l)
				f := (r - d) / d
				x *= f
				y *= f
				rj2 := rj * rj
				share := rj2 / (ri2 + rj2)
				bi.vx += x * share
				bi.vy += y * share
				bj.vx -= x * (1 - share)
				bj.vy -= y * (1 - share)
			}
		}
	}
}
