// Package layout runs the force-directed simulation that positions graph nodes.
package layout

import (
	"math"
	"sync"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/metrics"
)

// Phase is the simulation lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSimulating
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSimulating:
		return "simulating"
	case PhaseSettled:
		return "settled"
	}
	return "unknown"
}

// dragAlphaTarget keeps the simulation warm while a node is pinned.
const dragAlphaTarget = 0.3

const initialRadius = 10.0

var initialAngle = math.Pi * (3 - math.Sqrt(5))

type params struct{ config.LayoutConf }

// NodePos is a node as drawn in one frame.
type NodePos struct {
	ID     string         `json:"id"`
	Type   graph.NodeType `json:"type"`
	Label  string         `json:"label"`
	Color  string         `json:"color"`
	Score  *float64       `json:"score,omitempty"`
	Radius float64        `json:"radius"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Pinned bool           `json:"pinned,omitempty"`
}

// LinkPos is a link with its endpoint coordinates in one frame.
type LinkPos struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
}

// Frame is a frozen copy of the layout. Renderers and hit testing read frames
// only, never the live arena.
type Frame struct {
	Phase  Phase     `json:"-"`
	Alpha  float64   `json:"alpha"`
	Tick   int       `json:"tick"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Nodes  []NodePos `json:"nodes"`
	Links  []LinkPos `json:"links"`
}

// Simulation owns node positions for the current snapshot.
type Simulation struct {
	mu          sync.Mutex
	p           params
	snap        *graph.Snapshot
	key         string
	bodies      []body
	springs     []spring
	alpha       float64
	alphaTarget float64
	phase       Phase
	ticks       int
	rng         lcg

	wake     chan struct{}
	settleMu sync.Mutex
	onSettle []func(Frame)
}

// New creates an idle Simulation.
func New(conf config.LayoutConf) *Simulation {
	return &Simulation{
		p:    params{conf},
		rng:  lcg{s: 1},
		wake: make(chan struct{}, 1),
	}
}

// Wakeups receives a value whenever the simulation (re)enters PhaseSimulating.
func (s *Simulation) Wakeups() <-chan struct{} { return s.wake }

// OnSettle registers fn to be called with the final frame each time the
// simulation settles.
func (s *Simulation) OnSettle(fn func(Frame)) {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()
	s.onSettle = append(s.onSettle, fn)
}

// Phase returns the current lifecycle state.
func (s *Simulation) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Alpha returns the current temperature.
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// SetGraph binds a snapshot. When the node ids or link endpoints differ from
// the current graph, positions restart from a phyllotaxis spiral and it
// reports true. Otherwise positions are kept and only attributes change.
func (s *Simulation) SetGraph(snap *graph.Snapshot) (restarted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap == nil || snap.NodeCount() == 0 {
		s.snap, s.key = snap, ""
		s.bodies, s.springs = nil, nil
		s.alpha, s.alphaTarget = 0, 0
		s.phase = PhaseIdle
		metrics.NodesInLayout.Set(0)
		return false
	}

	key := snap.IdentityKey()
	if key == s.key && s.bodies != nil {
		old := make(map[string]body, len(s.bodies))
		for _, b := range s.bodies {
			old[b.id] = b
		}
		s.snap = snap
		s.bodies = s.makeBodies(snap, old)
		s.springs = s.makeSprings(snap)
		return false
	}

	s.snap, s.key = snap, key
	s.bodies = s.makeBodies(snap, nil)
	s.springs = s.makeSprings(snap)
	s.alpha, s.alphaTarget = 1, 0
	s.ticks = 0
	s.rng = lcg{s: 1}
	s.setSimulatingLocked()
	metrics.SimulationRestarts.Inc()
	metrics.NodesInLayout.Set(float64(len(s.bodies)))
	return true
}

func (s *Simulation) makeBodies(snap *graph.Snapshot, old map[string]body) []body {
	cx, cy := s.p.Width/2, s.p.Height/2
	bodies := make([]body, snap.NodeCount())
	for i, n := range snap.Nodes() {
		b := body{id: n.ID, typ: n.Type, radius: n.Radius}
		if prev, ok := old[n.ID]; ok {
			b.x, b.y, b.vx, b.vy = prev.x, prev.y, prev.vx, prev.vy
			b.pinned, b.px, b.py = prev.pinned, prev.px, prev.py
		} else {
			r := initialRadius * math.Sqrt(0.5+float64(i))
			a := float64(i) * initialAngle
			b.x = cx + r*math.Cos(a)
			b.y = cy + r*math.Sin(a)
		}
		bodies[i] = b
	}
	return bodies
}

func (s *Simulation) makeSprings(snap *graph.Snapshot) []spring {
	links := snap.Links()
	springs := make([]spring, 0, len(links))
	for _, l := range links {
		si, ti := snap.Index(l.Source), snap.Index(l.Target)
		cs, ct := float64(snap.Degree(l.Source)), float64(snap.Degree(l.Target))
		springs = append(springs, spring{
			source:   si,
			target:   ti,
			distance: s.p.linkDistance(&s.bodies[si], &s.bodies[ti]),
			bias:     cs / (cs + ct),
		})
	}
	return springs
}

func (s *Simulation) setSimulatingLocked() {
	s.phase = PhaseSimulating
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Tick advances the simulation one step. It returns false when there was
// nothing to do because the simulation is idle or settled.
func (s *Simulation) Tick() bool {
	s.mu.Lock()
	if s.phase != PhaseSimulating {
		s.mu.Unlock()
		return false
	}
	s.stepLocked()
	settled := false
	if s.alpha < s.p.AlphaMin {
		s.phase = PhaseSettled
		settled = true
		metrics.TicksToSettle.Observe(float64(s.ticks))
	}
	var frame Frame
	if settled {
		frame = s.frameLocked()
	}
	s.mu.Unlock()

	metrics.SimulationTicks.Inc()
	if settled {
		s.settleMu.Lock()
		fns := append([]func(Frame){}, s.onSettle...)
		s.settleMu.Unlock()
		for _, fn := range fns {
			fn(frame)
		}
	}
	return true
}

func (s *Simulation) stepLocked() {
	p := s.p
	s.alpha += (s.alphaTarget - s.alpha) * p.AlphaDecay
	s.ticks++
	cx, cy := p.Width/2, p.Height/2

	applyLinks(s.bodies, s.springs, p.LinkStrength, s.alpha, &s.rng)
	applyCharge(s.bodies, p.Charge, s.alpha, &s.rng)
	applyCenter(s.bodies, cx, cy)
	applyPull(s.bodies, cx, cy, p.CenterStrength, s.alpha)
	applyCollide(s.bodies, p.CollideMargin, p.CollideIterations, &s.rng)

	keep := 1 - p.VelocityDecay
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.pinned {
			b.x, b.y = b.px, b.py
			b.vx, b.vy = 0, 0
			continue
		}
		b.vx *= keep
		b.vy *= keep
		b.x += b.vx
		b.y += b.vy
	}
}

// Settle ticks synchronously until the simulation settles or maxTicks steps
// have run, and returns the number of steps taken.
func (s *Simulation) Settle(maxTicks int) int {
	n := 0
	for n < maxTicks && s.Tick() {
		n++
	}
	return n
}

// Pin fixes node id at (x, y) and reheats the simulation.
func (s *Simulation) Pin(id string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	b := &s.bodies[i]
	b.pinned, b.px, b.py = true, x, y
	b.x, b.y, b.vx, b.vy = x, y, 0, 0
	s.alphaTarget = dragAlphaTarget
	if s.phase != PhaseSimulating {
		s.ticks = 0
		s.setSimulatingLocked()
	}
	return true
}

// Unpin releases node id and lets the simulation cool down again.
func (s *Simulation) Unpin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.bodies[i].pinned = false
	anyPinned := false
	for _, b := range s.bodies {
		anyPinned = anyPinned || b.pinned
	}
	if !anyPinned {
		s.alphaTarget = 0
	}
	return true
}

func (s *Simulation) indexLocked(id string) int {
	if s.snap == nil {
		return -1
	}
	i := s.snap.Index(id)
	if i >= len(s.bodies) {
		return -1
	}
	return i
}

// ApplyConfig swaps the tunables. Link rest lengths are recomputed and a
// running graph is reheated so the change becomes visible.
func (s *Simulation) ApplyConfig(conf config.LayoutConf) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = params{conf}
	if s.snap == nil || len(s.bodies) == 0 {
		return
	}
	s.springs = s.makeSprings(s.snap)
	if s.alpha < dragAlphaTarget {
		s.alpha = dragAlphaTarget
	}
	if s.phase != PhaseSimulating {
		s.ticks = 0
		s.setSimulatingLocked()
	}
}

// Frame returns a frozen copy of the current positions.
func (s *Simulation) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Simulation) frameLocked() Frame {
	f := Frame{
		Phase:  s.phase,
		Alpha:  s.alpha,
		Tick:   s.ticks,
		Width:  s.p.Width,
		Height: s.p.Height,
		Nodes:  make([]NodePos, len(s.bodies)),
		Links:  make([]LinkPos, len(s.springs)),
	}
	if s.snap == nil {
		return f
	}
	nodes := s.snap.Nodes()
	for i, b := range s.bodies {
		n := nodes[i]
		f.Nodes[i] = NodePos{
			ID: n.ID, Type: n.Type, Label: n.Label, Color: n.Color, Score: n.Score,
			Radius: b.radius, X: b.x, Y: b.y, Pinned: b.pinned,
		}
	}
	links := s.snap.Links()
	for i, sp := range s.springs {
		src, tgt := s.bodies[sp.source], s.bodies[sp.target]
		f.Links[i] = LinkPos{
			ID: links[i].ID, Source: src.id, Target: tgt.id,
			X1: src.x, Y1: src.y, X2: tgt.x, Y2: tgt.y,
		}
	}
	return f
}
