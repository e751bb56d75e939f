// Package interaction turns pointer events into hover, drag, pan and zoom
// against the current layout frame and viewport.
package interaction

import (
	"math"
	"strconv"
	"sync"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/event"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

// TooltipOffset is the distance in pixels between the pointer and the tooltip.
const TooltipOffset = 12

// Scene is the layout surface the layer reads and drags.
type Scene interface {
	Frame() layout.Frame
	Pin(id string, x, y float64) bool
	Unpin(id string) bool
}

// State is the explicit interaction record. It changes only through Dispatch.
type State struct {
	Hover    string  `json:"hover,omitempty"`
	Drag     string  `json:"drag,omitempty"`
	Panning  bool    `json:"panning"`
	PointerX float64 `json:"pointer_x"`
	PointerY float64 `json:"pointer_y"`
	Inside   bool    `json:"inside"`
}

// Tooltip is the transient hover label.
type Tooltip struct {
	Visible bool    `json:"visible"`
	NodeID  string  `json:"node_id,omitempty"`
	Text    string  `json:"text,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Result is what one dispatched event produced.
type Result struct {
	State     State              `json:"state"`
	Tooltip   Tooltip            `json:"tooltip"`
	Transform viewport.Transform `json:"transform"`
}

// Layer dispatches pointer events. It holds no node data of its own.
type Layer struct {
	scene Scene
	vp    *viewport.Controller

	mu sync.Mutex
	st State
}

// New creates a Layer over scene and vp.
func New(scene Scene, vp *viewport.Controller) *Layer {
	return &Layer{scene: scene, vp: vp}
}

// State returns the current interaction record.
func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st
}

// Reset drops hover, drag and pan, releasing a dragged node.
func (l *Layer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.Drag != "" {
		l.scene.Unpin(l.st.Drag)
	}
	l.st = State{}
}

// Dispatch applies ev to the interaction state.
func (l *Layer) Dispatch(ev event.Event) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevX, prevY := l.st.PointerX, l.st.PointerY
	if ev.Kind != event.Leave {
		l.st.PointerX, l.st.PointerY = ev.X, ev.Y
		l.st.Inside = true
	}

	switch ev.Kind {
	case event.Move:
		switch {
		case l.st.Drag != "":
			x, y := l.vp.Transform().Invert(ev.X, ev.Y)
			l.scene.Pin(l.st.Drag, x, y)
		case l.st.Panning:
			l.vp.Pan(ev.X-prevX, ev.Y-prevY)
		default:
			l.st.Hover = l.hit(ev.X, ev.Y)
		}
	case event.Down:
		if id := l.hit(ev.X, ev.Y); id != "" {
			l.st.Drag = id
			l.st.Hover = id
			if n, ok := findNode(l.scene.Frame(), id); ok {
				l.scene.Pin(id, n.X, n.Y)
			}
		} else {
			l.st.Panning = true
		}
	case event.Up:
		l.release()
		l.st.Hover = l.hit(ev.X, ev.Y)
	case event.Leave:
		l.release()
		l.st.Hover = ""
		l.st.Inside = false
	case event.Wheel:
		l.vp.ZoomAt(ev.X, ev.Y, viewport.WheelFactor(ev.DeltaY))
		l.st.Hover = l.hit(ev.X, ev.Y)
	}
	return Result{State: l.st, Tooltip: l.tooltipLocked(), Transform: l.vp.Transform()}
}

func (l *Layer) release() {
	if l.st.Drag != "" {
		l.scene.Unpin(l.st.Drag)
		l.st.Drag = ""
	}
	l.st.Panning = false
}

func (l *Layer) hit(sx, sy float64) string {
	n, ok := HitTest(l.scene.Frame(), l.vp.Transform(), sx, sy)
	if !ok {
		return ""
	}
	return n.ID
}

// Tooltip derives the hover label from the current frame.
func (l *Layer) Tooltip() Tooltip {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tooltipLocked()
}

func (l *Layer) tooltipLocked() Tooltip {
	if l.st.Hover == "" || !l.st.Inside {
		return Tooltip{}
	}
	n, ok := findNode(l.scene.Frame(), l.st.Hover)
	if !ok {
		return Tooltip{}
	}
	return Tooltip{
		Visible: true,
		NodeID:  n.ID,
		Text:    TooltipText(n),
		X:       l.st.PointerX + TooltipOffset,
		Y:       l.st.PointerY + TooltipOffset,
	}
}

// HitTest returns the topmost node whose circle contains screen point (sx, sy).
// Later nodes are drawn above earlier ones.
func HitTest(f layout.Frame, t viewport.Transform, sx, sy float64) (layout.NodePos, bool) {
	if t.K == 0 {
		return layout.NodePos{}, false
	}
	x, y := t.Invert(sx, sy)
	for i := len(f.Nodes) - 1; i >= 0; i-- {
		n := f.Nodes[i]
		if math.Hypot(x-n.X, y-n.Y) <= n.Radius {
			return n, true
		}
	}
	return layout.NodePos{}, false
}

// TooltipText is the label followed by the success score rounded to two
// decimals when the node has one.
func TooltipText(n layout.NodePos) string {
	text := n.Label
	if text == "" {
		text = "Node"
	}
	if n.Score != nil && !math.IsNaN(*n.Score) {
		text += " – success: " + FormatScore(*n.Score)
	}
	return text
}

// FormatScore rounds to two decimals without trailing zeros.
func FormatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func findNode(f layout.Frame, id string) (layout.NodePos, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return layout.NodePos{}, false
}
