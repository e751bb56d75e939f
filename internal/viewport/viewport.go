// Package viewport holds the pan/zoom transform and the auto-fit routine.
package viewport

import (
	"math"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/config"
)

// Transform maps scene coordinates to screen: screen = scene*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the 1:1 transform.
var Identity = Transform{K: 1}

// Apply maps a scene point to the screen.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.K + t.X, y*t.K + t.Y
}

// Invert maps a screen point back into the scene.
func (t Transform) Invert(sx, sy float64) (float64, float64) {
	return (sx - t.X) / t.K, (sy - t.Y) / t.K
}

// Point is a scene coordinate.
type Point struct{ X, Y float64 }

// FitTransform frames points plus padding inside a width×height viewport,
// never zooming in beyond 1:1. ok is false for empty input or a bounding box
// with zero or non-finite extent.
func FitTransform(points []Point, width, height, padding float64) (t Transform, ok bool) {
	if len(points) == 0 {
		return Transform{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	minX -= padding
	maxX += padding
	minY -= padding
	maxY += padding
	sw, sh := maxX-minX, maxY-minY
	if !(isFinite(sw) && isFinite(sh) && sw > 0 && sh > 0) {
		return Transform{}, false
	}
	k := math.Min(math.Min(width/sw, height/sh), 1) * 0.9
	return Transform{
		X: (width-sw*k)/2 - minX*k,
		Y: (height-sh*k)/2 - minY*k,
		K: k,
	}, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// animation interpolates between two transforms.
type animation struct {
	from, to Transform
	start    time.Time
	duration time.Duration
}

// Controller is the current viewport. Interactive pan and zoom cancel a
// running animation.
type Controller struct {
	mu     sync.Mutex
	conf   config.ViewportConf
	width  float64
	height float64
	t      Transform
	anim   *animation
	now    func() time.Time
}

// New creates a Controller for a width×height viewport at the identity transform.
func New(conf config.ViewportConf, width, height float64) *Controller {
	return &Controller{conf: conf, width: width, height: height, t: Identity, now: time.Now}
}

// SetClock replaces the time source.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// ApplyConfig swaps the scale limits and fit settings, re-clamping the current scale.
func (c *Controller) ApplyConfig(conf config.ViewportConf, width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.conf = conf
	c.width, c.height = width, height
	c.t.K = c.clamp(c.t.K)
}

// Size returns the viewport dimensions.
func (c *Controller) Size() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Transform returns the current transform, sampling a running animation.
func (c *Controller) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

// Animating reports whether a transition is in progress.
func (c *Controller) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentLocked()
	return c.anim != nil
}

func (c *Controller) currentLocked() Transform {
	if c.anim == nil {
		return c.t
	}
	a := c.anim
	elapsed := c.now().Sub(a.start)
	if a.duration <= 0 || elapsed >= a.duration {
		c.t = a.to
		c.anim = nil
		return c.t
	}
	u := cubicInOut(float64(elapsed) / float64(a.duration))
	return Transform{
		X: a.from.X + (a.to.X-a.from.X)*u,
		Y: a.from.Y + (a.to.Y-a.from.Y)*u,
		K: a.from.K + (a.to.K-a.from.K)*u,
	}
}

// settleLocked freezes a running animation at its current sample.
func (c *Controller) settleLocked() {
	c.t = c.currentLocked()
	c.anim = nil
}

// Pan shifts the view by (dx, dy) screen pixels.
func (c *Controller) Pan(dx, dy float64) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.t.X += dx
	c.t.Y += dy
	return c.t
}

// ZoomAt scales by factor around screen point (sx, sy), keeping the scene point
// under it fixed. The resulting scale is clamped to the configured range.
func (c *Controller) ZoomAt(sx, sy, factor float64) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	if factor <= 0 || !isFinite(factor) {
		return c.t
	}
	k := c.clamp(c.t.K * factor)
	px, py := c.t.Invert(sx, sy)
	c.t = Transform{X: sx - px*k, Y: sy - py*k, K: k}
	return c.t
}

// WheelFactor converts a wheel delta to a zoom factor.
func WheelFactor(deltaY float64) float64 {
	return math.Pow(2, -deltaY*0.002)
}

// Set jumps to t immediately, clamping its scale.
func (c *Controller) Set(t Transform) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anim = nil
	t.K = c.clamp(t.K)
	c.t = t
	return c.t
}

// AnimateTo transitions to target over d with cubic in-out easing.
func (c *Controller) AnimateTo(target Transform, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.currentLocked()
	target.K = c.clamp(target.K)
	c.anim = &animation{from: from, to: target, start: c.now(), duration: d}
}

// Fit animates to frame points with the configured padding and duration. It
// reports false and leaves the view unchanged for degenerate input.
func (c *Controller) Fit(points []Point) bool {
	c.mu.Lock()
	w, h, pad := c.width, c.height, c.conf.FitPadding
	d := time.Duration(c.conf.FitDurationMs) * time.Millisecond
	c.mu.Unlock()

	t, ok := FitTransform(points, w, h, pad)
	if !ok {
		return false
	}
	c.AnimateTo(t, d)
	return true
}

// Reset returns to the identity transform.
func (c *Controller) Reset() {
	c.Set(Identity)
}

func (c *Controller) clamp(k float64) float64 {
	lo, hi := c.conf.MinScale, c.conf.MaxScale
	if lo > 0 && k < lo {
		return lo
	}
	if hi > 0 && k > hi {
		return hi
	}
	return k
}

func cubicInOut(t float64) float64 {
	t *= 2
	if t <= 1 {
		return t * t * t / 2
	}
	t -= 2
	return (t*t*t + 2) / 2
}
