// Package render draws frozen layout frames as SVG and serves the HTML shell
// that hosts them.
package render

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	svg "github.com/ajstarks/svgo"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/interaction"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

const (
	background   = "#0b0d14"
	linkStroke   = "#2b3147"
	nodeStroke   = "#0f111a"
	labelFill    = "#c7d0e0"
	tooltipFill  = "rgba(15,23,42,0.95)"
	tooltipText  = "#e5e7eb"
	tooltipLine  = "rgba(148,163,184,0.6)"
	errorFill    = "#7f1d1d"
	fontFamily   = "system-ui,sans-serif"
	tooltipFont  = 12
	tooltipPadX  = 8
	tooltipPadY  = 6
	charWidth    = 7
	labelMinFont = 12
)

// Options control the overlays drawn on top of a frame.
type Options struct {
	Transform viewport.Transform
	Tooltip   interaction.Tooltip
	Error     string // shown as a banner when non-empty
}

// Frame writes f as a standalone SVG document. Links are drawn below nodes and
// labels above them, all inside the viewport transform; tooltip and error
// banner stay in screen space.
func Frame(w io.Writer, f layout.Frame, opt Options) {
	width, height := int(math.Round(f.Width)), int(math.Round(f.Height))
	t := opt.Transform
	if t.K == 0 {
		t = viewport.Identity
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+background)

	canvas.Gtransform(fmt.Sprintf("translate(%g,%g) scale(%g)", t.X, t.Y, t.K))
	canvas.Gid("links")
	for _, l := range f.Links {
		canvas.Line(px(l.X1), px(l.Y1), px(l.X2), px(l.Y2),
			fmt.Sprintf("stroke:%s;stroke-opacity:0.5;stroke-width:1", linkStroke))
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, n := range f.Nodes {
		canvas.Circle(px(n.X), px(n.Y), px(n.Radius),
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1.2", n.Color, nodeStroke))
	}
	canvas.Gend()

	canvas.Gid("labels")
	for _, n := range f.Nodes {
		if !n.Type.Labeled() || n.Label == "" {
			continue
		}
		canvas.Text(px(n.X), px(n.Y+n.Radius+14), n.Label,
			fmt.Sprintf("fill:%s;font-size:%gpx;font-family:%s;text-anchor:middle;pointer-events:none",
				labelFill, LabelFontSize(n.Radius), fontFamily))
	}
	canvas.Gend()
	canvas.Gend()

	if tip := opt.Tooltip; tip.Visible && tip.Text != "" {
		x, y := px(tip.X), px(tip.Y)
		bw := utf8.RuneCountInString(tip.Text)*charWidth + 2*tooltipPadX
		bh := tooltipFont + 2*tooltipPadY
		canvas.Roundrect(x, y, bw, bh, 6, 6,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", tooltipFill, tooltipLine))
		canvas.Text(x+tooltipPadX, y+tooltipPadY+tooltipFont-2, tip.Text,
			fmt.Sprintf("fill:%s;font-size:%dpx;font-family:%s", tooltipText, tooltipFont, fontFamily))
	}

	if opt.Error != "" {
		canvas.Rect(0, 0, width, 28, "fill:"+errorFill+";fill-opacity:0.9")
		canvas.Text(12, 19, opt.Error,
			fmt.Sprintf("fill:%s;font-size:13px;font-family:%s", tooltipText, fontFamily))
	}
	canvas.End()
}

// LabelFontSize scales the label with the node radius, never below 12px.
func LabelFontSize(radius float64) float64 {
	return math.Max(labelMinFont, math.Round(radius*0.52*10)/10)
}

func px(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
