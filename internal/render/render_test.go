package render_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/curriculumgraph/internal/graph"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/interaction"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/layout"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/render"
	"github.com/gyaneshwarpardhi/curriculumgraph/internal/viewport"
)

func sampleFrame() layout.Frame {
	return layout.Frame{
		Width:  800,
		Height: 600,
		Nodes: []layout.NodePos{
			{ID: "t1", Type: graph.TypeTopic, Label: "Sayılar & İşlemler", Color: "#42a5f5", Radius: 30, X: 100, Y: 100},
			{ID: "o1", Type: graph.TypeOutcome, Label: "Kazanım 1", Color: "#90a4ae", Radius: 8, X: 200, Y: 150},
		},
		Links: []layout.LinkPos{{ID: "l1", Source: "t1", Target: "o1", X1: 100, Y1: 100, X2: 200, Y2: 150}},
	}
}

func TestFrameDrawOrder(t *testing.T) {
	var buf bytes.Buffer
	render.Frame(&buf, sampleFrame(), render.Options{Transform: viewport.Transform{X: 10, Y: 20, K: 0.5}})
	out := buf.String()

	if !strings.Contains(out, `transform="translate(10,20) scale(0.5)"`) {
		t.Errorf("missing viewport transform:\n%s", out)
	}
	line := strings.Index(out, "<line")
	circle := strings.Index(out, "<circle")
	text := strings.Index(out, "<text")
	if line < 0 || circle < 0 || text < 0 || !(line < circle && circle < text) {
		t.Errorf("want links, then nodes, then labels; got line=%d circle=%d text=%d", line, circle, text)
	}
	if strings.Count(out, "<circle") != 2 {
		t.Errorf("want 2 circles, got %d", strings.Count(out, "<circle"))
	}
}

func TestFrameLabelsOnlyStructuralNodes(t *testing.T) {
	var buf bytes.Buffer
	render.Frame(&buf, sampleFrame(), render.Options{})
	out := buf.String()
	if !strings.Contains(out, "Sayılar &amp; İşlemler") {
		t.Errorf("topic label missing or unescaped:\n%s", out)
	}
	if strings.Contains(out, "Kazanım 1") {
		t.Error("outcome nodes must not get an on-canvas label")
	}
	if !strings.Contains(out, "font-size:15.6px") {
		t.Errorf("label size should be 0.52·r for r=30:\n%s", out)
	}
}

func TestFrameTooltipAndError(t *testing.T) {
	var buf bytes.Buffer
	render.Frame(&buf, sampleFrame(), render.Options{
		Tooltip: interaction.Tooltip{Visible: true, Text: "Sayılar – success: 71.26", X: 112, Y: 112},
		Error:   "Internal error",
	})
	out := buf.String()
	if !strings.Contains(out, "success: 71.26") {
		t.Error("tooltip text missing")
	}
	if !strings.Contains(out, "Internal error") {
		t.Error("error banner missing")
	}
	if strings.Index(out, "success: 71.26") < strings.LastIndex(out, "</g>") {
		t.Error("tooltip must be drawn outside the transformed group")
	}
}

func TestFrameEmpty(t *testing.T) {
	var buf bytes.Buffer
	render.Frame(&buf, layout.Frame{Width: 100, Height: 50}, render.Options{})
	out := buf.String()
	if !strings.HasSuffix(strings.TrimSpace(out), "</svg>") {
		t.Errorf("incomplete document:\n%s", out)
	}
	if strings.Contains(out, "<circle") {
		t.Error("empty frame should draw no nodes")
	}
}

func TestLabelFontSize(t *testing.T) {
	if got := render.LabelFontSize(10); got != 12 {
		t.Errorf("small radius = %g, want floor of 12", got)
	}
	if got := render.LabelFontSize(50); got != 26 {
		t.Errorf("r=50 = %g, want 26", got)
	}
}

func TestPageEmbedsState(t *testing.T) {
	page, err := render.Page(render.PageOptions{
		Width:    800,
		Height:   600,
		LoginURL: "/login",
		State:    map[string]string{"subject": "mat"},
	})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	html := string(page)
	if !strings.Contains(html, `{"subject":"mat"}`) {
		t.Error("state JSON not embedded verbatim")
	}
	if !strings.Contains(html, "<title>Curriculum Graph</title>") {
		t.Error("default title missing")
	}
}
