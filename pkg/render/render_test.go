package render

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestTransformInverse(t *testing.T) {
	tr := Transform{Scale: 1.7, PanX: 33, PanY: -12}
	pts := []Point{{X: 0, Y: 0}, {X: 100, Y: -50}, {X: -3.5, Y: 8.25}}
	for _, p := range pts {
		back := tr.ToWorld(tr.ToScreen(p))
		if !approx(back.X, p.X) || !approx(back.Y, p.Y) {
			t.Errorf("round trip of %v gave %v", p, back)
		}
	}
}

func TestZoomAtKeepsAnchor(t *testing.T) {
	tr := Transform{Scale: 1, PanX: 10, PanY: 20}
	anchor := Point{X: 200, Y: 150}
	before := tr.ToWorld(anchor)
	z := tr.ZoomAt(2, anchor)
	if !approx(z.Scale, 2) {
		t.Fatalf("scale = %v, want 2", z.Scale)
	}
	after := z.ToWorld(anchor)
	if !approx(before.X, after.X) || !approx(before.Y, after.Y) {
		t.Errorf("anchor moved from %v to %v", before, after)
	}
}

func TestZoomClamped(t *testing.T) {
	tr := Identity()
	if got := tr.ZoomAt(100, Point{}).Scale; got != MaxScale {
		t.Errorf("zoom in: scale = %v, want %v", got, MaxScale)
	}
	if got := tr.ZoomAt(0.0001, Point{}).Scale; got != MinScale {
		t.Errorf("zoom out: scale = %v, want %v", got, MinScale)
	}
}

func TestFit(t *testing.T) {
	bounds := Rect{X: 500, Y: 0, W: 2000, H: 500}
	tr := Fit(bounds, 1000, 1000, 0)
	if !approx(tr.Scale, 0.5) {
		t.Fatalf("scale = %v, want 0.5", tr.Scale)
	}
	c := tr.ToScreen(bounds.Center())
	if !approx(c.X, 500) || !approx(c.Y, 500) {
		t.Errorf("bounds centre maps to %v, want (500,500)", c)
	}

	// Small maps are not enlarged.
	small := Fit(Rect{W: 10, H: 10}, 1000, 1000, 20)
	if small.Scale != 1 {
		t.Errorf("small map scale = %v, want 1", small.Scale)
	}
}

func TestCenterOn(t *testing.T) {
	tr := Transform{Scale: 2}.CenterOn(Point{X: 10, Y: 20}, 800, 600)
	c := tr.ToScreen(Point{X: 10, Y: 20})
	if !approx(c.X, 400) || !approx(c.Y, 300) {
		t.Errorf("centre maps to %v", c)
	}
}

func TestHitTestTopmost(t *testing.T) {
	nodes := []NodeView{
		{Node: graph.Node{ID: "a"}, Rect: Rect{X: 0, Y: 0, W: 100, H: 40}},
		{Node: graph.Node{ID: "b"}, Rect: Rect{X: 20, Y: 0, W: 100, H: 40}},
		{Node: graph.Node{ID: "h", Hidden: true}, Rect: Rect{X: 500, Y: 500, W: 100, H: 40}},
	}
	tr := Transform{Scale: 2, PanX: 100, PanY: 100}

	tests := []struct {
		name   string
		screen Point
		want   string
		ok     bool
	}{
		{"overlap picks last painted", tr.ToScreen(Point{X: 30, Y: 0}), "b", true},
		{"only first", tr.ToScreen(Point{X: -40, Y: 0}), "a", true},
		{"only second", tr.ToScreen(Point{X: 65, Y: 0}), "b", true},
		{"background", tr.ToScreen(Point{X: 0, Y: 200}), "", false},
		{"hidden ignored", tr.ToScreen(Point{X: 500, Y: 500}), "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HitTest(nodes, tt.screen, tr)
			if got != tt.want || ok != tt.ok {
				t.Errorf("HitTest = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPointerGestures(t *testing.T) {
	t.Run("small move is a click", func(t *testing.T) {
		var p Pointer
		p.Down(Point{X: 10, Y: 10}, "n")
		if _, _, ok := p.Move(Point{X: 13, Y: 12}); ok {
			t.Fatal("move under threshold reported a drag")
		}
		g := p.Up(Point{X: 13, Y: 12})
		if g.Kind != GestureClick || g.NodeID != "n" {
			t.Errorf("got %+v, want click on n", g)
		}
	})

	t.Run("large move on node drags", func(t *testing.T) {
		var p Pointer
		p.Down(Point{X: 10, Y: 10}, "n")
		dx, dy, ok := p.Move(Point{X: 30, Y: 10})
		if !ok || dx != 20 || dy != 0 {
			t.Fatalf("Move = (%v, %v, %v)", dx, dy, ok)
		}
		dx, _, _ = p.Move(Point{X: 35, Y: 10})
		if dx != 5 {
			t.Errorf("second delta = %v, want 5", dx)
		}
		if g := p.Up(Point{X: 35, Y: 10}); g.Kind != GestureDrag {
			t.Errorf("got %v, want drag", g.Kind)
		}
		if p.Active() {
			t.Error("pointer still active after Up")
		}
	})

	t.Run("large move on background pans", func(t *testing.T) {
		var p Pointer
		p.Down(Point{}, "")
		if g := p.Up(Point{X: 0, Y: 50}); g.Kind != GesturePan {
			t.Errorf("got %v, want pan", g.Kind)
		}
	})

	t.Run("background click", func(t *testing.T) {
		var p Pointer
		p.Down(Point{}, "")
		if g := p.Up(Point{X: 1, Y: 1}); g.Kind != GestureNone {
			t.Errorf("got %v, want none", g.Kind)
		}
	})
}

// fixedWidth measures every rune as 10 pixels.
func fixedWidth(s string) float64 { return float64(len([]rune(s))) * 10 }

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width float64
		max   int
		want  []string
	}{
		{"fits", "short", 100, 2, []string{"short"}},
		{"two lines", "alpha beta gamma", 110, 2, []string{"alpha beta", "gamma"}},
		{"ellipsis", "one two three four five six", 90, 2, []string{"one two", "three…"}},
		{"long word split", "abcdefghij", 50, 3, []string{"abcde", "fghij"}},
		{"empty", "   ", 100, 2, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := WrapText(tt.text, tt.width, tt.max, fixedWidth)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("WrapText = %q, want %q", got, tt.want)
			}
			for _, l := range got {
				if fixedWidth(l) > tt.width {
					t.Errorf("line %q wider than %v", l, tt.width)
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abc", 100, fixedWidth); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abcdefghij", 50, fixedWidth); got != "abcd…" {
		t.Errorf("got %q, want abcd…", got)
	}
}

func estimateSizer() *Sizer {
	return &Sizer{Style: DefaultBoxStyle(), Fallback: EstimateMeasurer{}}
}

func TestBoxClamps(t *testing.T) {
	s := estimateSizer()
	st := s.Style

	small := s.Box(graph.Node{Title: "A"})
	if small.W != st.MinWidth {
		t.Errorf("short title width = %v, want %v", small.W, st.MinWidth)
	}

	long := s.Box(graph.Node{Title: strings.Repeat("word ", 40)})
	if long.W > st.MaxWidth || long.W <= st.MinWidth {
		t.Errorf("long title width = %v, want in (%v, %v]", long.W, st.MinWidth, st.MaxWidth)
	}
	if len(long.Lines) != st.MaxTitleLines {
		t.Errorf("lines = %d, want %d", len(long.Lines), st.MaxTitleLines)
	}
	if !strings.HasSuffix(long.Lines[len(long.Lines)-1], Ellipsis) {
		t.Errorf("last line %q lacks ellipsis", long.Lines[len(long.Lines)-1])
	}
}

func TestBoxReferenceRoom(t *testing.T) {
	s := estimateSizer()
	plain := s.Box(graph.Node{Title: "Topic"})
	withRefs := s.Box(graph.Node{Title: "Topic", References: []string{"p. 12", "p. 40"}})
	if !approx(withRefs.H-plain.H, s.Style.ReferenceRoom) {
		t.Errorf("reference height delta = %v, want %v", withRefs.H-plain.H, s.Style.ReferenceRoom)
	}
	if withRefs.RefLabel != "2 sources" {
		t.Errorf("label = %q", withRefs.RefLabel)
	}

	sub := s.Box(graph.Node{Title: "Topic", Summary: "first line\nsecond"})
	if sub.Subtitle != "first line" {
		t.Errorf("subtitle = %q", sub.Subtitle)
	}
	if sub.H <= plain.H {
		t.Error("subtitle did not add height")
	}
}

type panicMeasurer struct{}

func (panicMeasurer) Measure(string, float64) (float64, error) { panic("no font") }

type failMeasurer struct{}

func (failMeasurer) Measure(string, float64) (float64, error) { return 0, errors.New("broken") }

func TestSizerFallback(t *testing.T) {
	want := estimateSizer().Box(graph.Node{Title: "Fallback sizing"})
	for _, m := range []Measurer{panicMeasurer{}, failMeasurer{}} {
		s := &Sizer{Style: DefaultBoxStyle(), Primary: m, Fallback: EstimateMeasurer{}}
		got := s.Box(graph.Node{Title: "Fallback sizing"})
		if got.W != want.W || got.H != want.H {
			t.Errorf("%T: box %vx%v, want %vx%v", m, got.W, got.H, want.W, want.H)
		}
	}
}

func TestEstimateMeasurerWide(t *testing.T) {
	m := EstimateMeasurer{CharWidth: 0.5}
	narrow, _ := m.Measure("ab", 10)
	wide, _ := m.Measure("漢字", 10)
	if narrow != 10 || wide != 20 {
		t.Errorf("narrow=%v wide=%v", narrow, wide)
	}
}

func TestEdgeCurveEndpointsOnBoundary(t *testing.T) {
	from := Rect{X: 0, Y: 0, W: 100, H: 40}
	to := Rect{X: 300, Y: 0, W: 100, H: 40}
	cv := EdgeCurve(from, to, DefaultCurvature)
	if !approx(cv.Start.X, 50) || !approx(cv.Start.Y, 0) {
		t.Errorf("start = %v, want (50,0)", cv.Start)
	}
	if !approx(cv.End.X, 250) || !approx(cv.End.Y, 0) {
		t.Errorf("end = %v, want (250,0)", cv.End)
	}
	// Perpendicular offset of curvature times the length.
	if !approx(math.Abs(cv.Control.Y), 200*DefaultCurvature) || !approx(cv.Control.X, 150) {
		t.Errorf("control = %v", cv.Control)
	}
	if p := cv.At(0); p != cv.Start {
		t.Errorf("At(0) = %v", p)
	}
	if p := cv.At(1); !approx(p.X, cv.End.X) || !approx(p.Y, cv.End.Y) {
		t.Errorf("At(1) = %v", p)
	}
}

func TestArrowheadAlongTangent(t *testing.T) {
	cv := Curve{Start: Point{X: 0, Y: 0}, Control: Point{X: 50, Y: 0}, End: Point{X: 100, Y: 0}}
	head := cv.Arrowhead(8, 4)
	if head[0] != cv.End {
		t.Errorf("tip = %v", head[0])
	}
	for _, w := range head[1:] {
		if !approx(w.X, 92) || !approx(math.Abs(w.Y), 4) {
			t.Errorf("wing = %v", w)
		}
	}

	// Tangent is End - Control, not End - Start.
	bent := Curve{Start: Point{X: 0, Y: 0}, Control: Point{X: 100, Y: -100}, End: Point{X: 100, Y: 0}}
	h := bent.Arrowhead(10, 0)
	if !approx(h[1].X, 100) || !approx(h[1].Y, -10) {
		t.Errorf("bent wing = %v, want (100,-10)", h[1])
	}
}

func TestRectUnionAndOverlap(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	b := Rect{X: 20, Y: 0, W: 10, H: 10}
	u := Rect{}.Union(a).Union(b)
	if !approx(u.X, 10) || !approx(u.W, 30) || !approx(u.H, 10) {
		t.Errorf("union = %+v", u)
	}
	if RectOverlap(a, b) != 0 {
		t.Error("disjoint rects overlap")
	}
	if got := RectOverlap(a, Rect{X: 5, Y: 5, W: 10, H: 10}); !approx(got, 25) {
		t.Errorf("overlap = %v, want 25", got)
	}
}

func sampleStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.New(logging.Discard())
	root := mindmap.NodeDoc{ID: "r", Title: "Cells & <Tissues>", Children: []mindmap.NodeDoc{
		{ID: "a", Title: "Membranes", Summary: "Lipid bilayers", References: []string{"ch. 2"}},
		{ID: "b", Title: "Organelles", Source: mindmap.SourceAIGenerated},
	}}
	if _, err := s.LoadRoot(root, graph.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	s.ApplyPositions(map[string]Point{"r": {X: 0, Y: 0}, "a": {X: -200, Y: 150}, "b": {X: 200, Y: 150}})
	return s
}

func TestBuildScene(t *testing.T) {
	s := sampleStore(t)
	sc := BuildScene(s, estimateSizer(), Highlight{Selected: "a", Matches: map[string]bool{"b": true}})
	if len(sc.Nodes) != 3 || len(sc.Edges) != 2 {
		t.Fatalf("scene has %d nodes, %d edges", len(sc.Nodes), len(sc.Edges))
	}
	a, _ := sc.Find("a")
	if !a.Selected {
		t.Error("a not selected")
	}
	b, _ := sc.Find("b")
	if !b.Match {
		t.Error("b not a match")
	}
	r, _ := sc.Find("r")
	if !r.HasChildren {
		t.Error("root lacks children flag")
	}
	if sc.Bounds.W < 400 {
		t.Errorf("bounds width = %v", sc.Bounds.W)
	}
}

func TestExportPNG(t *testing.T) {
	s := sampleStore(t)
	e := &Exporter{Renderer: NewRenderer(DefaultBoxStyle()), Sizer: estimateSizer()}
	var buf bytes.Buffer
	if err := e.PNG(&buf, s, ExportOptions{Width: 320, Height: 240, Supersample: 2}); err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("size = %v", b)
	}
}

func TestExportSVG(t *testing.T) {
	s := sampleStore(t)
	e := &Exporter{Renderer: NewRenderer(DefaultBoxStyle()), Sizer: estimateSizer()}
	var buf bytes.Buffer
	if err := e.SVG(&buf, s, ExportOptions{Width: 800, Height: 600, Title: "Biology"}); err != nil {
		t.Fatalf("SVG: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<svg", "<title>Biology</title>", "Cells &amp; &lt;Tissues&gt;", "<path d=\"M", "</svg>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestExportEmpty(t *testing.T) {
	e := &Exporter{Renderer: NewRenderer(DefaultBoxStyle()), Sizer: estimateSizer()}
	err := e.SVG(&bytes.Buffer{}, graph.New(logging.Discard()), ExportOptions{})
	if !errors.Is(err, graph.ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}
