package render

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// BoxStyle holds the sizing rules for concept boxes.
type BoxStyle struct {
	MinWidth      float64
	MaxWidth      float64
	PaddingX      float64
	PaddingY      float64
	FontSize      float64
	SubtitleSize  float64
	LineHeight    float64 // multiple of the font size
	MaxTitleLines int
	ReferenceRoom float64 // extra height for the reference annotation
}

// DefaultBoxStyle returns the standard box sizing.
func DefaultBoxStyle() BoxStyle {
	return BoxStyle{
		MinWidth:      120,
		MaxWidth:      240,
		PaddingX:      12,
		PaddingY:      8,
		FontSize:      14,
		SubtitleSize:  11,
		LineHeight:    1.3,
		MaxTitleLines: 2,
		ReferenceRoom: 14,
	}
}

// Box is the measured content and size of one concept box.
type Box struct {
	W, H     float64
	Lines    []string
	Subtitle string
	RefLabel string
}

// Sizer measures concept boxes. When the primary measurer fails the
// estimate is used instead, so sizing never errors.
type Sizer struct {
	Style    BoxStyle
	Primary  Measurer
	Fallback Measurer
}

// NewSizer returns a sizer measuring with the embedded font, or with the
// estimate alone when the font cannot be loaded.
func NewSizer(style BoxStyle) *Sizer {
	s := &Sizer{Style: style, Fallback: EstimateMeasurer{}}
	if fm, err := NewFontMeasurer(); err == nil {
		s.Primary = fm
	}
	return s
}

func (s *Sizer) measure(text string, size float64) float64 {
	return safeMeasure(s.Primary, s.Fallback, text, size)
}

// Box sizes n's box.
func (s *Sizer) Box(n graph.Node) Box {
	st := s.Style
	avail := st.MaxWidth - 2*st.PaddingX
	measureTitle := func(t string) float64 { return s.measure(t, st.FontSize) }
	measureSub := func(t string) float64 { return s.measure(t, st.SubtitleSize) }

	b := Box{Lines: WrapText(n.Title, avail, st.MaxTitleLines, measureTitle)}

	textW := 0.0
	for _, l := range b.Lines {
		if w := measureTitle(l); w > textW {
			textW = w
		}
	}
	if n.Summary != "" {
		b.Subtitle = Truncate(firstLine(n.Summary), avail, measureSub)
		if w := measureSub(b.Subtitle); w > textW {
			textW = w
		}
	}

	b.W = clamp(textW+2*st.PaddingX, st.MinWidth, st.MaxWidth)
	lines := len(b.Lines)
	if lines == 0 {
		lines = 1
	}
	b.H = 2*st.PaddingY + float64(lines)*st.FontSize*st.LineHeight
	if b.Subtitle != "" {
		b.H += st.SubtitleSize * st.LineHeight
	}
	if n.HasReferences() {
		b.RefLabel = referenceLabel(len(n.References))
		b.H += st.ReferenceRoom
	}
	return b
}

func referenceLabel(n int) string {
	if n == 1 {
		return "1 source"
	}
	return strconv.Itoa(n) + " sources"
}

// WrapText breaks text into at most maxLines lines no wider than width.
// Words longer than a line are split by rune. When text does not fit, the
// last line ends with an ellipsis.
func WrapText(text string, width float64, maxLines int, measure func(string) float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxLines <= 0 {
		maxLines = 1
	}

	var lines []string
	cur := ""
	for _, w := range words {
		candidate := w
		if cur != "" {
			candidate = cur + " " + w
		}
		if measure(candidate) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		// Split an over-long word across lines.
		for measure(w) > width && utf8.RuneCountInString(w) > 1 {
			head, tail := splitToWidth(w, width, measure)
			lines = append(lines, head)
			w = tail
		}
		cur = w
	}
	if cur != "" {
		lines = append(lines, cur)
	}

	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	lines[maxLines-1] = withEllipsis(lines[maxLines-1], width, measure)
	return lines
}

// Truncate shortens text to fit width, appending an ellipsis when cut.
func Truncate(text string, width float64, measure func(string) float64) string {
	if measure(text) <= width {
		return text
	}
	return withEllipsis(text, width, measure)
}

func withEllipsis(s string, width float64, measure func(string) float64) string {
	r := []rune(strings.TrimRight(s, " "))
	for len(r) > 0 && measure(string(r)+Ellipsis) > width {
		r = r[:len(r)-1]
	}
	return strings.TrimRight(string(r), " ") + Ellipsis
}

func splitToWidth(w string, width float64, measure func(string) float64) (string, string) {
	r := []rune(w)
	n := 1
	for n < len(r) && measure(string(r[:n+1])) <= width {
		n++
	}
	return string(r[:n]), string(r[n:])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
