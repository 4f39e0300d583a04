package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/ha1tch/conceptmap/pkg/engine"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Styles
var (
	styleDefault    = tcell.StyleDefault
	styleSidebar    = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleSidebarH   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleSidebarDim = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleAI         = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleStatus     = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	styleMsgInfo    = tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(tcell.ColorNavy)
	styleMsgError   = tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorNavy).Bold(true)
	styleMsgWarning = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorNavy)
	styleMsgSuccess = tcell.StyleDefault.Foreground(tcell.ColorLightGreen).Background(tcell.ColorNavy)
	styleHelp       = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleInput      = tcell.StyleDefault.Background(tcell.ColorNavy).Foreground(tcell.ColorWhite)
	styleBorder     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleEmpty      = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

// Status messages other than info flash: normal, inverted, normal,
// inverted, then steady.
const (
	flashDuration = 500 // milliseconds
	flashPhase    = 125
)

func flashInverted(elapsed int64) bool {
	if elapsed < 0 || elapsed >= flashDuration {
		return false
	}
	phase := elapsed / flashPhase
	return phase == 1 || phase == 3
}

func shouldFlash(t engine.MessageType) bool {
	return t != engine.MsgInfo
}

func messageStyle(t engine.MessageType) tcell.Style {
	switch t {
	case engine.MsgError:
		return styleMsgError
	case engine.MsgWarning:
		return styleMsgWarning
	case engine.MsgSuccess:
		return styleMsgSuccess
	}
	return styleMsgInfo
}

func (v *Viewer) draw() {
	v.screen.Clear()
	w, h := v.screen.Size()
	cols, rows := v.canvasSize()

	v.drawCanvas(cols, rows)
	if !v.sidebarCollapsed {
		v.drawSidebar(cols, w, rows)
	}

	switch v.mode {
	case ModeSearch:
		v.drawInputBox(w, h, "Search: ")
	case ModePrompt:
		v.drawInputBox(w, h, "Expand with: ")
	case ModeHelp:
		v.drawHelp(w, h)
	}

	v.drawStatusBar(w, h)
}

func (v *Viewer) drawCanvas(cols, rows int) {
	if !v.session.Store().Empty() {
		v.session.Draw(&cellSurface{screen: v.screen, cols: cols, rows: rows})
		return
	}

	var text string
	switch v.session.Status() {
	case engine.StatusLoading:
		text = "Generating concept map…"
	case engine.StatusNoData, engine.StatusError:
		text = v.session.Message().Text
	default:
		text = "No concept map loaded"
	}
	lines := strings.Split(wordwrap.String(text, max(cols-8, 10)), "\n")
	y := rows/2 - len(lines)/2
	for i, line := range lines {
		v.drawString((cols-runewidth.StringWidth(line))/2, y+i, line, styleEmpty)
	}
}

func (v *Viewer) drawSidebar(x0, w, rows int) {
	for y := 0; y < rows; y++ {
		v.screen.SetContent(x0, y, '│', nil, styleBorder)
	}
	p := &panel{v: v, x: x0 + 2, width: w - x0 - 3, maxY: rows}

	if doc := v.session.Document(); doc != nil {
		p.heading(doc.Title)
	} else {
		p.heading("conceptmap")
	}
	p.blank()

	id := v.session.Store().Selected()
	n, ok := v.session.Store().Node(id)
	if !ok {
		st := v.session.Stats()
		p.line(fmt.Sprintf("%d concepts, %d shown", st.Nodes, st.Visible), styleSidebar)
		p.line(fmt.Sprintf("depth %d · %d bookmarked", st.MaxDepth, st.Bookmarks), styleSidebarDim)
		if st.AIGenerated > 0 {
			p.line(fmt.Sprintf("%d AI generated", st.AIGenerated), styleAI)
		}
		p.blank()
		p.wrap("Click a concept for details. Press ? for keys.", styleSidebarDim)
		return
	}

	p.line(n.Title, styleSidebarH)
	if path := v.session.Store().Path(id); len(path) > 1 {
		p.line(strings.Join(path[:len(path)-1], " › "), styleSidebarDim)
	}
	var flags []string
	if n.Source == mindmap.SourceAIGenerated {
		flags = append(flags, "AI")
	}
	if n.Bookmarked {
		flags = append(flags, "bookmarked")
	}
	if v.session.Expansions().InFlight(id) {
		flags = append(flags, "expanding…")
	}
	if len(flags) > 0 {
		p.line(strings.Join(flags, " · "), styleAI)
	}
	p.blank()

	if n.Summary != "" {
		p.wrap(n.Summary, styleSidebar)
		p.blank()
	}
	if n.AIHint != "" {
		p.line("Hint", styleSidebarH)
		p.wrap(n.AIHint, styleSidebar)
		p.blank()
	}
	if len(n.StudyActions) > 0 {
		p.line("Study", styleSidebarH)
		for _, a := range n.StudyActions {
			p.wrap("• "+a, styleSidebar)
		}
		p.blank()
	}
	if len(n.Tags) > 0 {
		p.wrap(strings.Join(n.Tags, ", "), styleSidebarDim)
	}
	if len(n.References) > 0 {
		p.line(fmt.Sprintf("%d references", len(n.References)), styleSidebarDim)
	}
}

// panel lays out sidebar lines top to bottom, clipping at maxY.
type panel struct {
	v     *Viewer
	x, y  int
	width int
	maxY  int
}

func (p *panel) line(s string, st tcell.Style) {
	if p.y >= p.maxY || p.width <= 0 {
		return
	}
	p.v.drawString(p.x, p.y, truncate.StringWithTail(s, uint(p.width), "…"), st)
	p.y++
}

func (p *panel) wrap(s string, st tcell.Style) {
	for _, l := range strings.Split(wordwrap.String(s, p.width), "\n") {
		p.line(l, st)
	}
}

func (p *panel) heading(s string) { p.line(s, styleSidebarH.Underline(true)) }

func (p *panel) blank() { p.y++ }

func (v *Viewer) drawStatusBar(w, h int) {
	y := h - 1
	for x := 0; x < w; x++ {
		v.screen.SetContent(x, y, ' ', nil, styleStatus)
	}

	source := v.source
	if k := v.session.Key(); k.CourseID != "" {
		source = k.String()
	}
	if source == "" {
		source = "[none]"
	}
	if n := v.session.Expansions().Pending(); n > 0 {
		source += fmt.Sprintf(" (+%d expanding)", n)
	}
	v.drawString(1, y, source, styleStatus)

	mode := v.modeString()
	v.drawString(w/2-runewidth.StringWidth(mode)/2, y, mode, styleStatus)

	if m := v.message(); m.Text != "" {
		st := messageStyle(m.Type)
		if shouldFlash(m.Type) && flashInverted(time.Since(m.At).Milliseconds()) {
			st = st.Reverse(true)
		}
		text := truncate.StringWithTail(m.Text, uint(max(w/2-4, 8)), "…")
		v.drawString(w-runewidth.StringWidth(text)-2, y, text, st)
	}

	y = h - 2
	for x := 0; x < w; x++ {
		v.screen.SetContent(x, y, ' ', nil, styleDefault)
	}
	v.drawString(1, y, truncate.StringWithTail(v.helpString(), uint(max(w-2, 1)), "…"), styleHelp)
}

func (v *Viewer) drawInputBox(w, h int, prompt string) {
	boxW := min(60, w-4)
	boxH := 3
	boxX := (w - boxW) / 2
	boxY := (h - boxH) / 2

	v.drawBox(boxX, boxY, boxW, boxH, styleInput)
	v.drawString(boxX+2, boxY+1, prompt, styleInput)
	room := boxW - 5 - runewidth.StringWidth(prompt)
	input := []rune(v.input)
	for len(input) > 0 && runewidth.StringWidth(string(input)) > room {
		input = input[1:]
	}
	v.drawString(boxX+2+runewidth.StringWidth(prompt), boxY+1, string(input)+"_", styleInput)
}

// helpActions lists the keymap in the order the overlay shows it.
var helpActions = []engine.Action{
	engine.ActionToggle,
	engine.ActionExpandAll,
	engine.ActionCollapseAll,
	engine.ActionBack,
	engine.ActionBookmark,
	engine.ActionAIExpand,
	engine.ActionDelete,
	engine.ActionUndo,
	engine.ActionRedo,
	engine.ActionAutoLayout,
	engine.ActionZoomIn,
	engine.ActionZoomOut,
	engine.ActionFit,
	engine.ActionCenterRoot,
	engine.ActionSearchNext,
	engine.ActionSearchPrev,
	engine.ActionSearchClear,
	engine.ActionRegenerate,
}

// helpLines renders the key reference.
func helpLines(km engine.Keymap) []string {
	lines := []string{
		fmt.Sprintf("%-16s %s", "/", "search"),
		fmt.Sprintf("%-16s %s", "X", "ai-expand with a prompt"),
		fmt.Sprintf("%-16s %s", "arrows", "pan"),
		fmt.Sprintf("%-16s %s", "Tab", "toggle sidebar"),
	}
	for _, a := range helpActions {
		keys := km.Keys(a)
		if len(keys) == 0 {
			continue
		}
		for i, k := range keys {
			if k == " " {
				keys[i] = "Space"
			}
		}
		lines = append(lines, fmt.Sprintf("%-16s %s", strings.Join(keys, " "), a))
	}
	return append(lines, fmt.Sprintf("%-16s %s", "q Ctrl+C", "quit"))
}

func (v *Viewer) drawHelp(w, h int) {
	lines := helpLines(v.keymap)
	boxW := min(48, w-2)
	boxH := min(len(lines)+4, h-2)
	boxX := (w - boxW) / 2
	boxY := max((h-2-boxH)/2, 0)

	v.drawBox(boxX, boxY, boxW, boxH, styleDefault)
	v.drawString(boxX+2, boxY+1, "Keys", styleSidebarH)
	for i, line := range lines {
		if 3+i >= boxH-1 {
			break
		}
		v.drawString(boxX+2, boxY+3+i, truncate.String(line, uint(boxW-4)), styleSidebar)
	}
}

func (v *Viewer) drawBox(x, y, w, h int, style tcell.Style) {
	v.screen.SetContent(x, y, '┌', nil, styleBorder)
	v.screen.SetContent(x+w-1, y, '┐', nil, styleBorder)
	v.screen.SetContent(x, y+h-1, '└', nil, styleBorder)
	v.screen.SetContent(x+w-1, y+h-1, '┘', nil, styleBorder)

	for i := x + 1; i < x+w-1; i++ {
		v.screen.SetContent(i, y, '─', nil, styleBorder)
		v.screen.SetContent(i, y+h-1, '─', nil, styleBorder)
	}
	for i := y + 1; i < y+h-1; i++ {
		v.screen.SetContent(x, i, '│', nil, styleBorder)
		v.screen.SetContent(x+w-1, i, '│', nil, styleBorder)
	}
	for row := y + 1; row < y+h-1; row++ {
		for col := x + 1; col < x+w-1; col++ {
			v.screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

// drawString draws s from column x and returns the columns used.
func (v *Viewer) drawString(x, y int, s string, style tcell.Style) int {
	start := x
	for _, r := range s {
		v.screen.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
	return x - start
}

func (v *Viewer) modeString() string {
	switch v.mode {
	case ModeSearch:
		return "SEARCH"
	case ModePrompt:
		return "EXPAND"
	case ModeHelp:
		return "HELP"
	}
	if v.session.LayoutRunning() {
		return "LAYOUT"
	}
	if v.session.Status() == engine.StatusLoading {
		return "LOADING"
	}
	return ""
}

func (v *Viewer) helpString() string {
	switch v.mode {
	case ModeSearch, ModePrompt:
		return "Type text  Enter:Confirm  Esc:Cancel"
	case ModeHelp:
		return "Any key:Close"
	}
	if res := v.session.SearchIndex().Results(); len(res) > 0 {
		return fmt.Sprintf("Match %d/%d  n:Next  N:Prev  Esc:Clear  /:Search", v.session.SearchIndex().Cursor()+1, len(res))
	}
	return "Click:Select  Enter:Toggle  x:AI Expand  /:Search  u:Undo  l:Layout  +/-:Zoom  0:Fit  ?:Keys  q:Quit"
}
