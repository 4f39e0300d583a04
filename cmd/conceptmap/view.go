package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/engine"
	"github.com/ha1tch/conceptmap/pkg/expand"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
	"github.com/ha1tch/conceptmap/pkg/render"
)

func viewCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Explore a concept map in the terminal",
		Example: "  conceptmap view --course bio101\n" +
			"  conceptmap view --file map.json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, kerr := key()
			if file == "" && kerr != nil {
				return kerr
			}
			var doc *mindmap.Document
			if file != "" {
				d, err := readDocument(file)
				if err != nil {
					return err
				}
				doc = d
			}

			a, err := setup(true)
			if err != nil {
				return err
			}
			defer a.Close()

			screen, err := tcell.NewScreen()
			if err != nil {
				return err
			}
			if err := screen.Init(); err != nil {
				return err
			}
			defer screen.Fini()
			screen.EnableMouse()
			screen.Clear()

			v := newViewer(cmd.Context(), screen, a, k)
			if doc != nil {
				v.source = file
				_ = v.session.Show(k, doc, graph.LoadOptions{Source: engine.SourceFor(k)})
			} else {
				v.session.OpenAsync(v.ctx, k, false)
			}
			v.run()
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the map from a json or yaml file instead of the service")
	return cmd
}

// Mode represents what keys are routed to.
type Mode int

const (
	ModeMap    Mode = iota
	ModeSearch      // typing a search query
	ModePrompt      // typing guidance for an AI expansion
	ModeHelp        // key reference overlay
)

// Viewer holds all terminal viewer state. Everything except the flash
// clock is owned by the run loop's goroutine.
type Viewer struct {
	screen  tcell.Screen
	session *engine.Session
	keymap  engine.Keymap
	ctx     context.Context
	cancel  context.CancelFunc
	key     cache.Key
	source  string // file name when not backed by a course

	mode        Mode
	input       string
	note        engine.Message // viewer-local status, shown when newer than the session's
	quit        bool
	lastMsg     time.Time
	pointerDown bool

	sidebarWidth     int
	sidebarCollapsed bool

	// Unix milliseconds when the current message appeared; read by the
	// refresh ticker.
	flashStart atomic.Int64
}

func newViewer(ctx context.Context, screen tcell.Screen, a *app, k cache.Key) *Viewer {
	v := &Viewer{
		screen:       screen,
		keymap:       engine.DefaultKeymap(),
		key:          k,
		sidebarWidth: 36,
	}
	v.ctx, v.cancel = context.WithCancel(ctx)

	dispatch := expand.DispatchFunc(func(fn func()) {
		screen.PostEventWait(tcell.NewEventInterrupt(fn))
	})
	v.session = a.session(engine.Options{
		Dispatcher: dispatch,
		Scheduler:  layout.NewTimerScheduler(dispatch),
		OnChange:   v.changed,
	})
	v.resize()
	return v
}

// changed runs after every session update.
func (v *Viewer) changed() {
	if at := v.session.Message().At; at.After(v.lastMsg) {
		v.lastMsg = at
		v.flashStart.Store(at.UnixMilli())
	}
}

// notify shows a viewer-local message.
func (v *Viewer) notify(text string, t engine.MessageType) {
	v.note = engine.Message{Text: text, Type: t, At: time.Now()}
	v.flashStart.Store(v.note.At.UnixMilli())
}

// message returns the newest of the session's and the viewer's messages.
func (v *Viewer) message() engine.Message {
	m := v.session.Message()
	if v.note.At.After(m.At) {
		return v.note
	}
	return m
}

func (v *Viewer) canvasSize() (cols, rows int) {
	w, h := v.screen.Size()
	cols = w
	if !v.sidebarCollapsed {
		cols -= v.sidebarWidth
	}
	return max(cols, 1), max(h-2, 1)
}

func (v *Viewer) resize() {
	cols, rows := v.canvasSize()
	v.session.SetViewport(float64(cols)*cellW, float64(rows)*cellH)
}

func (v *Viewer) run() {
	defer v.cancel()

	// Repaint while a status message flashes.
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-v.ctx.Done():
				return
			case <-ticker.C:
				start := v.flashStart.Load()
				if start == 0 {
					continue
				}
				elapsed := time.Now().UnixMilli() - start
				if elapsed >= 0 && elapsed < flashDuration+100 {
					v.screen.PostEvent(tcell.NewEventInterrupt(nil))
				}
			}
		}
	}()

	for !v.quit {
		v.draw()
		v.screen.Show()

		switch ev := v.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			v.screen.Sync()
			v.resize()
		case *tcell.EventKey:
			v.handleKey(ev)
		case *tcell.EventMouse:
			v.handleMouse(ev)
		case *tcell.EventInterrupt:
			if fn, ok := ev.Data().(func()); ok {
				fn()
			}
		}
	}
}

// keyName maps a key event to the names used by engine.Keymap.
func keyName(ev *tcell.EventKey) string {
	switch ev.Key() {
	case tcell.KeyRune:
		return string(ev.Rune())
	case tcell.KeyCtrlZ:
		return "Ctrl+Z"
	case tcell.KeyCtrlY:
		return "Ctrl+Y"
	}
	return tcell.KeyNames[ev.Key()]
}

func (v *Viewer) handleKey(ev *tcell.EventKey) {
	if ev.Key() == tcell.KeyCtrlC {
		v.quit = true
		return
	}

	switch v.mode {
	case ModeSearch, ModePrompt:
		v.handleInputKey(ev)
		return
	case ModeHelp:
		v.mode = ModeMap
		return
	}

	switch keyName(ev) {
	case "q":
		v.quit = true
		return
	case "/":
		v.mode = ModeSearch
		v.input = ""
		return
	case "X":
		if v.session.Store().Selected() == "" {
			v.notify("Select a concept first", engine.MsgWarning)
			return
		}
		v.mode = ModePrompt
		v.input = ""
		return
	case "?":
		v.mode = ModeHelp
		return
	case "Tab":
		v.sidebarCollapsed = !v.sidebarCollapsed
		v.resize()
		return
	case "Up":
		v.pan(0, 3)
		return
	case "Down":
		v.pan(0, -3)
		return
	case "Left":
		v.pan(6, 0)
		return
	case "Right":
		v.pan(-6, 0)
		return
	}

	action, ok := v.keymap.Lookup(keyName(ev))
	if !ok {
		return
	}
	v.do(action)
}

func (v *Viewer) do(action engine.Action) {
	switch action {
	case engine.ActionRegenerate:
		if v.session.Key().CourseID == "" {
			v.notify("Maps loaded from a file cannot be regenerated", engine.MsgWarning)
			return
		}
		v.session.OpenAsync(v.ctx, v.session.Key(), true)
		return
	case engine.ActionSearchNext, engine.ActionSearchPrev:
		if len(v.session.SearchIndex().Results()) == 0 {
			v.notify("No search results", engine.MsgInfo)
			return
		}
	}
	err := v.session.Do(v.ctx, action)
	switch {
	case errors.Is(err, engine.ErrNoSelection):
		v.notify("Select a concept first", engine.MsgWarning)
	case err != nil && v.message().Type != engine.MsgError && v.message().Type != engine.MsgWarning:
		v.notify(err.Error(), engine.MsgError)
	}
}

// pan moves the view by whole cells.
func (v *Viewer) pan(cols, rows int) {
	v.session.SetView(v.session.View().Pan(float64(cols)*cellW, float64(rows)*cellH))
}

func (v *Viewer) handleInputKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		v.mode = ModeMap
		v.input = ""
	case tcell.KeyEnter:
		text := v.input
		mode := v.mode
		v.mode = ModeMap
		v.input = ""
		if mode == ModeSearch {
			if text == "" {
				v.session.ClearSearch()
				return
			}
			if res := v.session.Search(text); len(res) == 0 {
				v.notify("No concepts match "+text, engine.MsgInfo)
			}
			return
		}
		_, _ = v.session.ExpandSelected(v.ctx, text)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if r := []rune(v.input); len(r) > 0 {
			v.input = string(r[:len(r)-1])
		}
	case tcell.KeyRune:
		v.input += string(ev.Rune())
	}
}

func (v *Viewer) handleMouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	buttons := ev.Buttons()
	cols, rows := v.canvasSize()
	p := cellCenter(x, y)

	if buttons&tcell.WheelUp != 0 {
		if x < cols && y < rows {
			v.session.Wheel(1, p)
		}
		return
	}
	if buttons&tcell.WheelDown != 0 {
		if x < cols && y < rows {
			v.session.Wheel(-1, p)
		}
		return
	}

	pressed := buttons&tcell.Button1 != 0
	switch {
	case pressed && !v.pointerDown:
		if x >= cols || y >= rows {
			return
		}
		v.pointerDown = true
		v.session.PointerDown(p)
	case pressed:
		v.session.PointerMove(p)
	case v.pointerDown:
		v.pointerDown = false
		v.session.PointerUp(p)
	}
}

// cellCenter maps a terminal cell to the session's screen coordinates.
func cellCenter(x, y int) render.Point {
	return render.Point{X: (float64(x) + 0.5) * cellW, Y: (float64(y) + 0.5) * cellH}
}
