// Package tui is a terminal front end for a single session. The session
// draws into a render.TextCanvas; the model feeds it keyboard and mouse
// input and shows the resulting frame.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/id"
	"github.com/ryanbastic/go-pixelwall/internal/interaction"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/render"
	"github.com/ryanbastic/go-pixelwall/internal/session"
)

// Rows taken by the header and the help line.
const chromeRows = 2

const (
	zoomStep = 1.25
	panCols  = 4
	panRows  = 2
)

// DefaultPalette is the brush cycle.
var DefaultPalette = []grid.Color{
	grid.Black,
	grid.MustParseColor("#E53935"),
	grid.MustParseColor("#FB8C00"),
	grid.MustParseColor("#FDD835"),
	grid.MustParseColor("#43A047"),
	grid.MustParseColor("#1E88E5"),
	grid.MustParseColor("#8E24AA"),
	grid.White,
}

// Config holds claim metadata and timing for the viewer.
type Config struct {
	Username    string
	ContactInfo string
	URL         string
	Palette     []grid.Color
	// Refresh is how often the frame is redrawn without input, so
	// changes made elsewhere show up.
	Refresh time.Duration
	// OpTimeout bounds each call into the session.
	OpTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Palette) == 0 {
		c.Palette = DefaultPalette
	}
	if c.Refresh <= 0 {
		c.Refresh = 250 * time.Millisecond
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	return c
}

type refreshMsg time.Time

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1E90FF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E53935"))
)

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	session *session.Session
	cfg     Config
	keys    keyMap
	help    help.Model

	width, height    int
	cursorX, cursorY int
	dragging         bool
	brush            int

	view     session.View
	frame    string
	status   string
	err      error
	quitting bool
}

// New creates a model driving s. ctx bounds every session call.
func New(ctx context.Context, s *session.Session, cfg Config) Model {
	return Model{
		ctx:     ctx,
		session: s,
		cfg:     cfg.withDefaults(),
		keys:    defaultKeyMap(),
		help:    help.New(),
	}
}

// Canvas returns a session canvas factory for a terminal. Session sizes
// are in display units; a terminal row is render.RowUnits tall.
func Canvas(w, h int) render.Canvas {
	return render.NewTextCanvas(w, h/render.RowUnits)
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.cursorX = min(m.cursorX, m.canvasCols()-1)
		m.cursorY = min(m.cursorY, m.canvasRows()-1)
		m.apply(m.call(func(ctx context.Context) (session.View, error) {
			return m.session.Resize(ctx, m.canvasCols(), m.canvasRows()*render.RowUnits)
		}))
		return m, nil

	case refreshMsg:
		m.redraw()
		return m, m.tick()

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		return *m, tea.Quit
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, k.Up):
		m.moveCursor(0, -1)
	case key.Matches(msg, k.Down):
		m.moveCursor(0, 1)
	case key.Matches(msg, k.Left):
		m.moveCursor(-1, 0)
	case key.Matches(msg, k.Right):
		m.moveCursor(1, 0)
	case key.Matches(msg, k.PanUp):
		m.pan(0, panRows*render.RowUnits)
	case key.Matches(msg, k.PanDown):
		m.pan(0, -panRows*render.RowUnits)
	case key.Matches(msg, k.PanLeft):
		m.pan(panCols, 0)
	case key.Matches(msg, k.PanRight):
		m.pan(-panCols, 0)
	case key.Matches(msg, k.Click):
		p := m.pointer()
		m.apply(m.call(func(ctx context.Context) (session.View, error) {
			return m.session.Pointer(ctx,
				session.PointerEvent{Type: "down", Pointer: p},
				session.PointerEvent{Type: "up", Pointer: p})
		}))
		m.dragging = false
	case key.Matches(msg, k.Drag):
		m.toggleDrag()
	case key.Matches(msg, k.Deselect):
		m.dragging = false
		m.apply(m.call(func(ctx context.Context) (session.View, error) {
			if _, err := m.session.Pointer(ctx, session.PointerEvent{Type: "up"}); err != nil {
				return session.View{}, err
			}
			return m.session.ClearSelection(ctx)
		}))
	case key.Matches(msg, k.ZoomIn):
		m.zoom(zoomStep)
	case key.Matches(msg, k.ZoomOut):
		m.zoom(1 / zoomStep)
	case key.Matches(msg, k.Reset):
		m.apply(m.call(m.session.Reset))
	case key.Matches(msg, k.CenterSel):
		m.center(session.CenterSelection)
	case key.Matches(msg, k.CenterOwned):
		m.center(session.CenterOwned)
	case key.Matches(msg, k.Fit):
		m.center(session.CenterGrid)
	case key.Matches(msg, k.Paint):
		mode := session.Mode{Paint: !m.view.Mode.Paint, Erase: m.view.Mode.Erase}
		m.setMode(mode)
	case key.Matches(msg, k.Erase):
		mode := session.Mode{Paint: m.view.Mode.Paint, Erase: !m.view.Mode.Erase}
		m.setMode(mode)
	case key.Matches(msg, k.Brush):
		m.brush = (m.brush + 1) % len(m.cfg.Palette)
		c := m.cfg.Palette[m.brush]
		m.setMode(session.Mode{Paint: m.view.Mode.Paint, Erase: m.view.Mode.Erase, Brush: &c})
	case key.Matches(msg, k.Claim):
		m.claim()
	case key.Matches(msg, k.Release):
		m.release()
	}
	return *m, nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	row := msg.Y - 1
	if row < 0 || row >= m.canvasRows() {
		return
	}
	m.cursorX, m.cursorY = msg.X, row
	p := m.pointer()
	p.SelectModifier = msg.Shift

	var ev []session.PointerEvent
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.zoom(zoomStep)
		return
	case msg.Button == tea.MouseButtonWheelDown:
		m.zoom(1 / zoomStep)
		return
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonRight:
		p.Button = interaction.Secondary
		ev = append(ev, session.PointerEvent{Type: "down", Pointer: p})
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		ev = append(ev, session.PointerEvent{Type: "down", Pointer: p})
	case msg.Action == tea.MouseActionRelease:
		ev = append(ev, session.PointerEvent{Type: "up", Pointer: p})
	case msg.Action == tea.MouseActionMotion:
		ev = append(ev, session.PointerEvent{Type: "move", Pointer: p})
	default:
		return
	}
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.Pointer(ctx, ev...)
	}))
}

// pointer is the screen point at the center of the cursor cell.
func (m Model) pointer() interaction.Pointer {
	return interaction.Pointer{
		X: float64(m.cursorX) + 0.5,
		Y: (float64(m.cursorY) + 0.5) * render.RowUnits,
	}
}

func (m *Model) moveCursor(dx, dy int) {
	m.cursorX = min(max(m.cursorX+dx, 0), m.canvasCols()-1)
	m.cursorY = min(max(m.cursorY+dy, 0), m.canvasRows()-1)
	p := m.pointer()
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.Pointer(ctx, session.PointerEvent{Type: "move", Pointer: p})
	}))
}

// toggleDrag starts a box selection (or a paint stroke in paint mode) at
// the cursor, or ends the one in progress.
func (m *Model) toggleDrag() {
	p := m.pointer()
	ev := session.PointerEvent{Type: "up", Pointer: p}
	if !m.dragging {
		p.SelectModifier = !m.view.Mode.Paint
		ev = session.PointerEvent{Type: "down", Pointer: p}
	}
	m.dragging = !m.dragging
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.Pointer(ctx, ev)
	}))
}

func (m *Model) pan(dx, dy float64) {
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.Pan(ctx, dx, dy)
	}))
}

func (m *Model) zoom(factor float64) {
	p := m.pointer()
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.ZoomAt(ctx, p.X, p.Y, factor)
	}))
}

func (m *Model) center(target session.CenterTarget) {
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.Center(ctx, target)
	}))
}

func (m *Model) setMode(mode session.Mode) {
	m.dragging = false
	m.apply(m.call(func(ctx context.Context) (session.View, error) {
		return m.session.SetMode(ctx, mode)
	}))
}

func (m *Model) claim() {
	txID, err := id.NewTxID()
	if err != nil {
		m.err = err
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.OpTimeout)
	defer cancel()
	tx, err := m.session.ClaimSelection(ctx, session.ClaimInput{
		TxID:        txID,
		ContactInfo: m.cfg.ContactInfo,
		URL:         m.cfg.URL,
		Username:    m.cfg.Username,
	})
	var taken *ledger.TakenError
	switch {
	case errors.As(err, &taken):
		m.err = fmt.Errorf("%d squares were taken, selection updated", len(taken.Coords))
	case err != nil:
		m.err = err
	default:
		m.err = nil
		m.status = "claimed " + tx
	}
	m.redraw()
}

func (m *Model) release() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.OpTimeout)
	defer cancel()
	n, err := m.session.ClearOwnership(ctx, nil, ledger.ClearAll)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.status = fmt.Sprintf("released %d squares", n)
	m.redraw()
}

func (m Model) call(fn func(ctx context.Context) (session.View, error)) (session.View, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.OpTimeout)
	defer cancel()
	return fn(ctx)
}

func (m *Model) apply(v session.View, err error) {
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.view = v
	m.redraw()
}

// redraw pulls the latest frame and view from the session.
func (m *Model) redraw() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.OpTimeout)
	defer cancel()
	var frame string
	err := m.session.WithCanvas(ctx, func(cv render.Canvas) {
		if tc, ok := cv.(*render.TextCanvas); ok {
			frame = tc.Render()
		}
	})
	if err != nil {
		m.err = err
		return
	}
	m.frame = frame
	if v, err := m.session.View(ctx); err == nil {
		m.view = v
	}
}

func (m Model) canvasCols() int { return max(m.width, 1) }
func (m Model) canvasRows() int { return max(m.height-chromeRows, 1) }

func (m Model) header() string {
	mode := "select"
	switch {
	case m.view.Mode.Paint && m.view.Mode.Erase:
		mode = "erase"
	case m.view.Mode.Paint:
		mode = "paint"
	}
	if m.dragging {
		mode += " (drag)"
	}
	brush := "  "
	if b := m.view.Mode.Brush; b != nil {
		brush = lipgloss.NewStyle().Background(lipgloss.Color(b.Hex())).Render("  ")
	}
	line := fmt.Sprintf("%s %s %s %s",
		titleStyle.Render("pixelwall"),
		statusStyle.Render(render.OverlayText(m.view.Camera.Scale, len(m.view.Selection), m.view.Owned)),
		statusStyle.Render("| "+mode),
		brush)
	switch {
	case m.err != nil:
		line += " " + errorStyle.Render(m.err.Error())
	case m.status != "":
		line += " " + statusStyle.Render(m.status)
	}
	return line
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.frame == "" {
		return "Loading...\n"
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.frame)
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
