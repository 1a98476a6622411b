// Package session runs one interactive view of the grid: a camera, a
// pointer state machine and a render loop owned by a single goroutine.
//
// Every mutation of a session is funnelled through Do and executed on
// that goroutine, and the frame ticker fires on the same goroutine, so
// session state needs no locking. Ledger notifications only flip atomic
// flags that the next tick picks up.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/interaction"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/render"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

var (
	ErrClosed          = errors.New("session closed")
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrEmptySelection  = fmt.Errorf("%w: nothing selected", ledger.ErrInvalidInput)
	ErrNoImage         = errors.New("session canvas is not an image")
)

const (
	DefaultWidth         = 800
	DefaultHeight        = 600
	DefaultFrameInterval = 16 * time.Millisecond
)

// Ledger is what a session needs from the grid ledger.
type Ledger interface {
	interaction.Ledger
	render.Source
	Claim(req ledger.ClaimRequest) (string, error)
	OwnedCoords(scope ledger.Scope) []grid.Coord
	ClearOwnership(scope ledger.Scope, coords []grid.Coord, mode ledger.ClearMode) int
	Record(txID string) (grid.Ownership, bool)
}

// Subscriber is the notification bus.
type Subscriber interface {
	Subscribe(fn trigger.HandlerFunc) (unsubscribe func())
}

// CanvasFactory makes a canvas for a w x h display-unit viewport.
type CanvasFactory func(w, h int) render.Canvas

// Options configures sessions. Zero values fall back to defaults.
type Options struct {
	Ledger        Ledger
	Bus           Subscriber
	Camera        viewport.Config
	Theme         *render.Theme
	FrameInterval time.Duration
	NewCanvas     CanvasFactory
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	if o.NewCanvas == nil {
		o.NewCanvas = func(w, h int) render.Canvas { return render.NewImageCanvas(w, h) }
	}
	if o.Theme == nil {
		o.Theme = &render.DefaultTheme
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Session is one interactive view.
type Session struct {
	id      string
	created time.Time
	opts    Options
	logger  *slog.Logger

	ledger   Ledger
	camera   *viewport.Camera
	machine  *interaction.Machine
	renderer *render.Renderer
	loop     *render.Loop
	canvas   render.Canvas
	width    int
	height   int
	stats    render.Stats

	inbox       chan func()
	stale       atomic.Bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	group       *errgroup.Group
	closeOnce   sync.Once
}

// New starts a session with a w x h viewport. The session runs until
// Close is called or parent is cancelled.
func New(parent context.Context, id string, w, h int, opts Options) *Session {
	opts = opts.withDefaults()
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}

	s := &Session{
		id:      id,
		created: time.Now(),
		opts:    opts,
		logger:  opts.Logger.With("session_id", id),
		ledger:  opts.Ledger,
		camera:  viewport.New(opts.Camera),
		inbox:   make(chan func()),
		width:   w,
		height:  h,
	}
	s.canvas = opts.NewCanvas(w, h)
	s.renderer = render.NewRenderer(opts.Ledger, *opts.Theme)
	s.loop = render.NewLoop(s.draw)
	s.machine = interaction.NewMachine(opts.Ledger, s.camera, grid.NewTxSet(), s.loop.RequestRedraw)
	if opts.Bus != nil {
		s.unsubscribe = opts.Bus.Subscribe(s.onEvent)
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.group, s.ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error { return s.run(s.ctx) })
	s.logger.Debug("session started", "width", w, "height", h)
	return s
}

// ID is the session identifier.
func (s *Session) ID() string { return s.id }

// Created is when the session started.
func (s *Session) Created() time.Time { return s.created }

func (s *Session) run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.inbox:
			fn()
		case <-ticker.C:
			s.tick()
		}
	}
}

// onEvent runs on the publisher's goroutine.
func (s *Session) onEvent(e trigger.Event) {
	switch e.(type) {
	case trigger.CellRemoved, trigger.CellsRemoved, trigger.OwnershipChanged:
	default:
		// Cells may have been taken under the selection.
		s.stale.Store(true)
	}
	s.loop.RequestRedraw()
}

func (s *Session) tick() {
	if s.stale.Swap(false) {
		s.machine.Revalidate()
	}
	s.loop.Tick()
}

func (s *Session) draw() {
	hover, hovering := s.machine.Hover()
	s.stats = s.renderer.Draw(s.canvas, render.Frame{
		Camera:    s.camera,
		Scope:     s.machine.Scope(),
		Selection: s.machine.Selection(),
		Hover:     hover,
		Hovering:  hovering,
		Owned:     len(s.ledger.OwnedCoords(s.machine.Scope())),
		Overlay:   true,
	})
}

// Do runs fn on the session goroutine and waits for it.
func (s *Session) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case s.inbox <- task:
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session goroutine, drops the bus subscription and
// waits for shutdown. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cancel()
		err = s.group.Wait()
		s.logger.Debug("session closed")
	})
	return err
}

// Done is closed once the session stops.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Mode is the paint tool state of a session.
type Mode struct {
	Paint bool        `json:"paint"`
	Erase bool        `json:"erase"`
	Brush *grid.Color `json:"brush,omitempty"`
}

// View is a point-in-time description of a session.
type View struct {
	ID        string         `json:"id"`
	State     string         `json:"state"`
	Mode      Mode           `json:"mode"`
	Camera    viewport.State `json:"camera"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Selection []grid.Coord   `json:"selection"`
	Hover     *grid.Coord    `json:"hover,omitempty"`
	Scope     []string       `json:"scope"`
	Owned     int            `json:"owned"`
	Frames    uint64         `json:"frames"`
	Dirty     bool           `json:"dirty"`
	Stats     render.Stats   `json:"stats"`
}

func (s *Session) view() View {
	brush := s.machine.Brush()
	v := View{
		ID:    s.id,
		State: s.machine.State().String(),
		Mode: Mode{
			Paint: s.machine.PaintMode(),
			Erase: s.machine.Erase(),
			Brush: &brush,
		},
		Camera:    s.camera.State(),
		Width:     s.width,
		Height:    s.height,
		Selection: s.machine.Selection().Coords(),
		Scope:     s.machine.Scope().IDs(),
		Owned:     len(s.ledger.OwnedCoords(s.machine.Scope())),
		Frames:    s.loop.Frames(),
		Dirty:     s.loop.Dirty(),
		Stats:     s.stats,
	}
	if c, ok := s.machine.Hover(); ok {
		v.Hover = &c
	}
	return v
}

// View describes the session.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.Do(ctx, func() { v = s.view() })
	return v, err
}

// PointerEvent is one pointer input. Type is down, move, up or leave.
type PointerEvent struct {
	Type string `json:"type" enum:"down,move,up,leave"`
	interaction.Pointer
}

// Pointer feeds pointer events to the state machine in order.
func (s *Session) Pointer(ctx context.Context, events ...PointerEvent) (View, error) {
	var v View
	var bad error
	err := s.Do(ctx, func() {
		for _, e := range events {
			switch e.Type {
			case "down":
				s.machine.PointerDown(e.Pointer)
			case "move":
				s.machine.PointerMove(e.Pointer)
			case "up":
				s.machine.PointerUp()
			case "leave":
				s.machine.PointerLeave()
			default:
				bad = fmt.Errorf("%w: unknown pointer event %q", ledger.ErrInvalidInput, e.Type)
				return
			}
		}
		v = s.view()
	})
	if err != nil {
		return View{}, err
	}
	return v, bad
}

// ZoomAt zooms around a screen point.
func (s *Session) ZoomAt(ctx context.Context, sx, sy, factor float64) (View, error) {
	return s.update(ctx, func() { s.camera.ZoomAt(sx, sy, factor) })
}

// ZoomBy zooms around the viewport center.
func (s *Session) ZoomBy(ctx context.Context, factor float64) (View, error) {
	return s.update(ctx, func() { s.camera.ZoomBy(factor, float64(s.width), float64(s.height)) })
}

// Pan moves the camera by a screen delta.
func (s *Session) Pan(ctx context.Context, dx, dy float64) (View, error) {
	return s.update(ctx, func() { s.camera.Pan(dx, dy) })
}

// Reset puts the camera back at the origin.
func (s *Session) Reset(ctx context.Context) (View, error) {
	return s.update(ctx, s.camera.Reset)
}

// CenterTarget names what Center fits into view.
type CenterTarget string

const (
	CenterSelection CenterTarget = "selection"
	CenterOwned     CenterTarget = "owned"
	CenterGrid      CenterTarget = "grid"
)

// Center fits the selection, the owned cells or the whole grid into view.
// It is a no-op when the target is empty.
func (s *Session) Center(ctx context.Context, target CenterTarget) (View, error) {
	return s.update(ctx, func() {
		var r grid.Rect
		switch target {
		case CenterOwned:
			r = grid.Bounds(s.ledger.OwnedCoords(s.machine.Scope()))
		case CenterGrid:
			n := s.camera.Config().GridSize
			r = grid.Rect{MaxX: n, MaxY: n}
		default:
			r = s.machine.Selection().Bounds()
		}
		s.camera.Center(r, float64(s.width), float64(s.height))
	})
}

// CenterRect fits an explicit grid rectangle into view.
func (s *Session) CenterRect(ctx context.Context, r grid.Rect) (View, error) {
	return s.update(ctx, func() { s.camera.Center(r, float64(s.width), float64(s.height)) })
}

// SetMode switches paint mode, erase and brush.
func (s *Session) SetMode(ctx context.Context, m Mode) (View, error) {
	return s.update(ctx, func() {
		s.machine.SetPaintMode(m.Paint)
		s.machine.SetErase(m.Erase)
		if m.Brush != nil {
			s.machine.SetBrush(*m.Brush)
		}
	})
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection(ctx context.Context) (View, error) {
	return s.update(ctx, s.machine.ClearSelection)
}

// Resize changes the viewport size and replaces the canvas.
func (s *Session) Resize(ctx context.Context, w, h int) (View, error) {
	if w <= 0 || h <= 0 {
		return View{}, fmt.Errorf("%w: size %dx%d", ledger.ErrInvalidInput, w, h)
	}
	return s.update(ctx, func() {
		s.width, s.height = w, h
		s.canvas = s.opts.NewCanvas(w, h)
	})
}

func (s *Session) update(ctx context.Context, fn func()) (View, error) {
	var v View
	err := s.Do(ctx, func() {
		fn()
		s.loop.RequestRedraw()
		v = s.view()
	})
	return v, err
}

// Adopt adds a transaction to the session scope. Holding a transaction
// id is what authorizes edits of its cells.
func (s *Session) Adopt(ctx context.Context, txID string) (View, error) {
	if _, ok := s.ledger.Record(txID); !ok {
		return View{}, fmt.Errorf("%w: %s", ledger.ErrUnknownTransaction, txID)
	}
	return s.update(ctx, func() { s.machine.Scope().Add(txID) })
}

// ClaimInput carries the claim metadata. Color defaults to the brush.
type ClaimInput struct {
	TxID        string
	Color       *grid.Color
	ContactInfo string
	URL         string
	Username    string
}

// ClaimSelection claims the selected cells. The selection is revalidated
// first; on success the transaction joins the session scope and the
// selection is cleared. When cells were taken in the meantime they are
// dropped from the selection and the ledger error is returned.
func (s *Session) ClaimSelection(ctx context.Context, in ClaimInput) (string, error) {
	var tx string
	var claimErr error
	err := s.Do(ctx, func() {
		s.machine.Revalidate()
		coords := s.machine.Selection().Coords()
		if len(coords) == 0 {
			claimErr = ErrEmptySelection
			return
		}
		color := s.machine.Brush()
		if in.Color != nil {
			color = *in.Color
		}
		paints := make([]ledger.Paint, len(coords))
		for i, c := range coords {
			paints[i] = ledger.Paint{Coord: c, Color: color}
		}
		tx, claimErr = s.ledger.Claim(ledger.ClaimRequest{
			TxID:        in.TxID,
			Cells:       paints,
			ContactInfo: in.ContactInfo,
			URL:         in.URL,
			Username:    in.Username,
		})
		var taken *ledger.TakenError
		switch {
		case errors.As(claimErr, &taken):
			for _, c := range taken.Coords {
				s.machine.Selection().Remove(c)
			}
			s.loop.RequestRedraw()
		case claimErr == nil:
			s.machine.Scope().Add(tx)
			s.machine.ClearSelection()
			s.logger.Info("selection claimed", "tx_id", tx, "cells", len(coords))
		}
	})
	if err != nil {
		return "", err
	}
	return tx, claimErr
}

// ClearOwnership releases the session's ownership ("clear my squares").
// With ledger.ClearAll every transaction leaves the scope.
func (s *Session) ClearOwnership(ctx context.Context, coords []grid.Coord, mode ledger.ClearMode) (int, error) {
	var n int
	err := s.Do(ctx, func() {
		scope := s.machine.Scope()
		n = s.ledger.ClearOwnership(scope, coords, mode)
		if mode != ledger.ClearSelected {
			for _, tx := range scope.IDs() {
				scope.Remove(tx)
			}
		}
		s.loop.RequestRedraw()
	})
	return n, err
}

// WithCanvas draws any pending frame and hands the canvas to fn on the
// session goroutine.
func (s *Session) WithCanvas(ctx context.Context, fn func(cv render.Canvas)) error {
	return s.Do(ctx, func() {
		s.loop.Tick()
		fn(s.canvas)
	})
}

// FramePNG renders the current frame as PNG. A positive maxWidth scales
// the frame down to fit.
func (s *Session) FramePNG(ctx context.Context, maxWidth int) ([]byte, error) {
	var buf bytes.Buffer
	var encErr error
	err := s.WithCanvas(ctx, func(cv render.Canvas) {
		img, ok := cv.(*render.ImageCanvas)
		if !ok {
			encErr = ErrNoImage
			return
		}
		if maxWidth > 0 && maxWidth < s.width {
			encErr = render.EncodePNG(&buf, img.Thumbnail(maxWidth, s.height))
			return
		}
		encErr = img.EncodePNG(&buf)
	})
	if err != nil {
		return nil, err
	}
	if encErr != nil {
		return nil, encErr
	}
	return buf.Bytes(), nil
}
