// Package render draws the visible part of the grid for one session.
package render

import "sync/atomic"

// Loop coalesces redraw requests: any number of RequestRedraw calls
// between two ticks produce a single draw.
type Loop struct {
	dirty  atomic.Bool
	frames atomic.Uint64
	draw   func()
}

// NewLoop returns a loop that calls draw on the next tick.
func NewLoop(draw func()) *Loop {
	l := &Loop{draw: draw}
	l.dirty.Store(true)
	return l
}

// RequestRedraw marks the frame dirty. It is safe from any goroutine.
func (l *Loop) RequestRedraw() {
	l.dirty.Store(true)
}

// Dirty reports whether a draw is pending.
func (l *Loop) Dirty() bool {
	return l.dirty.Load()
}

// Tick draws once if the frame is dirty and reports whether it did.
// It is driven by the display refresh of the owning session.
func (l *Loop) Tick() bool {
	if !l.dirty.CompareAndSwap(true, false) {
		return false
	}
	l.draw()
	l.frames.Add(1)
	return true
}

// Frames counts completed draws.
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}
