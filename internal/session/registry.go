package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry owns the live sessions of a process. Sessions are created and
// destroyed explicitly; nothing is registered implicitly.
type Registry struct {
	ctx    context.Context
	opts   Options
	limit  int
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions live until ctx is
// cancelled or they are destroyed. limit <= 0 means no cap.
func NewRegistry(ctx context.Context, opts Options, limit int) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		ctx:      ctx,
		opts:     opts,
		limit:    limit,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a w x h viewport.
func (r *Registry) Create(w, h int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && len(r.sessions) >= r.limit {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, r.limit)
	}
	id := uuid.NewString()
	s := New(r.ctx, id, w, h, r.opts)
	r.sessions[id] = s
	r.logger.Info("session created", "session_id", id, "live", len(r.sessions))
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Destroy closes and forgets a session.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	live := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("closing session %s: %w", id, err)
	}
	r.logger.Info("session destroyed", "session_id", id, "live", live)
	return nil
}

// IDs lists the live session ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Limit is the session cap; 0 means none.
func (r *Registry) Limit() int { return max(r.limit, 0) }

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll destroys every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Error("closing session", "session_id", id, "error", err)
		}
	}
	if len(sessions) > 0 {
		r.logger.Info("sessions closed", "count", len(sessions))
	}
}
