package trigger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPluginNotFound is returned when no plugin has the requested ID.
var ErrPluginNotFound = errors.New("plugin not found")

// ErrInvalidPlugin is returned by Register for a plugin that cannot receive
// notifications.
var ErrInvalidPlugin = errors.New("invalid plugin")

// PluginStatus represents the activation state of a plugin.
type PluginStatus string

const (
	PluginStatusActive   PluginStatus = "active"
	PluginStatusInactive PluginStatus = "inactive"
)

// Plugin is an external JSON-RPC service that receives grid change
// notifications for the event kinds it subscribes to.
type Plugin struct {
	ID              uuid.UUID    `json:"id"`
	Name            string       `json:"name"`
	Endpoint        string       `json:"endpoint"`
	SubscribedKinds []Kind       `json:"subscribed_kinds"`
	Status          PluginStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Subscribed reports whether p is active and wants events of kind k.
func (p *Plugin) Subscribed(k Kind) bool {
	return p.Status == PluginStatusActive && slices.Contains(p.SubscribedKinds, k)
}

// PluginError names the field that makes a plugin invalid. It unwraps to
// ErrInvalidPlugin.
type PluginError struct {
	Field  string
	Value  any
	Reason string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidPlugin, e.Field, e.Reason)
}

func (e *PluginError) Unwrap() error { return ErrInvalidPlugin }

func (p *Plugin) validate() error {
	if p.Name == "" {
		return &PluginError{Field: "name", Reason: "is required"}
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &PluginError{Field: "endpoint", Value: p.Endpoint, Reason: "is not an http(s) URL"}
	}
	if len(p.SubscribedKinds) == 0 {
		return &PluginError{Field: "subscribed_kinds", Reason: "needs at least one event kind"}
	}
	for i, k := range p.SubscribedKinds {
		if !slices.Contains(AllKinds, k) {
			return &PluginError{Field: fmt.Sprintf("subscribed_kinds[%d]", i), Value: k, Reason: "is not a known event kind"}
		}
	}
	return validStatus(p.Status)
}

func validStatus(s PluginStatus) error {
	switch s {
	case "", PluginStatusActive, PluginStatusInactive:
		return nil
	}
	return &PluginError{Field: "status", Value: s, Reason: "must be active or inactive"}
}

// PluginRegistry is a thread-safe store of registered plugins, optionally
// backed by a PluginStore so registrations survive restarts.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[uuid.UUID]*Plugin
	store   PluginStore
}

// NewPluginRegistry creates an empty registry. store may be nil.
func NewPluginRegistry(store PluginStore) *PluginRegistry {
	return &PluginRegistry{plugins: make(map[uuid.UUID]*Plugin), store: store}
}

// Register validates p, assigns an ID and creation timestamp, persists it
// when a store is configured and adds it to the registry.
func (r *PluginRegistry) Register(ctx context.Context, p *Plugin) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = PluginStatusActive
	}

	if r.store != nil {
		if err := r.store.SavePlugin(ctx, p); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.plugins[p.ID] = p
	r.mu.Unlock()
	return nil
}

// LoadAll replaces the in-memory set with the store's contents. It is a
// no-op without a store.
func (r *PluginRegistry) LoadAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	plugins, err := r.store.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[uuid.UUID]*Plugin, len(plugins))
	for _, p := range plugins {
		r.plugins[p.ID] = p
	}
	return nil
}

// Get returns a plugin by ID.
func (r *PluginRegistry) Get(id uuid.UUID) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return p, nil
}

// List returns all registered plugins, oldest first.
func (r *PluginRegistry) List() []*Plugin {
	r.mu.RLock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Plugin) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Delete removes a plugin by ID from the store and the registry.
func (r *PluginRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.RLock()
	_, ok := r.plugins[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	if r.store != nil {
		if err := r.store.DeletePlugin(ctx, id); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.plugins, id)
	r.mu.Unlock()
	return nil
}

// SetStatus pauses or resumes deliveries to a plugin. The stored plugin is
// replaced, not mutated, so readers holding the old value stay consistent.
func (r *PluginRegistry) SetStatus(ctx context.Context, id uuid.UUID, status PluginStatus) (*Plugin, error) {
	if status == "" {
		return nil, &PluginError{Field: "status", Reason: "is required"}
	}
	if err := validStatus(status); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	if cur.Status == status {
		return cur, nil
	}
	next := *cur
	next.SubscribedKinds = slices.Clone(cur.SubscribedKinds)
	next.Status = status
	if r.store != nil {
		if err := r.store.SavePlugin(ctx, &next); err != nil {
			return nil, err
		}
	}
	r.plugins[id] = &next
	return &next, nil
}

// ForKind returns all active plugins subscribed to k.
func (r *PluginRegistry) ForKind(k Kind) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, p := range r.plugins {
		if p.Subscribed(k) {
			out = append(out, p)
		}
	}
	return out
}

// Kinds returns the event kinds at least one active plugin subscribes to,
// in AllKinds order.
func (r *PluginRegistry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Kind
	for _, k := range AllKinds {
		for _, p := range r.plugins {
			if p.Subscribed(k) {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
