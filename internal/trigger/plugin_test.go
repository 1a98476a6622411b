package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockPluginStore is an in-memory PluginStore for testing.
type mockPluginStore struct {
	mu      sync.Mutex
	plugins map[uuid.UUID]*Plugin
	saveErr error
}

func newMockPluginStore() *mockPluginStore {
	return &mockPluginStore{plugins: make(map[uuid.UUID]*Plugin)}
}

func (m *mockPluginStore) SavePlugin(_ context.Context, p *Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.plugins[p.ID] = p
	return nil
}

func (m *mockPluginStore) DeletePlugin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	delete(m.plugins, id)
	return nil
}

func (m *mockPluginStore) ListPlugins(_ context.Context) ([]*Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	return out, nil
}

func newPlugin(name string, kinds ...Kind) *Plugin {
	return &Plugin{Name: name, Endpoint: "http://localhost:9000/rpc", SubscribedKinds: kinds}
}

func mustRegister(t *testing.T, r *PluginRegistry, p *Plugin) {
	t.Helper()
	if err := r.Register(context.Background(), p); err != nil {
		t.Fatalf("Register %s: %v", p.Name, err)
	}
}

func TestPluginRegistry_RegisterAndGet(t *testing.T) {
	r := NewPluginRegistry(nil)
	p := newPlugin("test-plugin", KindCellsChanged, KindCellsRemoved)
	mustRegister(t, r, p)

	if p.ID == uuid.Nil {
		t.Fatal("expected ID to be assigned")
	}
	if p.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
	if p.Status != PluginStatusActive {
		t.Errorf("status: got %q, want %q", p.Status, PluginStatusActive)
	}

	got, err := r.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "test-plugin" {
		t.Errorf("Name: got %q", got.Name)
	}
}

func TestPluginRegistry_RegisterRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		p    *Plugin
	}{
		{"no name", &Plugin{Endpoint: "http://x/rpc", SubscribedKinds: []Kind{KindCellChanged}}},
		{"relative endpoint", &Plugin{Name: "a", Endpoint: "/rpc", SubscribedKinds: []Kind{KindCellChanged}}},
		{"ftp endpoint", &Plugin{Name: "a", Endpoint: "ftp://x/rpc", SubscribedKinds: []Kind{KindCellChanged}}},
		{"no kinds", &Plugin{Name: "a", Endpoint: "http://x/rpc"}},
		{"unknown kind", &Plugin{Name: "a", Endpoint: "http://x/rpc", SubscribedKinds: []Kind{"cell.written"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPluginRegistry(nil)
			err := r.Register(context.Background(), tt.p)
			if !errors.Is(err, ErrInvalidPlugin) {
				t.Errorf("got %v, want ErrInvalidPlugin", err)
			}
			if len(r.List()) != 0 {
				t.Error("invalid plugin was registered")
			}
		})
	}
}

func TestPluginRegistry_GetNotFound(t *testing.T) {
	r := NewPluginRegistry(nil)
	if _, err := r.Get(uuid.New()); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("got %v, want ErrPluginNotFound", err)
	}
}

func TestPluginRegistry_ListOldestFirst(t *testing.T) {
	r := NewPluginRegistry(nil)
	for _, name := range []string{"a", "b", "c"} {
		mustRegister(t, r, newPlugin(name, KindCellChanged))
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List: got %d, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) {
			t.Errorf("List not sorted by CreatedAt at %d", i)
		}
	}
}

func TestPluginRegistry_Delete(t *testing.T) {
	r := NewPluginRegistry(nil)
	p := newPlugin("to-delete", KindCellChanged)
	mustRegister(t, r, p)

	if err := r.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(p.ID); err == nil {
		t.Error("plugin still present after delete")
	}
	if err := r.Delete(context.Background(), p.ID); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func TestPluginRegistry_ForKind(t *testing.T) {
	r := NewPluginRegistry(nil)
	mustRegister(t, r, newPlugin("cells", KindCellChanged, KindCellsChanged))
	mustRegister(t, r, newPlugin("removals", KindCellsRemoved))
	off := newPlugin("inactive", KindCellChanged)
	off.Status = PluginStatusInactive
	mustRegister(t, r, off)

	if got := r.ForKind(KindCellChanged); len(got) != 1 || got[0].Name != "cells" {
		t.Errorf("ForKind(cell.changed): got %v", got)
	}
	if got := r.ForKind(KindFullRefresh); len(got) != 0 {
		t.Errorf("ForKind(grid.refresh): got %d plugins", len(got))
	}

	kinds := r.Kinds()
	want := []Kind{KindCellChanged, KindCellsChanged, KindCellsRemoved}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("Kinds: got %v, want %v", kinds, want)
	}
}

func TestPluginRegistry_WithStore_RegisterPersists(t *testing.T) {
	store := newMockPluginStore()
	r := NewPluginRegistry(store)
	mustRegister(t, r, newPlugin("persisted-plugin", KindCellsChanged))

	stored, err := store.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "persisted-plugin" {
		t.Errorf("stored: got %v", stored)
	}
}

func TestPluginRegistry_WithStore_SaveFailureKeepsRegistryClean(t *testing.T) {
	store := newMockPluginStore()
	store.saveErr = errors.New("db down")
	r := NewPluginRegistry(store)

	if err := r.Register(context.Background(), newPlugin("p", KindCellChanged)); err == nil {
		t.Fatal("expected save error")
	}
	if len(r.List()) != 0 {
		t.Error("plugin registered despite store failure")
	}
}

func TestPluginRegistry_WithStore_DeleteRemovesFromStore(t *testing.T) {
	store := newMockPluginStore()
	r := NewPluginRegistry(store)
	p := newPlugin("to-delete", KindCellChanged)
	mustRegister(t, r, p)

	if err := r.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	stored, _ := store.ListPlugins(context.Background())
	if len(stored) != 0 {
		t.Errorf("expected 0 stored plugins after delete, got %d", len(stored))
	}
}

func TestPluginRegistry_LoadAll(t *testing.T) {
	store := newMockPluginStore()
	existing := &Plugin{
		ID:              uuid.New(),
		Name:            "pre-existing",
		Endpoint:        "http://localhost:9000/rpc",
		SubscribedKinds: []Kind{KindFullRefresh},
		Status:          PluginStatusActive,
		CreatedAt:       time.Now(),
	}
	if err := store.SavePlugin(context.Background(), existing); err != nil {
		t.Fatalf("SavePlugin: %v", err)
	}

	r := NewPluginRegistry(store)
	if err := r.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, err := r.Get(existing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "pre-existing" {
		t.Errorf("Name: got %q", got.Name)
	}
	if len(r.ForKind(KindFullRefresh)) != 1 {
		t.Error("loaded plugin not subscribed")
	}
}

func TestPluginRegistry_LoadAll_NoStore(t *testing.T) {
	r := NewPluginRegistry(nil)
	if err := r.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll without store should not error: %v", err)
	}
}

func TestPluginRegistry_RegisterNamesBadField(t *testing.T) {
	r := NewPluginRegistry(nil)
	err := r.Register(context.Background(), &Plugin{Name: "a", Endpoint: "http://x/rpc", SubscribedKinds: []Kind{KindCellChanged, "cell.written"}})

	var pe *PluginError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PluginError", err)
	}
	if pe.Field != "subscribed_kinds[1]" || pe.Value != Kind("cell.written") {
		t.Errorf("error: got %+v", pe)
	}
}

func TestPluginRegistry_SetStatus(t *testing.T) {
	store := newMockPluginStore()
	r := NewPluginRegistry(store)
	p := newPlugin("audit", KindCellsChanged)
	mustRegister(t, r, p)

	got, err := r.SetStatus(context.Background(), p.ID, PluginStatusInactive)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got.Status != PluginStatusInactive || p.Status != PluginStatusActive {
		t.Errorf("status: got %s, original %s", got.Status, p.Status)
	}
	if len(r.ForKind(KindCellsChanged)) != 0 {
		t.Error("inactive plugin still receives events")
	}
	if store.plugins[p.ID].Status != PluginStatusInactive {
		t.Error("status change not persisted")
	}

	if _, err := r.SetStatus(context.Background(), p.ID, "asleep"); !errors.Is(err, ErrInvalidPlugin) {
		t.Errorf("bad status: got %v", err)
	}
	if _, err := r.SetStatus(context.Background(), uuid.New(), PluginStatusActive); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("unknown plugin: got %v", err)
	}
}
