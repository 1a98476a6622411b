package api

import (
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

func registerPlugin(t *testing.T, e *testEnv, name string, kinds ...string) PluginResponse {
	t.Helper()
	resp := e.api.Post("/v1/plugins", map[string]any{
		"name":             name,
		"endpoint":         "http://localhost:9000/rpc",
		"subscribed_kinds": kinds,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[PluginResponse](t, resp.Body.Bytes())
}

func TestRegisterPlugin(t *testing.T) {
	e := newTestEnv(t)

	p := registerPlugin(t, e, "audit", "cells.changed", "cells.removed")

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "audit", p.Name)
	assert.Equal(t, "active", p.Status)
	assert.Equal(t, []trigger.Kind{trigger.KindCellsChanged, trigger.KindCellsRemoved}, p.SubscribedKinds)
	assert.Len(t, e.plugins.ForKind(trigger.KindCellsChanged), 1)
}

func TestRegisterPlugin_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown kind", map[string]any{"name": "a", "endpoint": "http://x/rpc", "subscribed_kinds": []string{"cell.written"}}},
		{"relative endpoint", map[string]any{"name": "a", "endpoint": "/rpc", "subscribed_kinds": []string{"cells.changed"}}},
		{"no kinds", map[string]any{"name": "a", "endpoint": "http://x/rpc", "subscribed_kinds": []string{}}},
		{"missing name", map[string]any{"endpoint": "http://x/rpc", "subscribed_kinds": []string{"cells.changed"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			resp := e.api.Post("/v1/plugins", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
			assert.Empty(t, e.plugins.List())
		})
	}
}

func TestListPlugins(t *testing.T) {
	e := newTestEnv(t)

	resp := e.api.Get("/v1/plugins")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]PluginResponse](t, resp.Body.Bytes()))

	registerPlugin(t, e, "first", "grid.refresh")
	registerPlugin(t, e, "second", "ownership.changed")

	resp = e.api.Get("/v1/plugins")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[[]PluginResponse](t, resp.Body.Bytes())
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{"first", "second"}, []string{list[0].Name, list[1].Name})
}

func TestGetPlugin(t *testing.T) {
	e := newTestEnv(t)
	p := registerPlugin(t, e, "audit", "cell.changed")

	resp := e.api.Get("/v1/plugins/" + p.ID.String())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, p.ID, decode[PluginResponse](t, resp.Body.Bytes()).ID)

	resp = e.api.Get("/v1/plugins/" + uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeletePlugin(t *testing.T) {
	e := newTestEnv(t)
	p := registerPlugin(t, e, "audit", "cell.changed")

	resp := e.api.Delete("/v1/plugins/" + p.ID.String())
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, e.plugins.List())

	resp = e.api.Delete("/v1/plugins/" + p.ID.String())
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPluginRoutes_BadID(t *testing.T) {
	e := newTestEnv(t)

	resp := e.api.Get("/v1/plugins/not-a-uuid")
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnprocessableEntity}, resp.Code)
}

func TestRegisterPlugin_FieldDetails(t *testing.T) {
	e := newTestEnv(t)

	resp := e.api.Post("/v1/plugins", map[string]any{
		"name":             "a",
		"endpoint":         "http://x/rpc",
		"subscribed_kinds": []string{"cells.changed", "cell.written"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	model := decode[huma.ErrorModel](t, resp.Body.Bytes())
	require.Len(t, model.Errors, 1)
	assert.Equal(t, "body.subscribed_kinds[1]", model.Errors[0].Location)
	assert.Equal(t, "cell.written", model.Errors[0].Value)

	resp = e.api.Post("/v1/plugins", map[string]any{
		"name":             "a",
		"endpoint":         "ftp://x/rpc",
		"subscribed_kinds": []string{"cells.changed"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	model = decode[huma.ErrorModel](t, resp.Body.Bytes())
	require.Len(t, model.Errors, 1)
	assert.Equal(t, "body.endpoint", model.Errors[0].Location)
}

func TestSetPluginStatus_PausesDelivery(t *testing.T) {
	e := newTestEnv(t)
	p := registerPlugin(t, e, "audit", "cells.changed")

	resp := e.api.Patch("/v1/plugins/"+p.ID.String(), map[string]any{"status": "inactive"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "inactive", decode[PluginResponse](t, resp.Body.Bytes()).Status)
	assert.Empty(t, e.plugins.ForKind(trigger.KindCellsChanged))

	resp = e.api.Patch("/v1/plugins/"+p.ID.String(), map[string]any{"status": "active"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, e.plugins.ForKind(trigger.KindCellsChanged), 1)

	assert.Equal(t, http.StatusUnprocessableEntity, e.api.Patch("/v1/plugins/"+p.ID.String(), map[string]any{"status": "asleep"}).Code)
	assert.Equal(t, http.StatusNotFound, e.api.Patch("/v1/plugins/"+uuid.NewString(), map[string]any{"status": "inactive"}).Code)
}

func TestListPlugins_FilterByKind(t *testing.T) {
	e := newTestEnv(t)
	registerPlugin(t, e, "paint", "cells.changed")
	registerPlugin(t, e, "sweeps", "cells.removed")

	resp := e.api.Get("/v1/plugins?kind=cells.removed")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[[]PluginResponse](t, resp.Body.Bytes())
	require.Len(t, list, 1)
	assert.Equal(t, "sweeps", list[0].Name)

	assert.Equal(t, http.StatusUnprocessableEntity, e.api.Get("/v1/plugins?kind=cell.written").Code)
}
