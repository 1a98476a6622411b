package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

type PluginBody struct {
	Name            string         `json:"name" minLength:"1" doc:"Plugin name"`
	Endpoint        string         `json:"endpoint" doc:"JSON-RPC endpoint receiving grid.changed notifications"`
	SubscribedKinds []trigger.Kind `json:"subscribed_kinds" minItems:"1" doc:"Event kinds to receive" example:"[\"cells.changed\"]"`
	Status          string         `json:"status,omitempty" enum:"active,inactive" doc:"Defaults to active"`
}

type PluginResponse struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Endpoint        string         `json:"endpoint"`
	SubscribedKinds []trigger.Kind `json:"subscribed_kinds"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}

type PluginOutput struct {
	Body PluginResponse
}

type PluginPath struct {
	PluginID string `path:"plugin_id" format:"uuid" doc:"Plugin UUID"`
}

type RegisterPluginInput struct {
	Body PluginBody
}

type ListPluginsInput struct {
	Kind string `query:"kind" doc:"Only plugins subscribed to this event kind"`
}

type ListPluginsOutput struct {
	Body []PluginResponse
}

type SetPluginStatusInput struct {
	PluginPath
	Body struct {
		Status string `json:"status" enum:"active,inactive" doc:"inactive pauses deliveries"`
	}
}

type PluginHandler struct {
	registry *trigger.PluginRegistry
	logger   *slog.Logger
}

func NewPluginHandler(registry *trigger.PluginRegistry, logger *slog.Logger) *PluginHandler {
	return &PluginHandler{registry: registry, logger: logger}
}

func registerPluginRoutes(api huma.API, h *PluginHandler) {
	op := func(id, method, path, summary string) huma.Operation {
		return huma.Operation{OperationID: id, Method: method, Path: path, Summary: summary, Tags: []string{"plugins"}}
	}

	register := op("register-plugin", http.MethodPost, "/v1/plugins", "Register a grid.changed receiver")
	register.DefaultStatus = http.StatusCreated
	huma.Register(api, register, h.Register)
	huma.Register(api, op("list-plugins", http.MethodGet, "/v1/plugins", "List plugins, oldest first"), h.List)
	huma.Register(api, op("get-plugin", http.MethodGet, "/v1/plugins/{plugin_id}", "Get a plugin"), h.Get)
	huma.Register(api, op("set-plugin-status", http.MethodPatch, "/v1/plugins/{plugin_id}", "Pause or resume a plugin"), h.SetStatus)
	remove := op("delete-plugin", http.MethodDelete, "/v1/plugins/{plugin_id}", "Unregister a plugin")
	remove.DefaultStatus = http.StatusNoContent
	huma.Register(api, remove, h.Delete)
}

func (p PluginPath) id() (uuid.UUID, error) {
	id, err := uuid.Parse(p.PluginID)
	if err != nil {
		return uuid.Nil, huma.Error422UnprocessableEntity("invalid plugin id", &huma.ErrorDetail{
			Message: err.Error(), Location: "path.plugin_id", Value: p.PluginID,
		})
	}
	return id, nil
}

func (h *PluginHandler) Register(ctx context.Context, input *RegisterPluginInput) (*PluginOutput, error) {
	p := &trigger.Plugin{
		Name:            input.Body.Name,
		Endpoint:        input.Body.Endpoint,
		SubscribedKinds: input.Body.SubscribedKinds,
		Status:          trigger.PluginStatus(input.Body.Status),
	}
	if err := h.registry.Register(ctx, p); err != nil {
		return nil, toHTTPError(h.logger, "register plugin", err)
	}
	h.logger.Info("plugin registered", "id", p.ID, "name", p.Name, "kinds", p.SubscribedKinds)
	return &PluginOutput{Body: pluginResponse(p)}, nil
}

func (h *PluginHandler) List(ctx context.Context, input *ListPluginsInput) (*ListPluginsOutput, error) {
	kind := trigger.Kind(input.Kind)
	if kind != "" && !slices.Contains(trigger.AllKinds, kind) {
		return nil, huma.Error422UnprocessableEntity("unknown event kind", &huma.ErrorDetail{
			Message: "is not a known event kind", Location: "query.kind", Value: input.Kind,
		})
	}
	out := []PluginResponse{}
	for _, p := range h.registry.List() {
		if kind == "" || slices.Contains(p.SubscribedKinds, kind) {
			out = append(out, pluginResponse(p))
		}
	}
	return &ListPluginsOutput{Body: out}, nil
}

func (h *PluginHandler) Get(ctx context.Context, input *PluginPath) (*PluginOutput, error) {
	id, err := input.id()
	if err != nil {
		return nil, err
	}
	p, err := h.registry.Get(id)
	if err != nil {
		return nil, toHTTPError(h.logger, "get plugin", err)
	}
	return &PluginOutput{Body: pluginResponse(p)}, nil
}

func (h *PluginHandler) SetStatus(ctx context.Context, input *SetPluginStatusInput) (*PluginOutput, error) {
	id, err := input.id()
	if err != nil {
		return nil, err
	}
	p, err := h.registry.SetStatus(ctx, id, trigger.PluginStatus(input.Body.Status))
	if err != nil {
		return nil, toHTTPError(h.logger, "set plugin status", err)
	}
	h.logger.Info("plugin status changed", "id", id, "status", p.Status)
	return &PluginOutput{Body: pluginResponse(p)}, nil
}

func (h *PluginHandler) Delete(ctx context.Context, input *PluginPath) (*struct{}, error) {
	id, err := input.id()
	if err != nil {
		return nil, err
	}
	if err := h.registry.Delete(ctx, id); err != nil {
		return nil, toHTTPError(h.logger, "delete plugin", err)
	}
	h.logger.Info("plugin deleted", "id", id)
	return nil, nil
}

func pluginResponse(p *trigger.Plugin) PluginResponse {
	return PluginResponse{
		ID:              p.ID,
		Name:            p.Name,
		Endpoint:        p.Endpoint,
		SubscribedKinds: p.SubscribedKinds,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
	}
}
