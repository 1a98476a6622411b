package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

// DefaultStreamBuffer is how many events a slow stream may lag before it
// is collapsed into a single grid.refresh.
const DefaultStreamBuffer = 256

type StreamEventsInput struct {
	Kinds string `query:"kinds" doc:"Comma-separated event kinds to receive; grid.refresh is always sent" example:"cells.changed,cells.removed"`
}

// EventHandler streams bus events to HTTP clients as server-sent events.
type EventHandler struct {
	bus    *trigger.Bus
	buffer int
	logger *slog.Logger
}

func NewEventHandler(bus *trigger.Bus, buffer int, logger *slog.Logger) *EventHandler {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &EventHandler{bus: bus, buffer: buffer, logger: logger}
}

func registerEventRoutes(api huma.API, h *EventHandler) {
	sse.Register(api, huma.Operation{
		OperationID: "stream-events",
		Method:      http.MethodGet,
		Path:        "/v1/events",
		Summary:     "Stream grid change events",
		Tags:        []string{"events"},
	}, map[string]any{
		string(trigger.KindCellChanged):      trigger.CellChanged{},
		string(trigger.KindCellsChanged):     trigger.CellsChanged{},
		string(trigger.KindCellRemoved):      trigger.CellRemoved{},
		string(trigger.KindCellsRemoved):     trigger.CellsRemoved{},
		string(trigger.KindFullRefresh):      trigger.FullRefresh{},
		string(trigger.KindOwnershipChanged): trigger.OwnershipChanged{},
	}, h.Stream)
}

func (h *EventHandler) Stream(ctx context.Context, input *StreamEventsInput, send sse.Sender) {
	want := parseKinds(input.Kinds)
	events := make(chan trigger.Event, h.buffer)
	var overflow atomic.Bool

	unsubscribe := h.bus.Subscribe(func(e trigger.Event) {
		if trigger.NeedsFullRefresh(e) {
			e = trigger.FullRefresh{}
		} else if want != nil && !want[e.Kind()] {
			return
		}
		select {
		case events <- e:
		default:
			overflow.Store(true)
		}
	})
	defer unsubscribe()
	h.logger.Debug("event stream opened", "kinds", input.Kinds)

	id := 0
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event stream closed")
			return
		case e := <-events:
			if overflow.Swap(false) {
				for len(events) > 0 {
					<-events
				}
				e = trigger.FullRefresh{}
			}
			id++
			if err := send(sse.Message{ID: id, Data: e}); err != nil {
				h.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

// parseKinds returns nil when every kind is wanted.
func parseKinds(s string) map[trigger.Kind]bool {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[trigger.Kind]bool)
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out[trigger.Kind(k)] = true
		}
	}
	return out
}
