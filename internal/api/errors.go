package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/session"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// toHTTPError maps domain errors to huma status errors. Unrecognized
// errors are logged and reported as 500.
func toHTTPError(logger *slog.Logger, op string, err error) error {
	var (
		taken     *ledger.TakenError
		pluginErr *trigger.PluginError
	)
	switch {
	case errors.As(err, &taken):
		details := make([]error, len(taken.Coords))
		for i, c := range taken.Coords {
			details[i] = &huma.ErrorDetail{Message: "already taken", Location: "body.cells", Value: c}
		}
		return huma.Error409Conflict(ledger.ErrAlreadyTaken.Error(), details...)
	case errors.Is(err, ledger.ErrAlreadyTaken):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, ledger.ErrInvalidClaim):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, ledger.ErrUnknownTransaction),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, trigger.ErrPluginNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &pluginErr):
		return huma.Error422UnprocessableEntity(trigger.ErrInvalidPlugin.Error(), &huma.ErrorDetail{
			Message:  pluginErr.Reason,
			Location: "body." + pluginErr.Field,
			Value:    pluginErr.Value,
		})
	case errors.Is(err, trigger.ErrInvalidPlugin):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, session.ErrTooManySessions):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request cancelled")
	}
	logger.Error(op+" failed", "error", err)
	return huma.Error500InternalServerError(op + " failed")
}
