package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/id"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/metrics"
	"github.com/ryanbastic/go-pixelwall/internal/ratelimit"
	"github.com/ryanbastic/go-pixelwall/internal/session"
)

// --- Huma Input/Output types ---

type SessionPath struct {
	SessionID string `path:"session_id" doc:"Session id"`
}

type CreateSessionInput struct {
	Body struct {
		Width  int `json:"width,omitempty" minimum:"0" maximum:"8192" doc:"Viewport width in display units"`
		Height int `json:"height,omitempty" minimum:"0" maximum:"8192" doc:"Viewport height in display units"`
	}
}

type SessionOutput struct {
	Body session.View
}

// SessionCount is all the session listing reveals: a session id is the
// only key to its scope.
type SessionCount struct {
	Live  int `json:"live"`
	Limit int `json:"limit" doc:"0 when unlimited"`
}

type ListSessionsOutput struct {
	Body SessionCount
}

type PointerInput struct {
	SessionPath
	Body struct {
		Events []session.PointerEvent `json:"events" minItems:"1"`
	}
}

type ZoomInput struct {
	SessionPath
	Body struct {
		Factor float64  `json:"factor" exclusiveMinimum:"0" doc:"Multiplier applied to the scale"`
		X      *float64 `json:"x,omitempty" doc:"Screen x to zoom around; viewport center when omitted"`
		Y      *float64 `json:"y,omitempty"`
	}
}

type PanInput struct {
	SessionPath
	Body struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
}

type CenterInput struct {
	SessionPath
	Body struct {
		Target session.CenterTarget `json:"target,omitempty" enum:"selection,owned,grid" doc:"Ignored when rect is given"`
		Rect   *grid.Rect           `json:"rect,omitempty"`
	}
}

type ResizeInput struct {
	SessionPath
	Body struct {
		Width  int `json:"width" minimum:"1" maximum:"8192"`
		Height int `json:"height" minimum:"1" maximum:"8192"`
	}
}

type ModeInput struct {
	SessionPath
	Body session.Mode
}

type AdoptInput struct {
	SessionPath
	Body struct {
		TxID string `json:"tx_id" minLength:"1"`
	}
}

type SessionClaimInput struct {
	SessionPath
	Body struct {
		TxID        string      `json:"tx_id,omitempty" doc:"Transaction id; issued by the server when omitted"`
		Color       *grid.Color `json:"color,omitempty" doc:"Defaults to the session brush"`
		ContactInfo string      `json:"contact_info,omitempty"`
		URL         string      `json:"url,omitempty"`
		Username    string      `json:"username,omitempty"`
	}
}

type SessionClaimResult struct {
	TxID string       `json:"tx_id"`
	View session.View `json:"view"`
}

type SessionClaimOutput struct {
	Body SessionClaimResult
}

type SessionClearInput struct {
	SessionPath
	Body struct {
		Mode   ledger.ClearMode `json:"mode,omitempty" enum:"all,selected"`
		Coords []grid.Coord     `json:"coords,omitempty"`
	}
}

// --- Handler ---

type SessionHandler struct {
	registry  *session.Registry
	limiter   *ratelimit.KeyedLimiter
	observer  ClaimObserver
	clearMode ledger.ClearMode
	logger    *slog.Logger
}

func NewSessionHandler(registry *session.Registry, limiter *ratelimit.KeyedLimiter, observer ClaimObserver, clearMode ledger.ClearMode, logger *slog.Logger) *SessionHandler {
	if observer == nil {
		observer = nopClaimObserver{}
	}
	if clearMode == "" {
		clearMode = ledger.ClearAll
	}
	return &SessionHandler{registry: registry, limiter: limiter, observer: observer, clearMode: clearMode, logger: logger}
}

func registerSessionRoutes(api huma.API, h *SessionHandler) {
	op := func(id, method, path, summary string) huma.Operation {
		return huma.Operation{OperationID: id, Method: method, Path: path, Summary: summary, Tags: []string{"sessions"}}
	}

	create := op("create-session", http.MethodPost, "/v1/sessions", "Open an interactive session")
	create.DefaultStatus = http.StatusCreated
	huma.Register(api, create, h.Create)
	huma.Register(api, op("list-sessions", http.MethodGet, "/v1/sessions", "Count live sessions"), h.List)
	huma.Register(api, op("get-session", http.MethodGet, "/v1/sessions/{session_id}", "Describe a session"), h.Get)
	destroy := op("delete-session", http.MethodDelete, "/v1/sessions/{session_id}", "Close a session")
	destroy.DefaultStatus = http.StatusNoContent
	huma.Register(api, destroy, h.Delete)

	huma.Register(api, op("session-pointer", http.MethodPost, "/v1/sessions/{session_id}/pointer", "Feed pointer events"), h.Pointer)
	huma.Register(api, op("session-zoom", http.MethodPost, "/v1/sessions/{session_id}/zoom", "Zoom the camera"), h.Zoom)
	huma.Register(api, op("session-pan", http.MethodPost, "/v1/sessions/{session_id}/pan", "Pan the camera"), h.Pan)
	huma.Register(api, op("session-center", http.MethodPost, "/v1/sessions/{session_id}/center", "Fit a region into view"), h.Center)
	huma.Register(api, op("session-reset", http.MethodPost, "/v1/sessions/{session_id}/reset", "Reset the camera"), h.Reset)
	huma.Register(api, op("session-resize", http.MethodPost, "/v1/sessions/{session_id}/resize", "Resize the viewport"), h.Resize)
	huma.Register(api, op("session-mode", http.MethodPut, "/v1/sessions/{session_id}/mode", "Set paint mode, erase and brush"), h.SetMode)
	huma.Register(api, op("session-adopt", http.MethodPost, "/v1/sessions/{session_id}/adopt", "Add a transaction to the session scope"), h.Adopt)
	huma.Register(api, op("session-clear-selection", http.MethodDelete, "/v1/sessions/{session_id}/selection", "Clear the selection"), h.ClearSelection)
	claim := op("session-claim", http.MethodPost, "/v1/sessions/{session_id}/claim", "Claim the selected cells")
	claim.DefaultStatus = http.StatusCreated
	huma.Register(api, claim, h.Claim)
	huma.Register(api, op("session-clear-ownership", http.MethodPost, "/v1/sessions/{session_id}/clear", "Release the session's ownership"), h.ClearOwnership)
}

func (h *SessionHandler) session(id string) (*session.Session, error) {
	s, err := h.registry.Get(id)
	if err != nil {
		return nil, toHTTPError(h.logger, "get session", err)
	}
	return s, nil
}

func (h *SessionHandler) view(v session.View, err error) (*SessionOutput, error) {
	if err != nil {
		return nil, toHTTPError(h.logger, "session update", err)
	}
	return &SessionOutput{Body: v}, nil
}

func (h *SessionHandler) Create(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	s, err := h.registry.Create(input.Body.Width, input.Body.Height)
	if err != nil {
		return nil, toHTTPError(h.logger, "create session", err)
	}
	return h.view(s.View(ctx))
}

func (h *SessionHandler) List(ctx context.Context, _ *struct{}) (*ListSessionsOutput, error) {
	return &ListSessionsOutput{Body: SessionCount{Live: h.registry.Len(), Limit: h.registry.Limit()}}, nil
}

func (h *SessionHandler) Get(ctx context.Context, input *SessionPath) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.View(ctx))
}

func (h *SessionHandler) Delete(ctx context.Context, input *SessionPath) (*struct{}, error) {
	if err := h.registry.Destroy(input.SessionID); err != nil {
		return nil, toHTTPError(h.logger, "delete session", err)
	}
	return nil, nil
}

func (h *SessionHandler) Pointer(ctx context.Context, input *PointerInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.Pointer(ctx, input.Body.Events...))
}

func (h *SessionHandler) Zoom(ctx context.Context, input *ZoomInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	if b.X != nil && b.Y != nil {
		return h.view(s.ZoomAt(ctx, *b.X, *b.Y, b.Factor))
	}
	return h.view(s.ZoomBy(ctx, b.Factor))
}

func (h *SessionHandler) Pan(ctx context.Context, input *PanInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.Pan(ctx, input.Body.DX, input.Body.DY))
}

func (h *SessionHandler) Center(ctx context.Context, input *CenterInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	if input.Body.Rect != nil {
		return h.view(s.CenterRect(ctx, *input.Body.Rect))
	}
	return h.view(s.Center(ctx, input.Body.Target))
}

func (h *SessionHandler) Reset(ctx context.Context, input *SessionPath) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.Reset(ctx))
}

func (h *SessionHandler) Resize(ctx context.Context, input *ResizeInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.Resize(ctx, input.Body.Width, input.Body.Height))
}

func (h *SessionHandler) SetMode(ctx context.Context, input *ModeInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.SetMode(ctx, input.Body))
}

func (h *SessionHandler) Adopt(ctx context.Context, input *AdoptInput) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.Adopt(ctx, input.Body.TxID))
}

func (h *SessionHandler) ClearSelection(ctx context.Context, input *SessionPath) (*SessionOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	return h.view(s.ClearSelection(ctx))
}

func (h *SessionHandler) Claim(ctx context.Context, input *SessionClaimInput) (*SessionClaimOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	if h.limiter != nil && !h.limiter.Allow(clientFrom(ctx)) {
		h.observer.ObserveClaim(metrics.ClaimLimited)
		return nil, huma.Error429TooManyRequests("claim rate limit exceeded")
	}

	b := input.Body
	txID := b.TxID
	if txID == "" {
		if txID, err = id.NewTxID(); err != nil {
			return nil, toHTTPError(h.logger, "issue transaction id", err)
		}
	}
	tx, err := s.ClaimSelection(ctx, session.ClaimInput{
		TxID:        txID,
		Color:       b.Color,
		ContactInfo: b.ContactInfo,
		URL:         b.URL,
		Username:    b.Username,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidClaim) {
			h.observer.ObserveClaim(claimResult(err))
		}
		return nil, toHTTPError(h.logger, "session claim", err)
	}
	h.observer.ObserveClaim(metrics.ClaimAccepted)

	v, err := s.View(ctx)
	if err != nil {
		return nil, toHTTPError(h.logger, "session claim", err)
	}
	return &SessionClaimOutput{Body: SessionClaimResult{TxID: tx, View: v}}, nil
}

func (h *SessionHandler) ClearOwnership(ctx context.Context, input *SessionClearInput) (*CountOutput, error) {
	s, err := h.session(input.SessionID)
	if err != nil {
		return nil, err
	}
	mode := input.Body.Mode
	if mode == "" {
		mode = h.clearMode
	}
	n, err := s.ClearOwnership(ctx, input.Body.Coords, mode)
	if err != nil {
		return nil, toHTTPError(h.logger, "session clear", err)
	}
	return &CountOutput{Body: CountResult{Count: n}}, nil
}

// Frame serves the current frame as PNG. It is a plain chi route since
// the body is binary.
func (h *SessionHandler) Frame(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	maxWidth := 0
	if v := r.URL.Query().Get("max_width"); v != "" {
		if maxWidth, err = strconv.Atoi(v); err != nil || maxWidth < 0 {
			writeError(w, http.StatusBadRequest, "max_width must be a non-negative integer")
			return
		}
	}

	png, err := s.FramePNG(r.Context(), maxWidth)
	if err != nil {
		h.logger.Error("render frame", "session_id", s.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render frame")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
