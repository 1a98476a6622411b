package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/id"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/metrics"
	"github.com/ryanbastic/go-pixelwall/internal/ratelimit"
)

// --- Huma Input/Output types ---

type GridInfo struct {
	GridSize     int    `json:"grid_size" doc:"Side length of the square grid"`
	LockDuration string `json:"lock_duration" doc:"How long a claim holds its cells" example:"168h0m0s"`
	LiveCells    int    `json:"live_cells" doc:"Cells held by an unexpired claim"`
	Records      int    `json:"records" doc:"Ownership records kept"`
}

type GetGridOutput struct {
	Body GridInfo
}

type ListSquaresInput struct {
	Region string `query:"region" doc:"Optional min_x,min_y,max_x,max_y filter (max exclusive)" example:"0,0,100,100"`
	Cursor string `query:"cursor" doc:"Cursor from a previous page"`
	Limit  int    `query:"limit" default:"500" minimum:"1" maximum:"5000" doc:"Page size"`
}

type SquarePage struct {
	Squares    []ledger.Square `json:"squares"`
	NextCursor string          `json:"next_cursor,omitempty" doc:"Pass as cursor to fetch the next page"`
}

type ListSquaresOutput struct {
	Body SquarePage
}

type SquarePath struct {
	X int `path:"x" minimum:"0" doc:"Column"`
	Y int `path:"y" minimum:"0" doc:"Row"`
}

type GetSquareOutput struct {
	Body ledger.Square
}

type ClaimBody struct {
	TxID        string         `json:"tx_id,omitempty" doc:"Transaction id; issued by the server when omitted"`
	Cells       []ledger.Paint `json:"cells" minItems:"1" doc:"Cells to claim with their colors"`
	ContactInfo string         `json:"contact_info,omitempty"`
	URL         string         `json:"url,omitempty"`
	Username    string         `json:"username,omitempty" doc:"Defaults to the anonymous name"`
}

type ClaimInput struct {
	Body ClaimBody
}

type ClaimOutput struct {
	Body grid.Ownership
}

type ScopeHeader struct {
	TxIDs string `header:"X-Tx-IDs" doc:"Comma-separated transaction ids held by the caller"`
}

type RecolorInput struct {
	SquarePath
	ScopeHeader
	Body struct {
		Color grid.Color `json:"color" doc:"New color, #rrggbb"`
	}
}

type RestoreColorInput struct {
	SquarePath
	ScopeHeader
}

type TxPath struct {
	TxID string `path:"tx_id" doc:"Transaction id"`
}

type GetRecordInput struct {
	TxPath
	ScopeHeader
}

type GetRecordOutput struct {
	Body grid.Ownership
}

type UpdateRecordInput struct {
	TxPath
	ScopeHeader
	Body struct {
		URL           *string     `json:"url,omitempty"`
		Username      *string     `json:"username,omitempty"`
		OriginalColor *grid.Color `json:"original_color,omitempty"`
	}
}

type ClearOwnershipInput struct {
	ScopeHeader
	Body struct {
		Mode   ledger.ClearMode `json:"mode,omitempty" enum:"all,selected" doc:"Defaults to the server setting"`
		Coords []grid.Coord     `json:"coords,omitempty" doc:"Cells to release in selected mode"`
	}
}

type CountResult struct {
	Count int `json:"count"`
}

type CountOutput struct {
	Body CountResult
}

// ClaimObserver counts claim outcomes.
type ClaimObserver interface {
	ObserveClaim(result string)
}

type nopClaimObserver struct{}

func (nopClaimObserver) ObserveClaim(string) {}

// --- Handler ---

type GridHandler struct {
	ledger    *ledger.Ledger
	limiter   *ratelimit.KeyedLimiter
	observer  ClaimObserver
	clearMode ledger.ClearMode
	logger    *slog.Logger
}

func NewGridHandler(l *ledger.Ledger, limiter *ratelimit.KeyedLimiter, observer ClaimObserver, clearMode ledger.ClearMode, logger *slog.Logger) *GridHandler {
	if observer == nil {
		observer = nopClaimObserver{}
	}
	if clearMode == "" {
		clearMode = ledger.ClearAll
	}
	return &GridHandler{ledger: l, limiter: limiter, observer: observer, clearMode: clearMode, logger: logger}
}

func registerGridRoutes(api huma.API, h *GridHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-grid",
		Method:      http.MethodGet,
		Path:        "/v1/grid",
		Summary:     "Grid dimensions and occupancy",
		Tags:        []string{"grid"},
	}, h.GetGrid)

	huma.Register(api, huma.Operation{
		OperationID: "list-squares",
		Method:      http.MethodGet,
		Path:        "/v1/squares",
		Summary:     "List live squares in row-major order",
		Tags:        []string{"grid"},
	}, h.ListSquares)

	huma.Register(api, huma.Operation{
		OperationID: "get-square",
		Method:      http.MethodGet,
		Path:        "/v1/squares/{x}/{y}",
		Summary:     "Get a live square",
		Tags:        []string{"grid"},
	}, h.GetSquare)

	huma.Register(api, huma.Operation{
		OperationID:   "claim",
		Method:        http.MethodPost,
		Path:          "/v1/claims",
		Summary:       "Claim a set of cells atomically",
		Tags:          []string{"claims"},
		DefaultStatus: http.StatusCreated,
	}, h.Claim)

	huma.Register(api, huma.Operation{
		OperationID: "recolor-square",
		Method:      http.MethodPut,
		Path:        "/v1/squares/{x}/{y}/color",
		Summary:     "Recolor an owned square",
		Tags:        []string{"claims"},
	}, h.Recolor)

	huma.Register(api, huma.Operation{
		OperationID: "restore-square-color",
		Method:      http.MethodDelete,
		Path:        "/v1/squares/{x}/{y}/color",
		Summary:     "Restore an owned square to its claim color",
		Tags:        []string{"claims"},
	}, h.RestoreColor)

	huma.Register(api, huma.Operation{
		OperationID: "get-ownership",
		Method:      http.MethodGet,
		Path:        "/v1/ownership/{tx_id}",
		Summary:     "Get an ownership record held by the caller",
		Tags:        []string{"ownership"},
	}, h.GetRecord)

	huma.Register(api, huma.Operation{
		OperationID: "update-ownership",
		Method:      http.MethodPatch,
		Path:        "/v1/ownership/{tx_id}",
		Summary:     "Edit metadata of an ownership record held by the caller",
		Tags:        []string{"ownership"},
	}, h.UpdateRecord)

	huma.Register(api, huma.Operation{
		OperationID: "clear-ownership",
		Method:      http.MethodPost,
		Path:        "/v1/ownership/clear",
		Summary:     "Release the caller's ownership",
		Tags:        []string{"ownership"},
	}, h.ClearOwnership)

	huma.Register(api, huma.Operation{
		OperationID: "admin-sweep",
		Method:      http.MethodPost,
		Path:        "/v1/admin/sweep",
		Summary:     "Remove expired cells now",
		Tags:        []string{"admin"},
	}, h.Sweep)

	huma.Register(api, huma.Operation{
		OperationID: "admin-purge",
		Method:      http.MethodPost,
		Path:        "/v1/admin/purge",
		Summary:     "Drop ownership records with no live cells",
		Tags:        []string{"admin"},
	}, h.Purge)

	huma.Register(api, huma.Operation{
		OperationID:   "admin-clear",
		Method:        http.MethodDelete,
		Path:          "/v1/admin/squares",
		Summary:       "Erase every cell and record",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusNoContent,
	}, h.AdminClear)
}

func (h *GridHandler) GetGrid(ctx context.Context, _ *struct{}) (*GetGridOutput, error) {
	s := h.ledger.Stats()
	return &GetGridOutput{Body: GridInfo{
		GridSize:     s.GridSize,
		LockDuration: h.ledger.LockDuration().String(),
		LiveCells:    s.LiveCells,
		Records:      s.Records,
	}}, nil
}

func (h *GridHandler) ListSquares(ctx context.Context, input *ListSquaresInput) (*ListSquaresOutput, error) {
	var squares []ledger.Square
	if input.Region != "" {
		r, err := parseRegion(input.Region)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		squares = h.ledger.SquaresIn(r)
	} else {
		squares = h.ledger.Squares()
	}

	out, next, err := page(squares, input.Cursor, input.Limit)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if out == nil {
		out = []ledger.Square{}
	}
	return &ListSquaresOutput{Body: SquarePage{Squares: out, NextCursor: next}}, nil
}

func (h *GridHandler) GetSquare(ctx context.Context, input *SquarePath) (*GetSquareOutput, error) {
	sq, ok := h.ledger.Square(input.coord())
	if !ok {
		return nil, huma.Error404NotFound("square not claimed")
	}
	return &GetSquareOutput{Body: sq}, nil
}

func (h *GridHandler) Claim(ctx context.Context, input *ClaimInput) (*ClaimOutput, error) {
	if h.limiter != nil && !h.limiter.Allow(clientFrom(ctx)) {
		h.observer.ObserveClaim(metrics.ClaimLimited)
		return nil, huma.Error429TooManyRequests("claim rate limit exceeded")
	}

	txID := input.Body.TxID
	if txID == "" {
		var err error
		if txID, err = id.NewTxID(); err != nil {
			return nil, toHTTPError(h.logger, "issue transaction id", err)
		}
	}

	tx, err := h.ledger.Claim(ledger.ClaimRequest{
		TxID:        txID,
		Cells:       input.Body.Cells,
		ContactInfo: input.Body.ContactInfo,
		URL:         input.Body.URL,
		Username:    input.Body.Username,
	})
	if err != nil {
		h.observer.ObserveClaim(claimResult(err))
		return nil, toHTTPError(h.logger, "claim", err)
	}
	h.observer.ObserveClaim(metrics.ClaimAccepted)

	rec, _ := h.ledger.Record(tx)
	h.logger.Info("claim accepted", "tx_id", tx, "cells", len(rec.Coords))
	return &ClaimOutput{Body: rec}, nil
}

func (h *GridHandler) Recolor(ctx context.Context, input *RecolorInput) (*GetSquareOutput, error) {
	c := input.coord()
	if !h.ledger.Recolor(c, input.Body.Color, parseScope(input.TxIDs)) {
		return nil, h.editFailure(c)
	}
	sq, _ := h.ledger.Square(c)
	return &GetSquareOutput{Body: sq}, nil
}

func (h *GridHandler) RestoreColor(ctx context.Context, input *RestoreColorInput) (*GetSquareOutput, error) {
	c := input.coord()
	if !h.ledger.RestoreOriginal(c, parseScope(input.TxIDs)) {
		return nil, h.editFailure(c)
	}
	sq, _ := h.ledger.Square(c)
	return &GetSquareOutput{Body: sq}, nil
}

// editFailure explains a refused recolor: the coordinate is off the grid,
// the square is gone or the caller does not own it.
func (h *GridHandler) editFailure(c grid.Coord) error {
	if !h.ledger.InBounds(c) {
		return huma.Error400BadRequest(fmt.Sprintf("square %s is outside the %dx%d grid", c.Key(), h.ledger.GridSize(), h.ledger.GridSize()))
	}
	if _, ok := h.ledger.Square(c); !ok {
		return huma.Error404NotFound("square not claimed")
	}
	return huma.Error403Forbidden("square is not owned by the caller")
}

// requireScope rejects callers whose X-Tx-IDs do not include txID.
func requireScope(txID, header string) error {
	if !parseScope(header).Owns(txID) {
		return huma.Error403Forbidden("ownership record is not held by the caller")
	}
	return nil
}

func (h *GridHandler) GetRecord(ctx context.Context, input *GetRecordInput) (*GetRecordOutput, error) {
	if err := requireScope(input.TxID, input.TxIDs); err != nil {
		return nil, err
	}
	rec, ok := h.ledger.Record(input.TxID)
	if !ok {
		return nil, huma.Error404NotFound("ownership record not found")
	}
	return &GetRecordOutput{Body: rec}, nil
}

func (h *GridHandler) UpdateRecord(ctx context.Context, input *UpdateRecordInput) (*GetRecordOutput, error) {
	if err := requireScope(input.TxID, input.TxIDs); err != nil {
		return nil, err
	}
	err := h.ledger.UpdateMetadata(input.TxID, ledger.MetadataUpdate{
		URL:           input.Body.URL,
		Username:      input.Body.Username,
		OriginalColor: input.Body.OriginalColor,
	})
	if err != nil {
		return nil, toHTTPError(h.logger, "update ownership", err)
	}
	rec, _ := h.ledger.Record(input.TxID)
	return &GetRecordOutput{Body: rec}, nil
}

func (h *GridHandler) ClearOwnership(ctx context.Context, input *ClearOwnershipInput) (*CountOutput, error) {
	scope := parseScope(input.TxIDs)
	if len(scope) == 0 {
		return nil, huma.Error400BadRequest("X-Tx-IDs is required")
	}
	mode := input.Body.Mode
	if mode == "" {
		mode = h.clearMode
	}
	if mode == ledger.ClearSelected && len(input.Body.Coords) == 0 {
		return nil, huma.Error400BadRequest("coords are required in selected mode")
	}
	n := h.ledger.ClearOwnership(scope, input.Body.Coords, mode)
	h.logger.Info("ownership cleared", "mode", mode, "count", n)
	return &CountOutput{Body: CountResult{Count: n}}, nil
}

func (h *GridHandler) Sweep(ctx context.Context, _ *struct{}) (*CountOutput, error) {
	return &CountOutput{Body: CountResult{Count: h.ledger.SweepExpired()}}, nil
}

func (h *GridHandler) Purge(ctx context.Context, _ *struct{}) (*CountOutput, error) {
	return &CountOutput{Body: CountResult{Count: h.ledger.PurgeStaleRecords()}}, nil
}

func (h *GridHandler) AdminClear(ctx context.Context, _ *struct{}) (*struct{}, error) {
	h.ledger.AdminClear()
	h.logger.Warn("grid cleared by admin", "at", time.Now().UTC())
	return nil, nil
}

func (p SquarePath) coord() grid.Coord {
	return grid.Coord{X: p.X, Y: p.Y}
}

func parseScope(header string) grid.TxSet {
	var ids []string
	for _, part := range strings.Split(header, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return grid.NewTxSet(ids...)
}

var errRegion = errors.New("region must be min_x,min_y,max_x,max_y")

func parseRegion(s string) (grid.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return grid.Rect{}, errRegion
	}
	lo, err := grid.ParseKey(parts[0] + "," + parts[1])
	if err != nil {
		return grid.Rect{}, errRegion
	}
	hi, err := grid.ParseKey(parts[2] + "," + parts[3])
	if err != nil {
		return grid.Rect{}, errRegion
	}
	return grid.Rect{MinX: lo.X, MinY: lo.Y, MaxX: hi.X, MaxY: hi.Y}, nil
}

func claimResult(err error) string {
	if errors.Is(err, ledger.ErrAlreadyTaken) {
		return metrics.ClaimTaken
	}
	return metrics.ClaimInvalid
}
