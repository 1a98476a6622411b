package api

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

// A cursor is the last coordinate of the previous page, "x,y" in
// base64url. Pages walk the squares in row-major order.
func encodeCursor(c grid.Coord) string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.Key()))
}

func decodeCursor(s string) (grid.Coord, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return grid.Coord{}, fmt.Errorf("malformed cursor: %w", err)
	}
	c, err := grid.ParseKey(string(raw))
	if err != nil {
		return grid.Coord{}, fmt.Errorf("malformed cursor: %w", err)
	}
	return c, nil
}

func rowMajorAfter(a, b grid.Coord) bool {
	if a.Y != b.Y {
		return a.Y > b.Y
	}
	return a.X > b.X
}

// page slices squares (sorted row-major) to the limit entries following
// cursor. next is empty on the last page.
func page(squares []ledger.Square, cursor string, limit int) (out []ledger.Square, next string, err error) {
	start := 0
	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		start = sort.Search(len(squares), func(i int) bool {
			return rowMajorAfter(squares[i].Coord, after)
		})
	}
	end := min(start+limit, len(squares))
	out = squares[start:end]
	if end < len(squares) && len(out) > 0 {
		next = encodeCursor(out[len(out)-1].Coord)
	}
	return out, next, nil
}
