package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

var (
	// ErrInvalidClaim is the root of every claim rejection.
	ErrInvalidClaim = errors.New("invalid claim")

	// ErrInvalidInput rejects a claim whose shape is wrong (no cells,
	// missing or reused transaction id, duplicate coordinates, bad color).
	ErrInvalidInput = fmt.Errorf("%w: invalid input", ErrInvalidClaim)

	// ErrAlreadyTaken rejects a claim touching a cell that is not available.
	ErrAlreadyTaken = fmt.Errorf("%w: already taken", ErrInvalidClaim)

	// ErrOutOfBounds rejects coordinates outside [0, gridSize).
	ErrOutOfBounds = fmt.Errorf("%w: out of bounds", ErrInvalidClaim)

	// ErrUnknownTransaction is returned by metadata operations on a tx id
	// the ledger has no record of.
	ErrUnknownTransaction = errors.New("unknown transaction")
)

// TakenError lists the cells that made a claim fail.
type TakenError struct {
	Coords []grid.Coord
}

func (e *TakenError) Error() string {
	keys := make([]string, len(e.Coords))
	for i, c := range e.Coords {
		keys[i] = c.Key()
	}
	return fmt.Sprintf("%v: %s", ErrAlreadyTaken, strings.Join(keys, " "))
}

func (e *TakenError) Unwrap() error { return ErrAlreadyTaken }
