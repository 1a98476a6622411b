// Package id mints the opaque identifiers handed out to clients.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TxPrefix marks claim transaction ids.
const TxPrefix = "tx"

// Generate returns prefix-<nanoid>, e.g. "tx-V1StGXR8_Z5jdHi6B-myT".
// It fails only when the system entropy source does.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// NewTxID returns a fresh claim transaction id.
func NewTxID() (string, error) {
	return Generate(TxPrefix)
}
