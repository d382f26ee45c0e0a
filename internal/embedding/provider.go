// Package embedding turns query text into vectors for semantic path scoring.
// Providers are optional: when none is configured, or when a call fails,
// paths are scored without the semantic bonus.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("cannot embed empty text")

// Provider generates vector embeddings.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
