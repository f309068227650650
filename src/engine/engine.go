package engine

import (
	"context"
)

// Engine executes proposal files.
type Engine interface {
	// Validate runs the proposal in a non-mutating mode. A nil error means the
	// proposal is acceptable.
	Validate(ctx context.Context, path string, opts Options) error

	// Execute runs the proposal. A Result is returned whenever the engine ran,
	// whatever its status code. The error is reserved for failures to invoke
	// the engine at all.
	Execute(ctx context.Context, path string, opts Options) (*Result, error)
}
