package engine

import (
	"context"
)

// Handler encapsulates the callbacks invoked by an InmemEngine.
type Handler interface {
	// ValidateHandler is called for simulate-mode runs.
	ValidateHandler(ctx context.Context, content []byte, opts Options) error

	// ExecuteHandler is called for production and trace runs.
	ExecuteHandler(ctx context.Context, content []byte, opts Options) (*Result, error)
}

// ValidateFunc adapts a function to the validate half of Handler.
type ValidateFunc func(ctx context.Context, content []byte, opts Options) error

// ExecuteFunc adapts a function to the execute half of Handler.
type ExecuteFunc func(ctx context.Context, content []byte, opts Options) (*Result, error)

// FuncHandler builds a Handler from two functions. A nil function accepts
// every proposal and returns status code zero.
type FuncHandler struct {
	Validate ValidateFunc
	Execute  ExecuteFunc
}

// ValidateHandler implements Handler.
func (h FuncHandler) ValidateHandler(ctx context.Context, content []byte, opts Options) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate(ctx, content, opts)
}

// ExecuteHandler implements Handler.
func (h FuncHandler) ExecuteHandler(ctx context.Context, content []byte, opts Options) (*Result, error) {
	if h.Execute == nil {
		return &Result{}, nil
	}
	return h.Execute(ctx, content, opts)
}
