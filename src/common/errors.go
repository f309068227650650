package common

import (
	"errors"
	"fmt"
)

// ErrKind classifies the failures a node can run into.
type ErrKind uint32

const (
	// Io is a filesystem failure.
	Io ErrKind = iota
	// Serialization is an encoding or decoding failure.
	Serialization
	// Network is a transport level failure.
	Network
	// State is a lock or parse failure on the persisted node document.
	State
	// Queue is a malformed filename, a failed rename or a watcher failure.
	Queue
	// Execution is an engine invocation failure or a missing proposal file.
	Execution
	// Dag is a missing vertex or an inconsistent ledger.
	Dag
	// Federation is an unreachable peer or a non-2xx answer.
	Federation
	// Validation is a structural or dry-run rejection of a proposal.
	Validation
	// ExternalProcess is a non-zero exit from a delegated tool.
	ExternalProcess
	// Config is an invalid or missing configuration value.
	Config
)

// String ...
func (k ErrKind) String() string {
	switch k {
	case Io:
		return "IO"
	case Serialization:
		return "Serialization"
	case Network:
		return "Network"
	case State:
		return "State"
	case Queue:
		return "Queue"
	case Execution:
		return "Execution"
	case Dag:
		return "DAG"
	case Federation:
		return "Federation"
	case Validation:
		return "Validation"
	case ExternalProcess:
		return "External process"
	case Config:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// NodeErr is the error type returned by every component of the node. Code is
// only meaningful for ExternalProcess errors, where it holds the exit status.
type NodeErr struct {
	Kind  ErrKind
	Msg   string
	Code  int
	Cause error
}

// NewErr creates a NodeErr of the given kind.
func NewErr(kind ErrKind, format string, args ...interface{}) *NodeErr {
	return &NodeErr{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// WrapErr creates a NodeErr of the given kind around an underlying error. It
// returns nil when cause is nil.
func WrapErr(kind ErrKind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &NodeErr{
		Kind:  kind,
		Msg:   fmt.Sprintf(format, args...),
		Cause: cause,
	}
}

// NewProcessErr creates an ExternalProcess error carrying the exit code.
func NewProcessErr(code int, format string, args ...interface{}) *NodeErr {
	return &NodeErr{
		Kind: ExternalProcess,
		Msg:  fmt.Sprintf(format, args...),
		Code: code,
	}
}

// Error implements the error interface.
func (e *NodeErr) Error() string {
	m := fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	if e.Kind == ExternalProcess {
		m = fmt.Sprintf("%s, code: %d", m, e.Code)
	}
	if e.Cause != nil {
		m = fmt.Sprintf("%s: %v", m, e.Cause)
	}
	return m
}

// Unwrap returns the underlying cause, if any.
func (e *NodeErr) Unwrap() error {
	return e.Cause
}

// IsKind checks that an error is, or wraps, a NodeErr of the given kind.
func IsKind(err error, kind ErrKind) bool {
	return find(err, kind) != nil
}

// ExitCode returns the exit code carried by an ExternalProcess error, or -1.
func ExitCode(err error) int {
	if e := find(err, ExternalProcess); e != nil {
		return e.Code
	}
	return -1
}

// find walks the chain of err and returns the first NodeErr of kind.
func find(err error, kind ErrKind) *NodeErr {
	for err != nil {
		var nodeErr *NodeErr
		if !errors.As(err, &nodeErr) {
			return nil
		}
		if nodeErr.Kind == kind {
			return nodeErr
		}
		err = nodeErr.Cause
	}
	return nil
}
