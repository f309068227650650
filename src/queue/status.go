package queue

import (
	"strings"

	"github.com/intercoop/icnnode/src/common"
)

// Status is the lifecycle state of a proposal.
type Status uint32

const (
	// Pending is the initial status of a proposal file.
	Pending Status = iota
	// Executing means the engine has been invoked.
	Executing
	// Completed means the engine returned status code zero.
	Completed
	// Failed means the engine returned a non-zero status code.
	Failed
	// Rejected means validation failed and the engine was never invoked.
	Rejected
)

var statusSuffixes = []string{"pending", "executing", "completed", "failed", "rejected"}

// Suffix returns the lowercase form used in filenames.
func (s Status) Suffix() string {
	if int(s) < len(statusSuffixes) {
		return statusSuffixes[s]
	}
	return "unknown"
}

// String ...
func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Executing:
		return "Executing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// MarshalText encodes a Status as its filename suffix.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.Suffix()), nil
}

// UnmarshalText parses a filename suffix.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a filename suffix, case-insensitively.
func ParseStatus(suffix string) (Status, error) {
	lower := strings.ToLower(suffix)
	for i, v := range statusSuffixes {
		if v == lower {
			return Status(i), nil
		}
	}
	return Pending, common.NewErr(common.Queue, "Unknown proposal status: %s", suffix)
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Rejected
}

// CanTransition reports whether s -> to is an allowed transition.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case Pending:
		return to == Executing || to == Rejected
	case Executing:
		return to == Completed || to == Failed
	default:
		return false
	}
}

// rank orders statuses along the lifecycle so that the most advanced of two
// observations of the same proposal can be picked.
func (s Status) rank() int {
	switch s {
	case Pending:
		return 0
	case Executing:
		return 1
	default:
		return 2
	}
}
