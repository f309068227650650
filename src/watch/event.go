package watch

import (
	"fmt"
	"time"

	"github.com/intercoop/icnnode/src/state"
)

// EventKind identifies the producer of an Event.
type EventKind int

const (
	// FileChanged is emitted when a proposal file settles after being created
	// or modified in the queue directory.
	FileChanged EventKind = iota
	// NewVertex is emitted for every vertex appended to the ledger.
	NewVertex
)

func (k EventKind) String() string {
	switch k {
	case FileChanged:
		return "file"
	case NewVertex:
		return "vertex"
	default:
		return "unknown"
	}
}

// Event is one notification of the watch loop.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Path   string
	Vertex state.VertexEntry
}

func (e Event) String() string {
	switch e.Kind {
	case FileChanged:
		return fmt.Sprintf("[%s] File changed: %s", e.Time.Format(time.RFC3339), e.Path)
	case NewVertex:
		return fmt.Sprintf("[%s] New vertex: %s (proposal %s)", e.Time.Format(time.RFC3339), e.Vertex.ID, e.Vertex.ProposalID)
	default:
		return fmt.Sprintf("[%s] Unknown event", e.Time.Format(time.RFC3339))
	}
}
