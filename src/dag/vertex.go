package dag

import (
	"fmt"
	"time"

	"github.com/intercoop/icnnode/src/common"
	"github.com/intercoop/icnnode/src/state"
)

// Vertex is the wire form of a ledger entry, as pushed to peers and served
// by the query service.
type Vertex struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ProposalID string    `json:"proposal_id"`
	Parents    []string  `json:"parents"`
	Hash       string    `json:"hash"`
	Submitter  string    `json:"submitter"`
	Signature  string    `json:"signature,omitempty"`
}

// NewVertex converts a ledger entry into a Vertex submitted by submitter.
func NewVertex(entry state.VertexEntry, submitter string) *Vertex {
	parents := append([]string{}, entry.Parents...)
	return &Vertex{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp,
		ProposalID: entry.ProposalID,
		Parents:    parents,
		Hash:       entry.Hash,
		Submitter:  submitter,
	}
}

// Entry returns the ledger form of the Vertex.
func (v *Vertex) Entry() state.VertexEntry {
	return state.VertexEntry{
		ID:         v.ID,
		ProposalID: v.ProposalID,
		Timestamp:  v.Timestamp,
		Hash:       v.Hash,
		Parents:    append([]string{}, v.Parents...),
	}
}

// SigningBytes returns the bytes covered by the submitter's signature.
func (v *Vertex) SigningBytes() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s",
		v.ID, v.ProposalID, v.Hash, v.Timestamp.UTC().Format(time.RFC3339Nano)))
}

// Validate checks that the mandatory fields are present.
func (v *Vertex) Validate() error {
	switch {
	case v.ID == "":
		return common.NewErr(common.Dag, "Vertex missing id")
	case v.ProposalID == "":
		return common.NewErr(common.Dag, "Vertex missing proposal_id")
	case v.Hash == "":
		return common.NewErr(common.Dag, "Vertex missing hash")
	case v.Timestamp.IsZero():
		return common.NewErr(common.Dag, "Vertex missing timestamp")
	}
	return nil
}
