package dag

import (
	"time"

	"github.com/intercoop/icnnode/src/state"
)

// Tip is a tip identifier with a short description.
type Tip struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Info summarises the ledger. The ledger is a single chain, so there is one
// root and the only tip is the most recent entry.
type Info struct {
	VertexCount  int       `json:"vertex_count"`
	RootCount    int       `json:"root_count"`
	TipCount     int       `json:"tip_count"`
	GenesisTime  time.Time `json:"genesis_time"`
	LatestUpdate time.Time `json:"latest_update"`
	Tips         []Tip     `json:"tips"`
}

// Detail is a single vertex as exposed to readers, with its position in the
// ledger and its reverse edges.
type Detail struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Height    int       `json:"height"`
	Proposer  string    `json:"proposer"`
	DataType  string    `json:"data_type"`
	Scope     string    `json:"scope"`
	Hash      string    `json:"hash"`
	Parents   []string  `json:"parents"`
	Children  []string  `json:"children"`
}

const (
	dataTypeProposal = "proposal_execution"
	scopeLocal       = "local"
)

func summarize(entries []state.VertexEntry, now time.Time) Info {
	info := Info{
		VertexCount:  len(entries),
		RootCount:    1,
		GenesisTime:  now,
		LatestUpdate: now,
		Tips:         []Tip{},
	}

	if len(entries) > 0 {
		first, last := entries[0], entries[len(entries)-1]
		info.GenesisTime = first.Timestamp
		info.LatestUpdate = last.Timestamp
		info.Tips = append(info.Tips, Tip{
			ID:      last.ID,
			Summary: "Execution of proposal " + last.ProposalID,
		})
	}
	info.TipCount = len(info.Tips)

	return info
}

func detail(entries []state.VertexEntry, i int, proposer string) Detail {
	e := entries[i]

	children := []string{}
	for _, c := range entries[i+1:] {
		for _, p := range c.Parents {
			if p == e.ID {
				children = append(children, c.ID)
				break
			}
		}
	}

	return Detail{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Height:    i,
		Proposer:  proposer,
		DataType:  dataTypeProposal,
		Scope:     scopeLocal,
		Hash:      e.Hash,
		Parents:   append([]string{}, e.Parents...),
		Children:  children,
	}
}
