package state

import (
	"strconv"
	"time"
)

// VertexEntry is the record of one successfully executed proposal. Entries
// are created once and never modified afterwards.
type VertexEntry struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	Timestamp  time.Time `json:"timestamp"`
	Hash       string    `json:"hash"`
	Parents    []string  `json:"parents"`
}

// PeerEntry is a federation peer as persisted in the state document.
type PeerEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NodeState is the persisted document.
type NodeState struct {
	NodeID            string        `json:"node_id"`
	Initialized       time.Time     `json:"initialized"`
	LastUpdated       time.Time     `json:"last_updated"`
	LastExecutedBlock uint64        `json:"last_executed_block"`
	LastProposalID    uint64        `json:"last_proposal_id"`
	ExecutedProposals []string      `json:"executed_proposals"`
	ActiveConnection  string        `json:"active_connection"`
	Peers             []PeerEntry   `json:"peers"`
	SystemVersion     string        `json:"system_version"`
	DagVertices       []VertexEntry `json:"dag_vertices"`
}

// IsExecuted reports whether a proposal id belongs to the executed set.
func (s *NodeState) IsExecuted(proposalID string) bool {
	for _, id := range s.ExecutedProposals {
		if id == proposalID {
			return true
		}
	}
	return false
}

// MarkExecuted adds a proposal id to the executed set. It returns false if the
// id was already present. LastProposalID follows the highest numeric id.
func (s *NodeState) MarkExecuted(proposalID string) bool {
	if s.IsExecuted(proposalID) {
		return false
	}
	s.ExecutedProposals = append(s.ExecutedProposals, proposalID)
	if n, err := strconv.ParseUint(proposalID, 10, 64); err == nil && n > s.LastProposalID {
		s.LastProposalID = n
	}
	return true
}

// AppendVertex appends an entry to the ledger and advances
// LastExecutedBlock.
func (s *NodeState) AppendVertex(entry VertexEntry) {
	s.DagVertices = append(s.DagVertices, entry)
	s.LastExecutedBlock = uint64(len(s.DagVertices))
}

// HasVertex reports whether a vertex id is already in the ledger.
func (s *NodeState) HasVertex(id string) bool {
	for _, v := range s.DagVertices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Tip returns the most recent vertex, if any.
func (s *NodeState) Tip() (VertexEntry, bool) {
	if len(s.DagVertices) == 0 {
		return VertexEntry{}, false
	}
	return s.DagVertices[len(s.DagVertices)-1], true
}

// AddPeer adds or replaces a peer, keyed by address.
func (s *NodeState) AddPeer(peer PeerEntry) {
	for i, p := range s.Peers {
		if p.Address == peer.Address {
			s.Peers[i] = peer
			return
		}
	}
	s.Peers = append(s.Peers, peer)
}

// RemovePeer removes the peer with the given id or address. It returns false
// if no peer matched.
func (s *NodeState) RemovePeer(idOrAddress string) bool {
	for i, p := range s.Peers {
		if p.ID == idOrAddress || p.Address == idOrAddress {
			s.Peers = append(s.Peers[:i], s.Peers[i+1:]...)
			return true
		}
	}
	return false
}

// clone returns a deep copy of the document.
func (s *NodeState) clone() *NodeState {
	c := *s
	c.ExecutedProposals = append([]string{}, s.ExecutedProposals...)
	c.Peers = append([]PeerEntry{}, s.Peers...)
	c.DagVertices = make([]VertexEntry, len(s.DagVertices))
	for i, v := range s.DagVertices {
		v.Parents = append([]string{}, v.Parents...)
		c.DagVertices[i] = v
	}
	return &c
}
