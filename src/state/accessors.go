package state

// NodeID returns the node identifier.
func (m *Manager) NodeID() (string, error) {
	var id string
	err := m.Read(func(s *NodeState) error {
		id = s.NodeID
		return nil
	})
	return id, err
}

// Snapshot returns a copy of the whole document.
func (m *Manager) Snapshot() (*NodeState, error) {
	var snap *NodeState
	err := m.Read(func(s *NodeState) error {
		snap = s
		return nil
	})
	return snap, err
}

// ExecutedProposals returns a copy of the executed set.
func (m *Manager) ExecutedProposals() ([]string, error) {
	var res []string
	err := m.Read(func(s *NodeState) error {
		res = s.ExecutedProposals
		return nil
	})
	return res, err
}

// IsExecuted reports whether a proposal id belongs to the executed set.
func (m *Manager) IsExecuted(proposalID string) (bool, error) {
	var ok bool
	err := m.Read(func(s *NodeState) error {
		ok = s.IsExecuted(proposalID)
		return nil
	})
	return ok, err
}

// AddExecutedProposal records a proposal id in the executed set. Adding an id
// twice is a no-op that does not rewrite the document.
func (m *Manager) AddExecutedProposal(proposalID string) error {
	executed, err := m.IsExecuted(proposalID)
	if err != nil || executed {
		return err
	}
	return m.Mutate(func(s *NodeState) error {
		s.MarkExecuted(proposalID)
		return nil
	})
}

// Vertices returns a copy of the vertex ledger.
func (m *Manager) Vertices() ([]VertexEntry, error) {
	var res []VertexEntry
	err := m.Read(func(s *NodeState) error {
		res = s.DagVertices
		return nil
	})
	return res, err
}

// VertexCount returns the length of the ledger.
func (m *Manager) VertexCount() (int, error) {
	var n int
	err := m.Read(func(s *NodeState) error {
		n = len(s.DagVertices)
		return nil
	})
	return n, err
}

// Peers returns a copy of the peer list.
func (m *Manager) Peers() ([]PeerEntry, error) {
	var res []PeerEntry
	err := m.Read(func(s *NodeState) error {
		res = s.Peers
		return nil
	})
	return res, err
}

// AddPeer adds or replaces a peer, keyed by address.
func (m *Manager) AddPeer(peer PeerEntry) error {
	return m.Mutate(func(s *NodeState) error {
		s.AddPeer(peer)
		return nil
	})
}

// RemovePeer removes a peer by id or address and reports whether it existed.
func (m *Manager) RemovePeer(idOrAddress string) (bool, error) {
	var removed bool
	err := m.Mutate(func(s *NodeState) error {
		removed = s.RemovePeer(idOrAddress)
		return nil
	})
	return removed, err
}

// SetActiveConnection records the address of the peer or service the node is
// currently attached to.
func (m *Manager) SetActiveConnection(conn string) error {
	return m.Mutate(func(s *NodeState) error {
		s.ActiveConnection = conn
		return nil
	})
}
