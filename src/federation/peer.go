package federation

import (
	"strings"
	"time"

	"github.com/intercoop/icnnode/src/state"
)

// Peer is a node that can receive broadcast vertices. LastSeen is only set by
// a successful health check.
type Peer struct {
	ID       string     `json:"id" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	Address  string     `json:"address" yaml:"address"`
	LastSeen *time.Time `json:"last_seen,omitempty" yaml:"last_seen,omitempty"`
}

// NewPeer creates a Peer. The address is normalized so that endpoint paths
// can be appended to it.
func NewPeer(id, name, address string) *Peer {
	return &Peer{
		ID:      id,
		Name:    name,
		Address: normalizeAddress(address),
	}
}

// PeerFromEntry converts a persisted peer.
func PeerFromEntry(e state.PeerEntry) *Peer {
	return NewPeer(e.ID, e.Name, e.Address)
}

// Entry returns the persisted form of the peer.
func (p *Peer) Entry() state.PeerEntry {
	return state.PeerEntry{
		ID:      p.ID,
		Name:    p.Name,
		Address: p.Address,
	}
}

// String returns the display name of the peer, falling back to its address.
func (p *Peer) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address
}

// endpoint joins a path to the peer address.
func (p *Peer) endpoint(path string) string {
	return p.Address + path
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address != "" && !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/")
}

// ExcludePeer removes the peers with the given address from a list.
func ExcludePeer(peers []*Peer, address string) []*Peer {
	address = normalizeAddress(address)
	res := make([]*Peer, 0, len(peers))
	for _, p := range peers {
		if p.Address != address {
			res = append(res, p)
		}
	}
	return res
}

// dedupe keeps the first peer of every address.
func dedupe(peers []*Peer) []*Peer {
	seen := make(map[string]bool, len(peers))
	res := make([]*Peer, 0, len(peers))
	for _, p := range peers {
		if p.Address == "" || seen[p.Address] {
			continue
		}
		seen[p.Address] = true
		res = append(res, p)
	}
	return res
}
