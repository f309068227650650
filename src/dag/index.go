package dag

import (
	"sort"
	"sync"

	"github.com/intercoop/icnnode/src/common"
)

// Index mirrors vertices by id. Local vertices are those of this node's
// ledger; remote vertices were received from peers.
type Index interface {
	// Put stores a local vertex.
	Put(v *Vertex) error
	// PutRemote stores a vertex received from a peer. It returns false if a
	// vertex with the same id was already known.
	PutRemote(v *Vertex) (bool, error)
	// Get looks a vertex up among local then remote vertices.
	Get(id string) (*Vertex, error)
	// Remote returns the remote vertices sorted by timestamp.
	Remote() ([]*Vertex, error)
	// Len returns the number of local vertices.
	Len() (int, error)
	Close() error
}

// InmemIndex is an Index kept in memory.
type InmemIndex struct {
	l      sync.RWMutex
	local  map[string]*Vertex
	remote map[string]*Vertex
}

// NewInmemIndex creates an empty InmemIndex.
func NewInmemIndex() *InmemIndex {
	return &InmemIndex{
		local:  make(map[string]*Vertex),
		remote: make(map[string]*Vertex),
	}
}

// Put implements Index.
func (i *InmemIndex) Put(v *Vertex) error {
	i.l.Lock()
	defer i.l.Unlock()

	i.local[v.ID] = v
	return nil
}

// PutRemote implements Index.
func (i *InmemIndex) PutRemote(v *Vertex) (bool, error) {
	i.l.Lock()
	defer i.l.Unlock()

	if _, ok := i.local[v.ID]; ok {
		return false, nil
	}
	if _, ok := i.remote[v.ID]; ok {
		return false, nil
	}
	i.remote[v.ID] = v
	return true, nil
}

// Get implements Index.
func (i *InmemIndex) Get(id string) (*Vertex, error) {
	i.l.RLock()
	defer i.l.RUnlock()

	if v, ok := i.local[id]; ok {
		return v, nil
	}
	if v, ok := i.remote[id]; ok {
		return v, nil
	}
	return nil, common.NewErr(common.Dag, "Vertex not found: %s", id)
}

// Remote implements Index.
func (i *InmemIndex) Remote() ([]*Vertex, error) {
	i.l.RLock()
	defer i.l.RUnlock()

	res := make([]*Vertex, 0, len(i.remote))
	for _, v := range i.remote {
		res = append(res, v)
	}
	sortVertices(res)
	return res, nil
}

// Len implements Index.
func (i *InmemIndex) Len() (int, error) {
	i.l.RLock()
	defer i.l.RUnlock()

	return len(i.local), nil
}

// Close implements Index.
func (i *InmemIndex) Close() error {
	return nil
}

func sortVertices(vs []*Vertex) {
	sort.Slice(vs, func(a, b int) bool {
		if vs[a].Timestamp.Equal(vs[b].Timestamp) {
			return vs[a].ID < vs[b].ID
		}
		return vs[a].Timestamp.Before(vs[b].Timestamp)
	})
}
