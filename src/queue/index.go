package queue

import (
	"sort"
	"sync"

	"github.com/intercoop/icnnode/src/common"
)

// Index is the typed view of the statuses encoded in the queue and archive
// filenames. It is rebuilt from a directory scan on start and kept current by
// Store.Transition.
type Index struct {
	l        sync.RWMutex
	statuses map[string]Status
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		statuses: make(map[string]Status),
	}
}

// Get returns the status of a proposal and whether it is known.
func (i *Index) Get(id string) (Status, bool) {
	i.l.RLock()
	defer i.l.RUnlock()

	s, ok := i.statuses[id]
	return s, ok
}

// Set records a new status for a proposal. Unknown proposals may enter at any
// status; known ones must follow an allowed transition.
func (i *Index) Set(id string, to Status) error {
	i.l.Lock()
	defer i.l.Unlock()

	if from, ok := i.statuses[id]; ok && from != to && !from.CanTransition(to) {
		return common.NewErr(common.Queue, "Invalid transition for proposal %s: %s -> %s", id, from, to)
	}
	i.statuses[id] = to
	return nil
}

// observe merges a scanned status, keeping the most advanced one.
func (i *Index) observe(id string, s Status) {
	i.l.Lock()
	defer i.l.Unlock()

	if cur, ok := i.statuses[id]; !ok || s.rank() > cur.rank() {
		i.statuses[id] = s
	}
}

// force overwrites a status regardless of the transition rules. It is only
// used while reconciling the index with the executed set.
func (i *Index) force(id string, s Status) {
	i.l.Lock()
	defer i.l.Unlock()

	i.statuses[id] = s
}

// drop forgets a proposal.
func (i *Index) drop(id string) {
	i.l.Lock()
	defer i.l.Unlock()

	delete(i.statuses, id)
}

// reset drops every entry.
func (i *Index) reset() {
	i.l.Lock()
	defer i.l.Unlock()

	i.statuses = make(map[string]Status)
}

// WithStatus returns the sorted ids currently in status s.
func (i *Index) WithStatus(s Status) []string {
	i.l.RLock()
	defer i.l.RUnlock()

	res := []string{}
	for id, st := range i.statuses {
		if st == s {
			res = append(res, id)
		}
	}
	sort.Strings(res)
	return res
}

// Len returns the number of known proposals.
func (i *Index) Len() int {
	i.l.RLock()
	defer i.l.RUnlock()

	return len(i.statuses)
}
