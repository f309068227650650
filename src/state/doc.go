// Package state owns the persisted node state document.
//
// The document holds the node identity, its counters, the set of executed
// proposals, the vertex ledger and the peer list. It is guarded by a single
// lock inside Manager and every change goes through Manager.Mutate, which
// rewrites the whole document after copying the previous version to the
// backup directory. No other package reads or writes the backing file.
package state
