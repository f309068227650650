// Package dag implements the vertex ledger.
//
// The ledger is an append-only, time-ordered sequence of vertices, one per
// successfully executed proposal. The authoritative copy lives in the node
// state document; dag.log is a human-readable audit trail written alongside
// it. Every vertex names the previous tip as its parent, so the sequence can
// be walked as a chain by external readers.
//
// An Index mirrors vertices by id and also keeps vertices received from
// peers, which are not part of the local ledger. InmemIndex keeps them in
// memory; BadgerIndex persists them in a Badger database.
package dag
