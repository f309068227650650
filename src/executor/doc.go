// Package executor drives proposals through their lifecycle.
//
// The Coordinator validates a proposal, marks it Executing, invokes the
// engine and records the outcome: on success the proposal is archived, its id
// joins the executed set and a vertex is appended to the ledger in the same
// state mutation, the engine output is stored and the vertex is broadcast to
// peers. On failure the proposal is marked Failed.
//
// The Dispatcher is the entry point used by the watch loop, the periodic
// sweep and the command line. It serializes work per proposal id, so two
// paths observing the same pending file never execute it twice.
package executor
