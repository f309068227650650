// Package icn assembles a cooperative node from its components.
//
// A Node owns the state document, the proposal queue, the vertex ledger and
// its index, the engine, the federation broadcaster, the execution
// coordinator, the watch loop and the HTTP service. Init wires them in
// dependency order and recovers proposals interrupted by a crash; Run drives
// the sweep daemon, the watch loop and the service until its context is
// cancelled.
package icn
