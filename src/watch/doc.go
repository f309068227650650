// Package watch implements the watch/dispatch loop of a node.
//
// Two producers feed one consumer. A QueueWatcher reports proposal files
// created or modified in the queue directory, and a DagPoller reports
// vertices appended to the ledger. The Loop multiplexes both streams and
// spawns a detached, bounded execution task for every new pending file.
//
// Independently, the Daemon sweeps the whole queue at a fixed interval.
// Both paths go through the same executor.Dispatcher, which serializes
// executions per proposal id.
package watch
