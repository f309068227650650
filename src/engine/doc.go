// Package engine defines the contract between the node and the interpreter
// that executes proposal files.
//
// The node never looks inside a proposal. It hands the file to an Engine with
// a set of Options and gets back a status code, an optional vertex identifier
// and the captured output. ProcessEngine runs an external binary; InmemEngine
// calls Go handlers and is used in tests and dry runs.
package engine
