// Package federation distributes locally committed vertices to peer nodes.
//
// Distribution is best effort. For every peer returned by the Directory, the
// Broadcaster probes GET <address>/status with a short timeout and, if the
// peer answers with a 2xx status, pushes the vertex to
// POST <address>/dag/vertices. Every outcome is logged and none is returned
// to the caller: by the time a vertex is broadcast it has already been
// committed locally.
//
// Peers come from a Directory. StateDirectory reads them from the node state
// document, FileDirectory from a YAML or JSON file, and ScriptDirectory from
// an external discovery script. MultiDirectory merges several providers.
package federation
