// Package service implements the HTTP API of a node.
//
// The read side serves the ledger summary (/dag_info), single vertices
// (/dag_vertex), proposals (/proposal), peers (/peers and
// /federation/health) and the node status (/status), which peers probe to
// decide whether the node is reachable.
//
// The ingestion side accepts vertices pushed by peers on POST /dag/vertices.
// Signed vertices are verified against their submitter key before being
// stored in the vertex index.
package service
