// Package queue implements the directory-backed proposal queue.
//
// Each proposal is a file named proposal_<id>_<status>.dsl. The filename is the
// single source of truth for the status of a proposal: a status change is a
// rename, and renames are the atomic unit of state change. On start the queue
// and archive directories are scanned into an Index holding a typed Status
// per proposal, which in-process decisions consult.
//
// Allowed transitions:
//
//  Pending -> Executing -> Completed
//                       -> Failed
//  Pending -> Rejected
//
// Completed, Failed and Rejected are terminal.
package queue
