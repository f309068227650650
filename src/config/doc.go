// Package config defines the configuration for a cooperative node.
//
// Regardless of how the node is started, it uses the Config object defined in
// this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// laid out as follows:
//
//  state.json            // the persisted node state document
//  state/backups/        // timestamped copies of previous state documents
//  queue/                // proposal_<id>_<status>.dsl files awaiting a decision
//  executed/             // archived proposal_<id>_completed.dsl files
//  output/               // execution_<id>_<timestamp>.json results
//  logs/dag.log          // human-readable vertex audit trail
//  logs/rejected.log     // human-readable rejection trail
//  storage/              // persistent storage handed to the engine
//  priv_key              // (optional) node identity, cf. icn-node keygen
//  peers.yaml            // (optional) federation peers
//  icn.toml              // (optional) configuration file read by viper
package config
