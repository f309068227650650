// Package keys manages the identity of a node.
//
// Node keys and signatures are based on elliptic curve cryptography over the
// secp256k1 curve, using btcsuite's implementation. The private key lives in
// a plain hex file (priv_key) with user-only permissions. When present, it is
// used to sign the vertices broadcast to federation peers and it is handed to
// the execution engine as the node's credentials.
package keys
