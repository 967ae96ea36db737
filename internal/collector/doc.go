// Package collector talks to remote nodes and turns their answers into
// readings.
//
// There is one collector per task kind. Tendermint kinds use the node's
// HTTP RPC (consensus state, status, validators); EVM kinds use JSON-RPC
// eth_call and eth_getBalance; the price kind uses the gate.io spot API.
// [Table] maps kinds to collectors and is resolved once at startup.
package collector
