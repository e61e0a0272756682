// Package keys implements the public key cryptography used throughout
// CarryChain.
//
// Every account on the ledger, whether it belongs to a traveler, a shipper, or
// the platform operator, is identified by an address derived from an ECDSA
// public key. Transactions submitted to the node are signed with the
// corresponding private key; the node verifies the signature and recovers the
// caller's address before executing anything.
//
// CarryChain uses elliptic curve cryptography (ECDSA) with the secp256k1
// curve. We chose the secp256k1 curve because it is also used by Bitcoin and
// Ethereum, which means that Bitcoin and Ethereum keys can be used to operate
// a CarryChain account.
package keys
