package ledger

import (
	"bytes"
	"fmt"

	"github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/crypto"
)

// AddressLength is the length, in bytes, of a ledger address.
const AddressLength = 20

// Address identifies an account on the ledger. User accounts are derived from
// ECDSA public keys, contract accounts from a well-known name.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It is not a valid recipient.
var ZeroAddress = Address{}

// BytesToAddress converts a byte slice to an Address. If the slice is longer
// than AddressLength, only the trailing bytes are kept.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// AddressFromPubKey derives an address from the uncompressed form of a
// secp256k1 public key. The address is the last 20 bytes of the SHA256 hash of
// the public key.
func AddressFromPubKey(pub []byte) Address {
	return BytesToAddress(crypto.SHA256(pub))
}

// ContractAddress derives the well-known address of a named contract
// deployed on the ledger.
func ContractAddress(name string) Address {
	return BytesToAddress(crypto.SHA256([]byte("carrychain/" + name)))
}

// ParseAddress decodes the string representation of an address, as produced by
// String().
func ParseAddress(s string) (Address, error) {
	if len(s) != 2+2*AddressLength {
		return ZeroAddress, fmt.Errorf("invalid address length: got %d, want %d", len(s), 2+2*AddressLength)
	}
	raw, err := common.DecodeFromString(s)
	if err != nil {
		return ZeroAddress, err
	}
	return BytesToAddress(raw), nil
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return bytes.Equal(a[:], ZeroAddress[:])
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// String returns the 0X-prefixed uppercase hex representation of the address.
func (a Address) String() string {
	return common.EncodeToString(a[:])
}
