package crypto

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes data with legacy Keccak-256 (the Ethereum variant).
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// OrderDigest derives the bytes32 identifier the exchange protocol uses
// for cancellations: keccak256 of the order id string.
func OrderDigest(orderID string) [32]byte {
	return Keccak256([]byte(orderID))
}
