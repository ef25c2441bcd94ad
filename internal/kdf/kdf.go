// Package kdf folds a KEM shared secret into symmetric key material for
// the AEAD layer, per §4.2 of the specification: SHA3-512 of the secret's
// canonical bytes, split into two 32-byte halves.
package kdf

import (
	"golang.org/x/crypto/sha3"
)

// KeySize is the length in bytes of each derived key half.
const KeySize = 32

// Keys holds the two 32-byte halves of the SHA3-512 output. AES-128-GCM
// only needs a 16-byte key, so the envelope package keys the stream cipher
// from AEADKey[:16]; MACKey is reserved for encrypt-then-MAC algorithms and
// unused by AES-128-GCM.
type Keys struct {
	AEADKey [KeySize]byte
	MACKey  [KeySize]byte
}

// Derive computes the AEAD and MAC key halves from a shared secret.
func Derive(sharedSecret []byte) Keys {
	sum := sha3.Sum512(sharedSecret)
	var k Keys
	copy(k.AEADKey[:], sum[:KeySize])
	copy(k.MACKey[:], sum[KeySize:])
	return k
}
