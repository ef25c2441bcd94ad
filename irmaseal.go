// Package irmaseal is the public entry point to the envelope format: it
// wires the identity, KEM, header, and stream layers together behind a
// narrow Encrypt/Open surface, the way age.go narrows age's internal
// packages down to Encrypt/Decrypt around x25519/scrypt recipients.
package irmaseal

import (
	"io"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/internal/envelope"
	"github.com/encryption4all/irmaseal/internal/wire"
	"github.com/encryption4all/irmaseal/kem"
)

// DefaultSegmentSize is the segment size new envelopes are sealed with
// unless the caller requests otherwise.
const DefaultSegmentSize = wire.DefaultSegmentSize

// Encrypt seals plaintext into w as a complete envelope addressed to the
// given recipients, under the scheme's master public key. Each entry in
// policies is a recipient identifier mapped to the attribute policy that
// recipient must satisfy to obtain a decapsulating user secret key.
func Encrypt(w io.Writer, scheme kem.Scheme, mpk kem.PublicKey, policies map[string]identity.RecipientPolicy, rand io.Reader, plaintext io.Reader) error {
	return envelope.Seal(w, scheme, mpk, policies, DefaultSegmentSize, rand, plaintext)
}

// EncryptWithSegmentSize is Encrypt with an explicit segment size,
// exposed for callers that need to tune memory/throughput trade-offs.
func EncryptWithSegmentSize(w io.Writer, scheme kem.Scheme, mpk kem.PublicKey, policies map[string]identity.RecipientPolicy, segmentSize uint32, rand io.Reader, plaintext io.Reader) error {
	return envelope.Seal(w, scheme, mpk, policies, segmentSize, rand, plaintext)
}

// Decryptor is an opened envelope awaiting a recipient's choice of
// identifier and user secret key. It is the public alias of
// internal/envelope.Envelope.
type Decryptor = envelope.Envelope

// Open reads and validates an envelope's prelude, version, and header
// from r, and returns a Decryptor the caller uses to pick a recipient
// identifier and supply its user secret key.
func Open(r io.Reader, scheme kem.Scheme) (*Decryptor, error) {
	return envelope.Open(r, scheme)
}
