// Package kem defines the capability-set interface that the header and
// artifact-codec packages are parameterized over, following the
// specification's "polymorphism over KEM scheme" design note: a single
// scheme-parameterized type with a fixed set of byte-length constants and
// operations, rather than a concrete cryptographic implementation.
//
// A concrete multi-recipient identity-based KEM (mr-IBKEM) satisfying
// this interface is the one cryptographic primitive this module treats
// as an external black box, per the specification's scope: the real
// CGW-KV scheme is pairing-based and out of scope. Package kem/kemsim
// provides a structurally faithful, deterministic stand-in used to
// exercise every other component end to end.
package kem

import "io"

// PublicKey is an opaque, scheme-typed master public key.
type PublicKey interface {
	Bytes() []byte
}

// MasterSecretKey is an opaque, scheme-typed master secret key. It never
// leaves the Private Key Generator.
type MasterSecretKey interface {
	Bytes() []byte
}

// UserSecretKey is an opaque, scheme-typed user secret key extracted for
// a single identity.
type UserSecretKey interface {
	Bytes() []byte
}

// Ciphertext is an opaque, fixed-length KEM ciphertext produced for a
// single recipient identity by a (possibly multi-recipient) encapsulation
// call.
type Ciphertext interface {
	Bytes() []byte
}

// SharedSecret is the fixed-length secret produced by encapsulation and
// reproduced by decapsulation with a matching user secret key. It is
// never serialized onto the wire.
type SharedSecret []byte

// Scheme is the capability set a concrete IBKEM implementation must
// provide. PKBytes, USKBytes and CTBytes are the scheme's fixed encoded
// lengths, used by the artifact codec to size its buffers and by the
// header parser to validate ciphertext lengths.
type Scheme interface {
	Name() string

	PKBytes() int
	USKBytes() int
	CTBytes() int

	// Setup generates a fresh master key pair.
	Setup(rand io.Reader) (PublicKey, MasterSecretKey, error)

	// Extract derives the user secret key for a single identity.
	Extract(msk MasterSecretKey, id []byte, rand io.Reader) (UserSecretKey, error)

	// MultiEncaps performs a single multi-recipient encapsulation: one
	// shared secret, and one ciphertext per identity, in the same order
	// as ids.
	MultiEncaps(pk PublicKey, ids [][]byte, rand io.Reader) ([]Ciphertext, SharedSecret, error)

	// Decaps recovers the shared secret for a single recipient, given
	// its user secret key and the ciphertext addressed to its identity.
	// It returns an error if the ciphertext does not decapsulate under
	// usk (e.g. usk was extracted for a different identity).
	Decaps(usk UserSecretKey, ct Ciphertext) (SharedSecret, error)

	// ParsePublicKey, ParseUserSecretKey and ParseCiphertext decode the
	// scheme's fixed-length canonical byte encoding. The bool return is
	// a validity flag rather than a second error value so that callers
	// performing constant-time decoding (see package artifact) can
	// select on it without branching on the decoded bytes themselves.
	ParsePublicKey(b []byte) (PublicKey, bool)
	ParseUserSecretKey(b []byte) (UserSecretKey, bool)
	ParseCiphertext(b []byte) (Ciphertext, bool)
}

// Encaps is a convenience wrapper around MultiEncaps for a single
// identity.
func Encaps(s Scheme, pk PublicKey, id []byte, rand io.Reader) (Ciphertext, SharedSecret, error) {
	cts, ss, err := s.MultiEncaps(pk, [][]byte{id}, rand)
	if err != nil {
		return nil, nil, err
	}
	return cts[0], ss, nil
}
