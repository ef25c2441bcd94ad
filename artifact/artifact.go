// Package artifact implements the wire codec for the long-lived
// cryptographic artifacts handed between sender, PKG, and recipient:
// master public keys and user secret keys. The on-disk/on-wire form is
// padded standard base64 of the scheme's canonical fixed-length byte
// encoding.
//
// Decoding is constant-time with respect to the secret byte contents:
// the scheme's byte-to-value routine returns a validity flag instead of
// an error that a caller might be tempted to branch on before even
// looking at the bytes, and this package does not itself inspect or
// branch on the decoded bytes before deciding success or failure.
// Structural validation of the base64 encoding (padding, alphabet,
// length) is allowed to branch early, since that information is already
// public from the ciphertext/wire framing.
package artifact

import (
	"encoding/base64"

	"github.com/encryption4all/irmaseal/errs"
	"github.com/encryption4all/irmaseal/kem"
)

var b64 = base64.StdEncoding

// EncodePublicKey renders a master public key as padded standard
// base64. Encoding of public values is not required to be constant-time.
func EncodePublicKey(pk kem.PublicKey) string {
	return b64.EncodeToString(pk.Bytes())
}

// DecodePublicKey parses a base64-encoded master public key for the
// given scheme.
func DecodePublicKey(s string, scheme kem.Scheme) (kem.PublicKey, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "invalid base64 public key", err)
	}
	pk, ok := scheme.ParsePublicKey(b)
	if !ok {
		return nil, errs.New(errs.FormatViolation, "invalid public key encoding")
	}
	return pk, nil
}

// EncodeUserSecretKey renders a user secret key as padded standard
// base64.
func EncodeUserSecretKey(usk kem.UserSecretKey) string {
	return b64.EncodeToString(usk.Bytes())
}

// DecodeUserSecretKey parses a base64-encoded user secret key for the
// given scheme. The validity of the decoded group element is reported as
// a flag by the scheme, not an early return, so that a failure here never
// discloses which byte of a secret key was wrong.
func DecodeUserSecretKey(s string, scheme kem.Scheme) (kem.UserSecretKey, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "invalid base64 user secret key", err)
	}
	usk, ok := scheme.ParseUserSecretKey(b)
	if !ok {
		return nil, errs.New(errs.FormatViolation, "invalid user secret key encoding")
	}
	return usk, nil
}
