// Package kemsim is a deterministic, structurally faithful stand-in for
// a production multi-recipient identity-based KEM (the specification
// treats the real CGW-KV scheme as an external black box, out of scope
// for this repository).
//
// kemsim is NOT a security primitive. Its public key and master secret
// key share the same underlying bytes, which defeats the entire point of
// public-key cryptography; it exists only to drive the header builder,
// the stream sealer/unsealer, the artifact codec, and the PKG protocol
// through their real code paths in tests, without requiring a pairing
// library. Never wire kemsim into a deployment.
package kemsim

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/encryption4all/irmaseal/kem"
)

const (
	seedSize = 32
	maskSize = 32
	rSize    = 32
	tagSize  = sha256.Size

	// PKBytes, USKBytes and CTBytes are this scheme's fixed encoded
	// lengths, exported so callers that need to size buffers ahead of a
	// Parse* call don't have to construct a Scheme first.
	PKBytes  = seedSize
	USKBytes = maskSize
	CTBytes  = rSize + tagSize
)

var tagLabel = []byte("irmaseal/kemsim/tag")

// ErrDecapsFailed is returned by Decaps when the supplied user secret key
// was not extracted for the identity the ciphertext was encapsulated
// against.
var ErrDecapsFailed = errors.New("kemsim: ciphertext does not decapsulate under this user secret key")

type publicKey struct{ seed [seedSize]byte }

func (k publicKey) Bytes() []byte { return append([]byte(nil), k.seed[:]...) }

type masterSecretKey struct{ seed [seedSize]byte }

func (k masterSecretKey) Bytes() []byte { return append([]byte(nil), k.seed[:]...) }

type userSecretKey struct{ mask [maskSize]byte }

func (k userSecretKey) Bytes() []byte { return append([]byte(nil), k.mask[:]...) }

type ciphertext struct {
	xor [rSize]byte
	tag [tagSize]byte
}

func (c ciphertext) Bytes() []byte {
	b := make([]byte, 0, CTBytes)
	b = append(b, c.xor[:]...)
	b = append(b, c.tag[:]...)
	return b
}

// Scheme implements kem.Scheme.
type Scheme struct{}

// New returns the simulated scheme.
func New() Scheme { return Scheme{} }

func (Scheme) Name() string  { return "kemsim" }
func (Scheme) PKBytes() int  { return PKBytes }
func (Scheme) USKBytes() int { return USKBytes }
func (Scheme) CTBytes() int  { return CTBytes }

// derive expands (key, info) into a tagSize-byte output via HKDF-SHA256.
// kemsim uses it in place of the pairing evaluation a real IBKEM would
// perform.
func derive(key, info []byte) [tagSize]byte {
	h := hkdf.New(sha256.New, key, nil, info)
	var out [tagSize]byte
	if _, err := io.ReadFull(h, out[:]); err != nil {
		panic("kemsim: hkdf expand failed: " + err.Error())
	}
	return out
}

func (Scheme) Setup(rand io.Reader) (kem.PublicKey, kem.MasterSecretKey, error) {
	var seed [seedSize]byte
	if _, err := io.ReadFull(rand, seed[:]); err != nil {
		return nil, nil, err
	}
	return publicKey{seed: seed}, masterSecretKey{seed: seed}, nil
}

func (Scheme) Extract(msk kem.MasterSecretKey, id []byte, _ io.Reader) (kem.UserSecretKey, error) {
	m, ok := msk.(masterSecretKey)
	if !ok {
		return nil, errors.New("kemsim: not a kemsim master secret key")
	}
	tag := derive(m.seed[:], id)
	var mask [maskSize]byte
	copy(mask[:], tag[:])
	return userSecretKey{mask: mask}, nil
}

func (Scheme) MultiEncaps(pk kem.PublicKey, ids [][]byte, rand io.Reader) ([]kem.Ciphertext, kem.SharedSecret, error) {
	p, ok := pk.(publicKey)
	if !ok {
		return nil, nil, errors.New("kemsim: not a kemsim public key")
	}
	if len(ids) == 0 {
		return nil, nil, errors.New("kemsim: no identities given to encapsulate for")
	}

	var r [rSize]byte
	if _, err := io.ReadFull(rand, r[:]); err != nil {
		return nil, nil, err
	}

	tag := derive(r[:], tagLabel)

	cts := make([]kem.Ciphertext, len(ids))
	for i, id := range ids {
		mask := derive(p.seed[:], id)
		var xor [rSize]byte
		for j := range xor {
			xor[j] = mask[j] ^ r[j]
		}
		cts[i] = ciphertext{xor: xor, tag: tag}
	}

	ss := sha256.Sum256(r[:])
	return cts, ss[:], nil
}

func (Scheme) Decaps(usk kem.UserSecretKey, ct kem.Ciphertext) (kem.SharedSecret, error) {
	u, ok := usk.(userSecretKey)
	if !ok {
		return nil, errors.New("kemsim: not a kemsim user secret key")
	}
	c, ok := ct.(ciphertext)
	if !ok {
		return nil, errors.New("kemsim: not a kemsim ciphertext")
	}

	var r [rSize]byte
	for j := range r {
		r[j] = c.xor[j] ^ u.mask[j]
	}

	expected := derive(r[:], tagLabel)
	if subtle.ConstantTimeCompare(expected[:], c.tag[:]) != 1 {
		return nil, ErrDecapsFailed
	}

	ss := sha256.Sum256(r[:])
	return ss[:], nil
}

// ParseMasterSecretKey decodes a master secret key. It is not part of
// kem.Scheme (real schemes' master secret keys are never expected to
// flow through a generic artifact codec), but kemsim exposes it so a PKG
// binary can reload one from disk across restarts.
func (Scheme) ParseMasterSecretKey(b []byte) (kem.MasterSecretKey, bool) {
	if len(b) != seedSize {
		return nil, false
	}
	var seed [seedSize]byte
	copy(seed[:], b)
	return masterSecretKey{seed: seed}, true
}

func (Scheme) ParsePublicKey(b []byte) (kem.PublicKey, bool) {
	if len(b) != PKBytes {
		return nil, false
	}
	var seed [seedSize]byte
	copy(seed[:], b)
	return publicKey{seed: seed}, true
}

func (Scheme) ParseUserSecretKey(b []byte) (kem.UserSecretKey, bool) {
	if len(b) != USKBytes {
		return nil, false
	}
	var mask [maskSize]byte
	copy(mask[:], b)
	return userSecretKey{mask: mask}, true
}

func (Scheme) ParseCiphertext(b []byte) (kem.Ciphertext, bool) {
	if len(b) != CTBytes {
		return nil, false
	}
	var xor [rSize]byte
	var tag [tagSize]byte
	copy(xor[:], b[:rSize])
	copy(tag[:], b[rSize:])
	return ciphertext{xor: xor, tag: tag}, true
}
