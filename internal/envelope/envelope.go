// Package envelope implements the outermost container format of §4.5 and
// the seal/unseal data flow of §4.4: it wires together header
// construction, key derivation, and the segmented AEAD stream into a
// single on-disk (or on-wire) envelope.
package envelope

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/encryption4all/irmaseal/errs"
	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/internal/kdf"
	"github.com/encryption4all/irmaseal/internal/stream"
	"github.com/encryption4all/irmaseal/internal/wire"
	"github.com/encryption4all/irmaseal/kem"
)

// Magic is the envelope's fixed four-byte prelude. Implementations must
// fix this once and refuse every other value on read.
var Magic = [4]byte{0x14, 0x8A, 0x8E, 0xA7}

// Version is the sole envelope format version this implementation
// produces and accepts.
const Version uint16 = 0x0002

// MaxHeaderLen is the absolute cap on an envelope's declared header
// length, independent of what any particular writer chooses to produce.
const MaxHeaderLen = 1 << 20 // 1 MiB

// DefaultIVLen is the IV length required by the default Aes128Gcm
// algorithm.
const DefaultIVLen = 16

func randBytes(rand io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand, b); err != nil {
		return nil, errs.Wrap(errs.IoError, "envelope: failed to read random bytes", err)
	}
	return b, nil
}

// BuildHeader performs §4.3's build algorithm: it derives one IBE
// identity per policy (in a deterministic, sorted-by-identifier order),
// invokes the scheme's multi-recipient encapsulation, and assembles the
// resulting Header together with the shared secret every recipient's
// ciphertext was encapsulated against.
func BuildHeader(scheme kem.Scheme, mpk kem.PublicKey, policies map[string]identity.RecipientPolicy, segmentSize uint32, rand io.Reader) (*wire.Header, kem.SharedSecret, error) {
	if len(policies) == 0 {
		return nil, nil, errs.New(errs.ConstraintViolation, "envelope: at least one recipient policy is required")
	}

	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	identities := make([][]byte, len(ids))
	for i, id := range ids {
		digest, err := policies[id].DeriveIdentity()
		if err != nil {
			return nil, nil, errs.Wrap(errs.FormatViolation, "envelope: failed to derive identity for recipient "+id, err)
		}
		identities[i] = digest
	}

	cts, ss, err := scheme.MultiEncaps(mpk, identities, rand)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Kem, "envelope: multi-recipient encapsulation failed", err)
	}

	iv, err := randBytes(rand, DefaultIVLen)
	if err != nil {
		return nil, nil, err
	}
	algo, err := wire.NewAes128Gcm(iv)
	if err != nil {
		return nil, nil, err
	}
	if segmentSize == 0 {
		segmentSize = wire.DefaultSegmentSize
	}

	recipients := make(map[string]wire.RecipientHeader, len(ids))
	for i, id := range ids {
		recipients[id] = wire.RecipientHeader{
			Policy: policies[id].Hide(),
			CT:     cts[i].Bytes(),
		}
	}

	return &wire.Header{
		Policies: recipients,
		Algo:     algo,
		Mode:     wire.NewStreamingMode(segmentSize, wire.SizeHint{}),
	}, ss, nil
}

// Seal writes a complete envelope to w: the magic prelude, version,
// header, and the segmented AEAD ciphertext stream for plaintext.
func Seal(w io.Writer, scheme kem.Scheme, mpk kem.PublicKey, policies map[string]identity.RecipientPolicy, segmentSize uint32, rand io.Reader, plaintext io.Reader) error {
	header, ss, err := BuildHeader(scheme, mpk, policies, segmentSize, rand)
	if err != nil {
		return err
	}
	keys := kdf.Derive(ss)

	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return err
	}
	if len(headerBytes) > MaxHeaderLen {
		return errs.New(errs.ConstraintViolation, "envelope: header exceeds the 1 MiB absolute cap")
	}

	if _, err := w.Write(Magic[:]); err != nil {
		return errs.Wrap(errs.IoError, "envelope: failed to write magic prelude", err)
	}
	var versionBuf [2]byte
	binary.BigEndian.PutUint16(versionBuf[:], Version)
	if _, err := w.Write(versionBuf[:]); err != nil {
		return errs.Wrap(errs.IoError, "envelope: failed to write version", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.IoError, "envelope: failed to write header length", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		return errs.Wrap(errs.IoError, "envelope: failed to write header", err)
	}

	sw, err := stream.NewEncryptWriter(keys.AEADKey[:stream.KeySize], header.Algo.IV(), header.Mode.SegmentSize(), w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(sw, plaintext); err != nil {
		return errs.Wrap(errs.IoError, "envelope: failed to read plaintext", err)
	}
	return sw.Close()
}

// Envelope is an opened envelope whose header has been read and
// validated, but whose ciphertext has not yet been decrypted: the
// caller inspects RecipientIDs to choose which recipient it is, obtains
// a matching UserSecretKey, and calls Open.
type Envelope struct {
	header *wire.Header
	src    io.Reader
}

// Open reads and validates an envelope's prelude, version, and header
// from r, leaving r positioned at the start of the ciphertext stream.
func Open(r io.Reader, scheme kem.Scheme) (*Envelope, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "envelope: failed to read magic prelude", err)
	}
	if magic != Magic {
		return nil, errs.New(errs.FormatViolation, "envelope: unrecognized magic prelude")
	}

	var versionBuf [2]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "envelope: failed to read version", err)
	}
	if binary.BigEndian.Uint16(versionBuf[:]) != Version {
		return nil, errs.New(errs.FormatViolation, "envelope: unsupported envelope version")
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "envelope: failed to read header length", err)
	}
	headerLen := binary.BigEndian.Uint32(lenBuf[:])
	if headerLen > MaxHeaderLen {
		return nil, errs.New(errs.ConstraintViolation, "envelope: header length exceeds the 1 MiB absolute cap")
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "envelope: failed to read header", err)
	}
	header, err := wire.ParseBinary(headerBytes, scheme.CTBytes())
	if err != nil {
		return nil, err
	}

	return &Envelope{header: header, src: r}, nil
}

// RecipientIDs returns the identifiers of every recipient addressed by
// this envelope, in no particular order, for the caller to present to a
// user for selection.
func (e *Envelope) RecipientIDs() []string {
	ids := make([]string, 0, len(e.header.Policies))
	for id := range e.header.Policies {
		ids = append(ids, id)
	}
	return ids
}

// Policy returns the hidden policy a given recipient identifier must
// satisfy, so the caller can prompt for the attribute values it
// discloses before requesting a user secret key.
func (e *Envelope) Policy(id string) (identity.HiddenPolicy, bool) {
	rh, ok := e.header.Policies[id]
	return rh.Policy, ok
}

// Open decapsulates the named recipient's ciphertext with usk, derives
// the AEAD key, and returns a reader that streams the decrypted
// plaintext. Any authentication failure surfaces only once the caller
// reads far enough to reach the corrupted segment; no plaintext beyond
// the last authenticated segment is ever exposed.
func (e *Envelope) Open(id string, scheme kem.Scheme, usk kem.UserSecretKey) (io.Reader, error) {
	rh, ok := e.header.Policies[id]
	if !ok {
		return nil, errs.New(errs.FormatViolation, "envelope: no such recipient "+id)
	}
	ct, ok := scheme.ParseCiphertext(rh.CT)
	if !ok {
		return nil, errs.New(errs.FormatViolation, "envelope: malformed recipient ciphertext")
	}
	ss, err := scheme.Decaps(usk, ct)
	if err != nil {
		return nil, errs.Wrap(errs.Kem, "envelope: decapsulation failed", err)
	}
	keys := kdf.Derive(ss)
	return stream.NewDecryptReader(keys.AEADKey[:stream.KeySize], e.header.Algo.IV(), e.header.Mode.SegmentSize(), e.src)
}
