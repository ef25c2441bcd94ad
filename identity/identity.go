// Package identity implements the attribute-policy data model: the
// sender-facing Attribute and RecipientPolicy types, their hidden
// (value-stripped) projection, and the deterministic canonical encoding
// that turns a policy into an IBE identity.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// ErrAttributeTooLong is returned by DeriveIdentity when an attribute's
// type or value string is longer than 0xFFFE bytes, the largest length the
// canonical encoding accepts (0xFFFF is reserved as the hidden-value marker).
var ErrAttributeTooLong = errors.New("identity: attribute type or value exceeds 65534 bytes")

// hiddenValueMarker is written in place of a 16-bit value length when an
// attribute's value has been stripped. It can never collide with a real
// length, since a real value's encoded length tops out at 0xFFFE.
const hiddenValueMarker = 0xFFFF

// Attribute is a single {type, value} constraint. A hidden attribute (as
// found in a HiddenPolicy) has a nil Value; a disclosed attribute (as
// found in a RecipientPolicy) has a non-nil Value.
type Attribute struct {
	Type  string  `json:"type"`
	Value *string `json:"value,omitempty"`
}

// NewAttribute builds a disclosed attribute.
func NewAttribute(typ, value string) Attribute {
	v := value
	return Attribute{Type: typ, Value: &v}
}

// NewHiddenAttribute builds a hidden attribute (no disclosed value).
func NewHiddenAttribute(typ string) Attribute {
	return Attribute{Type: typ}
}

// Hidden reports whether this attribute carries no disclosed value.
func (a Attribute) Hidden() bool { return a.Value == nil }

// RecipientPolicy is a full, ordered conjunction of attribute constraints
// bound to a timestamp. Every attribute must carry a disclosed value; the
// order of Con is part of the derived identity and must be preserved.
type RecipientPolicy struct {
	Timestamp uint64
	Con       []Attribute
}

// HiddenPolicy is the value-stripped projection of a RecipientPolicy: it
// discloses only the schema (attribute types, in order) the recipient
// must satisfy, plus the timestamp.
type HiddenPolicy struct {
	Timestamp uint64
	Con       []Attribute
}

// Hide projects a full policy down to its HiddenPolicy: every attribute
// value is stripped, the attribute types and their order, and the
// timestamp, are preserved.
func (p RecipientPolicy) Hide() HiddenPolicy {
	con := make([]Attribute, len(p.Con))
	for i, a := range p.Con {
		con[i] = NewHiddenAttribute(a.Type)
	}
	return HiddenPolicy{Timestamp: p.Timestamp, Con: con}
}

// canonicalEncode writes the canonical byte encoding described in §3 of
// the specification: big-endian timestamp, then for each attribute (in
// order) a 2-byte big-endian type length, the type bytes, a 2-byte
// big-endian value length (or 0xFFFF if the value is hidden), and the
// value bytes. This is the only encoding in the system whose bytes must
// be bit-identical across platforms and language implementations, since
// it is hashed to derive the IBE identity that both the sender and the
// PKG must compute independently and agree on.
func canonicalEncode(timestamp uint64, con []Attribute) ([]byte, error) {
	buf := make([]byte, 0, 8+32*len(con))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	buf = append(buf, ts[:]...)

	for _, a := range con {
		if len(a.Type) > 0xFFFE {
			return nil, ErrAttributeTooLong
		}
		var tl [2]byte
		binary.BigEndian.PutUint16(tl[:], uint16(len(a.Type)))
		buf = append(buf, tl[:]...)
		buf = append(buf, a.Type...)

		var vl [2]byte
		if a.Value == nil {
			binary.BigEndian.PutUint16(vl[:], hiddenValueMarker)
			buf = append(buf, vl[:]...)
			continue
		}
		if len(*a.Value) > 0xFFFE {
			return nil, ErrAttributeTooLong
		}
		binary.BigEndian.PutUint16(vl[:], uint16(len(*a.Value)))
		buf = append(buf, vl[:]...)
		buf = append(buf, *a.Value...)
	}

	return buf, nil
}

// DeriveIdentity computes the deterministic IBE identity for a full
// policy: the SHA-256 digest of its canonical byte encoding. Two
// byte-identical policy encodings always derive byte-identical
// identities, regardless of platform or process.
func (p RecipientPolicy) DeriveIdentity() ([]byte, error) {
	b, err := canonicalEncode(p.Timestamp, p.Con)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// Types returns the ordered attribute type list, used to check that
// hiding a policy preserves the attribute schema and order.
func (p RecipientPolicy) Types() []string {
	out := make([]string, len(p.Con))
	for i, a := range p.Con {
		out[i] = a.Type
	}
	return out
}

// Types returns the ordered attribute type list of a hidden policy.
func (p HiddenPolicy) Types() []string {
	out := make([]string, len(p.Con))
	for i, a := range p.Con {
		out[i] = a.Type
	}
	return out
}
