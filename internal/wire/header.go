// Package wire implements the per-envelope Header: its data model, the
// compact binary MessagePack encoding (field names preserved and
// shortened per §4.3 of the specification), and an equivalent JSON
// encoding. This is the Go analog of age's internal/format package,
// generalized from age's line-oriented recipient-stanza format to
// IRMAseal's MessagePack map format — the wire shapes differ, but the
// split between "data model + two interoperable encodings, enforced
// strictly on read" carries over directly.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/encryption4all/irmaseal/errs"
	"github.com/encryption4all/irmaseal/identity"
)

// Header contains metadata for every recipient of one envelope.
type Header struct {
	// Policies maps recipient identifiers to their RecipientHeader.
	Policies map[string]RecipientHeader
	Algo     Algorithm
	Mode     Mode
}

// RecipientHeader is the per-recipient slice of a Header: the hidden
// policy the recipient must satisfy, and the KEM ciphertext addressed to
// the identity that policy derives.
type RecipientHeader struct {
	Policy identity.HiddenPolicy
	CT     []byte
}

// --- wire-shaped mirrors of the identity types, with short, stable field names ---

type wireAttribute struct {
	Type  string  `msgpack:"type" json:"type"`
	Value *string `msgpack:"value,omitempty" json:"value,omitempty"`
}

type wireHiddenPolicy struct {
	Timestamp uint64          `msgpack:"timestamp" json:"timestamp"`
	Con       []wireAttribute `msgpack:"con" json:"con"`
}

func toWireHiddenPolicy(p identity.HiddenPolicy) wireHiddenPolicy {
	con := make([]wireAttribute, len(p.Con))
	for i, a := range p.Con {
		con[i] = wireAttribute{Type: a.Type}
	}
	return wireHiddenPolicy{Timestamp: p.Timestamp, Con: con}
}

func fromWireHiddenPolicy(w wireHiddenPolicy) identity.HiddenPolicy {
	con := make([]identity.Attribute, len(w.Con))
	for i, a := range w.Con {
		con[i] = identity.NewHiddenAttribute(a.Type)
	}
	return identity.HiddenPolicy{Timestamp: w.Timestamp, Con: con}
}

type wireRecipientHeader struct {
	P  wireHiddenPolicy `msgpack:"p" json:"p"`
	CT []byte           `msgpack:"ct" json:"ct"`
}

type wireHeader struct {
	RS   map[string]wireRecipientHeader `msgpack:"rs" json:"rs"`
	Algo Algorithm                      `msgpack:"algo" json:"algo"`
	Mode Mode                           `msgpack:"mode" json:"mode"`
}

func toWire(h *Header) wireHeader {
	rs := make(map[string]wireRecipientHeader, len(h.Policies))
	for id, rh := range h.Policies {
		rs[id] = wireRecipientHeader{P: toWireHiddenPolicy(rh.Policy), CT: rh.CT}
	}
	return wireHeader{RS: rs, Algo: h.Algo, Mode: h.Mode}
}

func fromWire(w wireHeader) *Header {
	rs := make(map[string]RecipientHeader, len(w.RS))
	for id, rh := range w.RS {
		rs[id] = RecipientHeader{Policy: fromWireHiddenPolicy(rh.P), CT: rh.CT}
	}
	return &Header{Policies: rs, Algo: w.Algo, Mode: w.Mode}
}

// MarshalBinary encodes the header as compact binary MessagePack, using
// the "rs"/"p"/"ct"/"algo"/"mode" short field names.
func (h *Header) MarshalBinary() ([]byte, error) {
	b, err := msgpack.Marshal(toWire(h))
	if err != nil {
		return nil, errs.Wrap(errs.ConstraintViolation, "failed to encode header", err)
	}
	return b, nil
}

// ParseBinary decodes a header from compact binary MessagePack and
// validates it: the policy map must be non-empty, and every recipient's
// ciphertext must be exactly ctLen bytes (the scheme's fixed ciphertext
// length).
func ParseBinary(b []byte, ctLen int) (*Header, error) {
	var w wireHeader
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "failed to decode header", err)
	}
	return validate(fromWire(w), ctLen)
}

// MarshalJSON encodes the header as JSON. Round-trip equivalent with the
// binary encoding: transcoding one to the other never loses information.
func (h *Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(h))
}

// ParseJSON decodes a header from its JSON encoding, applying the same
// validation as ParseBinary.
func ParseJSON(b []byte, ctLen int) (*Header, error) {
	var w wireHeader
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "failed to decode header", err)
	}
	return validate(fromWire(w), ctLen)
}

func validate(h *Header, ctLen int) (*Header, error) {
	if len(h.Policies) == 0 {
		return nil, errs.New(errs.FormatViolation, "header has no recipients")
	}
	for id, rh := range h.Policies {
		if len(rh.CT) != ctLen {
			return nil, errs.New(errs.FormatViolation, fmt.Sprintf("recipient %q: ciphertext length %d does not match scheme length %d", id, len(rh.CT), ctLen))
		}
	}
	return h, nil
}
