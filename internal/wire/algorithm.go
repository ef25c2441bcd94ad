package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// algoTag names the Algorithm tagged-union variants, matching the
// specification's enum names exactly. Only Aes128Gcm is implemented by
// the stream layer; the others are reserved for future use but are still
// recognized on the wire, since the specification requires that *unknown*
// tags fail to parse, not merely unimplemented ones.
type algoTag string

const (
	tagAes128Gcm         algoTag = "Aes128Gcm"
	tagXSalsa20Poly1305  algoTag = "XSalsa20Poly1305"
	tagAes128Ocb         algoTag = "Aes128Ocb"
	tagAegis128          algoTag = "Aegis128"
)

var algoIVLen = map[algoTag]int{
	tagAes128Gcm:        16,
	tagXSalsa20Poly1305: 24,
	tagAes128Ocb:        12,
	tagAegis128:         16,
}

// Algorithm is the symmetric-key encryption algorithm tagged union of
// §3. Exactly one of the known tags is set; the zero value is invalid.
type Algorithm struct {
	tag algoTag
	iv  []byte
}

// NewAes128Gcm builds the default, currently sole supported, algorithm
// variant with the given 16-byte IV.
func NewAes128Gcm(iv []byte) (Algorithm, error) {
	return newAlgorithm(tagAes128Gcm, iv)
}

func newAlgorithm(tag algoTag, iv []byte) (Algorithm, error) {
	want, ok := algoIVLen[tag]
	if !ok {
		return Algorithm{}, fmt.Errorf("wire: unknown algorithm tag %q", tag)
	}
	if len(iv) != want {
		return Algorithm{}, fmt.Errorf("wire: %s requires a %d-byte iv, got %d", tag, want, len(iv))
	}
	return Algorithm{tag: tag, iv: append([]byte(nil), iv...)}, nil
}

// IsAes128Gcm reports whether this is the Aes128Gcm variant.
func (a Algorithm) IsAes128Gcm() bool { return a.tag == tagAes128Gcm }

// IV returns the algorithm's initialization vector.
func (a Algorithm) IV() []byte { return append([]byte(nil), a.iv...) }

// Tag returns the algorithm's wire tag name.
func (a Algorithm) Tag() string { return string(a.tag) }

type algoBody struct {
	IV []byte `msgpack:"iv" json:"iv"`
}

func (a Algorithm) EncodeMsgpack(enc *msgpack.Encoder) error {
	if _, ok := algoIVLen[a.tag]; !ok {
		return fmt.Errorf("wire: cannot encode unset Algorithm")
	}
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(string(a.tag)); err != nil {
		return err
	}
	return enc.Encode(algoBody{IV: a.iv})
}

func (a *Algorithm) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("wire: algorithm must have exactly one tag, got %d", n)
	}
	key, err := dec.DecodeString()
	if err != nil {
		return err
	}
	tag := algoTag(key)
	want, ok := algoIVLen[tag]
	if !ok {
		return fmt.Errorf("wire: unknown algorithm tag %q", key)
	}
	var body algoBody
	if err := dec.Decode(&body); err != nil {
		return err
	}
	if len(body.IV) != want {
		return fmt.Errorf("wire: %s requires a %d-byte iv, got %d", tag, want, len(body.IV))
	}
	a.tag = tag
	a.iv = body.IV
	return nil
}

func (a Algorithm) MarshalJSON() ([]byte, error) {
	if _, ok := algoIVLen[a.tag]; !ok {
		return nil, fmt.Errorf("wire: cannot encode unset Algorithm")
	}
	m := map[string]algoBody{string(a.tag): {IV: a.iv}}
	return json.Marshal(m)
}

func (a *Algorithm) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("wire: algorithm must have exactly one tag, got %d", len(m))
	}
	for key, raw := range m {
		tag := algoTag(key)
		want, ok := algoIVLen[tag]
		if !ok {
			return fmt.Errorf("wire: unknown algorithm tag %q", key)
		}
		var body algoBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		if len(body.IV) != want {
			return fmt.Errorf("wire: %s requires a %d-byte iv, got %d", tag, want, len(body.IV))
		}
		a.tag = tag
		a.iv = body.IV
	}
	return nil
}
