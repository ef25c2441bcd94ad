package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSegmentSize is the default Streaming segment size (64 KiB).
const DefaultSegmentSize = 65536

type modeTag string

const (
	tagStreaming modeTag = "Streaming"
	tagInMemory  modeTag = "InMemory"
)

// SizeHint carries an optional (min, max) hint about the payload size.
// Max is nil when unknown. The hint is only carried in the header; the
// stream layer does not read it.
type SizeHint struct {
	Min uint64
	Max *uint64
}

type streamingBody struct {
	SegmentSize uint32 `msgpack:"segment_size" json:"segment_size"`
	HintMin     uint64 `msgpack:"size_hint_min" json:"size_hint_min"`
	HintMax     *uint64 `msgpack:"size_hint_max,omitempty" json:"size_hint_max,omitempty"`
}

type inMemoryBody struct {
	Size uint64 `msgpack:"size" json:"size"`
}

// Mode is the encryption-mode tagged union of §3: either Streaming or
// InMemory. The zero value is invalid; use NewStreamingMode or
// NewInMemoryMode.
type Mode struct {
	tag         modeTag
	segmentSize uint32
	hint        SizeHint
	size        uint64
}

// DefaultStreamingMode returns the default mode: segment_size = 65536,
// hint = (0, none).
func DefaultStreamingMode() Mode {
	return Mode{tag: tagStreaming, segmentSize: DefaultSegmentSize}
}

// NewStreamingMode builds a Streaming mode with an explicit segment size
// and size hint.
func NewStreamingMode(segmentSize uint32, hint SizeHint) Mode {
	return Mode{tag: tagStreaming, segmentSize: segmentSize, hint: hint}
}

// NewInMemoryMode builds an InMemory mode for a payload of the given
// size.
func NewInMemoryMode(size uint64) Mode {
	return Mode{tag: tagInMemory, size: size}
}

// IsStreaming reports whether this is the Streaming variant.
func (m Mode) IsStreaming() bool { return m.tag == tagStreaming }

// SegmentSize returns the Streaming segment size; it is only meaningful
// when IsStreaming is true.
func (m Mode) SegmentSize() uint32 { return m.segmentSize }

// InMemorySize returns the InMemory payload size; it is only meaningful
// when IsStreaming is false.
func (m Mode) InMemorySize() uint64 { return m.size }

func (m Mode) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	switch m.tag {
	case tagStreaming:
		if err := enc.EncodeString(string(tagStreaming)); err != nil {
			return err
		}
		return enc.Encode(streamingBody{SegmentSize: m.segmentSize, HintMin: m.hint.Min, HintMax: m.hint.Max})
	case tagInMemory:
		if err := enc.EncodeString(string(tagInMemory)); err != nil {
			return err
		}
		return enc.Encode(inMemoryBody{Size: m.size})
	default:
		return fmt.Errorf("wire: cannot encode unset Mode")
	}
}

func (m *Mode) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("wire: mode must have exactly one tag, got %d", n)
	}
	key, err := dec.DecodeString()
	if err != nil {
		return err
	}
	switch modeTag(key) {
	case tagStreaming:
		var body streamingBody
		if err := dec.Decode(&body); err != nil {
			return err
		}
		m.tag, m.segmentSize, m.hint = tagStreaming, body.SegmentSize, SizeHint{Min: body.HintMin, Max: body.HintMax}
		return nil
	case tagInMemory:
		var body inMemoryBody
		if err := dec.Decode(&body); err != nil {
			return err
		}
		m.tag, m.size = tagInMemory, body.Size
		return nil
	default:
		return fmt.Errorf("wire: unknown mode tag %q", key)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	switch m.tag {
	case tagStreaming:
		return json.Marshal(map[string]streamingBody{
			string(tagStreaming): {SegmentSize: m.segmentSize, HintMin: m.hint.Min, HintMax: m.hint.Max},
		})
	case tagInMemory:
		return json.Marshal(map[string]inMemoryBody{string(tagInMemory): {Size: m.size}})
	default:
		return nil, fmt.Errorf("wire: cannot encode unset Mode")
	}
}

func (m *Mode) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("wire: mode must have exactly one tag, got %d", len(raw))
	}
	for key, v := range raw {
		switch modeTag(key) {
		case tagStreaming:
			var body streamingBody
			if err := json.Unmarshal(v, &body); err != nil {
				return err
			}
			m.tag, m.segmentSize, m.hint = tagStreaming, body.SegmentSize, SizeHint{Min: body.HintMin, Max: body.HintMax}
		case tagInMemory:
			var body inMemoryBody
			if err := json.Unmarshal(v, &body); err != nil {
				return err
			}
			m.tag, m.size = tagInMemory, body.Size
		default:
			return fmt.Errorf("wire: unknown mode tag %q", key)
		}
	}
	return nil
}
