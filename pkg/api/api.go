// Package api defines the three request/response shapes of §4.6's PKG
// protocol, independent of their HTTP binding: Parameters, the
// start/jwt/key session flow, and the caller-side polling state machine.
package api

import (
	"github.com/encryption4all/irmaseal/identity"
)

// FormatVersion is the Parameters.FormatVersion this server emits.
const FormatVersion uint8 = 2

// Parameters is the response to GET /v2/parameters: the PKG's master
// public key, cacheable and served with an ETag/Last-Modified pair
// derived from the key file bytes.
type Parameters struct {
	FormatVersion uint8  `json:"format_version"`
	PublicKey     []byte `json:"public_key"`
}

// Default validity windows and caps, in seconds, per §4.6.
const (
	DefaultValiditySeconds        = 300
	KeyValidityCapSeconds  uint64 = 86400
	SignValidityCapSeconds uint64 = 8_640_000
)

// KeyRequest is the body of POST /v2/{irma|request}/start: the
// conjunction of attributes the PKG must require the requester to
// disclose, and an optional requested validity window.
type KeyRequest struct {
	Con      []identity.Attribute `json:"con"`
	Validity *uint64              `json:"validity,omitempty"`
}

// SessionData is the response to a successful start call: a pointer the
// client hands to its IRMA-compatible app to actually run the disclosure
// session, and an opaque polling token.
type SessionData struct {
	SessionPtr string `json:"session_ptr"`
	Token      string `json:"token"`
}

// SessionStatus is the external session oracle's status for a token.
type SessionStatus string

const (
	StatusPending   SessionStatus = "PENDING"
	StatusConnected SessionStatus = "CONNECTED"
	StatusCancelled SessionStatus = "CANCELLED"
	StatusTimeout   SessionStatus = "TIMEOUT"
	StatusDone      SessionStatus = "DONE"
)

// ProofStatus is the disclosure proof's validity, meaningful once the
// session has reached StatusDone.
type ProofStatus string

const (
	ProofValid   ProofStatus = "VALID"
	ProofInvalid ProofStatus = "INVALID"
)

// KeyResponse is the response to GET /v2/{irma|request}/key/{timestamp}.
// Key is populated iff Status == StatusDone, ProofStatus == ProofValid,
// and the disclosed attributes matched every (type, value) pair in the
// JWT's encoded request.
type KeyResponse struct {
	Status      SessionStatus `json:"status"`
	ProofStatus *ProofStatus  `json:"proof_status,omitempty"`
	Key         []byte        `json:"key,omitempty"`
}

// ClientState is the caller-side polling state machine of §4.6.
type ClientState int

const (
	Started ClientState = iota
	Polling
	DoneValid
	KeyReleased
	DoneInvalid
	Cancelled
	Timeout
)

func (s ClientState) String() string {
	switch s {
	case Started:
		return "Started"
	case Polling:
		return "Polling"
	case DoneValid:
		return "DoneValid"
	case KeyReleased:
		return "KeyReleased"
	case DoneInvalid:
		return "DoneInvalid"
	case Cancelled:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// ClampValidity applies the §4.6 clamping rule for key-retrieval
// sessions: absent requests default to 300s; requests at or below the
// 86400s cap pass through verbatim; requests over the cap are rejected.
func ClampValidity(requested *uint64) (uint64, bool) {
	if requested == nil {
		return DefaultValiditySeconds, true
	}
	if *requested > KeyValidityCapSeconds {
		return 0, false
	}
	return *requested, true
}
