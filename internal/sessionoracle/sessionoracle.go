// Package sessionoracle simulates the external IRMA-like disclosure
// session service the PKG protocol of §4.6 delegates to: starting a
// session hands back an opaque token and a pointer a wallet app would
// scan, and the session transitions from Pending to Done as attributes
// are disclosed. It is safe to share across request-handling goroutines,
// per §5 ("a client that is safe to share across tasks; sessions are
// identified by opaque tokens").
package sessionoracle

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/pkg/api"
)

// Session is one in-flight or completed disclosure session.
type Session struct {
	Token       string
	SessionPtr  string
	Con         []identity.Attribute
	Validity    uint64
	Status      api.SessionStatus
	ProofStatus api.ProofStatus
	Disclosed   []identity.Attribute
	StartedAt   time.Time
}

// Oracle tracks every session by its opaque token. The zero value is
// ready to use. A stored Session is never modified in place: Disclose and
// Cancel store an updated copy, so a *Session obtained from Get can be
// read without locking.
type Oracle struct {
	sessions sync.Map // token string -> *Session
}

// New returns an empty Oracle.
func New() *Oracle { return &Oracle{} }

// Start creates a new Pending session for the given attribute
// conjunction and validity window, returning the token and simulated
// session pointer the caller presents to its disclosure client.
func (o *Oracle) Start(con []identity.Attribute, validity uint64) *Session {
	s := &Session{
		Token:      uuid.NewString(),
		SessionPtr: "irma://session/" + uuid.NewString(),
		Con:        con,
		Validity:   validity,
		Status:     api.StatusPending,
		StartedAt:  time.Now(),
	}
	o.sessions.Store(s.Token, s)
	return s
}

// Get looks up a session by token.
func (o *Oracle) Get(token string) (*Session, bool) {
	v, ok := o.sessions.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Disclose simulates the holder completing the disclosure session: it
// marks the session Done and computes its proof status by checking that
// every requested (type, value) pair was disclosed with a matching,
// non-null value.
func (o *Oracle) Disclose(token string, disclosed []identity.Attribute) (*Session, bool) {
	v, ok := o.sessions.Load(token)
	if !ok {
		return nil, false
	}
	cur := *v.(*Session)
	s := &cur

	want := make(map[string]string, len(s.Con))
	for _, a := range s.Con {
		if a.Value != nil {
			want[a.Type] = *a.Value
		}
	}
	got := make(map[string]string, len(disclosed))
	for _, a := range disclosed {
		if a.Value != nil {
			got[a.Type] = *a.Value
		}
	}

	valid := len(want) > 0
	for typ, value := range want {
		if gv, ok := got[typ]; !ok || gv != value {
			valid = false
			break
		}
	}

	s.Disclosed = disclosed
	s.Status = api.StatusDone
	if valid {
		s.ProofStatus = api.ProofValid
	} else {
		s.ProofStatus = api.ProofInvalid
	}
	o.sessions.Store(token, s)
	return s, true
}

// Cancel marks a session Cancelled, as a disclosure client would on user
// refusal.
func (o *Oracle) Cancel(token string) {
	if v, ok := o.sessions.Load(token); ok {
		s := *v.(*Session)
		s.Status = api.StatusCancelled
		o.sessions.Store(token, &s)
	}
}
