// Package testkit builds the deterministic {MPK, policies, USKs} bundle
// described in §4.7, a fixture for round-trip and end-to-end tests that
// need user secret keys without standing up a PKG server.
package testkit

import (
	"crypto/rand"
	"io"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/kem"
)

// Bundle is a scheme's master key pair plus a fixed set of recipient
// policies and the user secret keys extracted for them.
type Bundle struct {
	Scheme   kem.Scheme
	MPK      kem.PublicKey
	MSK      kem.MasterSecretKey
	Policies map[string]identity.RecipientPolicy
	USKs     map[string]kem.UserSecretKey
}

// New runs scheme's Setup once against rand, then extracts one user
// secret key per policy. rand defaults to crypto/rand.Reader when nil.
func New(scheme kem.Scheme, policies map[string]identity.RecipientPolicy, rnd io.Reader) (*Bundle, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	mpk, msk, err := scheme.Setup(rnd)
	if err != nil {
		return nil, err
	}

	usks := make(map[string]kem.UserSecretKey, len(policies))
	for id, p := range policies {
		ident, err := p.DeriveIdentity()
		if err != nil {
			return nil, err
		}
		usk, err := scheme.Extract(msk, ident, rnd)
		if err != nil {
			return nil, err
		}
		usks[id] = usk
	}

	return &Bundle{Scheme: scheme, MPK: mpk, MSK: msk, Policies: policies, USKs: usks}, nil
}

// DefaultPolicies returns a small fixed policy map ("alice", "bob")
// useful as a quick fixture for tests that don't care about the exact
// attribute values.
func DefaultPolicies() map[string]identity.RecipientPolicy {
	return map[string]identity.RecipientPolicy{
		"alice": {
			Timestamp: 1700000000,
			Con:       []identity.Attribute{identity.NewAttribute("email", "alice@example.com")},
		},
		"bob": {
			Timestamp: 1700000000,
			Con:       []identity.Attribute{identity.NewAttribute("email", "bob@example.com")},
		},
	}
}
