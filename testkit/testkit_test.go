package testkit_test

import (
	"crypto/rand"
	"testing"

	"github.com/encryption4all/irmaseal/kem"
	"github.com/encryption4all/irmaseal/kem/kemsim"
	"github.com/encryption4all/irmaseal/testkit"
)

func TestNewBundleExtractsOneUSKPerPolicy(t *testing.T) {
	bundle, err := testkit.New(kemsim.New(), testkit.DefaultPolicies(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(bundle.USKs) != 2 {
		t.Fatalf("expected 2 user secret keys, got %d", len(bundle.USKs))
	}
	for id := range bundle.Policies {
		if _, ok := bundle.USKs[id]; !ok {
			t.Fatalf("missing user secret key for %q", id)
		}
	}
}

func TestSharedSecretAgreement(t *testing.T) {
	scheme := kemsim.New()
	bundle, err := testkit.New(scheme, testkit.DefaultPolicies(), nil)
	if err != nil {
		t.Fatal(err)
	}

	id, err := bundle.Policies["alice"].DeriveIdentity()
	if err != nil {
		t.Fatal(err)
	}
	ct, ss, err := kem.Encaps(scheme, bundle.MPK, id, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	got, err := scheme.Decaps(bundle.USKs["alice"], ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(ss) {
		t.Fatal("shared secret from encapsulation does not match the one recovered by decapsulation")
	}
}
