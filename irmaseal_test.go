package irmaseal_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	irmaseal "github.com/encryption4all/irmaseal"
	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/kem/kemsim"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	scheme := kemsim.New()
	mpk, msk, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	policy := identity.RecipientPolicy{
		Timestamp: 1700000000,
		Con: []identity.Attribute{
			identity.NewAttribute("pbdf.sidn-pbdf.email.email", "alice@example.com"),
		},
	}
	plaintext := []byte("a message for alice")

	var sealed bytes.Buffer
	err = irmaseal.Encrypt(&sealed, scheme, mpk,
		map[string]identity.RecipientPolicy{"alice": policy}, rand.Reader, bytes.NewReader(plaintext))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	dec, err := irmaseal.Open(bytes.NewReader(sealed.Bytes()), scheme)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	id, err := policy.DeriveIdentity()
	if err != nil {
		t.Fatal(err)
	}
	usk, err := scheme.Extract(msk, id, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	r, err := dec.Open("alice", scheme, usk)
	if err != nil {
		t.Fatalf("decrypt for alice: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}
