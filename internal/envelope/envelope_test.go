package envelope_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/internal/envelope"
	"github.com/encryption4all/irmaseal/kem"
	"github.com/encryption4all/irmaseal/kem/kemsim"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	scheme := kemsim.New()
	mpk, msk, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	alicePolicy := identity.RecipientPolicy{
		Timestamp: 1700000000,
		Con:       []identity.Attribute{identity.NewAttribute("email", "alice@example.com")},
	}
	policies := map[string]identity.RecipientPolicy{"alice": alicePolicy}

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 5000)

	var sealed bytes.Buffer
	if err := envelope.Seal(&sealed, scheme, mpk, policies, 4096, rand.Reader, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	env, err := envelope.Open(bytes.NewReader(sealed.Bytes()), scheme)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ids := env.RecipientIDs()
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("unexpected recipient ids: %v", ids)
	}

	hidden, ok := env.Policy("alice")
	if !ok {
		t.Fatal("expected alice's policy to be present")
	}
	if hidden.Con[0].Hidden() != true {
		t.Fatal("expected the recipient header's policy to be hidden (no disclosed value)")
	}

	id, err := alicePolicy.DeriveIdentity()
	if err != nil {
		t.Fatal(err)
	}
	usk, err := scheme.Extract(msk, id, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	r, err := env.Open("alice", scheme, usk)
	if err != nil {
		t.Fatalf("open for alice failed: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected decrypt error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
	}
}

func TestUnsealFailsWithWrongIdentityUSK(t *testing.T) {
	scheme := kemsim.New()
	mpk, msk, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	policies := map[string]identity.RecipientPolicy{
		"alice": {Timestamp: 1, Con: []identity.Attribute{identity.NewAttribute("email", "alice@example.com")}},
	}
	var sealed bytes.Buffer
	if err := envelope.Seal(&sealed, scheme, mpk, policies, 4096, rand.Reader, bytes.NewReader([]byte("secret"))); err != nil {
		t.Fatal(err)
	}

	env, err := envelope.Open(bytes.NewReader(sealed.Bytes()), scheme)
	if err != nil {
		t.Fatal(err)
	}

	wrongPolicy := identity.RecipientPolicy{Timestamp: 1, Con: []identity.Attribute{identity.NewAttribute("email", "mallory@example.com")}}
	wrongID, err := wrongPolicy.DeriveIdentity()
	if err != nil {
		t.Fatal(err)
	}
	wrongUSK, err := scheme.Extract(msk, wrongID, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Open("alice", scheme, wrongUSK); err == nil {
		t.Fatal("expected decapsulation to fail for a user secret key extracted for a different identity")
	}
}

func TestUnsealRejectsBadMagic(t *testing.T) {
	scheme := kemsim.New()
	mpk, _, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	policies := map[string]identity.RecipientPolicy{
		"alice": {Timestamp: 1, Con: []identity.Attribute{identity.NewAttribute("email", "a@example.com")}},
	}
	var sealed bytes.Buffer
	if err := envelope.Seal(&sealed, scheme, mpk, policies, 4096, rand.Reader, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	corrupted := sealed.Bytes()
	corrupted[0] ^= 0xFF
	if _, err := envelope.Open(bytes.NewReader(corrupted), scheme); err == nil {
		t.Fatal("expected bad magic to be rejected")
	}
}

func TestUnsealRejectsOversizedHeaderLength(t *testing.T) {
	scheme := kemsim.New()
	var buf bytes.Buffer
	buf.Write(envelope.Magic[:])
	buf.Write([]byte{0x00, 0x02})
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // declared header length far over the cap
	if _, err := envelope.Open(&buf, scheme); err == nil {
		t.Fatal("expected an oversized header length to be rejected")
	}
}

func TestSealRequiresAtLeastOneRecipient(t *testing.T) {
	scheme := kemsim.New()
	mpk, _, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var sealed bytes.Buffer
	err = envelope.Seal(&sealed, scheme, mpk, map[string]identity.RecipientPolicy{}, 4096, rand.Reader, bytes.NewReader(nil))
	if err == nil {
		t.Fatal("expected an error when sealing with no recipients")
	}
}

var _ kem.Scheme = kemsim.New()
