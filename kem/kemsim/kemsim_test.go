package kemsim

import (
	"crypto/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	s := New()
	pk, msk, err := s.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	id := []byte("alice")
	usk, err := s.Extract(msk, id, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	cts, ss, err := s.MultiEncaps(pk, [][]byte{id}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Decaps(usk, cts[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(ss) {
		t.Fatalf("shared secret mismatch")
	}
}

func TestMultiEncapsSharedSecretAgreement(t *testing.T) {
	s := New()
	pk, msk, err := s.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	ids := [][]byte{[]byte("alice"), []byte("bob")}
	cts, ss, err := s.MultiEncaps(pk, ids, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	for i, id := range ids {
		usk, err := s.Extract(msk, id, rand.Reader)
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.Decaps(usk, cts[i])
		if err != nil {
			t.Fatalf("recipient %d: %v", i, err)
		}
		if string(got) != string(ss) {
			t.Fatalf("recipient %d: shared secret does not agree with sender's", i)
		}
	}
}

func TestDecapsWrongIdentityFails(t *testing.T) {
	s := New()
	pk, msk, err := s.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	cts, _, err := s.MultiEncaps(pk, [][]byte{[]byte("alice")}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	wrongUsk, err := s.Extract(msk, []byte("eve"), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Decaps(wrongUsk, cts[0]); err == nil {
		t.Fatalf("expected decapsulation to fail for a mismatched identity")
	}
}

func TestParseRoundTrip(t *testing.T) {
	s := New()
	pk, msk, err := s.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	usk, err := s.Extract(msk, []byte("alice"), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	cts, _, err := s.MultiEncaps(pk, [][]byte{[]byte("alice")}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.ParsePublicKey(pk.Bytes()); !ok {
		t.Fatal("failed to parse a valid public key")
	}
	if _, ok := s.ParseUserSecretKey(usk.Bytes()); !ok {
		t.Fatal("failed to parse a valid user secret key")
	}
	if _, ok := s.ParseCiphertext(cts[0].Bytes()); !ok {
		t.Fatal("failed to parse a valid ciphertext")
	}
	if _, ok := s.ParsePublicKey(pk.Bytes()[:PKBytes-1]); ok {
		t.Fatal("expected short public key to be rejected")
	}
}
