package kdf

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	ss := []byte("a shared secret")
	a := Derive(ss)
	b := Derive(ss)
	if a != b {
		t.Fatalf("derivation is not deterministic")
	}
}

func TestDeriveDistinguishesSecrets(t *testing.T) {
	a := Derive([]byte("secret one"))
	b := Derive([]byte("secret two"))
	if a.AEADKey == b.AEADKey {
		t.Fatalf("distinct shared secrets derived the same AEAD key")
	}
}
