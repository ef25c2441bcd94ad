package artifact

import (
	"crypto/rand"
	"testing"

	"github.com/encryption4all/irmaseal/kem/kemsim"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	scheme := kemsim.New()
	pk, _, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	s := EncodePublicKey(pk)
	decoded, err := DecodePublicKey(s, scheme)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded.Bytes()) != string(pk.Bytes()) {
		t.Fatalf("round trip changed public key bytes")
	}
}

func TestUserSecretKeyRoundTrip(t *testing.T) {
	scheme := kemsim.New()
	_, msk, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	usk, err := scheme.Extract(msk, []byte("alice"), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	s := EncodeUserSecretKey(usk)
	decoded, err := DecodeUserSecretKey(s, scheme)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded.Bytes()) != string(usk.Bytes()) {
		t.Fatalf("round trip changed user secret key bytes")
	}
}

func TestDecodePublicKeyRejectsBadBase64(t *testing.T) {
	scheme := kemsim.New()
	if _, err := DecodePublicKey("not valid base64!!", scheme); err == nil {
		t.Fatal("expected an error decoding invalid base64")
	}
}

func TestDecodePublicKeyRejectsWrongLength(t *testing.T) {
	scheme := kemsim.New()
	pk, _, err := scheme.Setup(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	short := EncodePublicKey(pk)[:8]
	if _, err := DecodePublicKey(short, scheme); err == nil {
		t.Fatal("expected an error decoding a truncated public key")
	}
}
