package stream_test

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"testing"

	"github.com/encryption4all/irmaseal/internal/stream"
)

const segSize = 1024

func randBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func seal(t *testing.T, key, iv []byte, segmentSize uint32, plaintext []byte, stepSize int) []byte {
	buf := &bytes.Buffer{}
	w, err := stream.NewEncryptWriter(key, iv, segmentSize, buf)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < len(plaintext); {
		b := min(len(plaintext)-n, stepSize)
		if _, err := w.Write(plaintext[n : n+b]); err != nil {
			t.Fatal(err)
		}
		n += b
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	for _, length := range []int{0, 1, segSize - 1, segSize, segSize + 1, 2*segSize + 500} {
		for _, stepSize := range []int{7, 100, segSize, segSize + 1} {
			t.Run(fmt.Sprintf("len=%d,step=%d", length, stepSize), func(t *testing.T) {
				key := randBytes(t, stream.KeySize)
				iv := randBytes(t, 16)
				plaintext := randBytes(t, length)

				ciphertext := seal(t, key, iv, segSize, plaintext, stepSize)

				r, err := stream.NewDecryptReader(key, iv, segSize, bytes.NewReader(ciphertext))
				if err != nil {
					t.Fatal(err)
				}
				got, err := io.ReadAll(r)
				if err != nil {
					t.Fatalf("unexpected decrypt error: %v", err)
				}
				if !bytes.Equal(got, plaintext) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
				}
			})
		}
	}
}

func TestEmptyPlaintextProducesExactlyOneSegment(t *testing.T) {
	key := randBytes(t, stream.KeySize)
	iv := randBytes(t, 16)
	ciphertext := seal(t, key, iv, segSize, nil, 1)
	if len(ciphertext) != 16 { // GCM tag only, no plaintext bytes
		t.Fatalf("expected a single empty sealed segment, got %d bytes", len(ciphertext))
	}
}

func TestTamperedCiphertextFailsAuthentication(t *testing.T) {
	key := randBytes(t, stream.KeySize)
	iv := randBytes(t, 16)
	plaintext := randBytes(t, 3*segSize+7)
	ciphertext := seal(t, key, iv, segSize, plaintext, segSize)

	ciphertext[len(ciphertext)/2] ^= 0xFF

	r, err := stream.NewDecryptReader(key, iv, segSize, bytes.NewReader(ciphertext))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}

func TestTruncatedCiphertextFails(t *testing.T) {
	key := randBytes(t, stream.KeySize)
	iv := randBytes(t, 16)
	plaintext := randBytes(t, 2*segSize+10)
	ciphertext := seal(t, key, iv, segSize, plaintext, segSize)

	r, err := stream.NewDecryptReader(key, iv, segSize, bytes.NewReader(ciphertext[:len(ciphertext)-20]))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected an error on truncated ciphertext")
	}
}

func TestWrongKeyFailsAuthentication(t *testing.T) {
	key := randBytes(t, stream.KeySize)
	iv := randBytes(t, 16)
	plaintext := randBytes(t, segSize+1)
	ciphertext := seal(t, key, iv, segSize, plaintext, segSize)

	wrongKey := randBytes(t, stream.KeySize)
	r, err := stream.NewDecryptReader(wrongKey, iv, segSize, bytes.NewReader(ciphertext))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}
