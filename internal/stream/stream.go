// Package stream implements the STREAM chunked authenticated encryption
// construction of §4.4/§4.5: a fixed-size IV prefix, a big-endian 32-bit
// segment counter, and a final-segment flag byte combine into the nonce
// for each AES-128-GCM segment. Adapted from age's internal/stream, which
// implements the same STREAM shape for ChaCha20-Poly1305 with an 88-bit
// counter; this variant narrows the counter to 32 bits and the algorithm
// to AES-128-GCM per the specification.
package stream

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/encryption4all/irmaseal/errs"
)

// KeySize is the AES-128 key size in bytes.
const KeySize = 16

// NonceSize is the GCM nonce size: a 7-byte IV prefix, a 4-byte
// big-endian segment counter, and a 1-byte last-segment flag.
const NonceSize = 12

// ivPrefixSize is the portion of the 16-byte IV embedded in every nonce.
const ivPrefixSize = 7

const lastSegmentFlag = 0x01

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errs.New(errs.ConstraintViolation, fmt.Sprintf("stream: key must be %d bytes, got %d", KeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.ConstraintViolation, "stream: failed to construct AES block cipher", err)
	}
	return cipher.NewGCM(block)
}

func ivPrefix(iv []byte) ([ivPrefixSize]byte, error) {
	var p [ivPrefixSize]byte
	if len(iv) < ivPrefixSize {
		return p, errs.New(errs.FormatViolation, fmt.Sprintf("stream: iv must be at least %d bytes, got %d", ivPrefixSize, len(iv)))
	}
	copy(p[:], iv[:ivPrefixSize])
	return p, nil
}

func nonceFor(prefix [ivPrefixSize]byte, counter uint32, last bool) []byte {
	var nonce [NonceSize]byte
	copy(nonce[:ivPrefixSize], prefix[:])
	binary.BigEndian.PutUint32(nonce[ivPrefixSize:ivPrefixSize+4], counter)
	if last {
		nonce[NonceSize-1] = lastSegmentFlag
	}
	return nonce[:]
}

// EncryptWriter segments plaintext written to it into segmentSize chunks,
// sealing each with AES-128-GCM under a nonce derived from the IV prefix,
// a segment counter, and a final-segment flag, and writes the resulting
// ciphertext segments to dst. Close must be called exactly once to emit
// the final segment, even if no plaintext was ever written: that
// produces the sole permitted empty final segment.
type EncryptWriter struct {
	a           cipher.AEAD
	dst         io.Writer
	buf         bytes.Buffer
	prefix      [ivPrefixSize]byte
	counter     uint32
	segmentSize int
	err         error
}

// NewEncryptWriter constructs a segmenting AEAD writer. iv must be at
// least 7 bytes; only its first 7 bytes are used.
func NewEncryptWriter(key, iv []byte, segmentSize uint32, dst io.Writer) (*EncryptWriter, error) {
	a, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	prefix, err := ivPrefix(iv)
	if err != nil {
		return nil, err
	}
	if segmentSize == 0 {
		return nil, errs.New(errs.ConstraintViolation, "stream: segment size must be non-zero")
	}
	return &EncryptWriter{a: a, dst: dst, prefix: prefix, segmentSize: int(segmentSize)}, nil
}

func (w *EncryptWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	total := len(p)
	for len(p) > 0 {
		n := min(len(p), w.segmentSize-w.buf.Len())
		w.buf.Write(p[:n])
		p = p[n:]
		if w.buf.Len() == w.segmentSize && len(p) > 0 {
			if err := w.flush(false); err != nil {
				w.err = err
				return 0, err
			}
		}
	}
	return total, nil
}

// Close seals and flushes the final segment. It does not close dst.
func (w *EncryptWriter) Close() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.flush(true)
	if w.err != nil {
		return w.err
	}
	w.err = errs.New(errs.IoError, "stream: EncryptWriter already closed")
	return nil
}

func (w *EncryptWriter) flush(last bool) error {
	nonce := nonceFor(w.prefix, w.counter, last)
	sealed := w.a.Seal(nil, nonce, w.buf.Bytes(), nil)
	w.counter++
	w.buf.Reset()
	if _, err := w.dst.Write(sealed); err != nil {
		return errs.Wrap(errs.IoError, "stream: failed to write ciphertext segment", err)
	}
	return nil
}

// DecryptReader is the inverse of EncryptWriter: it reads ciphertext
// segments from src, opens each under the derived nonce, and exposes the
// recovered plaintext through Read. A failed segment is fatal and
// non-recoverable: no partially-authenticated plaintext is ever returned.
type DecryptReader struct {
	a           cipher.AEAD
	src         io.Reader
	prefix      [ivPrefixSize]byte
	counter     uint32
	segmentSize int

	unread []byte
	buf    []byte
	done   bool
	err    error
}

// NewDecryptReader constructs a segmenting AEAD reader. segmentSize must
// match the value used to seal the stream.
func NewDecryptReader(key, iv []byte, segmentSize uint32, src io.Reader) (*DecryptReader, error) {
	a, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	prefix, err := ivPrefix(iv)
	if err != nil {
		return nil, err
	}
	if segmentSize == 0 {
		return nil, errs.New(errs.ConstraintViolation, "stream: segment size must be non-zero")
	}
	return &DecryptReader{
		a: a, src: src, prefix: prefix, segmentSize: int(segmentSize),
		buf: make([]byte, int(segmentSize)+16),
	}, nil
}

func (r *DecryptReader) Read(p []byte) (int, error) {
	if len(r.unread) > 0 {
		n := copy(p, r.unread)
		r.unread = r.unread[n:]
		return n, nil
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	last, err := r.readSegment()
	if err != nil {
		r.err = err
		return 0, err
	}
	n := copy(p, r.unread)
	r.unread = r.unread[n:]
	if last {
		r.err = io.EOF
	}
	return n, nil
}

func (r *DecryptReader) readSegment() (last bool, err error) {
	if r.done {
		panic("stream: internal error: readSegment called after final segment")
	}
	n, err := io.ReadFull(r.src, r.buf)
	switch {
	case err == io.EOF:
		return false, errs.New(errs.FormatViolation, "stream: truncated ciphertext, message ends without a final segment")
	case err == io.ErrUnexpectedEOF:
		last = true
	case err != nil:
		return false, errs.Wrap(errs.IoError, "stream: failed to read ciphertext segment", err)
	}
	seg := r.buf[:n]

	nonce := nonceFor(r.prefix, r.counter, last)
	out, openErr := r.a.Open(nil, nonce, seg, nil)
	if openErr != nil && !last {
		// The segment was full-length but may still be the final one.
		last = true
		nonce = nonceFor(r.prefix, r.counter, true)
		out, openErr = r.a.Open(nil, nonce, seg, nil)
	}
	if openErr != nil {
		return false, errs.New(errs.AuthenticationFailure, "stream: failed to authenticate ciphertext segment, data may be corrupted or tampered with")
	}

	if last {
		if extra, terr := r.src.Read(make([]byte, 1)); terr == nil || extra > 0 {
			return false, errs.New(errs.FormatViolation, "stream: trailing data after final ciphertext segment")
		} else if terr != io.EOF {
			return false, errs.Wrap(errs.IoError, "stream: error confirming end of ciphertext", terr)
		}
		r.done = true
	}

	r.counter++
	r.unread = out
	return last, nil
}
