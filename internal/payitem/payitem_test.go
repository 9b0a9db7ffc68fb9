package payitem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/manifest"
)

type memReadCloser struct{ *bytes.Reader }

func (memReadCloser) Close() error { return nil }

type memWriteCloser struct{ buf *bytes.Buffer }

func (memWriteCloser) Close() error { return nil }
func (m memWriteCloser) Write(p []byte) (int, error) { return m.buf.Write(p) }

func sourceOf(data []byte) func() (manifest.ReadCloser, error) {
	return func() (manifest.ReadCloser, error) {
		return memReadCloser{bytes.NewReader(data)}, nil
	}
}

func sinkInto(buf *bytes.Buffer) func() (manifest.WriteCloser, error) {
	return func() (manifest.WriteCloser, error) {
		return memWriteCloser{buf}, nil
	}
}

func aeadItemCipher() authcipher.CipherConfig {
	return authcipher.CipherConfig{
		Kind:        athena.CipherAEAD,
		Algorithm:   "XChaCha20Poly1305",
		KeyBits:     256,
		IV:          []byte("abcdefghijklmnopqrstuvwx"),
		AEADMacBits: 128,
	}
}

func TestEncryptDecryptRoundTripDerivedKeys(t *testing.T) {
	preKey := []byte("item pre-key material")
	plaintext := []byte("the payload item's plaintext content")

	item := &manifest.PayloadItem{
		UUID:          "item-derived",
		Cipher:        aeadItemCipher(),
		KeyDerivation: &kdf.Config{Algorithm: kdf.AlgScrypt, Salt: []byte("saltsaltsaltsalt"), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
		Source:        sourceOf(plaintext),
	}

	ciphertext, err := Encrypt(item, preKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if item.ExternalLength != uint64(len(plaintext)) {
		t.Fatalf("ExternalLength = %d, want %d", item.ExternalLength, len(plaintext))
	}

	var out bytes.Buffer
	item.Sink = sinkInto(&out)
	if err := Decrypt(item, preKey, ciphertext); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Fatal("decrypted plaintext mismatch")
	}
}

func TestEncryptDecryptRoundTripExplicitKeys(t *testing.T) {
	plaintext := []byte("explicit-key plaintext")
	item := &manifest.PayloadItem{
		UUID:      "item-explicit",
		Cipher:    aeadItemCipher(),
		CipherKey: bytes.Repeat([]byte{0x11}, 32),
		Source:    sourceOf(plaintext),
	}

	ciphertext, err := Encrypt(item, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var out bytes.Buffer
	item.Sink = sinkInto(&out)
	if err := Decrypt(item, nil, ciphertext); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Fatal("decrypted plaintext mismatch")
	}
}

func TestEncryptFailsWithoutSource(t *testing.T) {
	item := &manifest.PayloadItem{UUID: "no-source", Cipher: aeadItemCipher(), CipherKey: bytes.Repeat([]byte{0x22}, 32)}
	if _, err := Encrypt(item, nil); err == nil {
		t.Fatal("expected error encrypting an item with no bound source")
	}
}

func TestDecryptFailsWithoutSink(t *testing.T) {
	plaintext := []byte("some content")
	item := &manifest.PayloadItem{UUID: "no-sink", Cipher: aeadItemCipher(), CipherKey: bytes.Repeat([]byte{0x33}, 32), Source: sourceOf(plaintext)}
	ciphertext, err := Encrypt(item, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := Decrypt(item, nil, ciphertext); err == nil {
		t.Fatal("expected error decrypting an item with no bound sink")
	}
}

func TestDecryptRejectsLengthMismatch(t *testing.T) {
	plaintext := []byte("some content")
	item := &manifest.PayloadItem{UUID: "trunc", Cipher: aeadItemCipher(), CipherKey: bytes.Repeat([]byte{0x44}, 32), Source: sourceOf(plaintext)}
	ciphertext, err := Encrypt(item, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	var out bytes.Buffer
	item.Sink = sinkInto(&out)
	if err := Decrypt(item, nil, ciphertext[:len(ciphertext)-1]); err == nil {
		t.Fatal("expected PayloadTruncated for a ciphertext shorter than InternalLength")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	plaintext := []byte("tamper-target content")
	item := &manifest.PayloadItem{UUID: "tamper", Cipher: aeadItemCipher(), CipherKey: bytes.Repeat([]byte{0x55}, 32), Source: sourceOf(plaintext)}
	ciphertext, err := Encrypt(item, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ciphertext[0] ^= 0xFF
	var out bytes.Buffer
	item.Sink = sinkInto(&out)
	if err := Decrypt(item, nil, ciphertext); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestValidateAllAggregatesMultipleFailures(t *testing.T) {
	items := []*manifest.PayloadItem{
		{UUID: "missing-key-1"},
		{UUID: "missing-key-2"},
		{UUID: "has-key-no-source", CipherKey: []byte("key")},
	}
	err := ValidateAll(items, true)
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	count := 0
	for unwrapped := err; unwrapped != nil; {
		if joined, ok := unwrapped.(interface{ Unwrap() []error }); ok {
			count = len(joined.Unwrap())
			break
		}
		unwrapped = errors.Unwrap(unwrapped)
	}
	if count < 3 {
		t.Fatalf("expected at least 3 aggregated errors, got %d", count)
	}
}

func TestValidateAllPassesForWellFormedItems(t *testing.T) {
	items := []*manifest.PayloadItem{
		{UUID: "ok-1", CipherKey: []byte("key"), Source: sourceOf([]byte("data"))},
	}
	if err := ValidateAll(items, true); err != nil {
		t.Fatalf("expected no error for a well-formed item, got %v", err)
	}
}

func TestValidateAllChecksSinkForRead(t *testing.T) {
	items := []*manifest.PayloadItem{
		{UUID: "no-sink", CipherKey: []byte("key")},
	}
	if err := ValidateAll(items, false); err == nil {
		t.Fatal("expected error: item has no sink and forWrite is false")
	}
}
