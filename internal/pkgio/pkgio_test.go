package pkgio

import (
	"bytes"
	"testing"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/entropy"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/manifest"
	"github.com/viruswevh/ObscurCore/internal/um1"
)

type memReadCloser struct{ *bytes.Reader }

func (memReadCloser) Close() error { return nil }

type memWriteCloser struct{ buf *bytes.Buffer }

func (memWriteCloser) Close() error                   { return nil }
func (m memWriteCloser) Write(p []byte) (int, error) { return m.buf.Write(p) }

func sourceOf(data []byte) func() (manifest.ReadCloser, error) {
	return func() (manifest.ReadCloser, error) { return memReadCloser{bytes.NewReader(data)}, nil }
}

func aeadCipher(t *testing.T) authcipher.CipherConfig {
	t.Helper()
	entry, err := athena.LookupCipher("XChaCha20Poly1305")
	if err != nil {
		t.Fatalf("lookup cipher: %v", err)
	}
	return authcipher.CipherConfig{
		Kind:        athena.CipherAEAD,
		Algorithm:   entry.Name,
		KeyBits:     256,
		IV:          bytes.Repeat([]byte{0x42}, entry.NonceBytes),
		AEADMacBits: entry.AEADMacBits,
	}
}

func testItem(uuid, data string) *manifest.PayloadItem {
	entry, _ := athena.LookupCipher("XChaCha20Poly1305")
	return &manifest.PayloadItem{
		UUID:          uuid,
		Type:          manifest.ItemBinary,
		Path:          uuid + ".bin",
		Cipher:        authcipher.CipherConfig{Kind: athena.CipherAEAD, Algorithm: entry.Name, KeyBits: 256, IV: bytes.Repeat([]byte{byte(len(uuid))}, entry.NonceBytes), AEADMacBits: entry.AEADMacBits},
		KeyDerivation: &kdf.Config{Algorithm: kdf.AlgScrypt, Salt: bytes.Repeat([]byte{0x07}, 32), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
		Source:        sourceOf([]byte(data)),
	}
}

func testPayloadConfig(t *testing.T, scheme manifest.Scheme) manifest.PayloadConfiguration {
	t.Helper()
	rng, err := entropy.New(entropy.CipherSalsa20)
	if err != nil {
		t.Fatalf("new rng: %v", err)
	}
	return manifest.PayloadConfiguration{
		Scheme:    scheme,
		PadMin:    1,
		PadMax:    3,
		StripeMin: 64,
		StripeMax: 128,
		PRNGName:  string(entropy.CipherSalsa20),
		PRNGKey:   rng.Key(),
		PRNGNonce: rng.Nonce(),
	}
}

func roundTripScheme(t *testing.T, scheme manifest.Scheme) {
	t.Helper()
	items := []*manifest.PayloadItem{testItem("a", "alpha content"), testItem("b", "beta content, a bit longer")}

	w := NewWriter()
	if err := w.SetCrypto(CryptoParams{
		Tag:     manifest.CryptoSymmetricOnly,
		PreKey:  []byte("package pre-key"),
		Cipher:  aeadCipher(t),
		KDF:     kdf.Config{Algorithm: kdf.AlgScrypt, Salt: bytes.Repeat([]byte{0x09}, 32), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
		Confirm: &confirm.Config{Salt: []byte("confirm-salt")},
	}); err != nil {
		t.Fatalf("set crypto: %v", err)
	}
	if err := w.SetItems(items, testPayloadConfig(t, scheme)); err != nil {
		t.Fatalf("set items: %v", err)
	}
	var out bytes.Buffer
	if err := w.Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}

	rd := NewReader()
	m, err := rd.Open(bytes.NewReader(out.Bytes()), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("package pre-key")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sinks := make(map[string]*bytes.Buffer, len(m.Items))
	err = rd.Extract(func(item *manifest.PayloadItem) error {
		buf := &bytes.Buffer{}
		sinks[item.UUID] = buf
		item.Sink = func() (manifest.WriteCloser, error) { return memWriteCloser{buf}, nil }
		return nil
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if sinks["a"].String() != "alpha content" {
		t.Fatalf("item a mismatch: %q", sinks["a"].String())
	}
	if sinks["b"].String() != "beta content, a bit longer" {
		t.Fatalf("item b mismatch: %q", sinks["b"].String())
	}
}

func TestWriteOpenExtractRoundTripEachScheme(t *testing.T) {
	for _, scheme := range []manifest.Scheme{manifest.SchemeSimple, manifest.SchemeFrameshift, manifest.SchemeFabric} {
		t.Run(string(scheme), func(t *testing.T) { roundTripScheme(t, scheme) })
	}
}

func TestSetItemsRejectsEmptyItemList(t *testing.T) {
	w := NewWriter()
	if err := w.SetCrypto(CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("key")}); err != nil {
		t.Fatalf("set crypto: %v", err)
	}
	if err := w.SetItems(nil, testPayloadConfig(t, manifest.SchemeSimple)); err == nil {
		t.Fatal("expected error staging an empty item list")
	}
}

func TestWriteRejectsSecondCall(t *testing.T) {
	items := []*manifest.PayloadItem{testItem("only", "content")}
	w := NewWriter()
	if err := w.SetCrypto(CryptoParams{
		Tag:     manifest.CryptoSymmetricOnly,
		PreKey:  []byte("package pre-key"),
		Cipher:  aeadCipher(t),
		KDF:     kdf.Config{Algorithm: kdf.AlgScrypt, Salt: bytes.Repeat([]byte{0x09}, 32), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
	}); err != nil {
		t.Fatalf("set crypto: %v", err)
	}
	if err := w.SetItems(items, testPayloadConfig(t, manifest.SchemeSimple)); err != nil {
		t.Fatalf("set items: %v", err)
	}
	var out1, out2 bytes.Buffer
	if err := w.Write(&out1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write(&out2); err == nil {
		t.Fatal("expected AlreadyWritten on the second Write call")
	}
	if out2.Len() != 0 {
		t.Fatal("a rejected second write must not emit any bytes")
	}
}

func TestOpenRejectsWrongPreKeyBeforeKDF(t *testing.T) {
	pkg := writePackageSimple(t)
	rd := NewReader()
	if _, err := rd.Open(bytes.NewReader(pkg), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("wrong pre-key")}); err == nil {
		t.Fatal("expected key confirmation failure with the wrong pre-key")
	}
}

func writePackageSimple(t *testing.T) []byte {
	t.Helper()
	items := []*manifest.PayloadItem{testItem("only", "some content")}
	w := NewWriter()
	if err := w.SetCrypto(CryptoParams{
		Tag:     manifest.CryptoSymmetricOnly,
		PreKey:  []byte("package pre-key"),
		Cipher:  aeadCipher(t),
		KDF:     kdf.Config{Algorithm: kdf.AlgScrypt, Salt: bytes.Repeat([]byte{0x09}, 32), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
		Confirm: &confirm.Config{Salt: []byte("confirm-salt")},
	}); err != nil {
		t.Fatalf("set crypto: %v", err)
	}
	if err := w.SetItems(items, testPayloadConfig(t, manifest.SchemeSimple)); err != nil {
		t.Fatalf("set items: %v", err)
	}
	var out bytes.Buffer
	if err := w.Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	return out.Bytes()
}

func TestOpenRejectsBadHeaderMagic(t *testing.T) {
	pkg := writePackageSimple(t)
	pkg[0] = 'X'
	rd := NewReader()
	if _, err := rd.Open(bytes.NewReader(pkg), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("package pre-key")}); err == nil {
		t.Fatal("expected FormatMalformed for a bad header magic")
	}
}

func TestExtractRejectsBadTrailerMagic(t *testing.T) {
	pkg := writePackageSimple(t)
	pkg[len(pkg)-1] = 'X'
	rd := NewReader()
	if _, err := rd.Open(bytes.NewReader(pkg), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("package pre-key")}); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := rd.Extract(func(item *manifest.PayloadItem) error {
		item.Sink = func() (manifest.WriteCloser, error) { return memWriteCloser{&bytes.Buffer{}}, nil }
		return nil
	})
	if err == nil {
		t.Fatal("expected FormatMalformed for a corrupted trailer magic")
	}
}

func TestExtractRejectsTamperedPayload(t *testing.T) {
	pkg := writePackageSimple(t)
	pkg[len(pkg)-6] ^= 0xFF // inside the payload, before the trailer
	rd := NewReader()
	if _, err := rd.Open(bytes.NewReader(pkg), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("package pre-key")}); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := rd.Extract(func(item *manifest.PayloadItem) error {
		item.Sink = func() (manifest.WriteCloser, error) { return memWriteCloser{&bytes.Buffer{}}, nil }
		return nil
	})
	if err == nil {
		t.Fatal("expected an authentication failure for a tampered payload byte")
	}
}

func TestWriteOpenExtractUm1HybridRoundTrip(t *testing.T) {
	receiver, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	sender, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate sender: %v", err)
	}
	senderPubOnly := &um1.KeyPair{Curve: sender.Curve, Pub: sender.Pub}

	items := []*manifest.PayloadItem{testItem("only", "um1 content")}
	w := NewWriter()
	if err := w.SetCrypto(CryptoParams{
		Tag:         manifest.CryptoUm1Hybrid,
		ReceiverPub: receiver,
		SenderPriv:  sender,
		Cipher:      aeadCipher(t),
		KDF:         kdf.Config{Algorithm: kdf.AlgScrypt, Salt: bytes.Repeat([]byte{0x09}, 32), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}},
	}); err != nil {
		t.Fatalf("set crypto: %v", err)
	}
	if err := w.SetItems(items, testPayloadConfig(t, manifest.SchemeSimple)); err != nil {
		t.Fatalf("set items: %v", err)
	}
	var out bytes.Buffer
	if err := w.Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}

	rd := NewReader()
	m, err := rd.Open(bytes.NewReader(out.Bytes()), CryptoParams{
		Tag:          manifest.CryptoUm1Hybrid,
		SenderPub:    senderPubOnly,
		ReceiverPriv: receiver,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var buf bytes.Buffer
	err = rd.Extract(func(item *manifest.PayloadItem) error {
		item.Sink = func() (manifest.WriteCloser, error) { return memWriteCloser{&buf}, nil }
		return nil
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(m.Items) != 1 || buf.String() != "um1 content" {
		t.Fatalf("unexpected recovered content: %q", buf.String())
	}
}

func TestCloseWithoutExtractIsInspectOnly(t *testing.T) {
	pkg := writePackageSimple(t)
	rd := NewReader()
	if _, err := rd.Open(bytes.NewReader(pkg), CryptoParams{Tag: manifest.CryptoSymmetricOnly, PreKey: []byte("package pre-key")}); err != nil {
		t.Fatalf("open: %v", err)
	}
	rd.Close()
	if rd.state != readerClosed {
		t.Fatalf("expected readerClosed after Close without Extract, got state %d", rd.state)
	}
}
