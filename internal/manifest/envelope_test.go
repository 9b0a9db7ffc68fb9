package manifest

import (
	"bytes"
	"testing"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/um1"
)

func aeadCipherConfig(t *testing.T) authcipher.CipherConfig {
	t.Helper()
	return authcipher.CipherConfig{
		Kind:        athena.CipherAEAD,
		Algorithm:   "XChaCha20Poly1305",
		KeyBits:     256,
		IV:          []byte("abcdefghijklmnopqrstuvwx"),
		AEADMacBits: 128,
	}
}

func testKDFConfig() kdf.Config {
	return kdf.Config{Algorithm: kdf.AlgScrypt, Salt: []byte("0123456789abcdef0123456789abcdef"), Scrypt: kdf.ScryptParams{N: 1024, R: 8, P: 1}}
}

func sampleManifest() *Manifest {
	return &Manifest{
		Items: []*PayloadItem{
			{UUID: "item-1", Type: ItemBinary, Path: "a.bin", ExternalLength: 10, InternalLength: 10},
		},
		Payload: PayloadConfiguration{Scheme: SchemeSimple},
	}
}

func TestSealOpenSymmetricRoundTrip(t *testing.T) {
	preKey := []byte("a shared pre-key")
	confirmCfg := &confirm.Config{Salt: []byte("confirm-salt")}

	sealed, err := SealSymmetric(sampleManifest(), preKey, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), confirmCfg)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := OpenSymmetric(sealed, preKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].UUID != "item-1" {
		t.Fatalf("unexpected manifest after open: %+v", got)
	}
}

func TestOpenSymmetricRejectsWrongPreKey(t *testing.T) {
	confirmCfg := &confirm.Config{Salt: []byte("confirm-salt")}
	sealed, err := SealSymmetric(sampleManifest(), []byte("right-key"), aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), confirmCfg)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenSymmetric(sealed, []byte("wrong-key")); err == nil {
		t.Fatal("expected key confirmation failure with the wrong pre-key")
	}
}

func TestOpenSymmetricRejectsTamperedCiphertext(t *testing.T) {
	preKey := []byte("a shared pre-key")
	sealed, err := SealSymmetric(sampleManifest(), preKey, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed.Ciphertext[0] ^= 0xFF
	if _, err := OpenSymmetric(sealed, preKey); err == nil {
		t.Fatal("expected authentication failure after ciphertext tamper")
	}
}

func TestOpenSymmetricRejectsWrongVariantTag(t *testing.T) {
	preKey := []byte("a shared pre-key")
	sealed, err := SealSymmetric(sampleManifest(), preKey, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	cc, err := DecodeCryptoConfig(sealed.Header.CryptoConfigEncoded)
	if err != nil {
		t.Fatalf("decode crypto config: %v", err)
	}
	cc.Tag = CryptoUm1Hybrid
	sealed.Header.CryptoConfigEncoded = EncodeCryptoConfig(cc, false)
	if _, err := OpenSymmetric(sealed, preKey); err == nil {
		t.Fatal("expected error opening a retagged header via the wrong variant entry point")
	}
}

func TestSealOpenUm1HybridRoundTrip(t *testing.T) {
	receiver, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	sender, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate sender: %v", err)
	}
	senderPubOnly := &um1.KeyPair{Curve: sender.Curve, Pub: sender.Pub}

	sealed, err := SealUm1Hybrid(sampleManifest(), receiver, sender, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	receiverPrivOnly := receiver
	got, err := OpenUm1Hybrid(sealed, senderPubOnly, receiverPrivOnly)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].UUID != "item-1" {
		t.Fatalf("unexpected manifest after open: %+v", got)
	}
}

func TestOpenUm1HybridRejectsCurveMismatch(t *testing.T) {
	receiver, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	sender, err := um1.GenerateKeyPair(um1.CurveX25519)
	if err != nil {
		t.Fatalf("generate sender: %v", err)
	}
	sealed, err := SealUm1Hybrid(sampleManifest(), receiver, sender, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	otherCurveReceiver, err := um1.GenerateKeyPair(um1.CurveP256)
	if err != nil {
		t.Fatalf("generate other-curve receiver: %v", err)
	}
	senderPubOnly := &um1.KeyPair{Curve: sender.Curve, Pub: sender.Pub}
	if _, err := OpenUm1Hybrid(sealed, senderPubOnly, otherCurveReceiver); err == nil {
		t.Fatal("expected CurveMismatch when the opening receiver key is on a different curve")
	}
}

func TestKeyConfirmationOutputElisionDoesNotWeakenManifestMAC(t *testing.T) {
	preKey := []byte("a shared pre-key")
	confirmCfg := &confirm.Config{Salt: []byte("confirm-salt")}
	sealed, err := SealSymmetric(sampleManifest(), preKey, aeadCipherConfig(t), authcipher.AuthConfig{}, testKDFConfig(), confirmCfg)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	cc, err := DecodeCryptoConfig(sealed.Header.CryptoConfigEncoded)
	if err != nil {
		t.Fatalf("decode crypto config: %v", err)
	}
	if len(cc.KeyConfirmationOutput) == 0 {
		t.Fatal("key confirmation output should be present on the wire even though the auth tag is elided from the AAD")
	}
	tampered := append([]byte(nil), cc.KeyConfirmationOutput...)
	tampered[0] ^= 0xFF
	cc.KeyConfirmationOutput = tampered
	sealed.Header.CryptoConfigEncoded = EncodeCryptoConfig(cc, false)

	if _, err := OpenSymmetric(sealed, preKey); err == nil {
		t.Fatal("tampering with KeyConfirmationOutput alone must still be caught (by confirm.Verify or the manifest MAC)")
	}
}

func TestObfuscationKeyPrefersMacKey(t *testing.T) {
	cipherKey := bytes.Repeat([]byte{0xAA}, 32)
	macKey := bytes.Repeat([]byte{0xBB}, 32)
	got := ObfuscationKey(cipherKey, macKey)
	want := [4]byte{0xBB, 0xBB, 0xBB, 0xBB}
	if got != want {
		t.Fatalf("ObfuscationKey = %v, want %v (mac key bytes)", got, want)
	}
}

func TestObfuscationKeyFallsBackToCipherKeyForAEAD(t *testing.T) {
	cipherKey := bytes.Repeat([]byte{0xCC}, 32)
	got := ObfuscationKey(cipherKey, nil)
	want := [4]byte{0xCC, 0xCC, 0xCC, 0xCC}
	if got != want {
		t.Fatalf("ObfuscationKey = %v, want %v (cipher key bytes, no mac key)", got, want)
	}
}
