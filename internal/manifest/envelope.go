// Part of the manifest package: the envelope component (spec.md C9).
// Sealing and opening a manifest follows the teacher's vault.Create/
// Unlock/flushKD shape (internal/vault/vault.go), derive or recompute
// a shared secret, stretch it into working keys with the KDF
// component, then Seal/Open the serialized body, generalized to two
// variants (spec.md §4.8): SymmetricOnly works from a single shared
// pre-key, Um1Hybrid first runs a UM1 exchange to produce one.
//
// Key confirmation runs before the expensive KDF pass whenever a
// KeyConfirmation descriptor is present, so a reader holding the wrong
// candidate pre-key fails in one HMAC instead of paying for a full
// scrypt/argon2 derivation (spec.md §4.3, §4.8).
package manifest

import (
	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/erase"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
	"github.com/viruswevh/ObscurCore/internal/um1"
)

// FormatVersion is the current on-wire format version (spec.md §6).
const FormatVersion uint32 = 1

// Sealed is the result of sealing a manifest: a header describing how
// it was sealed, plus the ciphertext+tag the wire layout places after
// the header (spec.md §6).
type Sealed struct {
	Header         Header
	Ciphertext     []byte
	Tag            []byte
	ObfuscationKey [4]byte
}

// workingKeyBits reports how many cipher-key and mac-key bits to carve
// out of the KDF output for cc/ac. AEAD modes fold authentication into
// the cipher key itself, so macBits is zero.
func workingKeyBits(cc authcipher.CipherConfig, ac authcipher.AuthConfig) (cipherBits, macBits int, err error) {
	if cc.Kind == athena.CipherAEAD {
		return cc.KeyBits, 0, nil
	}
	entry, err := athena.LookupMac(ac.FunctionName)
	if err != nil {
		return 0, 0, err
	}
	return cc.KeyBits, entry.OutputBits, nil
}

// sealBody runs the shared confirm-then-derive-then-encrypt sequence
// against an already-resolved pre-key, and fills in cc's
// KeyConfirmationOutput and AuthenticationTag fields as a side effect.
func sealBody(cc *CryptoConfig, preKey, manifestBytes []byte) (ciphertext, tag []byte, obfKey [4]byte, err error) {
	if cc.KeyConfirmation != nil {
		cc.KeyConfirmationOutput = confirm.Generate(preKey, *cc.KeyConfirmation)
	}

	cipherBits, macBits, err := workingKeyBits(cc.Cipher, cc.Auth)
	if err != nil {
		return nil, nil, obfKey, err
	}
	derived, err := kdf.Derive(preKey, cc.KeyDerivation, cipherBits/8+macBits/8)
	if err != nil {
		return nil, nil, obfKey, err
	}
	cipherKey, macKey, err := kdf.CarveWorkingKeys(derived, cipherBits, macBits)
	if err != nil {
		return nil, nil, obfKey, err
	}
	obfKey = ObfuscationKey(cipherKey, macKey)
	defer erase.Zero(cipherKey)
	defer erase.Zero(macKey)

	aad := EncodeCryptoConfig(*cc, true)
	ciphertext, tag, err = authcipher.Seal(cc.Cipher, cc.Auth, cipherKey, macKey, manifestBytes, aad)
	if err != nil {
		return nil, nil, obfKey, err
	}
	cc.AuthenticationTag = tag
	return ciphertext, tag, obfKey, nil
}

// DeriveWorkingKeys verifies key confirmation (if cc carries one) and
// derives the (cipher_key, mac_key) pair for cc from an already-
// resolved pre-key. Exported so the package writer/reader state
// machine (internal/pkgio) can obtain the working keys once, it needs
// the mac key's first bytes to de-obfuscate the manifest-body length
// field before the ciphertext is even known, and reuses the same keys
// for the final Open rather than deriving twice (spec.md §4.9's
// obf_length step happens between the header and the manifest body).
func DeriveWorkingKeys(cc CryptoConfig, preKey []byte) (cipherKey, macKey []byte, err error) {
	if cc.KeyConfirmation != nil {
		if !confirm.Verify(preKey, *cc.KeyConfirmation, cc.KeyConfirmationOutput) {
			return nil, nil, obscerr.ErrKeyConfirmationFailed
		}
	}
	cipherBits, macBits, err := workingKeyBits(cc.Cipher, cc.Auth)
	if err != nil {
		return nil, nil, err
	}
	derived, err := kdf.Derive(preKey, cc.KeyDerivation, cipherBits/8+macBits/8)
	if err != nil {
		return nil, nil, err
	}
	return kdf.CarveWorkingKeys(derived, cipherBits, macBits)
}

// openBody derives the working keys and opens ciphertext/tag against
// an already-resolved pre-key.
func openBody(cc CryptoConfig, preKey, ciphertext, tag []byte) ([]byte, error) {
	cipherKey, macKey, err := DeriveWorkingKeys(cc, preKey)
	if err != nil {
		return nil, err
	}
	defer erase.Zero(cipherKey)
	defer erase.Zero(macKey)

	aad := EncodeCryptoConfig(cc, true)
	return authcipher.Open(cc.Cipher, cc.Auth, cipherKey, macKey, ciphertext, tag, aad)
}

// ObfuscationKey returns the first 4 bytes used to XOR-obfuscate the
// manifest-body length field on the wire (spec.md §4.9): the mac key's
// first bytes, or the cipher key's if the cipher is AEAD and carries
// no separate mac key.
func ObfuscationKey(cipherKey, macKey []byte) [4]byte {
	src := macKey
	if len(src) < 4 {
		src = cipherKey
	}
	var out [4]byte
	copy(out[:], src)
	return out
}

// SealSymmetric seals m under a single shared pre-key (spec.md's
// SymmetricOnly variant).
func SealSymmetric(m *Manifest, preKey []byte, cipherCfg authcipher.CipherConfig, authCfg authcipher.AuthConfig, kdfCfg kdf.Config, confirmCfg *confirm.Config) (*Sealed, error) {
	cc := CryptoConfig{
		Tag:             CryptoSymmetricOnly,
		Cipher:          cipherCfg,
		Auth:            authCfg,
		KeyDerivation:   kdfCfg,
		KeyConfirmation: confirmCfg,
	}
	return sealManifest(m, &cc, preKey)
}

// OpenSymmetric opens a SymmetricOnly-sealed manifest.
func OpenSymmetric(s *Sealed, preKey []byte) (*Manifest, error) {
	cc, err := DecodeCryptoConfig(s.Header.CryptoConfigEncoded)
	if err != nil {
		return nil, err
	}
	if cc.Tag != CryptoSymmetricOnly {
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "not a symmetric-only manifest")
	}
	return openManifest(cc, preKey, s.Ciphertext, s.Tag)
}

// SealUm1Hybrid runs a UM1 exchange against the receiver's static key
// to produce a pre-key, then seals m the same way SealSymmetric does
// (spec.md's Um1Hybrid variant). The resulting ephemeral public key
// travels in the header's CryptoConfig so the receiver can recompute
// the same pre-key with Respond.
func SealUm1Hybrid(m *Manifest, receiverPub, senderPriv *um1.KeyPair, cipherCfg authcipher.CipherConfig, authCfg authcipher.AuthConfig, kdfCfg kdf.Config, confirmCfg *confirm.Config) (*Sealed, error) {
	// The UM1 secret itself becomes the pre-key the KDF stretches, so
	// its length only needs to be cryptographically sound, not sized to
	// the eventual cipher/mac split.
	const um1SecretLen = 32
	res, err := um1.Initiate(receiverPub, senderPriv, um1SecretLen)
	if err != nil {
		return nil, err
	}
	defer erase.Zero(res.SharedSecret)

	cc := CryptoConfig{
		Tag:                CryptoUm1Hybrid,
		Cipher:             cipherCfg,
		Auth:               authCfg,
		KeyDerivation:      kdfCfg,
		KeyConfirmation:    confirmCfg,
		Curve:              string(receiverPub.Curve),
		EphemeralPublicKey: res.EphemeralPublic.Bytes(),
	}
	return sealManifest(m, &cc, res.SharedSecret)
}

// OpenUm1Hybrid mirrors SealUm1Hybrid on the receiving side: it
// recomputes the same pre-key via um1.Respond from the header's
// embedded ephemeral public key, then opens the manifest.
func OpenUm1Hybrid(s *Sealed, senderPub, receiverPriv *um1.KeyPair) (*Manifest, error) {
	cc, err := DecodeCryptoConfig(s.Header.CryptoConfigEncoded)
	if err != nil {
		return nil, err
	}
	if cc.Tag != CryptoUm1Hybrid {
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "not a um1-hybrid manifest")
	}
	if string(receiverPriv.Curve) != cc.Curve {
		return nil, obscerr.ErrCurveMismatch
	}
	dh, err := um1.Domain(um1.Curve(cc.Curve))
	if err != nil {
		return nil, err
	}
	ephemeralPub, err := dh.NewPublicKey(cc.EphemeralPublicKey)
	if err != nil {
		return nil, obscerr.Wrap(obscerr.ErrFormatMalformed, "ephemeral public key")
	}

	const um1SecretLen = 32
	preKey, err := um1.Respond(senderPub, receiverPriv, ephemeralPub, um1SecretLen)
	if err != nil {
		return nil, err
	}
	defer erase.Zero(preKey)

	return openManifest(cc, preKey, s.Ciphertext, s.Tag)
}

// SealWithPreKey seals m under an already-resolved pre-key and a
// caller-built CryptoConfig. It is the primitive SealSymmetric and
// SealUm1Hybrid both build on; the package writer state machine
// (internal/pkgio) calls it directly when it has already run the UM1
// exchange itself, because it needs the same pre-key to resolve each
// item's working keys (spec.md §4.6) before the manifest, which
// embeds every item's filled-in internal_length and
// authentication_tag, can be serialized and sealed.
func SealWithPreKey(m *Manifest, cc *CryptoConfig, preKey []byte) (*Sealed, error) {
	return sealManifest(m, cc, preKey)
}

// OpenWithPreKey opens a Sealed manifest given its decoded CryptoConfig
// and an already-resolved pre-key. See SealWithPreKey.
func OpenWithPreKey(cc CryptoConfig, preKey []byte, ciphertext, tag []byte) (*Manifest, error) {
	return openManifest(cc, preKey, ciphertext, tag)
}

func sealManifest(m *Manifest, cc *CryptoConfig, preKey []byte) (*Sealed, error) {
	manifestBytes := EncodeManifest(m)
	ciphertext, tag, obfKey, err := sealBody(cc, preKey, manifestBytes)
	if err != nil {
		return nil, err
	}
	header := Header{
		FormatVersion:       FormatVersion,
		SchemeName:          string(m.Payload.Scheme),
		CryptoConfigEncoded: EncodeCryptoConfig(*cc, false),
	}
	return &Sealed{Header: header, Ciphertext: ciphertext, Tag: tag, ObfuscationKey: obfKey}, nil
}

func openManifest(cc CryptoConfig, preKey, ciphertext, tag []byte) (*Manifest, error) {
	plaintext, err := openBody(cc, preKey, ciphertext, tag)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(plaintext)
}
