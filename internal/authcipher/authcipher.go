// Package authcipher implements spec.md's C5, the authenticated
// cipher stream: Encrypt-then-MAC composition over a whole buffer,
// directly generalizing the teacher's internal/crypto/envelope.go
// Seal/Open (AES-CTR + HMAC-SHA256, salt-derived keys, constant-time
// verification) into a registry-driven cipher/MAC choice, with AEAD
// modes folding the three MAC inputs into native associated data
// instead of a separate HMAC pass.
//
// The MAC (or AEAD AAD) covers, in order (spec.md §4.4):
//  1. all ciphertext bytes;
//  2. a little-endian 32-bit count of ciphertext bytes (length commitment);
//  3. the serialized crypto-descriptor with its own authentication_tag
//     field elided.
package authcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"hash"

	xchacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/salsa20"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// CipherConfig fully describes one symmetric cipher instantiation
// (spec.md §3's CipherConfig).
type CipherConfig struct {
	Kind      athena.CipherKind
	Algorithm string
	KeyBits   int
	BlockBits int
	Mode      athena.BlockMode
	Padding   athena.Padding
	IV        []byte
	AEADMacBits int
}

// AuthConfig describes the MAC function used outside of AEAD modes
// (spec.md §3's AuthConfig, MAC/KDF-as-MAC function kinds; Poly1305 is
// handled as an AEAD-adjacent construction and not separately modeled
// here since this module's registry only names HMAC variants for the
// plain-MAC kind).
type AuthConfig struct {
	FunctionName string // "HMAC-SHA256" or "HMAC-SHA1"
}

var (
	ErrCiphertextTooShort = errors.New("authcipher: ciphertext too short")
)

func hmacNew(name string) (func() hash.Hash, error) {
	switch name {
	case "HMAC-SHA256":
		return sha256.New, nil
	case "HMAC-SHA1":
		return sha1.New, nil
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown mac "+name)
	}
}

// Validate checks cc against the Athena registry (key/block/IV sizes,
// padding-vs-mode compatibility; spec.md §3's CipherConfig invariants).
func (cc CipherConfig) Validate() error {
	entry, err := athena.LookupCipher(cc.Algorithm)
	if err != nil {
		return err
	}
	if err := athena.ValidateKeyBits(entry, cc.KeyBits); err != nil {
		return err
	}
	switch entry.Kind {
	case athena.CipherBlock:
		if err := athena.ValidateMode(entry, cc.Mode, cc.Padding); err != nil {
			return err
		}
		if len(cc.IV) != entry.BlockBits/8 {
			return obscerr.ErrBlockSizeInvalid
		}
	case athena.CipherStream:
		if len(cc.IV) != entry.NonceBytes {
			return obscerr.ErrBlockSizeInvalid
		}
	case athena.CipherAEAD:
		if len(cc.IV) != entry.NonceBytes {
			return obscerr.ErrBlockSizeInvalid
		}
		if cc.Padding != "" {
			return obscerr.ErrConfigurationInvalid
		}
	}
	return nil
}

// Seal encrypts plaintext under cipherKey/cc and authenticates it with
// macKey/ac (ignored for AEAD kinds), folding descriptorAAD (the
// descriptor serialized with authentication_tag elided) into the MAC
// or native AAD input. Returns (ciphertext, tag).
func Seal(cc CipherConfig, ac AuthConfig, cipherKey, macKey, plaintext, descriptorAAD []byte) (ciphertext, tag []byte, err error) {
	if err := cc.Validate(); err != nil {
		return nil, nil, err
	}

	switch cc.Kind {
	case athena.CipherAEAD:
		aead, err := newAEAD(cc.Algorithm, cipherKey)
		if err != nil {
			return nil, nil, err
		}
		full := aead.Seal(nil, cc.IV, plaintext, descriptorAAD)
		ctLen := len(full) - aead.Overhead()
		return full[:ctLen], full[ctLen:], nil

	default: // Block, Stream
		ct, err := applyCipher(cc, cipherKey, plaintext, true)
		if err != nil {
			return nil, nil, err
		}
		newHash, err := hmacNew(ac.FunctionName)
		if err != nil {
			return nil, nil, err
		}
		mac := hmac.New(newHash, macKey)
		writeCommitted(mac, ct, descriptorAAD)
		return ct, mac.Sum(nil), nil
	}
}

// Open is Seal's inverse. The tag is verified before any plaintext is
// returned (spec.md §4.4).
func Open(cc CipherConfig, ac AuthConfig, cipherKey, macKey, ciphertext, tag, descriptorAAD []byte) ([]byte, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}

	switch cc.Kind {
	case athena.CipherAEAD:
		aead, err := newAEAD(cc.Algorithm, cipherKey)
		if err != nil {
			return nil, err
		}
		full := append(append([]byte(nil), ciphertext...), tag...)
		pt, err := aead.Open(nil, cc.IV, full, descriptorAAD)
		if err != nil {
			return nil, obscerr.ErrAuthenticationFailed
		}
		return pt, nil

	default:
		newHash, err := hmacNew(ac.FunctionName)
		if err != nil {
			return nil, err
		}
		mac := hmac.New(newHash, macKey)
		writeCommitted(mac, ciphertext, descriptorAAD)
		expected := mac.Sum(nil)
		if subtle.ConstantTimeCompare(expected, tag) != 1 {
			return nil, obscerr.ErrAuthenticationFailed
		}
		return applyCipher(cc, cipherKey, ciphertext, false)
	}
}

// writeCommitted feeds the MAC the three authenticated inputs spec.md
// §4.4 lists: ciphertext, a little-endian 32-bit length commitment,
// and the descriptor AAD.
func writeCommitted(mac hash.Hash, ciphertext, descriptorAAD []byte) {
	mac.Write(ciphertext)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	mac.Write(lenBuf[:])
	if len(descriptorAAD) > 0 {
		mac.Write(descriptorAAD)
	}
}

func newAEAD(algorithm string, key []byte) (cipher.AEAD, error) {
	switch algorithm {
	case "XChaCha20Poly1305":
		return xchacha.NewX(key)
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown aead cipher "+algorithm)
	}
}

// applyCipher applies the configured block/stream cipher in the given
// direction. CTR is its own inverse; CBC is not, so encrypting pads
// first and decrypting strips padding after.
func applyCipher(cc CipherConfig, key, in []byte, encrypting bool) ([]byte, error) {
	switch cc.Algorithm {
	case "AES":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		switch cc.Mode {
		case athena.ModeCTR:
			out := make([]byte, len(in))
			cipher.NewCTR(block, cc.IV).XORKeyStream(out, in)
			return out, nil
		case athena.ModeCBC:
			if encrypting {
				return cbcEncrypt(block, cc.IV, in, cc.Padding)
			}
			return cbcDecrypt(block, cc.IV, in, cc.Padding)
		default:
			return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unsupported aes mode")
		}
	case "Salsa20":
		var fixedKey [32]byte
		copy(fixedKey[:], key)
		out := make([]byte, len(in))
		salsa20.XORKeyStream(out, in, cc.IV, &fixedKey)
		return out, nil
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown cipher "+cc.Algorithm)
	}
}
