// Package kdf implements ObscurCore's key-derivation component
// (spec.md C3): stretch a pre-key into a cipher-key||mac-key run with
// scrypt, PBKDF2 or (legacy) Argon2id, then carve the two halves off
// the front of the output.
//
// The carve step and the defaulted parameter sets are grounded on the
// teacher's internal/crypto/kdf_argon2id.go (DeriveKEK,
// DefaultDesktopKDF/DefaultMobileKDF): a fixed-shape params struct,
// a salt generated fresh per key, and an output copied into a
// caller-owned buffer before the KDF's own scratch space is zeroed.
package kdf

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/viruswevh/ObscurCore/internal/erase"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// Algorithm names a KDF function in the Athena registry.
type Algorithm string

const (
	AlgScrypt   Algorithm = "scrypt"
	AlgPBKDF2   Algorithm = "pbkdf2"
	AlgArgon2id Algorithm = "argon2id" // legacy entry, carried from the teacher's argon2id KDF
)

// ScryptParams is spec.md §3's KDFConfig.function_parameters shape for
// scrypt: (N, r, p) with N a power of two >= 1024.
type ScryptParams struct {
	N int
	R int
	P int
}

// PBKDF2Params is the (iterations, hash_name) shape for PBKDF2.
type PBKDF2Params struct {
	Iterations int
	HashName   string // "SHA256" or "SHA1"
}

// Argon2Params is the teacher's argon2id parameter shape, carried as
// the legacy KDF entry.
type Argon2Params struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
}

// Config is spec.md's KDFConfig: function name, salt, and the
// parameter set for whichever function is named.
type Config struct {
	Algorithm Algorithm
	Salt      []byte
	Scrypt    ScryptParams
	PBKDF2    PBKDF2Params
	Argon2    Argon2Params
}

// DefaultManifestKDF returns the scrypt parameters spec.md §4.2
// prescribes for the manifest envelope's pre-key: (2^16, 16, 2) for a
// low-entropy (typed) pre-key, (2^10, 8, 2) for a high-entropy
// (UM1-derived) one. saltLen must equal the enclosing cipher's key
// length in bytes.
func DefaultManifestKDF(lowEntropy bool, saltLen int) (Config, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Config{}, err
	}
	if lowEntropy {
		return Config{Algorithm: AlgScrypt, Salt: salt, Scrypt: ScryptParams{N: 1 << 16, R: 16, P: 2}}, nil
	}
	return Config{Algorithm: AlgScrypt, Salt: salt, Scrypt: ScryptParams{N: 1 << 10, R: 8, P: 2}}, nil
}

// DefaultItemKDF returns spec.md §4.2's per-item defaults: (2^14, 8, 1)
// low-entropy, (2^10, 8, 1) high-entropy.
func DefaultItemKDF(lowEntropy bool, saltLen int) (Config, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Config{}, err
	}
	if lowEntropy {
		return Config{Algorithm: AlgScrypt, Salt: salt, Scrypt: ScryptParams{N: 1 << 14, R: 8, P: 1}}, nil
	}
	return Config{Algorithm: AlgScrypt, Salt: salt, Scrypt: ScryptParams{N: 1 << 10, R: 8, P: 1}}, nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Validate checks the parameter set against the invariants spec.md
// §4.2 states: scrypt's N must be a power of two >= 1024.
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgScrypt:
		if !isPowerOfTwo(c.Scrypt.N) || c.Scrypt.N < 1024 {
			return obscerr.ErrKdfParameterInvalid
		}
		if c.Scrypt.R <= 0 || c.Scrypt.P <= 0 {
			return obscerr.ErrKdfParameterInvalid
		}
	case AlgPBKDF2:
		if c.PBKDF2.Iterations <= 0 {
			return obscerr.ErrKdfParameterInvalid
		}
	case AlgArgon2id:
		if c.Argon2.MemoryKiB == 0 || c.Argon2.Time == 0 || c.Argon2.Parallelism == 0 {
			return obscerr.ErrKdfParameterInvalid
		}
	default:
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown kdf algorithm "+string(c.Algorithm))
	}
	return nil
}

const maxDerivedOutputBytes = 1 << 20 // 1 MiB sanity ceiling, spec.md §4.2's KdfOutputTooLong

// Derive stretches preKey into outLen bytes under cfg. The returned
// slice is freshly allocated; callers must erase.Zero it once the
// working keys are carved off.
func Derive(preKey []byte, cfg Config, outLen int) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if outLen <= 0 || outLen > maxDerivedOutputBytes {
		return nil, obscerr.ErrKdfOutputTooLong
	}

	switch cfg.Algorithm {
	case AlgScrypt:
		return scrypt.Key(preKey, cfg.Salt, cfg.Scrypt.N, cfg.Scrypt.R, cfg.Scrypt.P, outLen)
	case AlgPBKDF2:
		h := hashFuncFor(cfg.PBKDF2.HashName)
		if h == nil {
			return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown pbkdf2 hash "+cfg.PBKDF2.HashName)
		}
		return pbkdf2.Key(preKey, cfg.Salt, cfg.PBKDF2.Iterations, outLen, h), nil
	case AlgArgon2id:
		return argon2.IDKey(preKey, cfg.Salt, cfg.Argon2.Time, cfg.Argon2.MemoryKiB, cfg.Argon2.Parallelism, uint32(outLen)), nil
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown kdf algorithm "+string(cfg.Algorithm))
	}
}

// CarveWorkingKeys splits a KDF output into (cipher_key, mac_key) per
// spec.md §3's WorkingKeyPair: the first cipherBits/8 bytes, then the
// next macBits/8 bytes. The source buffer is zeroed after the carve,
// the teacher's deriveEnvelopeKeys/DeriveKEK pattern of never leaving
// the full KDF output lying around once its two halves are copied out.
func CarveWorkingKeys(derived []byte, cipherBits, macBits int) (cipherKey, macKey []byte, err error) {
	cLen, mLen := cipherBits/8, macBits/8
	if len(derived) < cLen+mLen {
		return nil, nil, obscerr.ErrKdfOutputTooLong
	}
	cipherKey = append([]byte(nil), derived[:cLen]...)
	macKey = append([]byte(nil), derived[cLen:cLen+mLen]...)
	erase.Zero(derived)
	return cipherKey, macKey, nil
}

func hashFuncFor(name string) func() hash.Hash {
	switch name {
	case "SHA256":
		return sha256.New
	case "SHA1":
		return sha1.New
	default:
		return nil
	}
}
