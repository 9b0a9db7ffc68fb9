// Package confirm implements key confirmation (spec.md C4): a cheap
// MAC over a fixed canonical string, proving knowledge of a key
// without running the full KDF or releasing any manifest plaintext.
// This lets a reader holding several candidate pre-keys (a keyring)
// find the right one in a handful of MAC operations before paying for
// even one scrypt/argon2 pass.
//
// Grounded on the teacher's computeMAC helper in
// internal/crypto/envelope.go (HMAC-SHA256 over a salt-prefixed
// message, compared with crypto/subtle) and on dh_x25519/sig_ed25519's
// pattern of small single-purpose crypto helpers rather than a single
// monolithic "crypto" god object.
package confirm

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// Challenge is the fixed canonical string confirmation MACs are
// computed over (spec.md §4.3).
const Challenge = "obscurcore-v1-keyconfirm"

// Config is spec.md's AuthConfig restricted to the MAC function-kind,
// as used for key confirmation: a salt distinguishes confirmation
// outputs across packages sharing the same pre-key.
type Config struct {
	Salt []byte
}

// Generate computes a confirmation tag for key under cfg.
func Generate(key []byte, cfg Config) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(cfg.Salt)
	mac.Write([]byte(Challenge))
	return mac.Sum(nil)
}

// Verify reports whether key produces expectedTag under cfg, compared
// in constant time over the declared tag length (spec.md design notes:
// "all equality comparisons against secret values ... must be
// constant-time").
func Verify(key []byte, cfg Config, expectedTag []byte) bool {
	got := Generate(key, cfg)
	return subtle.ConstantTimeCompare(got, expectedTag) == 1
}
