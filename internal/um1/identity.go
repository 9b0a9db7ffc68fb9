// Sender identity binding: an optional Ed25519 signature over a UM1
// ephemeral public key, so a verifier holding the sender's long-term
// identity key can confirm which static key actually ran Initiate
// instead of trusting the manifest's EphemeralPublicKey field alone.
// Not required by any C6 operation, spec.md's UM1 description is
// silent on sender attestation beyond the key-agreement math itself,
// but kept as a companion capability the same way the teacher kept
// Ed25519 signing (internal/crypto/sig_ed25519.go) next to its X25519
// agreement code without the vault itself calling either directly.
package um1

import (
	"crypto/ed25519"
	"crypto/rand"
)

// IdentityKeyPair is a long-term Ed25519 signing identity, distinct
// from the ephemeral/static ECDH KeyPair used for agreement itself.
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentityKeyPair creates a fresh Ed25519 identity.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// SignEphemeral signs an ephemeral public key's encoded bytes under id.
func SignEphemeral(id *IdentityKeyPair, ephemeralPublicKey []byte) []byte {
	return ed25519.Sign(id.Private, ephemeralPublicKey)
}

// VerifyEphemeral checks a signature produced by SignEphemeral.
func VerifyEphemeral(pub ed25519.PublicKey, ephemeralPublicKey, sig []byte) bool {
	return ed25519.Verify(pub, ephemeralPublicKey, sig)
}
