// Package um1 implements spec.md's C6: a single-flow (one-pass) Unified
// Model key agreement. Initiate creates an ephemeral key pair on the
// receiver's curve and combines two ECDH points, sender-static-to-
// receiver and ephemeral-to-receiver, under a hash into a shared
// secret; Respond recomputes the same combination from the mirror
// side.
//
// Grounded on the teacher's internal/crypto/dh_x25519.go (crypto/ecdh
// wrapper around GenerateKey/ECDH) for the curve plumbing, and on
// other_examples/codahale-veil-go__kemkdf.go, which documents this
// exact construction in its package doc: "As a One-Pass Unified Model
// C(1e, 2s, ECC CDH) key agreement scheme (per NIST SP 800-56A), this
// KEM provides assurance that the message was encrypted by the holder
// of the sender's private key." The pre-key-bundle shape
// (sender static key + receiver static key + ephemeral key) mirrors
// other_examples/wbd2023-UNSW-COMP6841-Ciphera__prekeys.go's
// PreKeyMessage.
package um1

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// Curve names the EC domain a UM1 key pair lives on.
type Curve string

const (
	CurveX25519 Curve = "X25519"
	CurveP256   Curve = "P-256"
	CurveP384   Curve = "P-384"
)

func domain(c Curve) (ecdh.Curve, error) {
	switch c {
	case CurveX25519:
		return ecdh.X25519(), nil
	case CurveP256:
		return ecdh.P256(), nil
	case CurveP384:
		return ecdh.P384(), nil
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown curve "+string(c))
	}
}

// Domain exposes the ecdh.Curve backing a named curve, so callers that
// only hold a curve name (e.g. decoded from a manifest header) can
// parse a public key without constructing a KeyPair.
func Domain(c Curve) (ecdh.Curve, error) {
	return domain(c)
}

// KeyPair is a static or ephemeral EC key pair on a named curve.
type KeyPair struct {
	Curve Curve
	Priv  *ecdh.PrivateKey
	Pub   *ecdh.PublicKey
}

// GenerateKeyPair creates a fresh key pair on the named curve.
func GenerateKeyPair(c Curve) (*KeyPair, error) {
	dh, err := domain(c)
	if err != nil {
		return nil, err
	}
	priv, err := dh.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Curve: c, Priv: priv, Pub: priv.PublicKey()}, nil
}

// Result is the outcome of one side of a UM1 exchange.
type Result struct {
	EphemeralPublic *ecdh.PublicKey
	SharedSecret    []byte
}

// sameCurve is the invariant both Initiate and Respond must check
// before touching key material (spec.md §4.5: "sender and receiver
// keys must be on the same curve; otherwise fail with CurveMismatch").
func sameCurve(a, b Curve) error {
	if a != b {
		return obscerr.ErrCurveMismatch
	}
	return nil
}

// Initiate runs the sender's half of UM1: generate an ephemeral key
// pair on the receiver's curve, then combine
// H(senderPriv·receiverPub ‖ ephemeralPriv·receiverPub) into the
// shared secret of length outLen.
func Initiate(receiverPub *KeyPair, senderPriv *KeyPair, outLen int) (*Result, error) {
	if err := sameCurve(receiverPub.Curve, senderPriv.Curve); err != nil {
		return nil, err
	}
	eph, err := GenerateKeyPair(receiverPub.Curve)
	if err != nil {
		return nil, err
	}

	staticZZ, err := senderPriv.Priv.ECDH(receiverPub.Pub)
	if err != nil {
		return nil, err
	}
	ephemeralZZ, err := eph.Priv.ECDH(receiverPub.Pub)
	if err != nil {
		return nil, err
	}

	secret, err := deriveSecret(staticZZ, ephemeralZZ, outLen)
	if err != nil {
		return nil, err
	}
	return &Result{EphemeralPublic: eph.Pub, SharedSecret: secret}, nil
}

// Respond runs the receiver's mirror of UM1, given the sender's static
// public key, the receiver's private key, and the ephemeral public key
// the sender transmitted in the manifest header.
func Respond(senderPub *KeyPair, receiverPriv *KeyPair, ephemeralPub *ecdh.PublicKey, outLen int) ([]byte, error) {
	if err := sameCurve(senderPub.Curve, receiverPriv.Curve); err != nil {
		return nil, err
	}

	staticZZ, err := receiverPriv.Priv.ECDH(senderPub.Pub)
	if err != nil {
		return nil, err
	}
	ephemeralZZ, err := receiverPriv.Priv.ECDH(ephemeralPub)
	if err != nil {
		return nil, err
	}

	return deriveSecret(staticZZ, ephemeralZZ, outLen)
}

// deriveSecret combines the static and ephemeral ECDH outputs through
// HKDF-SHA256, the same key-separation primitive the teacher's
// envelope.go uses to turn one shared value into independent key
// material, here applied to two shared values instead of one salted
// master key.
func deriveSecret(staticZZ, ephemeralZZ []byte, outLen int) ([]byte, error) {
	ikm := append(append([]byte(nil), staticZZ...), ephemeralZZ...)
	h := hkdf.New(sha256.New, ikm, nil, []byte("obscurcore-v1-um1"))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}
