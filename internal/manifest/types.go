// Package manifest holds ObscurCore's data model (spec.md §3) and the
// manifest envelope component (C9): the ordered list of payload items
// plus the layout configuration, encrypted and authenticated the way
// the teacher's internal/vault.Create/Unlock/flushKD encrypt and
// authenticate the vault's KeyDirectory, a root secret wraps a
// directory of per-entry keys, and the whole directory is re-sealed
// on every change.
package manifest

import (
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// ItemType is spec.md §3's PayloadItem.type enumeration.
type ItemType string

const (
	ItemBinary    ItemType = "Binary"
	ItemUtf8      ItemType = "Utf8"
	ItemKeyAction ItemType = "KeyAction"
)

// PayloadItem is spec.md §3's PayloadItem. Ownership of the
// plaintext stream is lazy: Source/Sink are suppliers evaluated once
// at transfer time, not held-open handles (spec.md §9's "lazy stream
// bindings").
type PayloadItem struct {
	UUID string
	Type ItemType
	Path string

	ExternalLength uint64
	InternalLength uint64

	FormatName string
	FormatData []byte

	Cipher authcipher.CipherConfig
	Auth   authcipher.AuthConfig

	// Either CipherKey/AuthKey are both set (explicit key material), or
	// KeyDerivation is set and keys are resolved from the envelope's
	// pre-key at transfer time (spec.md §3's invariant: "never both,
	// never neither").
	CipherKey []byte
	AuthKey   []byte

	AuthenticationTag []byte

	KeyConfirmation       *confirm.Config
	KeyConfirmationOutput []byte
	KeyDerivation         *kdf.Config

	// Source/Sink are suppliers, not open handles; resolved once by
	// the payload item layer (internal/payitem) at transfer time.
	Source func() (ReadCloser, error) `json:"-"`
	Sink   func() (WriteCloser, error) `json:"-"`
}

// ReadCloser and WriteCloser mirror spec.md §6's StreamSource/
// StreamSink capability: sequential byte I/O with read/write/close.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

type WriteCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// HasExplicitKeys reports whether the item carries raw key material
// rather than a KeyDerivation descriptor.
func (p *PayloadItem) HasExplicitKeys() bool {
	return len(p.CipherKey) > 0 || len(p.AuthKey) > 0
}

// Scheme names a payload multiplexer layout (spec.md §3/§4.7).
type Scheme string

const (
	SchemeSimple     Scheme = "simple"
	SchemeFrameshift Scheme = "frameshift"
	SchemeFabric     Scheme = "fabric"
)

// PayloadConfiguration is spec.md §3's PayloadConfiguration.
type PayloadConfiguration struct {
	Scheme Scheme

	// Frameshift parameters.
	PadMin uint32
	PadMax uint32

	// Fabric parameters.
	StripeMin uint32
	StripeMax uint32

	PRNGName  string
	PRNGKey   [32]byte
	PRNGNonce [8]byte
}

// Fabric/Frameshift bounds, spec.md §4.7.
const (
	minStripeBytes = 64
	maxStripeBytes = 1 << 16
	maxPadBytes    = 1<<16 - 1
)

// Validate checks the layout configuration's bounds (spec.md §4.7)
// before any I/O runs (spec.md §7: size/format errors are raised at
// configuration time). In particular it rejects a Fabric config whose
// stripe_min/stripe_max would make mux.writeFabric's per-turn stripe
// always zero bytes, which never advances any item's cursor and never
// terminates.
func (p PayloadConfiguration) Validate() error {
	switch p.Scheme {
	case SchemeSimple:
		return nil
	case SchemeFrameshift:
		if p.PadMin > p.PadMax {
			return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "frameshift pad_min exceeds pad_max")
		}
		if p.PadMax > maxPadBytes {
			return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "frameshift pad_max exceeds the 2^16-1 byte bound")
		}
		return nil
	case SchemeFabric:
		if p.StripeMin > p.StripeMax {
			return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "fabric stripe_min exceeds stripe_max")
		}
		if p.StripeMin < minStripeBytes {
			return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "fabric stripe_min below the 64 byte minimum")
		}
		if p.StripeMax > maxStripeBytes {
			return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "fabric stripe_max exceeds the 2^16 byte bound")
		}
		return nil
	default:
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown payload scheme "+string(p.Scheme))
	}
}

// CryptoTag distinguishes the two ManifestCryptoConfig variants
// (spec.md §3).
type CryptoTag string

const (
	CryptoSymmetricOnly CryptoTag = "SymmetricOnly"
	CryptoUm1Hybrid     CryptoTag = "Um1Hybrid"
)

// CryptoConfig is spec.md §3's tagged ManifestCryptoConfig.
type CryptoConfig struct {
	Tag CryptoTag

	Cipher authcipher.CipherConfig
	Auth   authcipher.AuthConfig

	KeyConfirmation       *confirm.Config
	KeyConfirmationOutput []byte

	KeyDerivation kdf.Config

	AuthenticationTag []byte

	// Um1Hybrid only.
	Curve              string
	EphemeralPublicKey []byte
}

// Manifest is spec.md §3's Manifest: an ordered item list (order is
// semantically significant, the multiplexer's selection sequence
// depends on it) plus the payload layout configuration.
type Manifest struct {
	Items   []*PayloadItem
	Payload PayloadConfiguration
}

// Header is spec.md §3's ManifestHeader, the struct preceding the
// manifest body on the wire.
type Header struct {
	FormatVersion       uint32
	SchemeName          string
	CryptoConfigEncoded []byte // serialized CryptoConfig
}
