package manifest

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
	"github.com/viruswevh/ObscurCore/internal/wire"
)

// Field numbers are fixed per spec.md §6 ("Field numbers for each
// descriptor are fixed") and never renumbered across versions; new
// fields take the next free number and old decoders skip them.

const (
	fCipherKind      protowire.Number = 1
	fCipherAlgorithm protowire.Number = 2
	fCipherKeyBits   protowire.Number = 3
	fCipherBlockBits protowire.Number = 4
	fCipherMode      protowire.Number = 5
	fCipherPadding   protowire.Number = 6
	fCipherIV        protowire.Number = 7
	fCipherAEADMac   protowire.Number = 8
)

// EncodeCipherConfig serializes a CipherConfig descriptor.
func EncodeCipherConfig(cc authcipher.CipherConfig) []byte {
	b := wire.NewBuilder()
	b.PutVarint(fCipherKind, uint64(cc.Kind))
	b.PutString(fCipherAlgorithm, cc.Algorithm)
	b.PutVarint(fCipherKeyBits, uint64(cc.KeyBits))
	b.PutVarint(fCipherBlockBits, uint64(cc.BlockBits))
	b.PutString(fCipherMode, string(cc.Mode))
	b.PutString(fCipherPadding, string(cc.Padding))
	b.PutBytes(fCipherIV, cc.IV)
	b.PutVarint(fCipherAEADMac, uint64(cc.AEADMacBits))
	return b.Bytes()
}

// DecodeCipherConfig parses a CipherConfig descriptor, skipping any
// unrecognized field.
func DecodeCipherConfig(buf []byte) (authcipher.CipherConfig, error) {
	var cc authcipher.CipherConfig
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fCipherKind:
			cc.Kind = athena.CipherKind(f.Uint)
		case fCipherAlgorithm:
			cc.Algorithm = string(f.Bytes)
		case fCipherKeyBits:
			cc.KeyBits = int(f.Uint)
		case fCipherBlockBits:
			cc.BlockBits = int(f.Uint)
		case fCipherMode:
			cc.Mode = athena.BlockMode(f.Bytes)
		case fCipherPadding:
			cc.Padding = athena.Padding(f.Bytes)
		case fCipherIV:
			cc.IV = append([]byte(nil), f.Bytes...)
		case fCipherAEADMac:
			cc.AEADMacBits = int(f.Uint)
		}
		return nil
	})
	return cc, err
}

const fAuthFunctionName protowire.Number = 1

// EncodeAuthConfig serializes an AuthConfig descriptor.
func EncodeAuthConfig(ac authcipher.AuthConfig) []byte {
	b := wire.NewBuilder()
	b.PutString(fAuthFunctionName, ac.FunctionName)
	return b.Bytes()
}

// DecodeAuthConfig parses an AuthConfig descriptor.
func DecodeAuthConfig(buf []byte) (authcipher.AuthConfig, error) {
	var ac authcipher.AuthConfig
	err := wire.Walk(buf, func(f wire.Field) error {
		if f.Number == fAuthFunctionName {
			ac.FunctionName = string(f.Bytes)
		}
		return nil
	})
	return ac, err
}

const (
	fKdfAlgorithm    protowire.Number = 1
	fKdfSalt         protowire.Number = 2
	fKdfScryptN      protowire.Number = 3
	fKdfScryptR      protowire.Number = 4
	fKdfScryptP      protowire.Number = 5
	fKdfPBKDF2Iters  protowire.Number = 6
	fKdfPBKDF2Hash   protowire.Number = 7
	fKdfArgon2Mem    protowire.Number = 8
	fKdfArgon2Time   protowire.Number = 9
	fKdfArgon2Par    protowire.Number = 10
)

// EncodeKDFConfig serializes a KDFConfig descriptor.
func EncodeKDFConfig(c kdf.Config) []byte {
	b := wire.NewBuilder()
	b.PutString(fKdfAlgorithm, string(c.Algorithm))
	b.PutBytes(fKdfSalt, c.Salt)
	b.PutVarint(fKdfScryptN, uint64(c.Scrypt.N))
	b.PutVarint(fKdfScryptR, uint64(c.Scrypt.R))
	b.PutVarint(fKdfScryptP, uint64(c.Scrypt.P))
	b.PutVarint(fKdfPBKDF2Iters, uint64(c.PBKDF2.Iterations))
	b.PutString(fKdfPBKDF2Hash, c.PBKDF2.HashName)
	b.PutVarint(fKdfArgon2Mem, uint64(c.Argon2.MemoryKiB))
	b.PutVarint(fKdfArgon2Time, uint64(c.Argon2.Time))
	b.PutVarint(fKdfArgon2Par, uint64(c.Argon2.Parallelism))
	return b.Bytes()
}

// DecodeKDFConfig parses a KDFConfig descriptor.
func DecodeKDFConfig(buf []byte) (kdf.Config, error) {
	var c kdf.Config
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fKdfAlgorithm:
			c.Algorithm = kdf.Algorithm(f.Bytes)
		case fKdfSalt:
			c.Salt = append([]byte(nil), f.Bytes...)
		case fKdfScryptN:
			c.Scrypt.N = int(f.Uint)
		case fKdfScryptR:
			c.Scrypt.R = int(f.Uint)
		case fKdfScryptP:
			c.Scrypt.P = int(f.Uint)
		case fKdfPBKDF2Iters:
			c.PBKDF2.Iterations = int(f.Uint)
		case fKdfPBKDF2Hash:
			c.PBKDF2.HashName = string(f.Bytes)
		case fKdfArgon2Mem:
			c.Argon2.MemoryKiB = uint32(f.Uint)
		case fKdfArgon2Time:
			c.Argon2.Time = uint32(f.Uint)
		case fKdfArgon2Par:
			c.Argon2.Parallelism = uint8(f.Uint)
		}
		return nil
	})
	return c, err
}

const fConfirmSalt protowire.Number = 1

// EncodeConfirmConfig serializes a key-confirmation Config.
func EncodeConfirmConfig(c confirm.Config) []byte {
	b := wire.NewBuilder()
	b.PutBytes(fConfirmSalt, c.Salt)
	return b.Bytes()
}

// DecodeConfirmConfig parses a key-confirmation Config.
func DecodeConfirmConfig(buf []byte) (confirm.Config, error) {
	var c confirm.Config
	err := wire.Walk(buf, func(f wire.Field) error {
		if f.Number == fConfirmSalt {
			c.Salt = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	return c, err
}

const (
	fItemUUID             protowire.Number = 1
	fItemType             protowire.Number = 2
	fItemPath             protowire.Number = 3
	fItemExternalLength   protowire.Number = 4
	fItemInternalLength   protowire.Number = 5
	fItemFormatName       protowire.Number = 6
	fItemFormatData       protowire.Number = 7
	fItemCipher           protowire.Number = 8
	fItemAuth             protowire.Number = 9
	fItemCipherKey        protowire.Number = 10
	fItemAuthKey          protowire.Number = 11
	fItemAuthTag          protowire.Number = 12
	fItemKeyConfirmation  protowire.Number = 13
	fItemKeyConfirmOutput protowire.Number = 14
	fItemKeyDerivation    protowire.Number = 15
)

// EncodePayloadItem serializes a PayloadItem descriptor. When
// elideAuthTag is true, this builds the "authenticatable clone" spec.md
// §9's open question (b) describes: the authentication_tag field (12)
// is omitted, and so is internal_length (field 5), because both are
// filled in only once the item has actually been sealed (internal_length
// from the ciphertext's own length, the tag from authcipher.Seal's
// output) and so cannot appear in the bytes that authenticate the seal
// producing them in the first place. Encrypt builds this AAD before
// either field is known; Decrypt builds it after both are already
// populated from the wire, so the clone must exclude both for the two
// sides to agree.
// KeyConfirmationOutput is always included (see SPEC_FULL.md §5 for the
// reasoning this module freezes).
func EncodePayloadItem(item *PayloadItem, elideAuthTag bool) []byte {
	b := wire.NewBuilder()
	b.PutString(fItemUUID, item.UUID)
	b.PutString(fItemType, string(item.Type))
	b.PutString(fItemPath, item.Path)
	b.PutVarint(fItemExternalLength, item.ExternalLength)
	if !elideAuthTag {
		b.PutVarint(fItemInternalLength, item.InternalLength)
	}
	b.PutString(fItemFormatName, item.FormatName)
	b.PutBytes(fItemFormatData, item.FormatData)
	b.PutMessage(fItemCipher, EncodeCipherConfig(item.Cipher))
	b.PutMessage(fItemAuth, EncodeAuthConfig(item.Auth))
	b.PutBytes(fItemCipherKey, item.CipherKey)
	b.PutBytes(fItemAuthKey, item.AuthKey)
	if !elideAuthTag {
		b.PutBytes(fItemAuthTag, item.AuthenticationTag)
	}
	if item.KeyConfirmation != nil {
		b.PutMessage(fItemKeyConfirmation, EncodeConfirmConfig(*item.KeyConfirmation))
	}
	b.PutBytes(fItemKeyConfirmOutput, item.KeyConfirmationOutput)
	if item.KeyDerivation != nil {
		b.PutMessage(fItemKeyDerivation, EncodeKDFConfig(*item.KeyDerivation))
	}
	return b.Bytes()
}

// DecodePayloadItem parses a PayloadItem descriptor.
func DecodePayloadItem(buf []byte) (*PayloadItem, error) {
	item := &PayloadItem{}
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fItemUUID:
			item.UUID = string(f.Bytes)
		case fItemType:
			item.Type = ItemType(f.Bytes)
		case fItemPath:
			item.Path = string(f.Bytes)
		case fItemExternalLength:
			item.ExternalLength = f.Uint
		case fItemInternalLength:
			item.InternalLength = f.Uint
		case fItemFormatName:
			item.FormatName = string(f.Bytes)
		case fItemFormatData:
			item.FormatData = append([]byte(nil), f.Bytes...)
		case fItemCipher:
			cc, err := DecodeCipherConfig(f.Bytes)
			if err != nil {
				return err
			}
			item.Cipher = cc
		case fItemAuth:
			ac, err := DecodeAuthConfig(f.Bytes)
			if err != nil {
				return err
			}
			item.Auth = ac
		case fItemCipherKey:
			item.CipherKey = append([]byte(nil), f.Bytes...)
		case fItemAuthKey:
			item.AuthKey = append([]byte(nil), f.Bytes...)
		case fItemAuthTag:
			item.AuthenticationTag = append([]byte(nil), f.Bytes...)
		case fItemKeyConfirmation:
			cfg, err := DecodeConfirmConfig(f.Bytes)
			if err != nil {
				return err
			}
			item.KeyConfirmation = &cfg
		case fItemKeyConfirmOutput:
			item.KeyConfirmationOutput = append([]byte(nil), f.Bytes...)
		case fItemKeyDerivation:
			kc, err := DecodeKDFConfig(f.Bytes)
			if err != nil {
				return err
			}
			item.KeyDerivation = &kc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

const (
	fPayloadScheme    protowire.Number = 1
	fPayloadPadMin    protowire.Number = 2
	fPayloadPadMax    protowire.Number = 3
	fPayloadStripeMin protowire.Number = 4
	fPayloadStripeMax protowire.Number = 5
	fPayloadPRNGName  protowire.Number = 6
	fPayloadPRNGKey   protowire.Number = 7
	fPayloadPRNGNonce protowire.Number = 8
)

// EncodePayloadConfiguration serializes a PayloadConfiguration.
func EncodePayloadConfiguration(c PayloadConfiguration) []byte {
	b := wire.NewBuilder()
	b.PutString(fPayloadScheme, string(c.Scheme))
	b.PutVarint(fPayloadPadMin, uint64(c.PadMin))
	b.PutVarint(fPayloadPadMax, uint64(c.PadMax))
	b.PutVarint(fPayloadStripeMin, uint64(c.StripeMin))
	b.PutVarint(fPayloadStripeMax, uint64(c.StripeMax))
	b.PutString(fPayloadPRNGName, c.PRNGName)
	b.PutBytes(fPayloadPRNGKey, c.PRNGKey[:])
	b.PutBytes(fPayloadPRNGNonce, c.PRNGNonce[:])
	return b.Bytes()
}

// DecodePayloadConfiguration parses a PayloadConfiguration.
func DecodePayloadConfiguration(buf []byte) (PayloadConfiguration, error) {
	var c PayloadConfiguration
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fPayloadScheme:
			c.Scheme = Scheme(f.Bytes)
		case fPayloadPadMin:
			c.PadMin = uint32(f.Uint)
		case fPayloadPadMax:
			c.PadMax = uint32(f.Uint)
		case fPayloadStripeMin:
			c.StripeMin = uint32(f.Uint)
		case fPayloadStripeMax:
			c.StripeMax = uint32(f.Uint)
		case fPayloadPRNGName:
			c.PRNGName = string(f.Bytes)
		case fPayloadPRNGKey:
			if len(f.Bytes) == 32 {
				copy(c.PRNGKey[:], f.Bytes)
			}
		case fPayloadPRNGNonce:
			if len(f.Bytes) == 8 {
				copy(c.PRNGNonce[:], f.Bytes)
			}
		}
		return nil
	})
	return c, err
}

const (
	fCryptoTag               protowire.Number = 1
	fCryptoCipher            protowire.Number = 2
	fCryptoAuth              protowire.Number = 3
	fCryptoKeyConfirmation   protowire.Number = 4
	fCryptoKeyConfirmOutput  protowire.Number = 5
	fCryptoKeyDerivation     protowire.Number = 6
	fCryptoAuthenticationTag protowire.Number = 7
	fCryptoCurve             protowire.Number = 8
	fCryptoEphemeralPub      protowire.Number = 9
)

// EncodeCryptoConfig serializes a CryptoConfig. elideAuthTag controls
// field 7 only (see the open-question decision in SPEC_FULL.md §5).
func EncodeCryptoConfig(c CryptoConfig, elideAuthTag bool) []byte {
	b := wire.NewBuilder()
	b.PutString(fCryptoTag, string(c.Tag))
	b.PutMessage(fCryptoCipher, EncodeCipherConfig(c.Cipher))
	b.PutMessage(fCryptoAuth, EncodeAuthConfig(c.Auth))
	if c.KeyConfirmation != nil {
		b.PutMessage(fCryptoKeyConfirmation, EncodeConfirmConfig(*c.KeyConfirmation))
	}
	b.PutBytes(fCryptoKeyConfirmOutput, c.KeyConfirmationOutput)
	b.PutMessage(fCryptoKeyDerivation, EncodeKDFConfig(c.KeyDerivation))
	if !elideAuthTag {
		b.PutBytes(fCryptoAuthenticationTag, c.AuthenticationTag)
	}
	b.PutString(fCryptoCurve, c.Curve)
	b.PutBytes(fCryptoEphemeralPub, c.EphemeralPublicKey)
	return b.Bytes()
}

// DecodeCryptoConfig parses a CryptoConfig.
func DecodeCryptoConfig(buf []byte) (CryptoConfig, error) {
	var c CryptoConfig
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fCryptoTag:
			c.Tag = CryptoTag(f.Bytes)
		case fCryptoCipher:
			cc, err := DecodeCipherConfig(f.Bytes)
			if err != nil {
				return err
			}
			c.Cipher = cc
		case fCryptoAuth:
			ac, err := DecodeAuthConfig(f.Bytes)
			if err != nil {
				return err
			}
			c.Auth = ac
		case fCryptoKeyConfirmation:
			cfg, err := DecodeConfirmConfig(f.Bytes)
			if err != nil {
				return err
			}
			c.KeyConfirmation = &cfg
		case fCryptoKeyConfirmOutput:
			c.KeyConfirmationOutput = append([]byte(nil), f.Bytes...)
		case fCryptoKeyDerivation:
			kc, err := DecodeKDFConfig(f.Bytes)
			if err != nil {
				return err
			}
			c.KeyDerivation = kc
		case fCryptoAuthenticationTag:
			c.AuthenticationTag = append([]byte(nil), f.Bytes...)
		case fCryptoCurve:
			c.Curve = string(f.Bytes)
		case fCryptoEphemeralPub:
			c.EphemeralPublicKey = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	return c, err
}

const (
	fManifestItems   protowire.Number = 1
	fManifestPayload protowire.Number = 2
)

// EncodeManifest serializes a Manifest. Item order is preserved by
// emitting each item as a repeated field in list order (spec.md §3:
// "order is semantically significant").
func EncodeManifest(m *Manifest) []byte {
	b := wire.NewBuilder()
	for _, item := range m.Items {
		b.PutMessage(fManifestItems, EncodePayloadItem(item, false))
	}
	b.PutMessage(fManifestPayload, EncodePayloadConfiguration(m.Payload))
	return b.Bytes()
}

// DecodeManifest parses a Manifest, preserving item order.
func DecodeManifest(buf []byte) (*Manifest, error) {
	m := &Manifest{}
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fManifestItems:
			item, err := DecodePayloadItem(f.Bytes)
			if err != nil {
				return err
			}
			m.Items = append(m.Items, item)
		case fManifestPayload:
			cfg, err := DecodePayloadConfiguration(f.Bytes)
			if err != nil {
				return err
			}
			m.Payload = cfg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

const (
	fHeaderFormatVersion protowire.Number = 1
	fHeaderSchemeName    protowire.Number = 2
	fHeaderCryptoConfig  protowire.Number = 3
)

// EncodeHeader serializes a ManifestHeader.
func EncodeHeader(h Header) []byte {
	b := wire.NewBuilder()
	b.PutVarint(fHeaderFormatVersion, uint64(h.FormatVersion))
	b.PutString(fHeaderSchemeName, h.SchemeName)
	b.PutBytes(fHeaderCryptoConfig, h.CryptoConfigEncoded)
	return b.Bytes()
}

// DecodeHeader parses a ManifestHeader.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	err := wire.Walk(buf, func(f wire.Field) error {
		switch f.Number {
		case fHeaderFormatVersion:
			h.FormatVersion = uint32(f.Uint)
		case fHeaderSchemeName:
			h.SchemeName = string(f.Bytes)
		case fHeaderCryptoConfig:
			h.CryptoConfigEncoded = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return Header{}, obscerr.Wrap(obscerr.ErrFormatMalformed, "header decode")
	}
	return h, nil
}
