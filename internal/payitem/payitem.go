// Package payitem implements spec.md's C7, the payload item layer:
// per-item key resolution (explicit key material or a derived pre-key)
// and per-item Encrypt-then-MAC framing through C5, grounded on the
// teacher's internal/vault/items.go AddItem/GetItem (DEK generated or
// unwrapped, sealed with SealX, AAD bound to the item's identity).
//
// Unlike the teacher, where every item's DEK is wrapped by the vault
// root key, an ObscurCore item may instead carry an explicit cipher
// key and authentication key directly in its descriptor, the two
// resolution paths spec.md §3 calls out as "never both, never
// neither".
package payitem

import (
	"errors"
	"io"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/erase"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/manifest"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// resolveKeys returns the cipher/mac key pair for item, either copied
// straight from its explicit fields or derived from preKey through its
// KeyDerivation descriptor (spec.md §4.6).
func resolveKeys(item *manifest.PayloadItem, preKey []byte) (cipherKey, macKey []byte, err error) {
	if item.HasExplicitKeys() {
		return append([]byte(nil), item.CipherKey...), append([]byte(nil), item.AuthKey...), nil
	}
	if item.KeyDerivation == nil {
		return nil, nil, obscerr.Wrap(obscerr.ErrKeyMaterialMissing, "item "+item.UUID)
	}
	if item.KeyConfirmation != nil {
		if !confirm.Verify(preKey, *item.KeyConfirmation, item.KeyConfirmationOutput) {
			return nil, nil, obscerr.Wrap(obscerr.ErrKeyConfirmationFailed, "item "+item.UUID)
		}
	}

	var macBits int
	if item.Cipher.Kind == athena.CipherAEAD {
		macBits = 0
	} else {
		entry, err := athena.LookupMac(item.Auth.FunctionName)
		if err != nil {
			return nil, nil, err
		}
		macBits = entry.OutputBits
	}
	derived, err := kdf.Derive(preKey, *item.KeyDerivation, item.Cipher.KeyBits/8+macBits/8)
	if err != nil {
		return nil, nil, err
	}
	return kdf.CarveWorkingKeys(derived, item.Cipher.KeyBits, macBits)
}

// ValidateAll checks every item for a resolvable key and a stream
// binding appropriate to forWrite, collecting every failure into one
// aggregate error instead of stopping at the first (spec.md §4.10:
// "collected across all items and surfaced as a single aggregate at
// the start of write").
func ValidateAll(items []*manifest.PayloadItem, forWrite bool) error {
	var errs []error
	for _, item := range items {
		if !item.HasExplicitKeys() && item.KeyDerivation == nil {
			errs = append(errs, obscerr.Wrap(obscerr.ErrKeyMaterialMissing, "item "+item.UUID))
		}
		if forWrite && item.Source == nil {
			errs = append(errs, obscerr.Wrap(obscerr.ErrStreamBindingAbsent, "item "+item.UUID+" has no source"))
		}
		if !forWrite && item.Sink == nil {
			errs = append(errs, obscerr.Wrap(obscerr.ErrStreamBindingAbsent, "item "+item.UUID+" has no sink"))
		}
	}
	return errors.Join(errs...)
}

// Encrypt reads item's entire bound source, seals it under the
// resolved keys, fills in InternalLength and AuthenticationTag, and
// returns the ciphertext for the multiplexer to place into the
// payload stream.
func Encrypt(item *manifest.PayloadItem, preKey []byte) ([]byte, error) {
	if item.Source == nil {
		return nil, obscerr.Wrap(obscerr.ErrStreamBindingAbsent, "item "+item.UUID)
	}
	src, err := item.Source()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	plaintext, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	item.ExternalLength = uint64(len(plaintext))

	cipherKey, macKey, err := resolveKeys(item, preKey)
	if err != nil {
		return nil, err
	}
	defer erase.Zero(cipherKey)
	defer erase.Zero(macKey)

	aad := manifest.EncodePayloadItem(item, true)
	ciphertext, tag, err := authcipher.Seal(item.Cipher, item.Auth, cipherKey, macKey, plaintext, aad)
	if err != nil {
		return nil, err
	}
	item.InternalLength = uint64(len(ciphertext))
	item.AuthenticationTag = tag
	return ciphertext, nil
}

// Decrypt verifies and opens ciphertext (exactly item.InternalLength
// bytes, supplied by the multiplexer) and writes the recovered
// plaintext to item's bound sink. It fails with PayloadTruncated if
// fewer bytes than ExternalLength were ultimately written.
func Decrypt(item *manifest.PayloadItem, preKey []byte, ciphertext []byte) error {
	if item.Sink == nil {
		return obscerr.Wrap(obscerr.ErrStreamBindingAbsent, "item "+item.UUID)
	}
	if uint64(len(ciphertext)) != item.InternalLength {
		return obscerr.ErrPayloadTruncated
	}

	cipherKey, macKey, err := resolveKeys(item, preKey)
	if err != nil {
		return err
	}
	defer erase.Zero(cipherKey)
	defer erase.Zero(macKey)

	aad := manifest.EncodePayloadItem(item, true)
	plaintext, err := authcipher.Open(item.Cipher, item.Auth, cipherKey, macKey, ciphertext, item.AuthenticationTag, aad)
	if err != nil {
		return err
	}
	if uint64(len(plaintext)) != item.ExternalLength {
		return obscerr.ErrPayloadTruncated
	}

	sink, err := item.Sink()
	if err != nil {
		return err
	}
	defer sink.Close()
	if _, err := sink.Write(plaintext); err != nil {
		return err
	}
	return nil
}
