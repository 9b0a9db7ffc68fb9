// Package pkgio implements spec.md's C10, the package writer/reader
// state machine: it orchestrates C1 (internal/entropy), C6
// (internal/um1), C7 (internal/payitem), C8 (internal/mux) and C9
// (internal/manifest) to emit or parse the on-wire package layout
// (spec.md §6).
//
// There is no single teacher file this mirrors closely, the
// teacher's vault persists one JSON header plus per-item blobs in
// separate storage keys (internal/vault/storage.go, items.go) rather
// than one self-describing framed stream, so the wire framing here
// (magic bytes, varint-length-prefixed header, XOR-obfuscated length
// field, trailer magic) is grounded directly on spec.md §6, using the
// same field-by-field emission discipline the teacher's
// writeHeader/readHeader pair uses for its own on-disk format.
package pkgio

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/viruswevh/ObscurCore/internal/authcipher"
	"github.com/viruswevh/ObscurCore/internal/confirm"
	"github.com/viruswevh/ObscurCore/internal/entropy"
	"github.com/viruswevh/ObscurCore/internal/erase"
	"github.com/viruswevh/ObscurCore/internal/kdf"
	"github.com/viruswevh/ObscurCore/internal/manifest"
	"github.com/viruswevh/ObscurCore/internal/mux"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
	"github.com/viruswevh/ObscurCore/internal/payitem"
	"github.com/viruswevh/ObscurCore/internal/um1"
)

// magic is both the header and trailer tag (spec.md §6: "OCPK").
var magic = [4]byte{'O', 'C', 'P', 'K'}

// defaultLogger is the package-level fallback every Writer/Reader uses
// until SetLogger overrides it, following the teacher's
// internal/server.Server pattern of a prefixed *log.Logger field
// defaulting to stdout rather than a structured third-party logger.
// Never fed key material or plaintext, only scheme/stage diagnostics.
var defaultLogger = log.New(os.Stdout, "[obscurcore] ", log.LstdFlags)

// CryptoParams describes how the manifest envelope's pre-key is
// resolved, for either direction of the state machine. Exactly one of
// PreKey (SymmetricOnly) or the UM1 key pairs (Um1Hybrid) must be set.
type CryptoParams struct {
	Tag manifest.CryptoTag

	PreKey []byte // SymmetricOnly

	// Um1Hybrid, writer side.
	ReceiverPub *um1.KeyPair
	SenderPriv  *um1.KeyPair

	// Um1Hybrid, reader side.
	SenderPub    *um1.KeyPair
	ReceiverPriv *um1.KeyPair

	Cipher  authcipher.CipherConfig
	Auth    authcipher.AuthConfig
	KDF     kdf.Config
	Confirm *confirm.Config
}

type writerState int

const (
	writerFresh writerState = iota
	writerCryptoSet
	writerItemsStaged
	writerManifestEmitted
	writerTrailerWritten
	writerClosed
)

// Writer is the one-shot package writer (spec.md §4.9).
type Writer struct {
	state   writerState
	crypto  CryptoParams
	items   []*manifest.PayloadItem
	payload manifest.PayloadConfiguration
	log     *log.Logger
}

// NewWriter returns a Writer in its Fresh state.
func NewWriter() *Writer { return &Writer{state: writerFresh, log: defaultLogger} }

// SetLogger overrides the Writer's diagnostic logger. Passing nil
// restores the package default; never pass a logger configured to
// write key material.
func (w *Writer) SetLogger(l *log.Logger) {
	if l == nil {
		l = defaultLogger
	}
	w.log = l
}

// SetCrypto records how the manifest envelope will be sealed, moving
// Fresh → CryptoSet.
func (w *Writer) SetCrypto(p CryptoParams) error {
	if w.state != writerFresh {
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "crypto already set")
	}
	w.crypto = p
	w.state = writerCryptoSet
	return nil
}

// SetItems stages the payload items and layout configuration, moving
// CryptoSet → ItemsStaged. Every item is checked for a resolvable key
// and a source binding before acceptance; failures are aggregated
// (spec.md §4.6, §4.10).
func (w *Writer) SetItems(items []*manifest.PayloadItem, payload manifest.PayloadConfiguration) error {
	if w.state != writerCryptoSet {
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "crypto not set")
	}
	if len(items) == 0 {
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "no payload items")
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	if err := payitem.ValidateAll(items, true); err != nil {
		return err
	}
	w.items = items
	w.payload = payload
	w.state = writerItemsStaged
	w.log.Printf("staged %d item(s), scheme=%s", len(items), payload.Scheme)
	return nil
}

// Write runs the full pipeline exactly once: encrypt every item (C7),
// multiplex their ciphertexts into scratch (C8), seal the completed
// manifest (C9), then emit header, manifest body and payload to out in
// on-wire order (spec.md §6). A second call on any Writer, even a
// fresh one used only once before, fails with AlreadyWritten and
// writes nothing to out (spec.md §8 scenario 3).
func (w *Writer) Write(out io.Writer) error {
	if w.state != writerItemsStaged {
		return obscerr.ErrAlreadyWritten
	}
	// Claim the one-shot immediately: even a failed Write must never be
	// retried (spec.md §4.9: "Write() is permitted exactly once per
	// instance").
	w.state = writerManifestEmitted

	preKey, cc, err := w.resolvePreKey()
	if err != nil {
		return err
	}
	defer erase.Zero(preKey)

	ciphertexts := make(map[string][]byte, len(w.items))
	for _, item := range w.items {
		ct, err := payitem.Encrypt(item, preKey)
		if err != nil {
			return err
		}
		ciphertexts[item.UUID] = ct
	}

	m := &manifest.Manifest{Items: w.items, Payload: w.payload}

	rng, err := entropy.NewFromSeed(entropy.Cipher(w.payload.PRNGName), w.payload.PRNGKey, w.payload.PRNGNonce)
	if err != nil {
		return err
	}
	var scratch bytes.Buffer
	if err := mux.Write(&scratch, m, ciphertexts, rng); err != nil {
		return err
	}

	sealed, err := manifest.SealWithPreKey(m, cc, preKey)
	if err != nil {
		return err
	}

	if _, err := out.Write(magic[:]); err != nil {
		return err
	}
	headerBytes := manifest.EncodeHeader(sealed.Header)
	var lenBuf []byte
	lenBuf = protowire.AppendVarint(lenBuf, uint64(len(headerBytes)))
	if _, err := out.Write(lenBuf); err != nil {
		return err
	}
	if _, err := out.Write(headerBytes); err != nil {
		return err
	}

	body := append(append([]byte(nil), sealed.Ciphertext...), sealed.Tag...)
	var obfLen [4]byte
	binary.LittleEndian.PutUint32(obfLen[:], uint32(len(body)))
	for i := range obfLen {
		obfLen[i] ^= sealed.ObfuscationKey[i]
	}
	if _, err := out.Write(obfLen[:]); err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return err
	}

	if _, err := out.Write(scratch.Bytes()); err != nil {
		return err
	}
	if _, err := out.Write(magic[:]); err != nil {
		return err
	}
	w.state = writerTrailerWritten
	w.state = writerClosed // Closed is the externally observable terminal state.
	w.log.Printf("wrote package: %d byte header, %d byte manifest body, %d byte payload", len(headerBytes), len(body), scratch.Len())
	return nil
}

func (w *Writer) resolvePreKey() ([]byte, *manifest.CryptoConfig, error) {
	switch w.crypto.Tag {
	case manifest.CryptoSymmetricOnly:
		cc := &manifest.CryptoConfig{
			Tag:             manifest.CryptoSymmetricOnly,
			Cipher:          w.crypto.Cipher,
			Auth:            w.crypto.Auth,
			KeyDerivation:   w.crypto.KDF,
			KeyConfirmation: w.crypto.Confirm,
		}
		return append([]byte(nil), w.crypto.PreKey...), cc, nil

	case manifest.CryptoUm1Hybrid:
		const um1SecretLen = 32
		res, err := um1.Initiate(w.crypto.ReceiverPub, w.crypto.SenderPriv, um1SecretLen)
		if err != nil {
			return nil, nil, err
		}
		cc := &manifest.CryptoConfig{
			Tag:                manifest.CryptoUm1Hybrid,
			Cipher:             w.crypto.Cipher,
			Auth:               w.crypto.Auth,
			KeyDerivation:      w.crypto.KDF,
			KeyConfirmation:    w.crypto.Confirm,
			Curve:              string(w.crypto.ReceiverPub.Curve),
			EphemeralPublicKey: res.EphemeralPublic.Bytes(),
		}
		return res.SharedSecret, cc, nil

	default:
		return nil, nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown crypto tag")
	}
}

type readerState int

const (
	readerFresh readerState = iota
	readerHeaderRead
	readerManifestDecrypted
	readerPayloadDemuxing
	readerVerified
	readerClosed
	readerFailed
)

// Reader is the package reader state machine (spec.md §4.9). Any MAC
// or format failure short-circuits it to a Failed state; after that,
// Open fails with "reader already used" and Extract with "manifest not
// opened", not with the original error.
//
// Reading happens in two calls rather than one: the items inside a
// package's manifest have no Source/Sink of their own (those are
// runtime-only fields never carried on the wire, spec.md §9's "lazy
// stream bindings"), so a caller cannot know where to route each
// item's plaintext until it has seen the decoded manifest. Open reads
// and authenticates everything up through the manifest; Extract takes
// a per-item sink binder, then demuxes and decrypts the payload.
type Reader struct {
	state readerState
	err   error
	log   *log.Logger

	in     io.Reader
	m      *manifest.Manifest
	preKey []byte
}

// NewReader returns a Reader in its Fresh state.
func NewReader() *Reader { return &Reader{state: readerFresh, log: defaultLogger} }

// SetLogger overrides the Reader's diagnostic logger; see
// Writer.SetLogger.
func (rd *Reader) SetLogger(l *log.Logger) {
	if l == nil {
		l = defaultLogger
	}
	rd.log = l
}

// Open parses in's header and manifest envelope, returning the
// recovered manifest (its items' Source/Sink fields are still nil).
// Follow with Extract to bind sinks and decrypt the payload. crypto
// resolves the pre-key the same way the writer's CryptoParams did.
func (rd *Reader) Open(in io.Reader, crypto CryptoParams) (*manifest.Manifest, error) {
	if rd.state != readerFresh {
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrConfigurationInvalid, "reader already used"))
	}

	var gotMagic [4]byte
	if _, err := io.ReadFull(in, gotMagic[:]); err != nil || gotMagic != magic {
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "header magic"))
	}

	headerLen, err := readVarint(in)
	if err != nil {
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "header length"))
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "header body"))
	}
	header, err := manifest.DecodeHeader(headerBytes)
	if err != nil {
		return nil, rd.fail(err)
	}
	rd.state = readerHeaderRead

	cc, err := manifest.DecodeCryptoConfig(header.CryptoConfigEncoded)
	if err != nil {
		return nil, rd.fail(err)
	}

	preKey, err := resolveReaderPreKey(cc, crypto)
	if err != nil {
		return nil, rd.fail(err)
	}
	// preKey stays alive until Extract resolves each item's working
	// keys from it; erased there (or by Close, if Extract is never
	// called).
	rd.preKey = preKey

	cipherKey, macKey, err := manifest.DeriveWorkingKeys(cc, preKey)
	if err != nil {
		return nil, rd.fail(err)
	}
	obfKey := manifest.ObfuscationKey(cipherKey, macKey)

	var obfLen [4]byte
	if _, err := io.ReadFull(in, obfLen[:]); err != nil {
		erase.Zero(cipherKey)
		erase.Zero(macKey)
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "body length"))
	}
	for i := range obfLen {
		obfLen[i] ^= obfKey[i]
	}
	bodyLen := binary.LittleEndian.Uint32(obfLen[:])

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(in, body); err != nil {
		erase.Zero(cipherKey)
		erase.Zero(macKey)
		return nil, rd.fail(obscerr.ErrPayloadTruncated)
	}

	tagLen, err := authTagLen(cc.Auth, cc.Cipher)
	if err != nil || tagLen <= 0 || int(bodyLen) < tagLen {
		erase.Zero(cipherKey)
		erase.Zero(macKey)
		return nil, rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "manifest body too short for tag"))
	}
	ciphertext, tag := body[:len(body)-tagLen], body[len(body)-tagLen:]

	aad := manifest.EncodeCryptoConfig(cc, true)
	plaintext, err := authcipher.Open(cc.Cipher, cc.Auth, cipherKey, macKey, ciphertext, tag, aad)
	erase.Zero(cipherKey)
	erase.Zero(macKey)
	if err != nil {
		return nil, rd.fail(err)
	}

	m, err := manifest.DecodeManifest(plaintext)
	if err != nil {
		return nil, rd.fail(err)
	}
	if err := m.Payload.Validate(); err != nil {
		return nil, rd.fail(err)
	}
	rd.state = readerManifestDecrypted
	rd.in = in
	rd.m = m
	rd.log.Printf("opened manifest: %d item(s), scheme=%s", len(m.Items), m.Payload.Scheme)
	return m, nil
}

// Extract binds a sink to every item Open returned (via bindSink,
// called once per item before any payload bytes are read) then demuxes
// and decrypts the payload, writing each item's plaintext to its bound
// sink (spec.md §4.9). The trailer magic is checked last, so a
// truncated or corrupt payload is reported before the caller can
// mistake an incomplete read for success.
func (rd *Reader) Extract(bindSink func(item *manifest.PayloadItem) error) error {
	if rd.state != readerManifestDecrypted {
		return rd.fail(obscerr.Wrap(obscerr.ErrConfigurationInvalid, "manifest not opened"))
	}
	for _, item := range rd.m.Items {
		if err := bindSink(item); err != nil {
			return rd.fail(err)
		}
	}

	rng, err := entropy.NewFromSeed(entropy.Cipher(rd.m.Payload.PRNGName), rd.m.Payload.PRNGKey, rd.m.Payload.PRNGNonce)
	if err != nil {
		return rd.fail(err)
	}
	ciphertexts, err := mux.Read(rd.in, rd.m, rng)
	if err != nil {
		return rd.fail(err)
	}
	rd.state = readerPayloadDemuxing

	for _, item := range rd.m.Items {
		if err := payitem.Decrypt(item, rd.preKey, ciphertexts[item.UUID]); err != nil {
			return rd.fail(err)
		}
	}

	var trailer [4]byte
	if _, err := io.ReadFull(rd.in, trailer[:]); err != nil || trailer != magic {
		return rd.fail(obscerr.Wrap(obscerr.ErrFormatMalformed, "trailer magic"))
	}

	rd.state = readerVerified
	erase.Zero(rd.preKey)
	rd.preKey = nil
	rd.log.Printf("extracted %d item(s)", len(rd.m.Items))
	return nil
}

func (rd *Reader) fail(err error) error {
	rd.state = readerFailed
	rd.err = err
	erase.Zero(rd.preKey)
	return err
}

// Close releases the Reader's held pre-key, for a caller that opened a
// package only to inspect its manifest (spec.md §4.9 inspect path) and
// never calls Extract. A no-op after Extract or fail, both of which
// have already cleared the key.
func (rd *Reader) Close() {
	erase.Zero(rd.preKey)
	rd.preKey = nil
	if rd.state == readerManifestDecrypted {
		rd.state = readerClosed
	}
}

func resolveReaderPreKey(cc manifest.CryptoConfig, crypto CryptoParams) ([]byte, error) {
	switch cc.Tag {
	case manifest.CryptoSymmetricOnly:
		return append([]byte(nil), crypto.PreKey...), nil
	case manifest.CryptoUm1Hybrid:
		if string(crypto.ReceiverPriv.Curve) != cc.Curve {
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
		return um1.Respond(crypto.SenderPub, crypto.ReceiverPriv, ephemeralPub, um1SecretLen)
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown crypto tag")
	}
}

// authTagLen reports the on-wire tag length for cc/ac, used to split
// the manifest body blob into ciphertext and tag.
func authTagLen(ac authcipher.AuthConfig, cc authcipher.CipherConfig) (int, error) {
	if cc.AEADMacBits > 0 {
		return cc.AEADMacBits / 8, nil
	}
	switch ac.FunctionName {
	case "HMAC-SHA256":
		return 32, nil
	case "HMAC-SHA1":
		return 20, nil
	default:
		return 0, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown mac "+ac.FunctionName)
	}
}

func readVarint(r io.Reader) (uint64, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		buf = append(buf, b[0])
		if b[0] < 0x80 {
			break
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, obscerr.ErrFormatMalformed
	}
	return v, nil
}
