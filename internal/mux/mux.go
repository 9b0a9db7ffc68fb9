// Package mux implements spec.md's C8, the payload multiplexer: it
// interleaves each item's pre-sealed ciphertext into one outgoing byte
// stream (or the inverse split on read) under a layout scheme, sharing
// a single C1 CSPRNG between every decision so a reader replaying the
// same seed reproduces the identical sequence of selections.
//
// There is no teacher file that does this directly, the teacher's
// vault stores one ciphertext blob per item in separate storage keys
// (internal/vault/items.go), never interleaved into a shared stream,
// so this package is grounded on spec.md §4.7 directly, using C1
// (internal/entropy) for every random decision the way the teacher's
// envelope code uses crypto/rand for nonces.
package mux

import (
	"bytes"
	"io"

	"github.com/viruswevh/ObscurCore/internal/entropy"
	"github.com/viruswevh/ObscurCore/internal/manifest"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

// Write interleaves ciphertexts (keyed by item UUID, one entry per
// item in m.Items) into w according to m.Payload's scheme.
func Write(w io.Writer, m *manifest.Manifest, ciphertexts map[string][]byte, rng *entropy.CSPRNG) error {
	switch m.Payload.Scheme {
	case manifest.SchemeSimple:
		return writeSimple(w, m.Items, ciphertexts)
	case manifest.SchemeFrameshift:
		return writeFrameshift(w, m.Items, ciphertexts, m.Payload, rng)
	case manifest.SchemeFabric:
		return writeFabric(w, m.Items, ciphertexts, m.Payload, rng)
	default:
		return obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown payload scheme")
	}
}

// Read is Write's inverse: it splits r back into one ciphertext slice
// per item, keyed by UUID, using each item's InternalLength (already
// populated by decoding the manifest) to know how many bytes belong to
// it.
func Read(r io.Reader, m *manifest.Manifest, rng *entropy.CSPRNG) (map[string][]byte, error) {
	switch m.Payload.Scheme {
	case manifest.SchemeSimple:
		return readSimple(r, m.Items)
	case manifest.SchemeFrameshift:
		return readFrameshift(r, m.Items, m.Payload, rng)
	case manifest.SchemeFabric:
		return readFabric(r, m.Items, m.Payload, rng)
	default:
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "unknown payload scheme")
	}
}

func writeSimple(w io.Writer, items []*manifest.PayloadItem, ciphertexts map[string][]byte) error {
	for _, item := range items {
		if _, err := w.Write(ciphertexts[item.UUID]); err != nil {
			return err
		}
	}
	return nil
}

func readSimple(r io.Reader, items []*manifest.PayloadItem) (map[string][]byte, error) {
	out := make(map[string][]byte, len(items))
	for _, item := range items {
		buf := make([]byte, item.InternalLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, obscerr.ErrPayloadTruncated
		}
		out[item.UUID] = buf
	}
	return out, nil
}

// writePad emits a scheme-chosen count of CSPRNG bytes as inter-item
// filler. length 0 is a no-op, which is what makes
// pad_min=pad_max=0 degenerate to Simple (spec.md §8 boundary property).
func writePad(w io.Writer, rng *entropy.CSPRNG, lo, hi uint32) error {
	n := rng.UniformRange(lo, hi)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	rng.NextBytes(buf)
	_, err := w.Write(buf)
	return err
}

func discardPad(r io.Reader, rng *entropy.CSPRNG, lo, hi uint32) error {
	n := rng.UniformRange(lo, hi)
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return obscerr.ErrPayloadTruncated
	}
	return nil
}

// writeFrameshift writes items in manifest order with a random-length
// pad between every pair and a final trailing pad after the last item
// (spec.md §4.7/§4.9's "the scheme may emit a final random-length
// trailing pad"; this implementation always emits one so writer and
// reader never need to separately negotiate its presence).
func writeFrameshift(w io.Writer, items []*manifest.PayloadItem, ciphertexts map[string][]byte, cfg manifest.PayloadConfiguration, rng *entropy.CSPRNG) error {
	for i, item := range items {
		if i > 0 {
			if err := writePad(w, rng, cfg.PadMin, cfg.PadMax); err != nil {
				return err
			}
		}
		if _, err := w.Write(ciphertexts[item.UUID]); err != nil {
			return err
		}
	}
	return writePad(w, rng, cfg.PadMin, cfg.PadMax)
}

func readFrameshift(r io.Reader, items []*manifest.PayloadItem, cfg manifest.PayloadConfiguration, rng *entropy.CSPRNG) (map[string][]byte, error) {
	out := make(map[string][]byte, len(items))
	for i, item := range items {
		if i > 0 {
			if err := discardPad(r, rng, cfg.PadMin, cfg.PadMax); err != nil {
				return nil, err
			}
		}
		buf := make([]byte, item.InternalLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, obscerr.ErrPayloadTruncated
		}
		out[item.UUID] = buf
	}
	if err := discardPad(r, rng, cfg.PadMin, cfg.PadMax); err != nil {
		return nil, err
	}
	return out, nil
}

// stripeCursor tracks one item's progress through Fabric interleaving.
type stripeCursor struct {
	uuid   string
	data   []byte
	offset int
}

// writeFabric interleaves items in random stripes: at each turn the
// CSPRNG picks an open item uniformly at random and a stripe length in
// [stripe_min, stripe_max], truncated to what remains of that item
// (spec.md §4.7). With a single open item every turn selects it,
// degenerating to Simple for that item (§8 boundary property).
func writeFabric(w io.Writer, items []*manifest.PayloadItem, ciphertexts map[string][]byte, cfg manifest.PayloadConfiguration, rng *entropy.CSPRNG) error {
	open := make([]*stripeCursor, 0, len(items))
	for _, item := range items {
		open = append(open, &stripeCursor{uuid: item.UUID, data: ciphertexts[item.UUID]})
	}
	for len(open) > 0 {
		idx := rng.UniformRange(0, uint32(len(open)-1))
		cur := open[idx]
		remaining := len(cur.data) - cur.offset
		stripe := int(rng.UniformRange(cfg.StripeMin, cfg.StripeMax))
		if stripe > remaining {
			stripe = remaining
		}
		if stripe > 0 {
			if _, err := w.Write(cur.data[cur.offset : cur.offset+stripe]); err != nil {
				return err
			}
			cur.offset += stripe
		}
		if cur.offset >= len(cur.data) {
			open = append(open[:idx], open[idx+1:]...)
		}
	}
	return nil
}

func readFabric(r io.Reader, items []*manifest.PayloadItem, cfg manifest.PayloadConfiguration, rng *entropy.CSPRNG) (map[string][]byte, error) {
	buffers := make(map[string]*bytes.Buffer, len(items))
	open := make([]*stripeCursor, 0, len(items))
	for _, item := range items {
		buffers[item.UUID] = &bytes.Buffer{}
		open = append(open, &stripeCursor{uuid: item.UUID, data: make([]byte, item.InternalLength)})
	}
	for len(open) > 0 {
		idx := rng.UniformRange(0, uint32(len(open)-1))
		cur := open[idx]
		remaining := len(cur.data) - cur.offset
		stripe := int(rng.UniformRange(cfg.StripeMin, cfg.StripeMax))
		if stripe > remaining {
			stripe = remaining
		}
		if stripe > 0 {
			chunk := make([]byte, stripe)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return nil, obscerr.ErrPayloadTruncated
			}
			buffers[cur.uuid].Write(chunk)
			cur.offset += stripe
		}
		if cur.offset >= len(cur.data) {
			open = append(open[:idx], open[idx+1:]...)
		}
	}
	out := make(map[string][]byte, len(items))
	for uuid, buf := range buffers {
		out[uuid] = buf.Bytes()
	}
	return out, nil
}
