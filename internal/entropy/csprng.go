// Package entropy implements ObscurCore's deterministic CSPRNG (spec.md
// C1): a keyed stream-cipher keystream, reproducible byte-for-byte given
// the same (cipher, key, nonce) on any platform, because the payload
// multiplexer's writer and reader must derive identical layout
// decisions independently.
//
// The keystream core is Salsa20 (golang.org/x/crypto/salsa20/salsa),
// the same x/crypto family the teacher already draws hkdf, argon2 and
// chacha20poly1305 from.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/salsa20/salsa"
)

// Cipher names the stream cipher backing a CSPRNG instance.
type Cipher string

const (
	CipherSalsa20   Cipher = "Salsa20"
	CipherSOSEMANUK Cipher = "SOSEMANUK" // registered name only; see doc.go
)

const blockSize = 64

// CSPRNG is a deterministic keystream generator. It is NOT safe for
// concurrent use: the payload multiplexer and the writer/reader share
// one instance per package transfer, single-threaded (spec.md §5).
type CSPRNG struct {
	key     [32]byte
	nonce   [8]byte
	counter uint64

	block [blockSize]byte
	pos   int // next unconsumed byte in block
}

// New constructs a CSPRNG seeded from the OS entropy source. The
// returned key/nonce are exposed so a writer can serialize them into
// the PayloadConfiguration for the reader to reconstruct the identical
// generator.
func New(cipher Cipher) (*CSPRNG, error) {
	var key [32]byte
	var nonce [8]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return NewFromSeed(cipher, key, nonce)
}

// NewFromSeed reconstructs a CSPRNG from an explicit key/nonce pair,
// used by the reader to replay the writer's exact decision sequence.
func NewFromSeed(cipher Cipher, key [32]byte, nonce [8]byte) (*CSPRNG, error) {
	if cipher != CipherSalsa20 {
		return nil, errors.New("entropy: unsupported cipher " + string(cipher))
	}
	g := &CSPRNG{key: key, nonce: nonce, pos: blockSize}
	return g, nil
}

// Key returns the generator's seed key.
func (g *CSPRNG) Key() [32]byte { return g.key }

// Nonce returns the generator's seed nonce.
func (g *CSPRNG) Nonce() [8]byte { return g.nonce }

func (g *CSPRNG) refill() {
	var in [16]byte
	copy(in[:8], g.nonce[:])
	binary.LittleEndian.PutUint64(in[8:], g.counter)
	var zero [blockSize]byte
	salsa.XORKeyStream(g.block[:], zero[:], &in, &g.key)
	g.counter++
	g.pos = 0
}

// NextBytes fills buf with the next len(buf) keystream bytes.
func (g *CSPRNG) NextBytes(buf []byte) {
	for len(buf) > 0 {
		if g.pos >= blockSize {
			g.refill()
		}
		n := copy(buf, g.block[g.pos:])
		g.pos += n
		buf = buf[n:]
	}
}

// NextU32 consumes 4 keystream bytes, little-endian, as an unsigned
// 32-bit integer (spec.md §4.1: "Endianness for next_u32 is
// little-endian consumption of the keystream").
func (g *CSPRNG) NextU32() uint32 {
	var b [4]byte
	g.NextBytes(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// UniformRange returns a value drawn uniformly from [lo, hi] inclusive.
// lo must be <= hi. Rejection sampling over NextU32 avoids modulo bias
// for ranges that don't evenly divide 2^32.
func (g *CSPRNG) UniformRange(lo, hi uint32) uint32 {
	if lo == hi {
		return lo
	}
	span := uint64(hi-lo) + 1
	limit := (uint64(1) << 32) / span * span
	for {
		v := uint64(g.NextU32())
		if v < limit {
			return lo + uint32(v%span)
		}
	}
}
