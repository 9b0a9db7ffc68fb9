// Package wire implements the "stable tagged binary format using
// field numbers (compatible with a widely-deployed tag-length-value
// binary encoder)" spec.md §6 requires for descriptor serialization.
// It is a thin, hand-written encoder/decoder over the protobuf wire
// format (field number + wire type tags, varints, length-delimited
// byte strings) built on google.golang.org/protobuf/encoding/protowire
//, the low-level, codegen-free wire-format primitives the protobuf
// project ships specifically for callers that hand-roll their own
// message shapes instead of compiling .proto files, which is what
// every descriptor in this module (PayloadItem, Manifest,
// ManifestHeader, ManifestCryptoConfig, ...) does.
//
// Every decoder in this module reads a descriptor with Walk and ignores
// the field numbers it does not recognize (spec.md §6: "every field a reader
// does not recognize must be skippable without aborting"), the same
// forward-compatibility contract real protobuf messages provide.
package wire

import (
	"github.com/viruswevh/ObscurCore/internal/obscerr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Builder accumulates a TLV-encoded descriptor.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Bytes returns the accumulated encoding.
func (b *Builder) Bytes() []byte { return b.buf }

// PutBytes appends a length-delimited byte-string field.
func (b *Builder) PutBytes(field protowire.Number, v []byte) {
	if v == nil {
		return
	}
	b.buf = protowire.AppendTag(b.buf, field, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, v)
}

// PutString appends a length-delimited string field.
func (b *Builder) PutString(field protowire.Number, v string) {
	if v == "" {
		return
	}
	b.buf = protowire.AppendTag(b.buf, field, protowire.BytesType)
	b.buf = protowire.AppendString(b.buf, v)
}

// PutVarint appends a varint field.
func (b *Builder) PutVarint(field protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	b.buf = protowire.AppendTag(b.buf, field, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

// PutBool appends a varint-encoded boolean field.
func (b *Builder) PutBool(field protowire.Number, v bool) {
	if !v {
		return
	}
	b.PutVarint(field, 1)
}

// PutMessage appends a nested, already-encoded descriptor as a
// length-delimited field (embedded message).
func (b *Builder) PutMessage(field protowire.Number, nested []byte) {
	b.PutBytes(field, nested)
}

// Field is one decoded (field number, wire type, raw value) triple
// produced while walking a descriptor.
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Bytes  []byte // valid when Type == BytesType
	Uint   uint64 // valid when Type == VarintType or Fixed32Type/Fixed64Type
}

// Walk decodes buf field by field, calling visit for each one. Fields
// with an unrecognized number are still passed to visit (the caller
// decides whether to ignore them), matching "skippable, not fatal."
func Walk(buf []byte, visit func(Field) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return obscerr.ErrFormatMalformed
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return obscerr.ErrFormatMalformed
			}
			buf = buf[n:]
			if err := visit(Field{Number: num, Type: typ, Uint: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return obscerr.ErrFormatMalformed
			}
			buf = buf[n:]
			if err := visit(Field{Number: num, Type: typ, Bytes: v}); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return obscerr.ErrFormatMalformed
			}
			buf = buf[n:]
			if err := visit(Field{Number: num, Type: typ, Uint: uint64(v)}); err != nil {
				return err
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return obscerr.ErrFormatMalformed
			}
			buf = buf[n:]
			if err := visit(Field{Number: num, Type: typ, Uint: v}); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return obscerr.ErrFormatMalformed
			}
			buf = buf[n:]
		}
	}
	return nil
}
