// Package ledgercrypto provides the typed content hash, signature, and
// canonical-encoding primitives spec.md §4.B calls for: every value that is
// hashed, put, signed, or fetched goes through the same deterministic,
// self-describing binary encoding defined here, grounded on the teacher's
// hand-rolled cursor codec (consensus/wire_write.go, wire_read.go,
// compactsize.go) generalized from fixed transaction layouts to arbitrary
// recursive values.
package ledgercrypto

import (
	"encoding/binary"

	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/u128"
)

// Canonical is implemented by every value that can be hashed, signed, or
// stored: it appends its own canonical byte representation to e.
type Canonical interface {
	EncodeCanonical(e *Encoder)
}

// Encoder accumulates the canonical byte representation of a value. All
// multi-byte integers are little-endian, matching the teacher's wire
// helpers; variable-length byte strings are length-prefixed with a
// CompactSize tag so the encoding is self-describing and unambiguous.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 128)}
}

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// WriteU8 appends a single byte.
func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

// WriteBool appends a single byte: 1 for true, 0 for false.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
	} else {
		e.WriteU8(0)
	}
}

// WriteU32 appends v as 4 little-endian bytes.
func (e *Encoder) WriteU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.buf = append(e.buf, buf[:]...)
}

// WriteU64 appends v as 8 little-endian bytes.
func (e *Encoder) WriteU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.buf = append(e.buf, buf[:]...)
}

// WriteU128 appends v as its fixed 16-byte big-endian representation.
func (e *Encoder) WriteU128(v u128.U128) {
	b := v.Bytes()
	e.buf = append(e.buf, b[:]...)
}

// WriteCompactSize appends v using the teacher's CompactSize tagging
// (consensus/compactsize_write.go): values below 0xfd are encoded directly,
// larger values use a tag byte plus a fixed-width field.
func (e *Encoder) WriteCompactSize(v uint64) {
	switch {
	case v < 0xfd:
		e.WriteU8(uint8(v))
	case v <= 0xffff:
		e.WriteU8(0xfd)
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v))
		e.buf = append(e.buf, buf[:]...)
	case v <= 0xffffffff:
		e.WriteU8(0xfe)
		e.WriteU32(uint32(v))
	default:
		e.WriteU8(0xff)
		e.WriteU64(v)
	}
}

// WriteBytes appends a length-prefixed byte string.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteCompactSize(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteFixed appends b verbatim with no length prefix; only used for
// values whose length is fixed by the schema (32-byte hashes, account
// ids).
func (e *Encoder) WriteFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// WritePath appends a HexPath as a length-prefixed sequence of nibble
// bytes (one byte per nibble; the encoding favors unambiguity over
// density, matching the rest of this codec).
func (e *Encoder) WritePath(p hexpath.Path) {
	e.WriteCompactSize(uint64(len(p)))
	for _, n := range p {
		e.WriteU8(uint8(n))
	}
}

// WriteTag appends a single discriminant byte, used for optional fields
// and command dispatch so the encoding self-describes which variant is
// present.
func (e *Encoder) WriteTag(tag uint8) {
	e.WriteU8(tag)
}

// WriteCanonical encodes v and appends its bytes.
func WriteCanonical[T Canonical](e *Encoder, v T) {
	v.EncodeCanonical(e)
}

// cursor reads canonically-encoded bytes back out; used only where a
// decode path genuinely needs one (the overlay-store recompute-then-compare
// technique in verification hashes rather than decodes, so cursor stays
// private and small).
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) readU8() (uint8, error) {
	if c.off+1 > len(c.b) {
		return 0, ledgererr.New(ledgererr.CodeDecode, "unexpected EOF (u8)")
	}
	v := c.b[c.off]
	c.off++
	return v, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.b) {
		return nil, ledgererr.New(ledgererr.CodeDecode, "unexpected EOF (bytes)")
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v, nil
}

func (c *cursor) readCompactSize() (uint64, error) {
	tag, err := c.readU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		b, err := c.readBytes(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case tag == 0xfe:
		b, err := c.readBytes(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		b, err := c.readBytes(8)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b), nil
	}
}
