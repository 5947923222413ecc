package ledgercrypto

import (
	"encoding/binary"

	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/u128"
)

// Decoder reads back the canonical encoding Encoder produces. It is the
// exported counterpart of the package-private cursor, for node schemas
// (accounttree.Node, quorumtree.Body, chainopts types) whose Decode
// functions live outside this package.
type Decoder struct {
	b   []byte
	off int
}

// NewDecoder wraps bs for sequential reads.
func NewDecoder(bs []byte) *Decoder {
	return &Decoder{b: bs}
}

// Remaining returns the number of bytes left unread.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.off
}

func (d *Decoder) need(n int) error {
	if n < 0 || d.off+n > len(d.b) {
		return ledgererr.New(ledgererr.CodeDecode, "unexpected EOF")
	}
	return nil
}

// ReadU8 reads a single byte.
func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

// ReadBool reads a single presence/flag byte.
func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadU32 reads 4 little-endian bytes.
func (d *Decoder) ReadU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

// ReadU64 reads 8 little-endian bytes.
func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

// ReadU128 reads the fixed 16-byte big-endian representation.
func (d *Decoder) ReadU128() (u128.U128, error) {
	if err := d.need(16); err != nil {
		return u128.Zero, err
	}
	var buf [16]byte
	copy(buf[:], d.b[d.off:d.off+16])
	d.off += 16
	return u128.FromBytes(buf), nil
}

// ReadCompactSize reads the teacher's CompactSize tagging.
func (d *Decoder) ReadCompactSize() (uint64, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		if err := d.need(2); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint16(d.b[d.off:])
		d.off += 2
		return uint64(v), nil
	case tag == 0xfe:
		v, err := d.ReadU32()
		return uint64(v), err
	default:
		return d.ReadU64()
	}
}

// ReadBytes reads a length-prefixed byte string.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := append([]byte(nil), d.b[d.off:d.off+int(n)]...)
	d.off += int(n)
	return out, nil
}

// ReadFixed reads exactly n bytes with no length prefix.
func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	out := append([]byte(nil), d.b[d.off:d.off+n]...)
	d.off += n
	return out, nil
}

// ReadHash reads a fixed 32-byte typed hash.
func ReadHash[T any](d *Decoder) (Hash[T], error) {
	b, err := d.ReadFixed(32)
	if err != nil {
		return Hash[T]{}, err
	}
	var digest [32]byte
	copy(digest[:], b)
	return HashFromBytes[T](digest), nil
}

// ReadPath reads a length-prefixed sequence of one-byte nibbles.
func (d *Decoder) ReadPath() (hexpath.Path, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	p := make(hexpath.Path, n)
	for i := range p {
		v, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		p[i] = hexpath.Nibble(v)
	}
	return p, nil
}

// ReadTag reads a single discriminant byte.
func (d *Decoder) ReadTag() (uint8, error) {
	return d.ReadU8()
}
