package xtaf

import "encoding/binary"

// Cursor is a stateless view over an immutable image byte slice. It never
// copies the image and never advances a read position of its own; every
// read names the absolute offset it wants, the way the teacher's
// binary.Read-over-bytes.Reader calls in mbr.go/fat.go name every field's
// offset explicitly. All multi-byte reads are big-endian, per the XTAF
// on-disk format.
type Cursor struct {
	image []byte
}

// NewCursor wraps an image byte slice for bounds-checked reads.
func NewCursor(image []byte) Cursor {
	return Cursor{image: image}
}

// Len returns the length of the underlying image.
func (c Cursor) Len() int {
	return len(c.image)
}

func (c Cursor) require(off uint64, n uint64) error {
	if off+n > uint64(len(c.image)) {
		return &InvalidDiskLengthError{Expected: off + n, Actual: uint64(len(c.image))}
	}
	return nil
}

// U16 reads a big-endian uint16 at the given byte offset.
func (c Cursor) U16(off uint64) (uint16, error) {
	if err := c.require(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.image[off : off+2]), nil
}

// U32 reads a big-endian uint32 at the given byte offset.
func (c Cursor) U32(off uint64) (uint32, error) {
	if err := c.require(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.image[off : off+4]), nil
}

// U64 reads a big-endian uint64 at the given byte offset.
func (c Cursor) U64(off uint64) (uint64, error) {
	if err := c.require(off, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(c.image[off : off+8]), nil
}

// Bytes returns a (non-copied) view of n bytes starting at off.
func (c Cursor) Bytes(off, n uint64) ([]byte, error) {
	if err := c.require(off, n); err != nil {
		return nil, err
	}
	return c.image[off : off+n], nil
}

// Byte reads a single byte at off.
func (c Cursor) Byte(off uint64) (byte, error) {
	if err := c.require(off, 1); err != nil {
		return 0, err
	}
	return c.image[off], nil
}
