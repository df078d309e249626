/*
DESCRIPTION
  cursor.go provides a bounds checked bit cursor over a byte slice for reading
  bit fields that have no byte alignment guarantee.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit cursor that can read or peek bits, most
// significant bit first, from an in memory byte buffer.
package bits

import "errors"

// ErrOutOfRange is returned when a read or seek would move the cursor past
// the end of its buffer, or when the cursor is created outside its buffer.
var ErrOutOfRange = errors.New("bit position out of range")

// Cursor reads bits from buf starting at an absolute bit offset. Bit 0 is the
// most significant bit of buf[0]. A Cursor never advances past 8*len(buf).
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a new Cursor over buf positioned at bit offset off.
func NewCursor(buf []byte, off int) (*Cursor, error) {
	if off < 0 || off > 8*len(buf) {
		return nil, ErrOutOfRange
	}
	return &Cursor{buf: buf, pos: off}, nil
}

// PeekBit returns the bit at the current position without advancing.
func (c *Cursor) PeekBit() (uint8, error) {
	if c.pos >= 8*len(c.buf) {
		return 0, ErrOutOfRange
	}
	return (c.buf[c.pos>>3] >> (7 - uint(c.pos&7))) & 1, nil
}

// ReadBit returns the bit at the current position and advances by one.
func (c *Cursor) ReadBit() (uint8, error) {
	b, err := c.PeekBit()
	if err != nil {
		return 0, err
	}
	c.pos++
	return b, nil
}

// ReadBits reads n bits and returns them in the least significant part of a
// uint64. For example, with buf as []byte{0x8f,0xe3} (1000 1111, 1110 0011),
// consecutive reads give:
// n = 4, res = 0x8 (1000)
// n = 2, res = 0x3 (0011)
// n = 4, res = 0xf (1111)
// n = 6, res = 0x23 (0010 0011)
// If fewer than n bits remain, the cursor is not moved.
func (c *Cursor) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, errors.New("invalid bit count")
	}
	if n > c.Remaining() {
		return 0, ErrOutOfRange
	}

	var v uint64
	for n > 0 {
		off := uint(c.pos & 7)
		avail := 8 - int(off)
		take := avail
		if take > n {
			take = n
		}
		b := c.buf[c.pos>>3] << off >> uint(8-take)
		v = v<<uint(take) | uint64(b)
		c.pos += take
		n -= take
	}
	return v, nil
}

// Skip advances the cursor by n bits.
func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return ErrOutOfRange
	}
	c.pos += n
	return nil
}

// Pos returns the absolute bit offset of the cursor.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of bits left to read.
func (c *Cursor) Remaining() int { return 8*len(c.buf) - c.pos }

// ByteAligned returns true if the cursor sits on a byte boundary.
func (c *Cursor) ByteAligned() bool { return c.pos&7 == 0 }
