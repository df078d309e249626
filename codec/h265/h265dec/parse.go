/*
NAME
  parse.go

DESCRIPTION
  parse.go provides parsing processes for syntax elements of the ue(v)
  descriptor specified in 9.2 of ITU-T H.265.
*/

package h265dec

import (
	"github.com/pkg/errors"

	"github.com/ausocean/hevcplay/codec/h265/h265dec/bits"
)

// maxLeadingZeros is the longest prefix accepted for a ue(v) element. Values
// of ue(v) syntax elements in H.265 fit in 32 bits.
const maxLeadingZeros = 32

// ErrExpGolombOverflow is returned when a ue(v) prefix is longer than
// maxLeadingZeros.
var ErrExpGolombOverflow = errors.New("exp-golomb code overflow")

// fieldReader provides methods for reading bit and ue(v) fields from a
// bits.Cursor with a sticky error that may be checked after a series of
// parsing read calls.
type fieldReader struct {
	e error
	c *bits.Cursor
}

// newFieldReader returns a new fieldReader.
func newFieldReader(c *bits.Cursor) *fieldReader {
	return &fieldReader{c: c}
}

// readBits returns n bits from the cursor. If we have an error already, we do
// not continue with the read.
func (r *fieldReader) readBits(n int) uint64 {
	if r.e != nil {
		return 0
	}
	var b uint64
	b, r.e = r.c.ReadBits(n)
	return b
}

// readFlag returns a single bit as a bool.
func (r *fieldReader) readFlag() bool {
	return r.readBits(1) == 1
}

// readUe parses a ue(v) syntax element. The read does not happen if the
// fieldReader has a non-nil error.
func (r *fieldReader) readUe() uint64 {
	if r.e != nil {
		return 0
	}
	var i uint64
	i, r.e = ReadUe(r.c)
	return i
}

// err returns the fieldReader's error e.
func (r *fieldReader) err() error {
	return r.e
}

// ReadUe parses a syntax element of ue(v) descriptor, i.e. an unsigned integer
// Exp-Golomb-coded element, using the method specified in section 9.2 of
// ITU-T H.265. Leading zero bits are counted up to and including the first
// one bit, the same number of bits are then read as a suffix and the value is
// 2^leadingZeros - 1 + suffix.
func ReadUe(c *bits.Cursor) (uint64, error) {
	start := c.Pos()
	leadingZeros := 0
	for {
		b, err := c.ReadBit()
		if err != nil {
			return 0, errors.Wrapf(err, "could not read ue(v) prefix at bit %d", start)
		}
		if b == 1 {
			break
		}
		leadingZeros++
		if leadingZeros > maxLeadingZeros {
			return 0, errors.Wrapf(ErrExpGolombOverflow, "ue(v) at bit %d", start)
		}
	}

	if leadingZeros == 0 {
		return 0, nil
	}

	suffix, err := c.ReadBits(leadingZeros)
	if err != nil {
		return 0, errors.Wrapf(err, "could not read ue(v) suffix at bit %d", start)
	}
	return (1 << uint(leadingZeros)) - 1 + suffix, nil
}
