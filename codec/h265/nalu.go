/*
NAME
  nalu.go

DESCRIPTION
  nalu.go provides functions for splitting an H.265 access unit into its NAL
  units, for both Annex B and length prefixed framing.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ausocean/hevcplay/codec/codecutil"
)

// ErrBadLength is returned when a length prefixed NAL unit runs past the end
// of its access unit.
var ErrBadLength = errors.New("NAL unit length exceeds access unit")

// SplitAnnexB returns the NAL units of the Annex B formatted access unit au,
// without start codes. Returned slices share memory with au. Bytes before the
// first start code are ignored.
func SplitAnnexB(au []byte) [][]byte {
	var nalus [][]byte
	start := -1
	for i := 0; i+2 < len(au); {
		if au[i] != 0x00 || au[i+1] != 0x00 || au[i+2] != 0x01 {
			i++
			continue
		}
		if start >= 0 {
			nalus = appendNALU(nalus, au[start:i])
		}
		i += 3
		start = i
	}
	if start >= 0 {
		nalus = appendNALU(nalus, au[start:])
	}
	return nalus
}

// appendNALU appends nalu to nalus with trailing zero bytes removed. These
// belong to a following four byte start code or are trailing_zero_8bits.
func appendNALU(nalus [][]byte, nalu []byte) [][]byte {
	for len(nalu) != 0 && nalu[len(nalu)-1] == 0x00 {
		nalu = nalu[:len(nalu)-1]
	}
	if len(nalu) == 0 {
		return nalus
	}
	return append(nalus, nalu)
}

// SplitLengthPrefixed returns the NAL units of the access unit au in which
// each NAL unit is preceded by a big endian length of size bytes (1, 2 or 4),
// as in the hvcC sample format. Returned slices share memory with au.
func SplitLengthPrefixed(au []byte, size int) ([][]byte, error) {
	if size != 1 && size != 2 && size != 4 {
		return nil, fmt.Errorf("invalid length size: %d", size)
	}

	var nalus [][]byte
	for off := 0; off < len(au); {
		if len(au)-off < size {
			return nalus, fmt.Errorf("truncated length at offset %d: %w", off, ErrBadLength)
		}
		var n int
		switch size {
		case 1:
			n = int(au[off])
		case 2:
			n = int(binary.BigEndian.Uint16(au[off:]))
		case 4:
			n = int(binary.BigEndian.Uint32(au[off:]))
		}
		off += size
		if n > len(au)-off {
			return nalus, fmt.Errorf("length %d at offset %d: %w", n, off-size, ErrBadLength)
		}
		if n != 0 {
			nalus = append(nalus, au[off:off+n])
		}
		off += n
	}
	return nalus, nil
}

// IsAnnexB returns true if au begins with a three or four byte start code.
func IsAnnexB(au []byte) bool {
	return codecutil.StartCodeLen(au) != 0
}

// SplitNALUs returns the NAL units of au, detecting whether it uses Annex B
// or four byte length prefixed framing. A leading 0x00 0x00 0x01 may also be
// the length of a NAL unit of 256 to 511 bytes; length prefixed framing is
// chosen in that case only if it accounts for every byte of au.
func SplitNALUs(au []byte) ([][]byte, error) {
	switch codecutil.StartCodeLen(au) {
	case 4:
		return SplitAnnexB(au), nil
	case 3:
		nalus, err := SplitLengthPrefixed(au, 4)
		if err == nil && validNALUs(nalus) {
			return nalus, nil
		}
		return SplitAnnexB(au), nil
	default:
		return SplitLengthPrefixed(au, 4)
	}
}

// validNALUs returns true if every NAL unit is long enough to hold a header
// and has a zero forbidden_zero_bit.
func validNALUs(nalus [][]byte) bool {
	for _, n := range nalus {
		if len(n) < 2 || n[0]&0x80 != 0 {
			return false
		}
	}
	return len(nalus) != 0
}
