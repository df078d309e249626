/*
DESCRIPTION
  rbsp.go provides removal of emulation prevention bytes from NAL unit
  payloads, as described in section 7.4.2 of ITU-T H.265.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h265dec

// HeaderPrefixSize is the number of bytes of a slice NAL unit that we unescape
// before header parsing. It is more than enough for the fields read by
// ParseSlice.
const HeaderPrefixSize = 64

// UnescapeRBSP returns the bytes of nal with every emulation prevention byte
// (the 0x03 in a 0x00 0x00 0x03 sequence) removed. Only the first max bytes
// of nal are considered; a max of 0 or less means all of them. nal is not
// modified.
func UnescapeRBSP(nal []byte, max int) []byte {
	if max > 0 && len(nal) > max {
		nal = nal[:max]
	}

	dst := make([]byte, 0, len(nal))
	zeros := 0
	for _, b := range nal {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		dst = append(dst, b)
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return dst
}
