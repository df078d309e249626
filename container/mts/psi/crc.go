/*
NAME
  crc.go

DESCRIPTION
  crc.go provides the MPEG-2 CRC32 appended to PSI sections.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import "encoding/binary"

// crcSize is the size of the CRC32 in bytes.
const crcSize = 4

// crcPoly is the MPEG-2 CRC-32 polynomial (ISO/IEC 13818-1 annex A). The CRC
// is computed most significant bit first from an initial value of all ones,
// with no final inversion.
const crcPoly = 0x04c11db7

var crcTable [256]uint32

func init() {
	for i := range crcTable {
		crc := uint32(i) << 24
		for range 8 {
			crc = crc<<1 ^ crcPoly*(crc>>31)
		}
		crcTable[i] = crc
	}
}

// checksum returns the MPEG-2 CRC-32 of p.
func checksum(p []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, v := range p {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^v]
	}
	return crc
}

// AddCRC returns a copy of the table t, which starts with a pointer field,
// with the CRC of its section appended.
func AddCRC(t []byte) []byte {
	out := make([]byte, len(t), len(t)+crcSize)
	copy(out, t)
	return binary.BigEndian.AppendUint32(out, checksum(t[1:]))
}

// CheckCRC returns true if the section s, including its trailing CRC, has
// a valid checksum.
func CheckCRC(s []byte) bool {
	if len(s) < crcSize {
		return false
	}
	n := len(s) - crcSize
	return checksum(s[:n]) == binary.BigEndian.Uint32(s[n:])
}
