/*
NAME
  psi.go

DESCRIPTION
  psi.go provides encoding of the single program PAT and PMT tables needed
  to describe a video elementary stream in MPEG-TS.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding of MPEG-TS program specific information.
package psi

// PacketSize of psi (without MPEG-TS header)
const PacketSize = 184

// Table Type IDs.
const (
	patID = 0x00
	pmtID = 0x02
)

// Lengths of section parts in bytes.
const (
	syntaxLen  = 5 // Table ID extension through last section number.
	programLen = 4 // Program number and PMT PID.
	pmtDefLen  = 4 // PCR PID and program info length.
	esLen      = 5 // Stream type, elementary PID and ES info length.
)

// Program is the program number used for the single program.
const Program = 1

// Stream describes an elementary stream listed in a PMT.
type Stream struct {
	Type uint8  // Stream type, e.g. pes.H265ST.
	PID  uint16 // Elementary stream PID.
}

// PAT returns a PAT, pointer field first and CRC appended, mapping the
// single program to pmtPID.
func PAT(pmtPID uint16) []byte {
	b := header(patID, syntaxLen+programLen)
	b = append(b,
		Program>>8, Program&0xff,
		0xe0|byte(pmtPID>>8), byte(pmtPID),
	)
	return AddCRC(b)
}

// PMT returns a PMT, pointer field first and CRC appended, for the single
// program with the given PCR PID and streams.
func PMT(pcrPID uint16, streams ...Stream) []byte {
	b := header(pmtID, syntaxLen+pmtDefLen+esLen*len(streams))
	b = append(b,
		0xe0|byte(pcrPID>>8), byte(pcrPID),
		0xf0, 0x00, // No program descriptors.
	)
	for _, s := range streams {
		b = append(b,
			s.Type,
			0xe0|byte(s.PID>>8), byte(s.PID),
			0xf0, 0x00, // No elementary stream descriptors.
		)
	}
	return AddCRC(b)
}

// header returns the pointer field, table header and syntax section header
// for a table of type id with n bytes of section following the length field,
// less the CRC.
func header(id byte, n int) []byte {
	l := n + crcSize
	return []byte{
		0x00, // Pointer.
		id,
		0xb0 | byte(l>>8)&0x03, // Syntax indicator, private bit, reserved, length.
		byte(l),
		Program >> 8, Program & 0xff, // Table ID extension.
		0xc1, // Reserved, version 0, current.
		0x00, // Section number.
		0x00, // Last section number.
	}
}

// AddPadding pads the table d with 0xff to the size of an MPEG-TS payload.
func AddPadding(d []byte) []byte {
	t := make([]byte, PacketSize)
	copy(t, d)
	padding := t[len(d):]
	for i := range padding {
		padding[i] = 0xff
	}
	return t
}
