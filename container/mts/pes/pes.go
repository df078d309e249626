/*
NAME
  pes.go

DESCRIPTION
  pes.go provides a packetized elementary stream packet type used to carry
  access units in MPEG-TS.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes provides encoding of PES packets carrying video.
package pes

import "github.com/Comcast/gots"

// MaxPesSize is the largest PES packet, header included, that Bytes will
// build without reallocation.
const MaxPesSize = 64 << 10

// VideoStreamID is the stream ID of the first video stream.
const VideoStreamID = 0xe0

// Optional header fields.
const (
	markerBits  = 0x80 // Leading '10' of the first flags byte.
	dataAligned = 0x04
	ptsOnly     = 0x80 // PTS_DTS_flags '10'.
	ptsSize     = 5
)

// Packet holds the fields of a video PES packet. The packet length field is
// always zero, which marks a video packet of unbounded length.
type Packet struct {
	StreamID byte
	Aligned  bool   // Data alignment indicator; Data starts an access unit.
	HasPTS   bool   // Whether PTS is written.
	PTS      uint64 // Presentation timestamp in 90kHz ticks.
	Stuffing int    // Number of stuffing bytes in the header.
	Data     []byte
}

// Bytes returns the encoded packet, using buf if it has the capacity.
func (p *Packet) Bytes(buf []byte) []byte {
	if cap(buf) < MaxPesSize {
		buf = make([]byte, 0, MaxPesSize)
	}

	flags := byte(markerBits)
	if p.Aligned {
		flags |= dataAligned
	}
	var ptsFlags, hdrLen byte
	if p.HasPTS {
		ptsFlags, hdrLen = ptsOnly, ptsSize
	}
	hdrLen += byte(p.Stuffing)

	buf = append(buf[:0],
		0x00, 0x00, 0x01, p.StreamID,
		0x00, 0x00, // Unbounded length.
		flags, ptsFlags, hdrLen,
	)
	if p.HasPTS {
		n := len(buf)
		buf = buf[:n+ptsSize]
		gots.InsertPTS(buf[n:], p.PTS)
	}
	for range p.Stuffing {
		buf = append(buf, 0xff)
	}
	return append(buf, p.Data...)
}
