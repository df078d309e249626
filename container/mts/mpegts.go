/*
NAME
  mpegts.go

DESCRIPTION
  mpegts.go provides MPEG-TS packet construction and inspection of the
  packets carrying video and its program specific information.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mts provides MPEG-TS (mts) encoding and demultiplexing of video
// elementary streams.
package mts

import (
	"slices"

	gotspsi "github.com/Comcast/gots/psi"
	"github.com/pkg/errors"
)

// Packet layout.
const (
	PacketSize = 188
	HeadSize   = 4
	SyncByte   = 0x47

	maxPayload = PacketSize - HeadSize
	pcrSize    = 6
)

// Program IDs of the PAT and of the PMT written by the Encoder.
const (
	PIDPAT = 0
	PIDPMT = 4096
)

// Adaptation field control bits.
const (
	hasPayload         = 0x1
	hasAdaptationField = 0x2
)

// Adaptation field flags.
const (
	flagRAI = 0x40
	flagPCR = 0x10
)

// Errors returned by packet inspection.
var (
	ErrInvalidLen = errors.New("MPEG-TS data not of valid length")
	ErrNoPayload  = errors.New("no payload")
	ErrNoPrograms = errors.New("no programs in PAT")
	ErrNoPID      = errors.New("no packet with PID")
)

// Packet holds the fields of an MPEG-TS packet that the Encoder sets. An
// adaptation field is written when RAI or HasPCR is set, or when the
// payload does not fill the packet and must be stuffed.
type Packet struct {
	PUSI    bool   // Payload unit start indicator.
	PID     uint16 // Packet identifier.
	CC      byte   // Continuity counter.
	RAI     bool   // Random access indicator.
	HasPCR  bool   // Whether PCR is written.
	PCR     uint64 // Program clock reference base in 90kHz ticks.
	Payload []byte
}

// flags returns the adaptation field flags for p.
func (p *Packet) flags() byte {
	var f byte
	if p.RAI {
		f |= flagRAI
	}
	if p.HasPCR {
		f |= flagPCR
	}
	return f
}

// capacity returns the largest payload p can carry.
func (p *Packet) capacity() int {
	if p.flags() == 0 {
		return maxPayload
	}
	n := maxPayload - 2 // Adaptation field length and flags.
	if p.HasPCR {
		n -= pcrSize
	}
	return n
}

// FillPayload sets the packet's payload from the start of data, up to the
// packet's capacity, returning the number of bytes used.
func (p *Packet) FillPayload(data []byte) int {
	n := min(len(data), p.capacity())
	p.Payload = data[:n:n]
	return n
}

// Bytes returns the encoded packet, using buf if it has sufficient capacity.
// The payload is truncated to the packet's capacity.
func (p *Packet) Bytes(buf []byte) []byte {
	if cap(buf) < PacketSize {
		buf = make([]byte, 0, PacketSize)
	}
	payload := p.Payload[:min(len(p.Payload), p.capacity())]

	afc := byte(0)
	if len(payload) != 0 {
		afc |= hasPayload
	}
	flags := p.flags()
	if flags != 0 || len(payload) < maxPayload {
		afc |= hasAdaptationField
	}

	pusi := byte(0)
	if p.PUSI {
		pusi = 0x40
	}
	buf = append(buf[:0],
		SyncByte,
		pusi|byte(p.PID>>8)&0x1f,
		byte(p.PID),
		afc<<4|p.CC&0xf,
	)

	if afc&hasAdaptationField != 0 {
		// The adaptation field length excludes its own byte.
		afLen := maxPayload - 1 - len(payload)
		buf = append(buf, byte(afLen))
		if afLen > 0 {
			buf = append(buf, flags)
			afLen--
		}
		if p.HasPCR {
			// 33 bit base, 6 reserved bits and a zero extension.
			v := (p.PCR&(1<<33-1))<<15 | 0x3f<<9
			for shift := 40; shift >= 0; shift -= 8 {
				buf = append(buf, byte(v>>shift))
			}
			afLen -= pcrSize
		}
		for ; afLen > 0; afLen-- {
			buf = append(buf, 0xff)
		}
	}
	return append(buf, payload...)
}

// FindPID returns the first packet of clip with the given PID and its byte
// offset.
func FindPID(clip []byte, pid uint16) ([]byte, int, error) {
	if len(clip) < PacketSize {
		return nil, -1, ErrInvalidLen
	}
	for i := 0; i+PacketSize <= len(clip); i += PacketSize {
		if uint16(clip[i+1]&0x1f)<<8|uint16(clip[i+2]) == pid {
			return clip[i : i+PacketSize], i, nil
		}
	}
	return nil, -1, errors.Wrapf(ErrNoPID, "PID %d", pid)
}

// FirstPMT returns the PMT PID of the lowest numbered program in a PAT
// packet.
func FirstPMT(p []byte) (uint16, error) {
	pat, err := gotspsi.NewPAT(p)
	if err != nil {
		return 0, errors.Wrap(err, "could not get programs from PAT")
	}
	m := pat.ProgramMap()
	if len(m) == 0 {
		return 0, ErrNoPrograms
	}
	progs := make([]int, 0, len(m))
	for k := range m {
		progs = append(progs, k)
	}
	return uint16(m[slices.Min(progs)]), nil
}

// Streams returns the elementary streams defined in a PMT packet.
func Streams(p []byte) ([]gotspsi.PmtElementaryStream, error) {
	payload, err := Payload(p)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get packet payload")
	}
	pmt, err := gotspsi.NewPMT(payload)
	if err != nil {
		return nil, err
	}
	return pmt.ElementaryStreams(), nil
}

// Payload returns the payload of the MPEG-TS packet p. The payload is not
// copied.
func Payload(p []byte) ([]byte, error) {
	if len(p) < PacketSize {
		return nil, ErrInvalidLen
	}
	afc := p[3] >> 4 & 0x3
	if afc&hasPayload == 0 {
		return nil, ErrNoPayload
	}

	off := HeadSize
	if afc&hasAdaptationField != 0 {
		off += 1 + int(p[4])
	}
	if off > PacketSize {
		return nil, ErrInvalidLen
	}
	return p[off:PacketSize], nil
}
