/*
NAME
  encoder.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/h265"
	"github.com/ausocean/hevcplay/codec/h265/h265dec"
	"github.com/ausocean/hevcplay/container/mts/pes"
	"github.com/ausocean/hevcplay/container/mts/psi"
)

// The program ID we assign to video.
const PIDVideo = 256

// Time-related constants.
const (
	// PCRFrequency is the base Program Clock Reference frequency in Hz.
	PCRFrequency = 90000

	// PTSFrequency is the presentation timestamp frequency in Hz.
	PTSFrequency = 90000

	// MaxPTS is the largest PTS value (i.e., for a 33-bit unsigned integer).
	MaxPTS = (1 << 33) - 1
)

// Default encoder configuration parameters.
const (
	defaultRate       = 25 // FPS
	defaultStreamType = pes.H265ST
	defaultMediaPID   = PIDVideo
)

// Encoder encapsulates properties of an MPEG-TS generator for a single
// video elementary stream. PSI is written before every access unit
// containing an IRAP picture or a parameter set.
type Encoder struct {
	dst io.Writer

	clock       time.Duration
	writePeriod time.Duration
	ptsOffset   time.Duration
	tsSpace     [PacketSize]byte
	pesSpace    [pes.MaxPesSize]byte

	continuity map[uint16]byte

	mediaPID   uint16
	streamType uint8

	patBytes, pmtBytes []byte

	log logging.Logger
}

// Rate is an option for NewEncoder that sets the number of access units
// written a second, which determines the timestamps.
func Rate(r float64) func(*Encoder) error {
	return func(e *Encoder) error {
		if r <= 0 {
			return fmt.Errorf("invalid rate: %v", r)
		}
		e.writePeriod = time.Duration(float64(time.Second) / r)
		return nil
	}
}

// MediaPID is an option for NewEncoder that sets the video PID.
func MediaPID(pid uint16) func(*Encoder) error {
	return func(e *Encoder) error {
		if pid == PIDPAT || pid == PIDPMT || pid > 0x1ffe {
			return fmt.Errorf("invalid media PID: %d", pid)
		}
		e.mediaPID = pid
		return nil
	}
}

// StreamType is an option for NewEncoder that sets the PMT stream type,
// pes.H265ST or pes.H264ST.
func StreamType(st uint8) func(*Encoder) error {
	return func(e *Encoder) error {
		_, err := pes.StreamTypeMIME(st)
		if err != nil {
			return err
		}
		e.streamType = st
		return nil
	}
}

// PTSOffset is an option for NewEncoder that sets the timestamp of the first
// access unit.
func PTSOffset(d time.Duration) func(*Encoder) error {
	return func(e *Encoder) error {
		e.ptsOffset = d
		return nil
	}
}

// NewEncoder returns an Encoder writing to dst. Each call to Write must
// provide one Annex B access unit.
func NewEncoder(dst io.Writer, log logging.Logger, options ...func(*Encoder) error) (*Encoder, error) {
	e := &Encoder{
		dst:         dst,
		writePeriod: time.Duration(float64(time.Second) / defaultRate),
		mediaPID:    defaultMediaPID,
		streamType:  defaultStreamType,
		log:         log,
	}

	for _, option := range options {
		err := option(e)
		if err != nil {
			return nil, fmt.Errorf("option failed with error: %w", err)
		}
	}
	log.Debug("encoder options applied")

	e.continuity = map[uint16]byte{PIDPAT: 0, PIDPMT: 0, e.mediaPID: 0}
	e.patBytes = psi.AddPadding(psi.PAT(PIDPMT))
	e.pmtBytes = psi.AddPadding(psi.PMT(e.mediaPID, psi.Stream{Type: e.streamType, PID: e.mediaPID}))
	return e, nil
}

// Write implements io.Writer. Write takes an access unit and encodes it into
// MPEG-TS, writing the packets to the encoder's destination.
func (e *Encoder) Write(data []byte) (int, error) {
	e.log.Debug("writing data", "len(data)", len(data))
	if e.needsPSI(data) {
		err := e.writePSI()
		if err != nil {
			return 0, fmt.Errorf("could not write psi: %w", err)
		}
	}

	pts := e.pts()
	pesPkt := pes.Packet{
		StreamID: pes.VideoStreamID,
		Aligned:  true,
		HasPTS:   true,
		PTS:      pts,
		Data:     data,
	}
	buf := pesPkt.Bytes(e.pesSpace[:0])

	pusi := true
	for len(buf) != 0 {
		pkt := Packet{
			PUSI:   pusi,
			PID:    e.mediaPID,
			RAI:    pusi,
			CC:     e.ccFor(e.mediaPID),
			HasPCR: pusi,
		}
		n := pkt.FillPayload(buf)
		buf = buf[n:]

		if pusi {
			pkt.PCR = e.pcr()
			e.log.Debug("new access unit", "PCR", pkt.PCR, "PTS", pts)
			pusi = false
		}

		_, err := e.dst.Write(pkt.Bytes(e.tsSpace[:PacketSize]))
		if err != nil {
			return len(data), fmt.Errorf("could not write MTS packet to destination: %w", err)
		}
	}

	e.tick()
	return len(data), nil
}

// needsPSI returns true if the access unit holds a VPS, SPS or IRAP
// picture ahead of its first VCL NAL unit.
func (e *Encoder) needsPSI(au []byte) bool {
	for _, nal := range h265.SplitAnnexB(au) {
		h, err := h265dec.ParseHeader(nal)
		if err != nil {
			continue
		}
		switch {
		case h.Type == h265dec.NALTypeVPS, h.Type == h265dec.NALTypeSPS, h.Type.IsIRAP():
			return true
		case h.Type.IsVCL():
			return false
		}
	}
	return false
}

// writePSI writes the PAT and PMT.
func (e *Encoder) writePSI() error {
	patPkt := Packet{
		PUSI:    true,
		PID:     PIDPAT,
		CC:      e.ccFor(PIDPAT),
		Payload: e.patBytes,
	}
	_, err := e.dst.Write(patPkt.Bytes(e.tsSpace[:PacketSize]))
	if err != nil {
		return fmt.Errorf("could not write pat packet: %w", err)
	}

	pmtPkt := Packet{
		PUSI:    true,
		PID:     PIDPMT,
		CC:      e.ccFor(PIDPMT),
		Payload: e.pmtBytes,
	}
	_, err = e.dst.Write(pmtPkt.Bytes(e.tsSpace[:PacketSize]))
	if err != nil {
		return fmt.Errorf("could not write pmt packet: %w", err)
	}

	e.log.Debug("PSI written", "PAT CC", patPkt.CC, "PMT CC", pmtPkt.CC)
	return nil
}

// tick advances the clock one frame interval.
func (e *Encoder) tick() {
	e.clock += e.writePeriod
}

// pts retuns the current presentation timestamp.
func (e *Encoder) pts() uint64 {
	return ticks(e.clock+e.ptsOffset, PTSFrequency) & MaxPTS
}

// pcr returns the current program clock reference.
func (e *Encoder) pcr() uint64 {
	return ticks(e.clock, PCRFrequency)
}

// ticks returns d in units of a clock of frequency hz, rounded to nearest.
func ticks(d time.Duration, hz int64) uint64 {
	s, ns := int64(d/time.Second), int64(d%time.Second)
	return uint64(s*hz + (ns*hz+int64(time.Second)/2)/int64(time.Second))
}

// Duration returns the duration of pts 90kHz ticks.
func Duration(pts uint64) time.Duration {
	return time.Duration(pts/PTSFrequency)*time.Second +
		time.Duration(pts%PTSFrequency)*time.Second/PTSFrequency
}

// ccFor returns the next continuity counter for pid.
func (e *Encoder) ccFor(pid uint16) byte {
	cc := e.continuity[pid]
	const continuityCounterMask = 0xf
	e.continuity[pid] = (cc + 1) & continuityCounterMask
	return cc
}
