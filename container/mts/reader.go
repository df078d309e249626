/*
NAME
  reader.go

DESCRIPTION
  reader.go provides a Reader that extracts video access units and their
  timestamps from an MPEG-TS stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"errors"
	"fmt"
	"io"

	"github.com/Comcast/gots/packet"
	gotspes "github.com/Comcast/gots/pes"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/container/mts/pes"
)

// Errors returned by Reader.
var (
	ErrSync      = errors.New("lost MPEG-TS sync")
	ErrShortRead = errors.New("MPEG-TS stream ends mid packet")
	ErrNoVideo   = errors.New("no video stream in PMT")
	errNoPTS     = errors.New("PES header has no PTS")
)

// Frame describes a media frame extracted from PES packets.
type Frame struct {
	Media []byte // The access unit.
	PTS   uint64 // PTS from PES packet in 90kHz ticks.
	ID    uint8  // StreamID from the PES packet.
}

// Stream describes an elementary stream found in the PMT.
type Stream struct {
	PID  uint16
	Type uint8
}

// Reader reads MPEG-TS packets from an io.Reader, discovers the first video
// elementary stream through the PAT and PMT, and reassembles its PES packets
// into frames. Packets of other streams are counted and dropped.
type Reader struct {
	src io.Reader
	log logging.Logger

	pkt     packet.Packet
	pmtPID  int
	video   int
	vType   uint8
	streams []Stream

	cur     *Frame
	dropped int
	eof     bool
}

// NewReader returns a new Reader reading from src.
func NewReader(src io.Reader, log logging.Logger) *Reader {
	return &Reader{src: src, log: log, pmtPID: -1, video: -1}
}

// Streams returns the elementary streams of the most recent PMT.
func (r *Reader) Streams() []Stream { return r.streams }

// Video returns the PID and stream type of the selected video stream, and
// false if the PMT has not yet been seen.
func (r *Reader) Video() (uint16, uint8, bool) {
	if r.video < 0 {
		return 0, 0, false
	}
	return uint16(r.video), r.vType, true
}

// Dropped returns the number of packets of unselected streams.
func (r *Reader) Dropped() int { return r.dropped }

// Next returns the next complete video frame. A frame is complete when the
// next payload unit start for the video PID arrives or the stream ends.
// io.EOF is returned once no frames remain.
func (r *Reader) Next() (*Frame, error) {
	for !r.eof {
		_, err := io.ReadFull(r.src, r.pkt[:])
		switch err {
		case nil:
		case io.EOF:
			r.eof = true
			continue
		case io.ErrUnexpectedEOF:
			r.eof = true
			r.log.Warning("discarding partial packet at end of stream")
			continue
		default:
			return nil, fmt.Errorf("could not read packet: %w", err)
		}
		if r.pkt[0] != SyncByte {
			return nil, ErrSync
		}

		f, err := r.handle()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}

	f := r.cur
	r.cur = nil
	if f == nil || len(f.Media) == 0 {
		return nil, io.EOF
	}
	return f, nil
}

// handle processes the current packet, returning a frame if the packet
// completed one.
func (r *Reader) handle() (*Frame, error) {
	pid := int(r.pkt.PID())
	switch {
	case pid == PIDPAT:
		p, err := FirstPMT(r.pkt[:])
		if err != nil {
			return nil, fmt.Errorf("could not parse PAT: %w", err)
		}
		r.pmtPID = int(p)
		return nil, nil

	case pid == r.pmtPID:
		return nil, r.handlePMT()

	case pid == r.video:
		return r.handleVideo()

	default:
		r.dropped++
		return nil, nil
	}
}

func (r *Reader) handlePMT() error {
	es, err := Streams(r.pkt[:])
	if err != nil {
		return fmt.Errorf("could not parse PMT: %w", err)
	}

	r.streams = r.streams[:0]
	video, vType := -1, uint8(0)
	for _, s := range es {
		st := Stream{PID: uint16(s.ElementaryPid()), Type: s.StreamType()}
		r.streams = append(r.streams, st)
		if video >= 0 {
			continue
		}
		if _, err := pes.StreamTypeMIME(st.Type); err == nil {
			video, vType = int(st.PID), st.Type
		}
	}
	if video < 0 {
		return ErrNoVideo
	}
	if video != r.video {
		r.log.Info("selected video stream", "PID", video, "type", vType)
	}
	r.video, r.vType = video, vType
	return nil
}

func (r *Reader) handleVideo() (*Frame, error) {
	payload, err := r.pkt.Payload()
	if err != nil {
		// Adaptation field only, e.g. PCR carriage.
		return nil, nil
	}

	if !r.pkt.PayloadUnitStartIndicator() {
		if r.cur == nil {
			r.log.Debug("dropping video payload before first PES start")
			return nil, nil
		}
		r.cur.Media = append(r.cur.Media, payload...)
		return nil, nil
	}

	hdr, err := gotspes.NewPESHeader(payload)
	if err != nil {
		return nil, fmt.Errorf("could not parse PES: %w", err)
	}
	if !hdr.HasPTS() {
		return nil, errNoPTS
	}

	done := r.cur
	r.cur = &Frame{
		Media: append([]byte(nil), hdr.Data()...),
		PTS:   hdr.PTS(),
		ID:    hdr.StreamId(),
	}
	return done, nil
}
