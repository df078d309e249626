/*
DESCRIPTION
  mts.go provides MTS, a Demuxer for MPEG-TS files carrying an H.265 or
  H.264 video elementary stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/container/mts"
	"github.com/ausocean/hevcplay/container/mts/pes"
	"github.com/ausocean/hevcplay/device"
	"github.com/ausocean/hevcplay/device/file"
)

// MTS is a Demuxer for MPEG-TS files. Timestamps are the PES PTS relative to
// the first access unit. A backwards jump, as when looping, continues the
// timeline one frame interval after the last access unit.
type MTS struct {
	settings
	log logging.Logger

	src     device.Source
	r       *mts.Reader
	pending *mts.Frame
	streams StreamSet
	video   int

	first uint64
	base  time.Duration
	last  time.Duration
	n     int

	closeOnce sync.Once
	closeErr  error
}

// NewMTS returns a new MTS demuxer.
func NewMTS(log logging.Logger, options ...Option) (*MTS, error) {
	d := &MTS{settings: defaultSettings(), log: log, video: -1}
	err := apply(&d.settings, options)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open opens the file at uri and reads up to the first video access unit to
// discover the streams.
func (d *MTS) Open(uri string) (StreamSet, error) {
	if d.src != nil {
		return nil, errors.New("demuxer already open")
	}
	d.src = file.NewWith(d.log, uri, d.loop)
	err := d.src.Start()
	if err != nil {
		d.src = nil
		return nil, fmt.Errorf("could not open input: %w", err)
	}
	return d.open(bufio.NewReaderSize(d.src, 64*mts.PacketSize))
}

func (d *MTS) open(src io.Reader) (StreamSet, error) {
	d.r = mts.NewReader(src, d.log)
	f, err := d.r.Next()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoStreams
	}
	if err != nil {
		return nil, fmt.Errorf("could not read first access unit: %w", err)
	}
	d.pending = f
	d.first = f.PTS

	vpid, _, _ := d.r.Video()
	for i, s := range d.r.Streams() {
		st := Stream{Index: i}
		if mime, err := pes.StreamTypeMIME(s.Type); err == nil {
			st.MIME = mime
		}
		if s.PID == vpid {
			d.video = i
		}
		d.streams = append(d.streams, st)
	}
	d.log.Info("opened MPEG-TS input", "streams", len(d.streams), "videoPID", vpid)
	return d.streams, nil
}

// NextAccessUnit returns the next video access unit.
func (d *MTS) NextAccessUnit() (*AccessUnit, error) {
	if d.r == nil {
		return nil, ErrNotOpen
	}

	f := d.pending
	d.pending = nil
	if f == nil {
		var err error
		f, err = d.r.Next()
		if err != nil {
			return nil, err
		}
	}

	return &AccessUnit{Data: f.Media, PTS: d.pts(f.PTS), StreamIndex: d.video}, nil
}

// pts maps a 33 bit PES timestamp onto the demuxer timeline.
func (d *MTS) pts(raw uint64) time.Duration {
	rel := mts.Duration((raw - d.first) & mts.MaxPTS)
	if d.n != 0 && rel+d.base <= d.last {
		d.base = d.last + d.period() - rel
		d.log.Debug("timestamp discontinuity", "pts", raw)
	}
	d.n++
	d.last = rel + d.base
	return d.last
}

// VideoStreamIndex returns the index of the selected video stream.
func (d *MTS) VideoStreamIndex() (int, bool) { return d.video, d.video >= 0 }

// Close closes the file.
func (d *MTS) Close() error {
	d.closeOnce.Do(func() {
		if d.src != nil {
			d.closeErr = d.src.Stop()
		}
	})
	return d.closeErr
}
