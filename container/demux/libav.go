//go:build withlibav
// +build withlibav

/*
DESCRIPTION
  libav.go provides LibAV, a Demuxer for any container libavformat can read.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package demux

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

var libavMIMEs = map[astiav.CodecID]string{
	astiav.CodecIDHevc: mediacodec.MIMEHEVC,
	astiav.CodecIDH264: mediacodec.MIMEAVC,
}

// LibAV is a Demuxer backed by libavformat. Packets of every stream are
// returned; timestamps are rescaled from each stream's time base.
type LibAV struct {
	settings
	log logging.Logger

	closer  *astikit.Closer
	ctx     *astiav.FormatContext
	pkt     *astiav.Packet
	streams []*astiav.Stream
	video   int

	closeOnce sync.Once
	closeErr  error
}

// NewLibAV returns a new LibAV demuxer.
func NewLibAV(log logging.Logger, options ...Option) (*LibAV, error) {
	d := &LibAV{settings: defaultSettings(), log: log, video: -1}
	err := apply(&d.settings, options)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open opens uri with libavformat and probes its streams.
func (d *LibAV) Open(uri string) (StreamSet, error) {
	if d.ctx != nil {
		return nil, errors.New("demuxer already open")
	}
	d.closer = astikit.NewCloser()

	if d.ctx = astiav.AllocFormatContext(); d.ctx == nil {
		return nil, errors.New("input format context is nil")
	}
	d.closer.Add(d.ctx.Free)

	if err := d.ctx.OpenInput(uri, nil, nil); err != nil {
		return nil, fmt.Errorf("could not open input: %w", err)
	}
	d.closer.Add(d.ctx.CloseInput)

	if err := d.ctx.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("could not find stream info: %w", err)
	}

	d.pkt = astiav.AllocPacket()
	d.closer.Add(d.pkt.Free)

	d.streams = d.ctx.Streams()
	set := make(StreamSet, 0, len(d.streams))
	for i, s := range d.streams {
		st := Stream{Index: i}
		cp := s.CodecParameters()
		if cp.MediaType() == astiav.MediaTypeVideo {
			st.MIME = libavMIMEs[cp.CodecID()]
			st.Width, st.Height = cp.Width(), cp.Height()
			if x := cp.ExtraData(); len(x) > 0 {
				st.Config = append([]byte(nil), x...)
			}
			if st.MIME != "" && d.video < 0 {
				d.video = i
			}
		} else {
			d.log.Debug("skipping media type", "index", i, "type", cp.MediaType().String())
		}
		set = append(set, st)
	}
	if len(set) == 0 {
		return nil, ErrNoStreams
	}
	d.log.Info("opened libav input", "path", uri, "streams", len(set), "video", d.video)
	return set, nil
}

// NextAccessUnit returns the next packet of any stream.
func (d *LibAV) NextAccessUnit() (*AccessUnit, error) {
	if d.ctx == nil {
		return nil, ErrNotOpen
	}
	for {
		err := d.ctx.ReadFrame(d.pkt)
		if errors.Is(err, astiav.ErrEof) {
			if !d.loop {
				return nil, io.EOF
			}
			err = d.rewind()
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not read packet: %w", err)
		}
		return d.unit(), nil
	}
}

// unit copies the current packet into an AccessUnit.
func (d *LibAV) unit() *AccessUnit {
	defer d.pkt.Unref()
	idx := d.pkt.StreamIndex()
	pts := d.pkt.Pts()
	var ts time.Duration
	if idx >= 0 && idx < len(d.streams) {
		tb := d.streams[idx].TimeBase()
		ts = time.Duration(float64(pts) * tb.Float64() * float64(time.Second))
	}
	return &AccessUnit{
		Data:        append([]byte(nil), d.pkt.Data()...),
		PTS:         ts,
		StreamIndex: idx,
	}
}

func (d *LibAV) rewind() error {
	d.log.Info("looping input")
	err := d.ctx.SeekFrame(-1, 0, astiav.NewSeekFlags(astiav.SeekFlagBackward))
	if err != nil {
		return fmt.Errorf("could not seek to start: %w", err)
	}
	return nil
}

// VideoStreamIndex returns the index of the first decodable video stream.
func (d *LibAV) VideoStreamIndex() (int, bool) { return d.video, d.video >= 0 }

// Close releases the libav resources.
func (d *LibAV) Close() error {
	d.closeOnce.Do(func() {
		if d.closer != nil {
			d.closeErr = d.closer.Close()
		}
	})
	return d.closeErr
}
