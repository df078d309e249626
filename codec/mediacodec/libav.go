//go:build withlibav
// +build withlibav

/*
NAME
  libav.go

DESCRIPTION
  libav.go provides LibAV, a Codec that decodes using libavcodec through
  go-astiav.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var libavCodecIDs = map[string]astiav.CodecID{
	MIMEHEVC: astiav.CodecIDHevc,
	MIMEAVC:  astiav.CodecIDH264,
}

var libavPixelFormats = map[astiav.PixelFormat]PixelFormat{
	astiav.PixelFormatYuv420P: PixelFormatI420,
	astiav.PixelFormatNv12:    PixelFormatNV12,
}

func libavSupported(mime string) bool {
	id, ok := libavCodecIDs[mime]
	return ok && astiav.FindDecoder(id) != nil
}

// LibAV is a Codec backed by a libavcodec software decoder.
type LibAV struct {
	*slotCodec
}

// NewLibAV returns a new LibAV codec with the given buffer pools.
func NewLibAV(p Pools) (*LibAV, error) {
	if p.InputSlots <= 0 {
		p.InputSlots = defaultInputSlots
	}
	if p.OutputSlots <= 0 {
		p.OutputSlots = defaultOutputSlots
	}
	if p.InputCapacity <= 0 {
		p.InputCapacity = defaultInputCapacity
	}
	return &LibAV{slotCodec: newSlotCodec(NameLibAV, p.InputSlots, p.OutputSlots, p.InputCapacity, newLibavBackend)}, nil
}

// libavBackend decodes with an astiav codec context. Packet timestamps are
// in microseconds.
type libavBackend struct {
	closer *astikit.Closer
	ctx    *astiav.CodecContext
	pkt    *astiav.Packet
	frm    *astiav.Frame
}

func newLibavBackend(f Format) (backend, error) {
	id, ok := libavCodecIDs[f.MIME]
	if !ok {
		return nil, fmt.Errorf("mime %q: %w", f.MIME, ErrUnsupported)
	}
	dec := astiav.FindDecoder(id)
	if dec == nil {
		return nil, fmt.Errorf("no libav decoder for %q: %w", f.MIME, ErrUnsupported)
	}

	b := &libavBackend{closer: astikit.NewCloser()}
	if b.ctx = astiav.AllocCodecContext(dec); b.ctx == nil {
		b.closer.Close()
		return nil, errors.New("codec context is nil")
	}
	b.closer.Add(b.ctx.Free)
	b.ctx.SetWidth(f.Width)
	b.ctx.SetHeight(f.Height)
	b.ctx.SetTimeBase(astiav.NewRational(1, int(time.Second/time.Microsecond)))
	if len(f.CodecConfig) > 0 {
		if err := b.ctx.SetExtraData(f.CodecConfig); err != nil {
			b.closer.Close()
			return nil, fmt.Errorf("could not set extradata: %w", err)
		}
	}

	if err := b.ctx.Open(dec, nil); err != nil {
		b.closer.Close()
		return nil, fmt.Errorf("could not open codec context: %w", err)
	}

	b.pkt = astiav.AllocPacket()
	b.closer.Add(b.pkt.Free)
	b.frm = astiav.AllocFrame()
	b.closer.Add(b.frm.Free)
	return b, nil
}

func (b *libavBackend) decode(data []byte, pts time.Duration, flags Flags) ([]frame, error) {
	if err := b.pkt.FromData(data); err != nil {
		return nil, fmt.Errorf("could not fill packet: %w", err)
	}
	defer b.pkt.Unref()
	b.pkt.SetPts(pts.Microseconds())
	b.pkt.SetDts(pts.Microseconds())

	if err := b.ctx.SendPacket(b.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("could not send packet: %w", err)
	}
	return b.receive()
}

func (b *libavBackend) flush() ([]frame, error) {
	if err := b.ctx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return nil, fmt.Errorf("could not send flush packet: %w", err)
	}
	return b.receive()
}

// receive returns all frames the decoder has ready.
func (b *libavBackend) receive() ([]frame, error) {
	var frames []frame
	for {
		err := b.ctx.ReceiveFrame(b.frm)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("could not receive frame: %w", err)
		}
		pts := time.Duration(b.frm.Pts()) * time.Microsecond
		img, err := b.image()
		b.frm.Unref()
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame{img: img, pts: pts})
	}
}

// image copies the current frame into a new tightly packed Image.
func (b *libavBackend) image() (*Image, error) {
	pf, ok := libavPixelFormats[b.frm.PixelFormat()]
	if !ok {
		return nil, fmt.Errorf("pixel format %s: %w", b.frm.PixelFormat(), ErrUnsupported)
	}
	w, h := b.frm.Width(), b.frm.Height()
	img := newImage(pf, w, h)

	n, err := b.frm.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("could not get image buffer size: %w", err)
	}
	buf := make([]byte, n)
	if _, err := b.frm.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("could not copy image: %w", err)
	}
	for i := range img.Planes {
		m := copy(img.Planes[i].Data, buf)
		buf = buf[m:]
	}
	return img, nil
}

func (b *libavBackend) close() error {
	return b.closer.Close()
}
