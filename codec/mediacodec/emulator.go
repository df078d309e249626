/*
NAME
  emulator.go

DESCRIPTION
  emulator.go provides Emulator, a Codec that produces synthetic pictures for
  queued access units. It has the buffer exchange behaviour of a hardware
  decoder and is used where no decoder is available, and for testing.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import (
	"fmt"
	"time"
)

// Emulator defaults.
const (
	defaultInputSlots    = 4
	defaultOutputSlots   = 4
	defaultInputCapacity = 1 << 20
)

// Emulator is a Codec that emits one synthetic picture for each non empty,
// non codec config input buffer. Pictures have the configured size.
type Emulator struct {
	*slotCodec
	nIn, nOut int
	inCap     int
	pixFmt    PixelFormat
}

// InputSlots is an option that can be passed to NewEmulator to set the number
// of input buffers. Zero is permitted; no input buffer can then be dequeued.
func InputSlots(n int) func(*Emulator) error {
	return func(e *Emulator) error {
		if n < 0 {
			return fmt.Errorf("invalid input slot count: %d", n)
		}
		e.nIn = n
		return nil
	}
}

// OutputSlots is an option that can be passed to NewEmulator to set the number
// of output buffers.
func OutputSlots(n int) func(*Emulator) error {
	return func(e *Emulator) error {
		if n < 1 {
			return fmt.Errorf("invalid output slot count: %d", n)
		}
		e.nOut = n
		return nil
	}
}

// InputCapacity is an option that can be passed to NewEmulator to set the size
// of each input buffer in bytes.
func InputCapacity(n int) func(*Emulator) error {
	return func(e *Emulator) error {
		if n < 1 {
			return fmt.Errorf("invalid input capacity: %d", n)
		}
		e.inCap = n
		return nil
	}
}

// OutputPixelFormat is an option that can be passed to NewEmulator to set the
// layout of produced pictures. I420 and NV12 are supported.
func OutputPixelFormat(f PixelFormat) func(*Emulator) error {
	return func(e *Emulator) error {
		if f != PixelFormatI420 && f != PixelFormatNV12 {
			return fmt.Errorf("unsupported output pixel format: %v", f)
		}
		e.pixFmt = f
		return nil
	}
}

// NewEmulator returns a new Emulator with the given options applied.
func NewEmulator(options ...func(*Emulator) error) (*Emulator, error) {
	e := &Emulator{
		nIn:    defaultInputSlots,
		nOut:   defaultOutputSlots,
		inCap:  defaultInputCapacity,
		pixFmt: PixelFormatI420,
	}
	for i, o := range options {
		err := o(e)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	e.slotCodec = newSlotCodec("emulator", e.nIn, e.nOut, e.inCap, e.newBackend)
	return e, nil
}

func (e *Emulator) newBackend(f Format) (backend, error) {
	if !emulatorMIMEs[f.MIME] {
		return nil, fmt.Errorf("mime %q: %w", f.MIME, ErrUnsupported)
	}
	if f.Width <= 0 || f.Height <= 0 || f.Width%2 != 0 || f.Height%2 != 0 {
		return nil, fmt.Errorf("size %dx%d: %w", f.Width, f.Height, ErrUnsupported)
	}
	return &synthBackend{w: f.Width, h: f.Height, pixFmt: e.pixFmt}, nil
}

var emulatorMIMEs = map[string]bool{MIMEHEVC: true, MIMEAVC: true}

// synthBackend produces pictures with a luma ramp that moves one step per
// picture, and flat chroma.
type synthBackend struct {
	w, h   int
	pixFmt PixelFormat
	n      int
}

func (b *synthBackend) decode(data []byte, pts time.Duration, flags Flags) ([]frame, error) {
	if flags&FlagCodecConfig != 0 {
		return nil, nil
	}
	img := newImage(b.pixFmt, b.w, b.h)
	y := img.Planes[0]
	for r := 0; r < b.h; r++ {
		row := y.Data[r*y.Stride : r*y.Stride+b.w]
		for x := range row {
			row[x] = byte(x + r + b.n)
		}
	}
	for _, p := range img.Planes[1:] {
		for i := range p.Data {
			p.Data[i] = 0x80
		}
	}
	b.n++
	return []frame{{img: img, pts: pts, flags: flags & FlagKeyFrame}}, nil
}

func (b *synthBackend) flush() ([]frame, error) { return nil, nil }

func (b *synthBackend) close() error { return nil }

// newImage returns an Image of format f, I420 or NV12, with tightly packed
// planes.
func newImage(f PixelFormat, w, h int) *Image {
	cw, ch := (w+1)/2, (h+1)/2
	img := &Image{Format: f, Width: w, Height: h}
	img.Planes = append(img.Planes, Plane{Data: make([]byte, w*h), Stride: w})
	switch f {
	case PixelFormatNV12:
		img.Planes = append(img.Planes, Plane{Data: make([]byte, 2*cw*ch), Stride: 2 * cw})
	default:
		img.Planes = append(img.Planes,
			Plane{Data: make([]byte, cw*ch), Stride: cw},
			Plane{Data: make([]byte, cw*ch), Stride: cw},
		)
	}
	return img
}
