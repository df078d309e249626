/*
NAME
  pixconv.go

DESCRIPTION
  pixconv.go provides Converter, which converts decoded planar YUV pictures
  into packed RGB frames for presentation.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pixconv provides conversion of decoded pictures between pixel
// layouts.
package pixconv

import (
	"errors"
	"fmt"

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

// ErrUnsupported is returned for a conversion the converter cannot perform.
var ErrUnsupported = errors.New("unsupported conversion")

// Frame is a packed picture.
type Frame struct {
	Format mediacodec.PixelFormat
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// key identifies a conversion context.
type key struct {
	src, dst mediacodec.PixelFormat
	w, h     int
}

// context converts pictures for a single key.
type context interface {
	convert(img *mediacodec.Image, dst *Frame) error
	close() error
}

// Converter converts pictures to a fixed destination format. The conversion
// context is cached and rebuilt when the source format or size changes.
// A Converter is not safe for concurrent use.
type Converter struct {
	dst      mediacodec.PixelFormat
	key      key
	ctx      context
	rebuilds int
}

// NewConverter returns a new Converter producing frames of format dst, which
// must be RGBA or BGRA.
func NewConverter(dst mediacodec.PixelFormat) (*Converter, error) {
	if dst != mediacodec.PixelFormatRGBA && dst != mediacodec.PixelFormatBGRA {
		return nil, fmt.Errorf("destination %v: %w", dst, ErrUnsupported)
	}
	return &Converter{dst: dst}, nil
}

// Convert converts img into a new Frame.
func (c *Converter) Convert(img *mediacodec.Image) (*Frame, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}

	k := key{src: img.Format, dst: c.dst, w: img.Width, h: img.Height}
	if c.ctx == nil || k != c.key {
		if c.ctx != nil {
			err := c.ctx.close()
			c.ctx = nil
			c.rebuilds++
			if err != nil {
				return nil, fmt.Errorf("could not close %v conversion context: %w", c.key.src, err)
			}
		}
		ctx, err := newContext(k)
		if err != nil {
			return nil, err
		}
		c.ctx, c.key = ctx, k
	}

	f := &Frame{
		Format: c.dst,
		Width:  img.Width,
		Height: img.Height,
		Stride: 4 * img.Width,
		Pix:    make([]byte, 4*img.Width*img.Height),
	}
	err := c.ctx.convert(img, f)
	if err != nil {
		return nil, fmt.Errorf("could not convert %v to %v: %w", img.Format, c.dst, err)
	}
	return f, nil
}

// Rebuilds returns the number of times the conversion context has been
// rebuilt because of a change in source format or size.
func (c *Converter) Rebuilds() int { return c.rebuilds }

// Close releases the conversion context.
func (c *Converter) Close() error {
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.close()
	c.ctx = nil
	return err
}

// checkPlanes returns an error if img does not have the planes required by
// its format.
func checkPlanes(img *mediacodec.Image) error {
	cw, ch := (img.Width+1)/2, (img.Height+1)/2
	need := func(i, w, h int) error {
		if i >= len(img.Planes) {
			return fmt.Errorf("missing plane %d", i)
		}
		p := img.Planes[i]
		if p.Stride < w || len(p.Data) < p.Stride*(h-1)+w {
			return fmt.Errorf("plane %d too small", i)
		}
		return nil
	}

	switch img.Format {
	case mediacodec.PixelFormatI420:
		for i, d := range [][2]int{{img.Width, img.Height}, {cw, ch}, {cw, ch}} {
			if err := need(i, d[0], d[1]); err != nil {
				return err
			}
		}
	case mediacodec.PixelFormatNV12:
		for i, d := range [][2]int{{img.Width, img.Height}, {2 * cw, ch}} {
			if err := need(i, d[0], d[1]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("source %v: %w", img.Format, ErrUnsupported)
	}
	return nil
}
