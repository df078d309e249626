//go:build withcv
// +build withcv

/*
NAME
  cv.go

DESCRIPTION
  cv.go provides conversion contexts that use Open CV colour conversion.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pixconv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

var cvCodes = map[[2]mediacodec.PixelFormat]gocv.ColorConversionCode{
	{mediacodec.PixelFormatI420, mediacodec.PixelFormatRGBA}: gocv.ColorYUVToRGBAIYUV,
	{mediacodec.PixelFormatI420, mediacodec.PixelFormatBGRA}: gocv.ColorYUVToBGRAIYUV,
	{mediacodec.PixelFormatNV12, mediacodec.PixelFormatRGBA}: gocv.ColorYUVToRGBANV12,
	{mediacodec.PixelFormatNV12, mediacodec.PixelFormatBGRA}: gocv.ColorYUVToBGRANV12,
}

func newContext(k key) (context, error) {
	code, ok := cvCodes[[2]mediacodec.PixelFormat{k.src, k.dst}]
	if !ok {
		return nil, fmt.Errorf("%v to %v: %w", k.src, k.dst, ErrUnsupported)
	}
	if k.w%2 != 0 || k.h%2 != 0 {
		// Open CV requires even dimensions for 4:2:0 input.
		c, err := newTableContext(k)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return &cvContext{
		code: code,
		src:  make([]byte, k.w*k.h*3/2),
		dst:  gocv.NewMat(),
	}, nil
}

// cvContext holds the packed source buffer and destination Mat for one key.
type cvContext struct {
	code gocv.ColorConversionCode
	src  []byte
	dst  gocv.Mat
}

func (c *cvContext) convert(img *mediacodec.Image, dst *Frame) error {
	err := checkPlanes(img)
	if err != nil {
		return err
	}

	// Pack planes, dropping any stride padding.
	off := 0
	for i, p := range img.Planes {
		w, h := img.Width, img.Height
		if i > 0 {
			w, h = (img.Width+1)/2, (img.Height+1)/2
			if img.Format == mediacodec.PixelFormatNV12 {
				w *= 2
			}
		}
		for r := 0; r < h; r++ {
			off += copy(c.src[off:], p.Data[r*p.Stride:r*p.Stride+w])
		}
	}

	src, err := gocv.NewMatFromBytes(img.Height*3/2, img.Width, gocv.MatTypeCV8UC1, c.src)
	if err != nil {
		return fmt.Errorf("could not create source mat: %w", err)
	}
	defer src.Close()

	gocv.CvtColor(src, &c.dst, c.code)
	copy(dst.Pix, c.dst.ToBytes())
	return nil
}

func (c *cvContext) close() error {
	return c.dst.Close()
}
