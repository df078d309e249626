/*
NAME
  yuv.go

DESCRIPTION
  yuv.go provides table based ITU-R BT.601 limited range YUV to RGB
  conversion.

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

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

// Coefficient tables in 16.16 fixed point.
var yTab, rvTab, guTab, gvTab, buTab [256]int32

func init() {
	for i := 0; i < 256; i++ {
		yTab[i] = 76284 * int32(i-16)    // 1.164
		rvTab[i] = 104595 * int32(i-128) // 1.596
		guTab[i] = 25624 * int32(i-128)  // 0.391
		gvTab[i] = 53281 * int32(i-128)  // 0.813
		buTab[i] = 132252 * int32(i-128) // 2.018
	}
}

func clamp(v int32) byte {
	v = (v + 1<<15) >> 16
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}

// tableContext converts with the coefficient tables.
type tableContext struct {
	k key
}

func newTableContext(k key) (*tableContext, error) {
	switch k.src {
	case mediacodec.PixelFormatI420, mediacodec.PixelFormatNV12:
	default:
		return nil, fmt.Errorf("source %v: %w", k.src, ErrUnsupported)
	}
	return &tableContext{k: k}, nil
}

func (c *tableContext) convert(img *mediacodec.Image, dst *Frame) error {
	err := checkPlanes(img)
	if err != nil {
		return err
	}

	// Byte offsets of red and blue in a destination pixel.
	ri, bi := 0, 2
	if dst.Format == mediacodec.PixelFormatBGRA {
		ri, bi = 2, 0
	}

	yp := img.Planes[0]
	for row := 0; row < img.Height; row++ {
		out := dst.Pix[row*dst.Stride:]
		for col := 0; col < img.Width; col++ {
			var u, v byte
			switch img.Format {
			case mediacodec.PixelFormatI420:
				off := (row/2)*img.Planes[1].Stride + col/2
				u = img.Planes[1].Data[off]
				v = img.Planes[2].Data[(row/2)*img.Planes[2].Stride+col/2]
			case mediacodec.PixelFormatNV12:
				off := (row/2)*img.Planes[1].Stride + 2*(col/2)
				u, v = img.Planes[1].Data[off], img.Planes[1].Data[off+1]
			}

			y := yTab[yp.Data[row*yp.Stride+col]]
			px := out[4*col : 4*col+4]
			px[ri] = clamp(y + rvTab[v])
			px[1] = clamp(y - guTab[u] - gvTab[v])
			px[bi] = clamp(y + buTab[u])
			px[3] = 0xff
		}
	}
	return nil
}

func (c *tableContext) close() error { return nil }
