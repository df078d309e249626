/*
NAME
  pixconv_test.go

DESCRIPTION
  pixconv_test.go provides testing for functionality in pixconv.go.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pixconv

import (
	"errors"
	"testing"

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

// flatImage returns a w by h image of format f with every sample of each
// plane set to y, u and v.
func flatImage(f mediacodec.PixelFormat, w, h int, y, u, v byte) *mediacodec.Image {
	fill := func(n int, b ...byte) []byte {
		d := make([]byte, n)
		for i := range d {
			d[i] = b[i%len(b)]
		}
		return d
	}
	cw, ch := w/2, h/2
	img := &mediacodec.Image{Format: f, Width: w, Height: h}
	img.Planes = append(img.Planes, mediacodec.Plane{Data: fill(w*h, y), Stride: w})
	switch f {
	case mediacodec.PixelFormatNV12:
		img.Planes = append(img.Planes, mediacodec.Plane{Data: fill(2*cw*ch, u, v), Stride: 2 * cw})
	default:
		img.Planes = append(img.Planes,
			mediacodec.Plane{Data: fill(cw*ch, u), Stride: cw},
			mediacodec.Plane{Data: fill(cw*ch, v), Stride: cw},
		)
	}
	return img
}

func near(a, b byte) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		src     mediacodec.PixelFormat
		dst     mediacodec.PixelFormat
		y, u, v byte
		want    [4]byte
	}{
		{name: "black", src: mediacodec.PixelFormatI420, dst: mediacodec.PixelFormatRGBA, y: 16, u: 128, v: 128, want: [4]byte{0, 0, 0, 255}},
		{name: "white", src: mediacodec.PixelFormatI420, dst: mediacodec.PixelFormatRGBA, y: 235, u: 128, v: 128, want: [4]byte{255, 255, 255, 255}},
		{name: "red rgba", src: mediacodec.PixelFormatI420, dst: mediacodec.PixelFormatRGBA, y: 81, u: 90, v: 240, want: [4]byte{254, 0, 0, 255}},
		{name: "red bgra", src: mediacodec.PixelFormatI420, dst: mediacodec.PixelFormatBGRA, y: 81, u: 90, v: 240, want: [4]byte{0, 0, 254, 255}},
		{name: "red nv12", src: mediacodec.PixelFormatNV12, dst: mediacodec.PixelFormatRGBA, y: 81, u: 90, v: 240, want: [4]byte{254, 0, 0, 255}},
		{name: "blue nv12", src: mediacodec.PixelFormatNV12, dst: mediacodec.PixelFormatRGBA, y: 41, u: 240, v: 110, want: [4]byte{0, 0, 255, 255}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := NewConverter(test.dst)
			if err != nil {
				t.Fatalf("could not create converter: %v", err)
			}
			defer c.Close()

			const w, h = 8, 4
			f, err := c.Convert(flatImage(test.src, w, h, test.y, test.u, test.v))
			if err != nil {
				t.Fatalf("could not convert: %v", err)
			}
			if f.Width != w || f.Height != h || f.Stride != 4*w || len(f.Pix) != 4*w*h {
				t.Fatalf("unexpected frame geometry: %dx%d stride %d len %d", f.Width, f.Height, f.Stride, len(f.Pix))
			}
			for i := 0; i < len(f.Pix); i += 4 {
				for j := 0; j < 4; j++ {
					if !near(f.Pix[i+j], test.want[j]) {
						t.Fatalf("unexpected pixel at %d\nGot: %v\nWant: %v\n", i/4, f.Pix[i:i+4], test.want)
					}
				}
			}
		})
	}
}

func TestConverterRebuild(t *testing.T) {
	c, err := NewConverter(mediacodec.PixelFormatRGBA)
	if err != nil {
		t.Fatalf("could not create converter: %v", err)
	}
	defer c.Close()

	imgs := []*mediacodec.Image{
		flatImage(mediacodec.PixelFormatI420, 8, 4, 16, 128, 128),
		flatImage(mediacodec.PixelFormatI420, 8, 4, 16, 128, 128),
		flatImage(mediacodec.PixelFormatI420, 16, 8, 16, 128, 128),
		flatImage(mediacodec.PixelFormatNV12, 16, 8, 16, 128, 128),
		flatImage(mediacodec.PixelFormatNV12, 16, 8, 16, 128, 128),
	}
	for i, img := range imgs {
		_, err := c.Convert(img)
		if err != nil {
			t.Fatalf("could not convert image %d: %v", i, err)
		}
	}
	if c.Rebuilds() != 2 {
		t.Errorf("unexpected number of rebuilds\nGot: %v\nWant: %v\n", c.Rebuilds(), 2)
	}
}

var errClose = errors.New("close failed")

// closeErrContext is a conversion context that fails to close.
type closeErrContext struct{ context }

func (closeErrContext) close() error { return errClose }

func TestConverterRebuildCloseError(t *testing.T) {
	c, err := NewConverter(mediacodec.PixelFormatRGBA)
	if err != nil {
		t.Fatalf("could not create converter: %v", err)
	}
	defer c.Close()

	small := flatImage(mediacodec.PixelFormatI420, 8, 4, 16, 128, 128)
	_, err = c.Convert(small)
	if err != nil {
		t.Fatalf("could not convert first image: %v", err)
	}
	c.ctx = closeErrContext{c.ctx}

	large := flatImage(mediacodec.PixelFormatI420, 16, 8, 16, 128, 128)
	_, err = c.Convert(large)
	if !errors.Is(err, errClose) {
		t.Fatalf("expected close error on rebuild, got: %v", err)
	}

	// The failed context is discarded so the next conversion succeeds.
	f, err := c.Convert(large)
	if err != nil {
		t.Fatalf("could not convert after close error: %v", err)
	}
	if f.Width != 16 || f.Height != 8 {
		t.Errorf("unexpected frame size: %dx%d", f.Width, f.Height)
	}
	if c.Rebuilds() != 1 {
		t.Errorf("unexpected number of rebuilds\nGot: %v\nWant: %v\n", c.Rebuilds(), 1)
	}
}

func TestConvertErrors(t *testing.T) {
	_, err := NewConverter(mediacodec.PixelFormatI420)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for I420 destination, got: %v", err)
	}

	c, _ := NewConverter(mediacodec.PixelFormatRGBA)
	_, err = c.Convert(&mediacodec.Image{Format: mediacodec.PixelFormatRGBA, Width: 2, Height: 2})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for RGBA source, got: %v", err)
	}

	img := flatImage(mediacodec.PixelFormatI420, 8, 4, 16, 128, 128)
	img.Planes = img.Planes[:2]
	_, err = c.Convert(img)
	if err == nil {
		t.Error("expected error for missing plane")
	}
}
