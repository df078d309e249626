/*
NAME
  codec.go

DESCRIPTION
  codec.go defines the Codec interface for stateful video decoders that
  exchange data with their client through index addressed input and output
  buffer pools, along with the formats and errors used by it.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mediacodec provides a buffer exchanging video decoder interface
// and implementations of it. Clients dequeue an empty input buffer by index,
// fill it with one access unit and queue it back, then dequeue decoded
// output buffers by index and release them when done.
package mediacodec

import (
	"errors"
	"time"
)

// MIME types.
const (
	MIMEHEVC = "video/hevc"
	MIMEAVC  = "video/avc"
)

// Errors returned by Codec methods.
var (
	// ErrTryAgainLater is returned by a dequeue that timed out. It is not a
	// failure.
	ErrTryAgainLater = errors.New("try again later")

	// ErrOutputFormatChanged is returned by DequeueOutputBuffer when the
	// output format has changed; OutputFormat returns the new format.
	ErrOutputFormatChanged = errors.New("output format changed")

	// ErrOutputBuffersChanged is returned by DequeueOutputBuffer when the
	// set of output buffers has been reallocated.
	ErrOutputBuffersChanged = errors.New("output buffers changed")

	// ErrInvalidIndex is returned for a buffer index the client does not hold.
	ErrInvalidIndex = errors.New("invalid buffer index")

	// ErrInvalidState is returned when a method is called in the wrong state,
	// e.g. DequeueInputBuffer before Start.
	ErrInvalidState = errors.New("invalid codec state")

	// ErrUnsupported is returned by Configure for a format the codec cannot
	// decode.
	ErrUnsupported = errors.New("unsupported format")

	// ErrDecode is returned by QueueInputBuffer when the codec could not
	// decode the queued data. The input buffer is returned to the codec.
	ErrDecode = errors.New("decode error")
)

// Flags describe a queued input buffer or dequeued output buffer.
type Flags uint32

// Buffer flags.
const (
	FlagKeyFrame Flags = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// PixelFormat is the memory layout of a picture.
type PixelFormat int

// Pixel formats.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420                // Planar Y, U, V with 2x2 subsampled chroma.
	PixelFormatNV12                // Planar Y, interleaved UV with 2x2 subsampled chroma.
	PixelFormatRGBA                // Packed 8 bit R, G, B, A.
	PixelFormatBGRA                // Packed 8 bit B, G, R, A.
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUnknown: "unknown",
	PixelFormatI420:    "I420",
	PixelFormatNV12:    "NV12",
	PixelFormatRGBA:    "RGBA",
	PixelFormatBGRA:    "BGRA",
}

func (f PixelFormat) String() string {
	if s, ok := pixelFormatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParsePixelFormat returns the PixelFormat named s, as returned by String.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	for f, n := range pixelFormatNames {
		if n == s && f != PixelFormatUnknown {
			return f, true
		}
	}
	return PixelFormatUnknown, false
}

// Format describes the stream a codec is configured for, or the pictures it
// produces.
type Format struct {
	MIME           string
	Width          int
	Height         int
	FrameRate      int
	BitRate        int
	IFrameInterval int
	ColorFormat    PixelFormat

	// CodecConfig is codec specific data from the container, such as an
	// hvcC or avcC record. Nil for Annex B input.
	CodecConfig []byte
}

// BufferInfo describes a dequeued output buffer.
type BufferInfo struct {
	Offset int
	Size   int
	PTS    time.Duration
	Flags  Flags
}

// Plane is one plane of a picture.
type Plane struct {
	Data   []byte
	Stride int
}

// Image is a decoded picture held by an output buffer.
type Image struct {
	Format PixelFormat
	Width  int
	Height int
	Planes []Plane
}

// Codec is a stateful decoder. Configure and Start must be called before
// buffers are exchanged. Dequeue methods wait at most timeout for a buffer;
// a zero timeout does not wait and a negative timeout waits indefinitely.
// Every index returned by a dequeue belongs to the client until it is
// queued (input) or released (output).
type Codec interface {
	Name() string
	Configure(Format) error
	Start() error
	Stop() error
	Release() error

	DequeueInputBuffer(timeout time.Duration) (int, error)
	InputBuffer(idx int) ([]byte, error)
	QueueInputBuffer(idx, offset, size int, pts time.Duration, flags Flags) error

	DequeueOutputBuffer(timeout time.Duration) (int, BufferInfo, error)
	OutputImage(idx int) (*Image, error)
	ReleaseOutputBuffer(idx int, render bool) error
	OutputFormat() Format
}
