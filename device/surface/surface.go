/*
DESCRIPTION
  surface.go defines the Surface interface, a consumer of converted frames,
  and provides Null and File surfaces.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package surface provides presentation surfaces for decoded frames.
package surface

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/codec/pixconv"
)

// Surface kinds accepted by New.
const (
	KindNull   = "null"
	KindFile   = "file"
	KindWindow = "window"
)

// ErrClosed is returned by Present after Close.
var ErrClosed = errors.New("surface closed")

// Surface presents frames. Format is the pixel format frames must be in.
// A Surface that is not Valid cannot present; callers should skip
// presentation rather than call Present.
type Surface interface {
	Format() mediacodec.PixelFormat
	Present(f *pixconv.Frame, pts time.Duration) error
	Valid() bool
	Close() error
}

// New returns a surface of the given kind. path is used by file surfaces, and
// as the window title by window surfaces.
func New(kind, path string) (Surface, error) {
	switch kind {
	case KindNull, "":
		return NewNull(), nil
	case KindFile:
		f, err := NewFile(path, mediacodec.PixelFormatRGBA)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindWindow:
		w, err := NewWindow(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown surface kind: %q", kind)
	}
}

// Null is a surface that discards frames, counting them.
type Null struct {
	mu     sync.Mutex
	n      int
	last   time.Duration
	closed bool
}

// NewNull returns a new Null surface.
func NewNull() *Null { return &Null{} }

// Format implements Surface.
func (s *Null) Format() mediacodec.PixelFormat { return mediacodec.PixelFormatRGBA }

// Present implements Surface.
func (s *Null) Present(f *pixconv.Frame, pts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.n++
	s.last = pts
	return nil
}

// Valid implements Surface.
func (s *Null) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close implements Surface.
func (s *Null) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Presented returns the number of frames presented and the PTS of the last.
func (s *Null) Presented() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n, s.last
}

// File is a surface that appends raw packed frames to a file.
type File struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	format mediacodec.PixelFormat
}

// NewFile creates the file at path and returns a File surface writing to it.
func NewFile(path string, format mediacodec.PixelFormat) (*File, error) {
	if path == "" {
		return nil, errors.New("no output path for file surface")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	return &File{f: f, w: bufio.NewWriter(f), format: format}, nil
}

// Format implements Surface.
func (s *File) Format() mediacodec.PixelFormat { return s.format }

// Present implements Surface.
func (s *File) Present(f *pixconv.Frame, pts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if f.Format != s.format {
		return fmt.Errorf("frame format %v, want %v", f.Format, s.format)
	}
	row := 4 * f.Width
	for r := 0; r < f.Height; r++ {
		_, err := s.w.Write(f.Pix[r*f.Stride : r*f.Stride+row])
		if err != nil {
			return fmt.Errorf("could not write frame: %w", err)
		}
	}
	return nil
}

// Valid implements Surface.
func (s *File) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f != nil
}

// Close implements Surface.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.w.Flush()
	cerr := s.f.Close()
	s.f = nil
	if err != nil {
		return err
	}
	return cerr
}
