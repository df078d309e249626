/*
DESCRIPTION
  demux.go provides the Demuxer interface, through which compressed video
  access units are pulled from a container or byte stream, and a constructor
  selecting an implementation from configuration.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package demux provides sources of compressed video access units.
package demux

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/pump/config"
)

// Errors returned by demuxers.
var (
	ErrUnknownFormat = errors.New("unknown input format")
	ErrNoStreams     = errors.New("no streams found")
	ErrNotOpen       = errors.New("demuxer not open")
	ErrUnsupported   = errors.New("demuxer not supported by this build")
)

// AccessUnit holds the compressed data of one access unit, or of a chunk of
// a byte stream, with its presentation timestamp.
type AccessUnit struct {
	Data        []byte
	PTS         time.Duration
	StreamIndex int
}

// Stream describes an elementary stream of the input.
type Stream struct {
	Index  int
	MIME   string // Empty for streams that are not decodable video.
	Width  int    // Zero if unknown.
	Height int    // Zero if unknown.
	Config []byte // Codec specific data, nil if parameter sets are in band.
}

// StreamSet describes the streams of an opened input.
type StreamSet []Stream

// Video returns the first video stream of s.
func (s StreamSet) Video() (Stream, bool) {
	for _, st := range s {
		if st.MIME != "" {
			return st, true
		}
	}
	return Stream{}, false
}

// Demuxer provides access units from an input.
type Demuxer interface {
	// Open opens the input at uri and returns its streams.
	Open(uri string) (StreamSet, error)

	// NextAccessUnit returns the next access unit, or io.EOF once none remain.
	// The returned AccessUnit is owned by the caller.
	NextAccessUnit() (*AccessUnit, error)

	// VideoStreamIndex returns the index of the video stream, and false if
	// there is none.
	VideoStreamIndex() (int, bool)

	// Close releases the input. It is safe to call more than once.
	Close() error
}

// settings holds the options common to demuxers.
type settings struct {
	frameRate uint
	chunkSize int
	loop      bool
	mime      string
}

func defaultSettings() settings {
	return settings{frameRate: 30, mime: mediacodec.MIMEHEVC}
}

// period returns the frame interval.
func (s *settings) period() time.Duration {
	return time.Second / time.Duration(s.frameRate)
}

// Option is a demuxer option.
type Option func(*settings) error

// FrameRate sets the frame rate used to synthesise timestamps for inputs
// that do not carry them.
func FrameRate(fps uint) Option {
	return func(s *settings) error {
		if fps == 0 {
			return errors.New("frame rate must be positive")
		}
		s.frameRate = fps
		return nil
	}
}

// ChunkSize causes byte stream inputs to be provided in chunks of n bytes
// rather than as access units. Zero selects access units.
func ChunkSize(n int) Option {
	return func(s *settings) error {
		if n < 0 {
			return fmt.Errorf("invalid chunk size: %d", n)
		}
		s.chunkSize = n
		return nil
	}
}

// Loop causes file inputs to restart once exhausted.
func Loop(b bool) Option {
	return func(s *settings) error {
		s.loop = b
		return nil
	}
}

// MIME sets the MIME type reported for byte stream inputs.
func MIME(m string) Option {
	return func(s *settings) error {
		s.mime = m
		return nil
	}
}

func apply(s *settings, options []Option) error {
	for _, o := range options {
		err := o(s)
		if err != nil {
			return fmt.Errorf("option failed with error: %w", err)
		}
	}
	return nil
}

// FormatFor returns the input format for path based on its extension.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h265", ".hevc", ".265", ".h264", ".264":
		return config.FormatAnnexB, nil
	case ".ts", ".mts", ".m2ts":
		return config.FormatMTS, nil
	case ".mp4", ".mkv", ".mov":
		return config.FormatLibAV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// New returns an unopened Demuxer for c.InputPath according to
// c.InputFormat, or the path extension if the format is unset.
func New(c config.Config) (Demuxer, error) {
	format := c.InputFormat
	if format == config.FormatAuto {
		var err error
		format, err = FormatFor(c.InputPath)
		if err != nil {
			return nil, err
		}
	}

	opts := []Option{
		FrameRate(c.FrameRate),
		ChunkSize(int(c.ChunkSize)),
		Loop(c.Loop),
		MIME(c.MIME),
	}
	return NewFormat(format, c.Logger, opts...)
}

// NewFormat returns an unopened Demuxer for the given format.
func NewFormat(format string, log logging.Logger, opts ...Option) (Demuxer, error) {
	switch format {
	case config.FormatAnnexB:
		d, err := NewAnnexB(log, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.FormatMTS:
		d, err := NewMTS(log, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.FormatLibAV:
		d, err := NewLibAV(log, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
