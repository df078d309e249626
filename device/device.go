/*
DESCRIPTION
  device.go provides Source, an interface describing a startable source of
  compressed video bytes read by the demuxers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface for sources of compressed video.
package device

import (
	"errors"
	"fmt"
	"io"

	"github.com/ausocean/hevcplay/pump/config"
)

// Errors shared by Source implementations.
var (
	ErrNotConfigured = errors.New("source not configured")
	ErrNotRunning    = errors.New("source not running")
)

// Source is a source of compressed video. Reads succeed only between Start
// and Stop.
type Source interface {
	io.Reader

	// Name returns a short name for the kind of source.
	Name() string

	// Configure takes the fields of c the source uses. The fields used are
	// documented by each implementation.
	Configure(c config.Config) error

	// Start readies the source for reading.
	Start() error

	// Stop releases the source. Stop may be called more than once.
	Stop() error

	// IsRunning reports whether the source is between Start and Stop.
	IsRunning() bool
}

// Open configures and starts s.
func Open(s Source, c config.Config) error {
	err := s.Configure(c)
	if err != nil {
		return fmt.Errorf("could not configure %s source: %w", s.Name(), err)
	}
	err = s.Start()
	if err != nil {
		return fmt.Errorf("could not start %s source: %w", s.Name(), err)
	}
	return nil
}
