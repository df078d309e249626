/*
DESCRIPTION
  file.go provides a Source reading compressed video from a file, optionally
  looping it.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides a device.Source for files.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/device"
	"github.com/ausocean/hevcplay/pump/config"
)

var errNoPath = errors.New("no input path")

// Source reads a file of compressed video.
type Source struct {
	log logging.Logger

	mu    sync.Mutex
	path  string
	loop  bool
	f     *os.File
	loops int
}

var _ device.Source = (*Source)(nil)

// New returns a Source that must be configured before it is started.
func New(log logging.Logger) *Source { return &Source{log: log} }

// NewWith returns a Source reading path, looping if loop is true.
func NewWith(log logging.Logger, path string, loop bool) *Source {
	return &Source{log: log, path: path, loop: loop}
}

// Name implements device.Source.
func (s *Source) Name() string { return "file" }

// Configure uses the InputPath and Loop fields of c.
func (s *Source) Configure(c config.Config) error {
	if c.InputPath == "" {
		return errNoPath
	}
	s.mu.Lock()
	s.path, s.loop = c.InputPath, c.Loop
	s.mu.Unlock()
	return nil
}

// Start opens the file.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return device.ErrNotConfigured
	}
	if s.f != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("could not open media file: %w", err)
	}
	s.f = f
	s.log.Debug("opened media file", "path", s.path, "loop", s.loop)
	return nil
}

// Stop closes the file; later reads fail with device.ErrNotRunning.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Read implements io.Reader. When looping, the end of the file seeks back to
// its start, so io.EOF is returned only for an empty file.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, device.ErrNotRunning
	}

	n, err := s.f.Read(p)
	if n != 0 || err != io.EOF || !s.loop {
		return n, err
	}

	_, err = s.f.Seek(0, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("could not rewind media file: %w", err)
	}
	s.loops++
	s.log.Info("looping media file", "loops", s.loops)

	n, err = s.f.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("could not read after rewind: %w", err)
	}
	return n, err
}

// Loops returns the number of times the file has been rewound.
func (s *Source) Loops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loops
}

// IsRunning implements device.Source.
func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f != nil
}
