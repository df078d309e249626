//go:build withcv
// +build withcv

/*
DESCRIPTION
  window.go provides a Surface that shows frames in an Open CV window.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package surface

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/codec/pixconv"
)

// Window is a surface backed by an Open CV window. Open CV expects BGR
// channel order.
type Window struct {
	mu  sync.Mutex
	win *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) (*Window, error) {
	if title == "" {
		title = "hevcplay"
	}
	return &Window{win: gocv.NewWindow(title)}, nil
}

// Format implements Surface.
func (s *Window) Format() mediacodec.PixelFormat { return mediacodec.PixelFormatBGRA }

// Present implements Surface.
func (s *Window) Present(f *pixconv.Frame, pts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.win == nil {
		return ErrClosed
	}
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4, f.Pix)
	if err != nil {
		return fmt.Errorf("could not create mat: %w", err)
	}
	defer m.Close()
	s.win.IMShow(m)
	s.win.WaitKey(1)
	return nil
}

// Valid implements Surface. A window closed by the user is not valid.
func (s *Window) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win != nil && s.win.IsOpen()
}

// Close implements Surface.
func (s *Window) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.win == nil {
		return nil
	}
	err := s.win.Close()
	s.win = nil
	return err
}
