/*
DESCRIPTION
  surface_test.go provides testing for the Null and File surfaces.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package surface

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/codec/pixconv"
)

func TestNull(t *testing.T) {
	s, err := New(KindNull, "")
	if err != nil {
		t.Fatalf("could not create surface: %v", err)
	}
	n := s.(*Null)

	f := &pixconv.Frame{Format: mediacodec.PixelFormatRGBA, Width: 1, Height: 1, Stride: 4, Pix: make([]byte, 4)}
	for i := 0; i < 3; i++ {
		err := s.Present(f, time.Duration(i)*time.Second)
		if err != nil {
			t.Fatalf("could not present frame %d: %v", i, err)
		}
	}
	if cnt, last := n.Presented(); cnt != 3 || last != 2*time.Second {
		t.Errorf("unexpected presentation count %d and last pts %v", cnt, last)
	}

	s.Close()
	if s.Valid() {
		t.Error("expected closed surface to be invalid")
	}
	if err := s.Present(f, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got: %v", err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.rgba")
	s, err := NewFile(path, mediacodec.PixelFormatRGBA)
	if err != nil {
		t.Fatalf("could not create file surface: %v", err)
	}

	// A 2x2 frame with 4 bytes of row padding.
	f := &pixconv.Frame{
		Format: mediacodec.PixelFormatRGBA,
		Width:  2,
		Height: 2,
		Stride: 12,
		Pix: []byte{
			1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0,
			9, 10, 11, 12, 13, 14, 15, 16, 0, 0, 0, 0,
		},
	}
	err = s.Present(f, 0)
	if err != nil {
		t.Fatalf("could not present: %v", err)
	}

	bad := *f
	bad.Format = mediacodec.PixelFormatBGRA
	if err := s.Present(&bad, 0); err == nil {
		t.Error("expected error for wrong frame format")
	}

	err = s.Close()
	if err != nil {
		t.Fatalf("could not close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read output: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected file contents\nGot: %v\nWant: %v\n", got, want)
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := New("hologram", "")
	if err == nil {
		t.Error("expected error for unknown surface kind")
	}
}
