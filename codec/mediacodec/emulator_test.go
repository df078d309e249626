/*
NAME
  emulator_test.go

DESCRIPTION
  emulator_test.go provides testing for the Emulator codec and the buffer
  exchange behaviour of slotCodec.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testFormat = Format{MIME: MIMEHEVC, Width: 64, Height: 32, FrameRate: 60}

func newStartedEmulator(t *testing.T, options ...func(*Emulator) error) *Emulator {
	t.Helper()
	e, err := NewEmulator(options...)
	if err != nil {
		t.Fatalf("could not create emulator: %v", err)
	}
	err = e.Configure(testFormat)
	if err != nil {
		t.Fatalf("could not configure emulator: %v", err)
	}
	err = e.Start()
	if err != nil {
		t.Fatalf("could not start emulator: %v", err)
	}
	t.Cleanup(func() { e.Release() })
	return e
}

// queue dequeues an input buffer, fills it with data and queues it.
func queue(t *testing.T, c Codec, data []byte, pts time.Duration, flags Flags) {
	t.Helper()
	idx, err := c.DequeueInputBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("could not dequeue input buffer: %v", err)
	}
	buf, err := c.InputBuffer(idx)
	if err != nil {
		t.Fatalf("could not get input buffer: %v", err)
	}
	n := copy(buf, data)
	err = c.QueueInputBuffer(idx, 0, n, pts, flags)
	if err != nil {
		t.Fatalf("could not queue input buffer: %v", err)
	}
}

func TestEmulatorDecode(t *testing.T) {
	e := newStartedEmulator(t)
	queue(t, e, []byte{0x00, 0x00, 0x01, 0x26, 0x01, 0xaf}, 40*time.Millisecond, FlagKeyFrame)

	_, _, err := e.DequeueOutputBuffer(10 * time.Millisecond)
	if !errors.Is(err, ErrOutputFormatChanged) {
		t.Fatalf("expected ErrOutputFormatChanged before first picture, got: %v", err)
	}
	want := testFormat
	want.ColorFormat = PixelFormatI420
	if got := e.OutputFormat(); !cmp.Equal(got, want) {
		t.Errorf("unexpected output format\n%s", cmp.Diff(want, got))
	}

	idx, info, err := e.DequeueOutputBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("could not dequeue output buffer: %v", err)
	}
	wantInfo := BufferInfo{Size: 64*32 + 2*32*16, PTS: 40 * time.Millisecond, Flags: FlagKeyFrame}
	if !cmp.Equal(info, wantInfo) {
		t.Errorf("unexpected buffer info\n%s", cmp.Diff(wantInfo, info))
	}

	img, err := e.OutputImage(idx)
	if err != nil {
		t.Fatalf("could not get output image: %v", err)
	}
	if img.Format != PixelFormatI420 || img.Width != 64 || img.Height != 32 || len(img.Planes) != 3 {
		t.Errorf("unexpected image: %v %dx%d with %d planes", img.Format, img.Width, img.Height, len(img.Planes))
	}

	err = e.ReleaseOutputBuffer(idx, true)
	if err != nil {
		t.Fatalf("could not release output buffer: %v", err)
	}
	err = e.ReleaseOutputBuffer(idx, true)
	if !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex for second release, got: %v", err)
	}

	_, _, err = e.DequeueOutputBuffer(0)
	if !errors.Is(err, ErrTryAgainLater) {
		t.Errorf("expected ErrTryAgainLater with no pending pictures, got: %v", err)
	}
}

func TestEmulatorZeroInputSlots(t *testing.T) {
	e := newStartedEmulator(t, InputSlots(0))

	const timeout = 20 * time.Millisecond
	start := time.Now()
	idx, err := e.DequeueInputBuffer(timeout)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTryAgainLater) {
		t.Fatalf("expected ErrTryAgainLater, got: %v", err)
	}
	if idx != -1 {
		t.Errorf("unexpected index: %d", idx)
	}
	if elapsed < timeout {
		t.Errorf("returned before timeout: %v", elapsed)
	}
	if elapsed > 50*timeout {
		t.Errorf("blocked well past timeout: %v", elapsed)
	}
}

func TestEmulatorBackpressure(t *testing.T) {
	e := newStartedEmulator(t, InputSlots(1), OutputSlots(1), OutputPixelFormat(PixelFormatI420))
	err := e.Configure(testFormat)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for configure while executing, got: %v", err)
	}

	queue(t, e, []byte{0x01}, 0, 0)

	// The first picture fills the only output buffer, so the input buffer is
	// free again.
	queue(t, e, []byte{0x02}, time.Millisecond, 0)

	// The second picture has no output buffer to go to, so its input buffer
	// is held.
	_, err = e.DequeueInputBuffer(5 * time.Millisecond)
	if !errors.Is(err, ErrTryAgainLater) {
		t.Fatalf("expected ErrTryAgainLater while output is full, got: %v", err)
	}

	var idx int
	for {
		idx, _, err = e.DequeueOutputBuffer(5 * time.Millisecond)
		if errors.Is(err, ErrOutputFormatChanged) {
			continue
		}
		if err != nil {
			t.Fatalf("could not dequeue output buffer: %v", err)
		}
		break
	}
	err = e.ReleaseOutputBuffer(idx, false)
	if err != nil {
		t.Fatalf("could not release output buffer: %v", err)
	}

	_, err = e.DequeueInputBuffer(5 * time.Millisecond)
	if err != nil {
		t.Errorf("expected input buffer after output release, got: %v", err)
	}
}

func TestEmulatorEndOfStream(t *testing.T) {
	e := newStartedEmulator(t, OutputPixelFormat(PixelFormatNV12))
	queue(t, e, []byte{0x01}, 0, 0)
	queue(t, e, nil, time.Second, FlagEndOfStream)

	var got []Flags
	for len(got) < 2 {
		idx, info, err := e.DequeueOutputBuffer(10 * time.Millisecond)
		if errors.Is(err, ErrOutputFormatChanged) {
			if f := e.OutputFormat().ColorFormat; f != PixelFormatNV12 {
				t.Errorf("unexpected output color format: %v", f)
			}
			continue
		}
		if err != nil {
			t.Fatalf("could not dequeue output buffer: %v", err)
		}
		img, err := e.OutputImage(idx)
		if err != nil {
			t.Fatalf("could not get output image: %v", err)
		}
		if info.Flags&FlagEndOfStream != 0 && img != nil {
			t.Errorf("expected no image for end of stream buffer")
		}
		got = append(got, info.Flags)
		e.ReleaseOutputBuffer(idx, false)
	}

	want := []Flags{0, FlagEndOfStream}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected output flags\n%s", cmp.Diff(want, got))
	}

	idx, err := e.DequeueInputBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("could not dequeue input buffer: %v", err)
	}
	err = e.QueueInputBuffer(idx, 0, 1, 0, 0)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for input after end of stream, got: %v", err)
	}
}

func TestEmulatorStates(t *testing.T) {
	e, err := NewEmulator()
	if err != nil {
		t.Fatalf("could not create emulator: %v", err)
	}

	_, err = e.DequeueInputBuffer(0)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before start, got: %v", err)
	}

	err = e.Configure(Format{MIME: "video/vp9", Width: 64, Height: 32})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for vp9, got: %v", err)
	}

	err = e.Start()
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for start before configure, got: %v", err)
	}

	err = e.Configure(testFormat)
	if err != nil {
		t.Fatalf("could not configure: %v", err)
	}
	err = e.Start()
	if err != nil {
		t.Fatalf("could not start: %v", err)
	}
	err = e.Stop()
	if err != nil {
		t.Fatalf("could not stop: %v", err)
	}
	err = e.Release()
	if err != nil {
		t.Fatalf("could not release: %v", err)
	}
	err = e.Release()
	if err != nil {
		t.Errorf("expected second release to succeed, got: %v", err)
	}
}

func TestNew(t *testing.T) {
	c, err := New(NameEmulator, Pools{ZeroInputSlots: true})
	if err != nil {
		t.Fatalf("could not create emulator: %v", err)
	}
	if c.Name() != NameEmulator {
		t.Errorf("unexpected name: %s", c.Name())
	}

	_, err = New("mediacodec", Pools{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for unknown codec, got: %v", err)
	}

	if !Supported(NameEmulator, MIMEHEVC) {
		t.Errorf("expected emulator to support %s", MIMEHEVC)
	}
}
