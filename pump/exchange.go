/*
DESCRIPTION
  exchange.go provides Exchange, which leases decoder input and output
  buffers to the pump and accounts for every lease.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pump

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/hevcplay/codec/mediacodec"
)

// Exchange errors. All are fatal to the pump.
var (
	ErrDecoderConfiguration = errors.New("decoder configuration failed")
	ErrBufferPool           = errors.New("decoder buffer pool error")
	ErrBufferLeak           = errors.New("decoder buffers not returned")
	ErrPayloadTooLarge      = errors.New("payload larger than decoder input buffer")
	ErrInfiniteTimeout      = errors.New("negative timeout not permitted")
	ErrExchangeClosed       = errors.New("exchange closed")
)

// InputHandle is a leased decoder input buffer. It is valid until passed to
// SubmitInput.
type InputHandle struct {
	Index int
	Buf   []byte // Full capacity of the buffer.
	done  bool
}

// Capacity returns the number of bytes the buffer can hold.
func (h *InputHandle) Capacity() int { return len(h.Buf) }

// OutputHandle is a leased decoder output buffer. It is valid until passed
// to ReleaseOutputSlot.
type OutputHandle struct {
	Index int
	Info  mediacodec.BufferInfo
	done  bool
}

// DecodedPicture describes the content of an output buffer. Image is
// borrowed from the decoder and must not be used after the buffer is
// released. Image is nil when EOS is set on a buffer holding no picture.
type DecodedPicture struct {
	PTS    time.Duration
	Width  int
	Height int
	Format mediacodec.PixelFormat
	Image  *mediacodec.Image
	EOS    bool
}

// ExchangeStats holds buffer exchange counters.
type ExchangeStats struct {
	InputsAcquired  int
	InputsSubmitted int
	OutputsAcquired int
	OutputsReleased int
	Rendered        int
	InputTimeouts   int
	OutputTimeouts  int
	FormatChanges   int
	BuffersChanges  int
	DecodeErrors    int
}

// Exchange wraps a started Codec. Every handle returned by an acquire must
// be disposed of exactly once, by SubmitInput or ReleaseOutputSlot.
// Exchange methods may be called from multiple goroutines, although the
// pump drives it from one.
type Exchange struct {
	codec   mediacodec.Codec
	log     logging.Logger
	metrics *Metrics

	mu     sync.Mutex
	in     map[int]*InputHandle
	out    map[int]*OutputHandle
	format mediacodec.Format
	stats  ExchangeStats
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewExchange configures codec with f and starts it. If either step fails
// the codec is released and the returned error wraps
// ErrDecoderConfiguration.
func NewExchange(codec mediacodec.Codec, f mediacodec.Format, log logging.Logger) (*Exchange, error) {
	log.Debug("configuring decoder", "codec", codec.Name(), "mime", f.MIME, "width", f.Width, "height", f.Height)
	err := codec.Configure(f)
	if err != nil {
		codec.Release()
		return nil, fmt.Errorf("%w: could not configure %s: %v", ErrDecoderConfiguration, codec.Name(), err)
	}
	err = codec.Start()
	if err != nil {
		codec.Release()
		return nil, fmt.Errorf("%w: could not start %s: %v", ErrDecoderConfiguration, codec.Name(), err)
	}
	log.Info("decoder started", "codec", codec.Name())

	return &Exchange{
		codec:  codec,
		log:    log,
		in:     make(map[int]*InputHandle),
		out:    make(map[int]*OutputHandle),
		format: codec.OutputFormat(),
	}, nil
}

// setMetrics sets the metrics updated by e. m may be nil.
func (e *Exchange) setMetrics(m *Metrics) { e.metrics = m }

// AcquireInputSlot leases an empty input buffer, waiting at most timeout.
// If no buffer becomes free in that time ok is false and err is nil.
func (e *Exchange) AcquireInputSlot(timeout time.Duration) (h *InputHandle, ok bool, err error) {
	if timeout < 0 {
		return nil, false, ErrInfiniteTimeout
	}
	if e.isClosed() {
		return nil, false, ErrExchangeClosed
	}

	idx, err := e.codec.DequeueInputBuffer(timeout)
	switch {
	case errors.Is(err, mediacodec.ErrTryAgainLater):
		e.count(func(s *ExchangeStats) { s.InputTimeouts++ })
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("%w: could not dequeue input buffer: %v", ErrBufferPool, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	h = &InputHandle{Index: idx}
	e.in[idx] = h
	e.stats.InputsAcquired++

	buf, err := e.codec.InputBuffer(idx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: could not get input buffer %d: %v", ErrBufferPool, idx, err)
	}
	h.Buf = buf
	return h, true, nil
}

// SubmitInput returns h to the decoder holding the first n bytes of h.Buf,
// to be presented at pts. If eos is true the buffer marks the end of the
// stream. A decode failure reported by the codec is logged and counted,
// and is not returned.
func (e *Exchange) SubmitInput(h *InputHandle, n int, pts time.Duration, eos bool) error {
	if h == nil {
		return fmt.Errorf("%w: nil input handle", ErrBufferPool)
	}
	if n < 0 || n > len(h.Buf) {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrPayloadTooLarge, n, len(h.Buf))
	}

	e.mu.Lock()
	if h.done || e.in[h.Index] != h {
		e.mu.Unlock()
		return fmt.Errorf("%w: input buffer %d already submitted", ErrBufferPool, h.Index)
	}
	h.done = true
	delete(e.in, h.Index)
	e.stats.InputsSubmitted++
	e.mu.Unlock()

	var flags mediacodec.Flags
	if eos {
		flags |= mediacodec.FlagEndOfStream
	}
	err := e.codec.QueueInputBuffer(h.Index, 0, n, pts, flags)
	switch {
	case errors.Is(err, mediacodec.ErrDecode):
		e.count(func(s *ExchangeStats) { s.DecodeErrors++ })
		e.metrics.decodeError()
		e.log.Warning("decoder rejected input", "pts", pts, "size", n, "error", err.Error())
		return nil
	case err != nil:
		return fmt.Errorf("%w: could not queue input buffer %d: %v", ErrBufferPool, h.Index, err)
	}
	return nil
}

// AcquireOutputSlot leases a filled output buffer, waiting at most timeout.
// If no buffer is ready, ok is false and err is nil. Output format and
// output buffer change notifications are recorded and reported as no
// buffer being ready.
func (e *Exchange) AcquireOutputSlot(timeout time.Duration) (h *OutputHandle, pic *DecodedPicture, ok bool, err error) {
	if timeout < 0 {
		return nil, nil, false, ErrInfiniteTimeout
	}
	if e.isClosed() {
		return nil, nil, false, ErrExchangeClosed
	}

	idx, info, err := e.codec.DequeueOutputBuffer(timeout)
	switch {
	case errors.Is(err, mediacodec.ErrTryAgainLater):
		e.count(func(s *ExchangeStats) { s.OutputTimeouts++ })
		return nil, nil, false, nil
	case errors.Is(err, mediacodec.ErrOutputFormatChanged):
		f := e.codec.OutputFormat()
		e.mu.Lock()
		e.format = f
		e.stats.FormatChanges++
		e.mu.Unlock()
		e.metrics.formatChange()
		e.log.Info("decoder output format changed", "width", f.Width, "height", f.Height, "format", f.ColorFormat.String())
		return nil, nil, false, nil
	case errors.Is(err, mediacodec.ErrOutputBuffersChanged):
		e.count(func(s *ExchangeStats) { s.BuffersChanges++ })
		e.log.Info("decoder output buffers changed")
		return nil, nil, false, nil
	case err != nil:
		return nil, nil, false, fmt.Errorf("%w: could not dequeue output buffer: %v", ErrBufferPool, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	h = &OutputHandle{Index: idx, Info: info}
	e.out[idx] = h
	e.stats.OutputsAcquired++

	// The final picture may share its buffer with the end of stream flag.
	pic = &DecodedPicture{PTS: info.PTS, EOS: info.Flags&mediacodec.FlagEndOfStream != 0}
	if pic.EOS && info.Size == 0 {
		return h, pic, true, nil
	}
	img, err := e.codec.OutputImage(idx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: could not get output image %d: %v", ErrBufferPool, idx, err)
	}
	if img == nil {
		return nil, nil, false, fmt.Errorf("%w: output buffer %d has no image", ErrBufferPool, idx)
	}
	pic.Image = img
	pic.Width, pic.Height, pic.Format = img.Width, img.Height, img.Format
	return h, pic, true, nil
}

// ReleaseOutputSlot returns h to the decoder. render reports whether the
// picture was presented.
func (e *Exchange) ReleaseOutputSlot(h *OutputHandle, render bool) error {
	if h == nil {
		return fmt.Errorf("%w: nil output handle", ErrBufferPool)
	}

	e.mu.Lock()
	if h.done || e.out[h.Index] != h {
		e.mu.Unlock()
		return fmt.Errorf("%w: output buffer %d already released", ErrBufferPool, h.Index)
	}
	h.done = true
	delete(e.out, h.Index)
	e.stats.OutputsReleased++
	if render {
		e.stats.Rendered++
	}
	e.mu.Unlock()

	err := e.codec.ReleaseOutputBuffer(h.Index, render)
	if err != nil {
		return fmt.Errorf("%w: could not release output buffer %d: %v", ErrBufferPool, h.Index, err)
	}
	return nil
}

// Stats returns a copy of the exchange counters.
func (e *Exchange) Stats() ExchangeStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Outstanding returns the number of input and output handles currently
// leased.
func (e *Exchange) Outstanding() (in, out int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.in), len(e.out)
}

// OutputFormat returns the most recently reported decoder output format.
func (e *Exchange) OutputFormat() mediacodec.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

func (e *Exchange) count(f func(*ExchangeStats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

func (e *Exchange) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close returns any outstanding handles to the decoder, then stops and
// releases it. If handles were outstanding the returned error wraps
// ErrBufferLeak. Only the first call has any effect; later calls return the
// same error.
func (e *Exchange) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		in, out := e.in, e.out
		e.in, e.out = map[int]*InputHandle{}, map[int]*OutputHandle{}
		e.mu.Unlock()

		var errs []error
		if n := len(in) + len(out); n != 0 {
			e.log.Warning("returning outstanding decoder buffers", "inputs", len(in), "outputs", len(out))
			errs = append(errs, fmt.Errorf("%w: %d input and %d output buffers", ErrBufferLeak, len(in), len(out)))
		}
		for idx, h := range in {
			h.done = true
			err := e.codec.QueueInputBuffer(idx, 0, 0, 0, 0)
			if err != nil {
				errs = append(errs, fmt.Errorf("could not return input buffer %d: %w", idx, err))
			}
		}
		for idx, h := range out {
			h.done = true
			err := e.codec.ReleaseOutputBuffer(idx, false)
			if err != nil {
				errs = append(errs, fmt.Errorf("could not return output buffer %d: %w", idx, err))
			}
		}

		e.log.Debug("stopping decoder")
		err := e.codec.Stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("could not stop decoder: %w", err))
		}
		err = e.codec.Release()
		if err != nil {
			errs = append(errs, fmt.Errorf("could not release decoder: %w", err))
		}
		e.log.Info("decoder released")
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
