/*
NAME
  slots.go

DESCRIPTION
  slots.go provides slotCodec, a Codec implementation that manages bounded
  input and output buffer pools on behalf of a decoding backend.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mediacodec

import (
	"fmt"
	"sync"
	"time"
)

// frame is a decoded picture, or end of stream marker, awaiting an output
// buffer.
type frame struct {
	img   *Image
	pts   time.Duration
	flags Flags
}

// backend decodes the data queued to a slotCodec.
type backend interface {
	// decode decodes one access unit and returns any pictures now available.
	decode(data []byte, pts time.Duration, flags Flags) ([]frame, error)

	// flush returns pictures still held by the backend at end of stream.
	flush() ([]frame, error)

	close() error
}

type codecState int

const (
	stateUninitialized codecState = iota
	stateConfigured
	stateExecuting
	stateReleased
)

// job is a queued input buffer and the frames it produced that have not yet
// been placed in output buffers. The input buffer is held until they are.
type job struct {
	in     int
	frames []frame
}

// slotCodec implements Codec over a backend. Input buffers are held until
// the frames decoded from them are placed in output buffers, so a client
// that does not release output buffers eventually finds no input buffers.
type slotCodec struct {
	name       string
	newBackend func(Format) (backend, error)
	nIn, nOut  int
	inCap      int

	mu      sync.Mutex
	changed chan struct{} // Closed and replaced on every state change.

	state     codecState
	be        backend
	format    Format
	outFormat Format

	inBufs  [][]byte
	freeIn  []int
	heldIn  map[int]bool
	jobs    []*job
	eos     bool
	outImg  []*Image
	outInfo []BufferInfo
	freeOut []int
	ready   []int
	heldOut map[int]bool
}

func newSlotCodec(name string, nIn, nOut, inCap int, newBackend func(Format) (backend, error)) *slotCodec {
	return &slotCodec{
		name:       name,
		newBackend: newBackend,
		nIn:        nIn,
		nOut:       nOut,
		inCap:      inCap,
		changed:    make(chan struct{}),
	}
}

// Name implements Codec.
func (c *slotCodec) Name() string { return c.name }

// Configure implements Codec.
func (c *slotCodec) Configure(f Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateUninitialized && c.state != stateConfigured {
		return fmt.Errorf("cannot configure in state %d: %w", c.state, ErrInvalidState)
	}
	if c.be != nil {
		c.be.close()
		c.be = nil
	}
	be, err := c.newBackend(f)
	if err != nil {
		return err
	}
	c.be = be
	c.format = f
	c.outFormat = f
	c.state = stateConfigured
	return nil
}

// Start implements Codec.
func (c *slotCodec) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConfigured {
		return fmt.Errorf("cannot start in state %d: %w", c.state, ErrInvalidState)
	}
	c.reset()
	c.inBufs = make([][]byte, c.nIn)
	for i := range c.inBufs {
		c.inBufs[i] = make([]byte, c.inCap)
		c.freeIn = append(c.freeIn, i)
	}
	c.outImg = make([]*Image, c.nOut)
	c.outInfo = make([]BufferInfo, c.nOut)
	for i := 0; i < c.nOut; i++ {
		c.freeOut = append(c.freeOut, i)
	}
	c.state = stateExecuting
	c.broadcast()
	return nil
}

// reset clears the buffer pools.
func (c *slotCodec) reset() {
	c.inBufs = nil
	c.freeIn = nil
	c.heldIn = make(map[int]bool)
	c.jobs = nil
	c.eos = false
	c.outImg = nil
	c.outInfo = nil
	c.freeOut = nil
	c.ready = nil
	c.heldOut = make(map[int]bool)
	c.outFormat = c.format
}

// Stop implements Codec. Buffers held by the client become invalid.
func (c *slotCodec) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecuting {
		return fmt.Errorf("cannot stop in state %d: %w", c.state, ErrInvalidState)
	}
	c.reset()
	c.state = stateConfigured
	c.broadcast()
	return nil
}

// Release implements Codec. It may be called in any state and more than once.
func (c *slotCodec) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateReleased {
		return nil
	}
	c.reset()
	c.state = stateReleased
	c.broadcast()
	if c.be == nil {
		return nil
	}
	err := c.be.close()
	c.be = nil
	return err
}

// broadcast wakes all waiters. c.mu must be held.
func (c *slotCodec) broadcast() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// wait calls try, with c.mu held, until it reports success or an error, or
// until timeout has passed.
func (c *slotCodec) wait(timeout time.Duration, try func() (bool, error)) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		c.mu.Lock()
		ok, err := try()
		ch := c.changed
		c.mu.Unlock()
		if ok || err != nil {
			return err
		}

		switch {
		case timeout == 0:
			return ErrTryAgainLater
		case timeout < 0:
			<-ch
		default:
			d := time.Until(deadline)
			if d <= 0 {
				return ErrTryAgainLater
			}
			t := time.NewTimer(d)
			select {
			case <-ch:
			case <-t.C:
			}
			t.Stop()
		}
	}
}

// DequeueInputBuffer implements Codec.
func (c *slotCodec) DequeueInputBuffer(timeout time.Duration) (int, error) {
	idx := -1
	err := c.wait(timeout, func() (bool, error) {
		if c.state != stateExecuting {
			return false, ErrInvalidState
		}
		if len(c.freeIn) == 0 {
			return false, nil
		}
		idx = c.freeIn[0]
		c.freeIn = c.freeIn[1:]
		c.heldIn[idx] = true
		return true, nil
	})
	if err != nil {
		return -1, err
	}
	return idx, nil
}

// InputBuffer implements Codec.
func (c *slotCodec) InputBuffer(idx int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecuting {
		return nil, ErrInvalidState
	}
	if !c.heldIn[idx] {
		return nil, fmt.Errorf("input buffer %d: %w", idx, ErrInvalidIndex)
	}
	return c.inBufs[idx], nil
}

// QueueInputBuffer implements Codec. The data is decoded before return.
func (c *slotCodec) QueueInputBuffer(idx, offset, size int, pts time.Duration, flags Flags) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecuting {
		return ErrInvalidState
	}
	if !c.heldIn[idx] {
		return fmt.Errorf("input buffer %d: %w", idx, ErrInvalidIndex)
	}
	if offset < 0 || size < 0 || offset+size > c.inCap {
		return fmt.Errorf("range [%d,%d) outside input buffer of %d bytes", offset, offset+size, c.inCap)
	}
	if c.eos {
		return fmt.Errorf("input queued after end of stream: %w", ErrInvalidState)
	}
	delete(c.heldIn, idx)
	defer c.broadcast()

	var (
		frames []frame
		err    error
	)
	if size > 0 {
		frames, err = c.be.decode(c.inBufs[idx][offset:offset+size], pts, flags)
		if err != nil {
			c.freeIn = append(c.freeIn, idx)
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	if flags&FlagEndOfStream != 0 {
		rest, err := c.be.flush()
		if err != nil {
			c.freeIn = append(c.freeIn, idx)
			return fmt.Errorf("%w: could not flush: %v", ErrDecode, err)
		}
		frames = append(frames, rest...)
		frames = append(frames, frame{pts: pts, flags: FlagEndOfStream})
		c.eos = true
	}

	c.jobs = append(c.jobs, &job{in: idx, frames: frames})
	c.process()
	return nil
}

// process moves decoded frames into free output buffers in decode order, and
// returns input buffers whose frames have all been placed. c.mu must be held.
func (c *slotCodec) process() {
	for len(c.jobs) != 0 {
		j := c.jobs[0]
		for len(j.frames) != 0 && len(c.freeOut) != 0 {
			o := c.freeOut[0]
			c.freeOut = c.freeOut[1:]
			f := j.frames[0]
			j.frames = j.frames[1:]
			c.outImg[o] = f.img
			c.outInfo[o] = BufferInfo{Size: imageSize(f.img), PTS: f.pts, Flags: f.flags}
			c.ready = append(c.ready, o)
		}
		if len(j.frames) != 0 {
			return
		}
		c.freeIn = append(c.freeIn, j.in)
		c.jobs = c.jobs[1:]
	}
}

// DequeueOutputBuffer implements Codec. ErrOutputFormatChanged is returned,
// and no buffer dequeued, when the next ready picture differs in size or
// pixel format from the last reported output format.
func (c *slotCodec) DequeueOutputBuffer(timeout time.Duration) (int, BufferInfo, error) {
	idx := -1
	var info BufferInfo
	err := c.wait(timeout, func() (bool, error) {
		if c.state != stateExecuting {
			return false, ErrInvalidState
		}
		if len(c.ready) == 0 {
			return false, nil
		}
		o := c.ready[0]
		if img := c.outImg[o]; img != nil && c.formatDiffers(img) {
			c.outFormat.Width = img.Width
			c.outFormat.Height = img.Height
			c.outFormat.ColorFormat = img.Format
			return false, ErrOutputFormatChanged
		}
		c.ready = c.ready[1:]
		c.heldOut[o] = true
		idx, info = o, c.outInfo[o]
		return true, nil
	})
	if err != nil {
		return -1, BufferInfo{}, err
	}
	return idx, info, nil
}

func (c *slotCodec) formatDiffers(img *Image) bool {
	return img.Width != c.outFormat.Width || img.Height != c.outFormat.Height || img.Format != c.outFormat.ColorFormat
}

// OutputImage implements Codec. The image of an end of stream buffer is nil.
func (c *slotCodec) OutputImage(idx int) (*Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecuting {
		return nil, ErrInvalidState
	}
	if !c.heldOut[idx] {
		return nil, fmt.Errorf("output buffer %d: %w", idx, ErrInvalidIndex)
	}
	return c.outImg[idx], nil
}

// ReleaseOutputBuffer implements Codec. Rendering is done by the client, so
// render only has meaning to backends with their own surface.
func (c *slotCodec) ReleaseOutputBuffer(idx int, render bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecuting {
		return ErrInvalidState
	}
	if !c.heldOut[idx] {
		return fmt.Errorf("output buffer %d: %w", idx, ErrInvalidIndex)
	}
	delete(c.heldOut, idx)
	c.outImg[idx] = nil
	c.freeOut = append(c.freeOut, idx)
	c.process()
	c.broadcast()
	return nil
}

// OutputFormat implements Codec.
func (c *slotCodec) OutputFormat() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outFormat
}

// imageSize returns the number of bytes held by img's planes.
func imageSize(img *Image) int {
	if img == nil {
		return 0
	}
	var n int
	for _, p := range img.Planes {
		n += len(p.Data)
	}
	return n
}
