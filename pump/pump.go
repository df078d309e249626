/*
DESCRIPTION
  pump.go provides Pump, which pulls access units from a demuxer, feeds
  them to a decoder and presents the decoded pictures.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pump provides an API for playing compressed video through a
// buffer exchanging decoder.
package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/hevcplay/codec/h265"
	"github.com/ausocean/hevcplay/codec/h265/h265dec"
	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/codec/pixconv"
	"github.com/ausocean/hevcplay/container/demux"
	"github.com/ausocean/hevcplay/device/surface"
	"github.com/ausocean/hevcplay/pump/config"
)

// Misc consts.
const (
	progressInterval = 30  // Access units between progress logs.
	maxIntervals     = 300 // Output intervals kept for statistics.
)

// ErrState is returned by Run and Start when the pump has already run.
var ErrState = errors.New("pump already started")

// State is the state of a Pump.
type State int32

// Pump states. A pump moves forward through these only.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SliceReport describes a slice segment seen in a submitted access unit.
type SliceReport struct {
	PTS     time.Duration
	NALType h265dec.NALType
	Type    h265dec.SliceType
}

// Stats holds pump counters.
type Stats struct {
	Exchange ExchangeStats

	AccessUnits int // Video access units read from the demuxer.
	Submitted   int // Access units submitted to the decoder.
	Dropped     int // Access units of other streams.
	Stalls      int // Iterations with no free input buffer.
	Slices      map[h265dec.SliceType]int
	ParseErrors int
	Presented   int
	Skipped     int // Pictures not presented because the surface was invalid.
	Rebuilds    int // Conversion context rebuilds.

	// Mean and standard deviation of the interval between decoded pictures.
	IntervalMean   time.Duration
	IntervalStdDev time.Duration
}

// Option is a functional option for New.
type Option func(*Pump) error

// WithMetrics sets the Prometheus metrics updated by the pump.
func WithMetrics(m *Metrics) Option {
	return func(p *Pump) error {
		p.metrics = m
		return nil
	}
}

// OnSlice sets a function called for every slice segment parsed from a
// submitted access unit. It is called on the pump's goroutine.
func OnSlice(fn func(SliceReport)) Option {
	return func(p *Pump) error {
		if fn == nil {
			return errors.New("nil slice callback")
		}
		p.onSlice = fn
		return nil
	}
}

// Pump plays video from a demuxer through a decoder onto a surface. A Pump
// runs once; Run, or Start then Wait, return after the end of the stream
// has been drained from the decoder, after Stop, or on a fatal error.
type Pump struct {
	cfg     config.Config
	demux   demux.Demuxer
	codec   mediacodec.Codec
	surface surface.Surface
	metrics *Metrics
	onSlice func(SliceReport)

	// Set up by open.
	ex      *Exchange
	conv    *pixconv.Converter
	video   int
	inspect bool
	closer  *astikit.Closer

	state     atomic.Int32
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	err       error
	closeOnce sync.Once
	closeErrs []error
	closeErr  error

	// Loop state, owned by the pump goroutine.
	pending    *demux.AccessUnit
	lastPTS    time.Duration
	eosSent    bool
	emptyPolls uint
	origin     time.Time
	originPTS  time.Duration
	lastOut    time.Time

	mu        sync.Mutex
	stats     Stats
	intervals []float64
}

// New returns a new Pump using the given demuxer, which must not yet be
// open, codec and surface, or an error if cfg is unusable. The pump takes
// ownership of all three and closes them when it stops.
func New(cfg config.Config, d demux.Demuxer, codec mediacodec.Codec, s surface.Surface, options ...Option) (*Pump, error) {
	if cfg.Logger == nil {
		return nil, errors.New("config has no logger")
	}
	if d == nil || codec == nil || s == nil {
		return nil, errors.New("demuxer, codec and surface must all be set")
	}
	cfg.Logger.Debug("validating config")
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("config struct is bad: %w", err)
	}
	cfg.Logger.SetLevel(cfg.LogLevel)

	p := &Pump{
		cfg:     cfg,
		demux:   d,
		codec:   codec,
		surface: s,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		closer:  astikit.NewCloser(),
		stats:   Stats{Slices: make(map[h265dec.SliceType]int)},
	}
	for i, o := range options {
		err := o(p)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	return p, nil
}

// FromConfig returns a new Pump with demuxer, codec and surface chosen by
// cfg.
func FromConfig(cfg config.Config, options ...Option) (*Pump, error) {
	if cfg.Logger == nil {
		return nil, errors.New("config has no logger")
	}
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("config struct is bad: %w", err)
	}

	d, err := demux.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create demuxer: %w", err)
	}

	if !mediacodec.Supported(cfg.Decoder, cfg.MIME) {
		cfg.Logger.Warning("decoder may not support mime type", "decoder", cfg.Decoder, "mime", cfg.MIME)
	}
	codec, err := mediacodec.New(cfg.Decoder, mediacodec.Pools{
		InputSlots:    int(cfg.InputSlots),
		OutputSlots:   int(cfg.OutputSlots),
		InputCapacity: int(cfg.InputCapacity),
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("could not create decoder: %w", err)
	}

	s, err := surface.New(cfg.Surface, cfg.OutputPath)
	if err != nil {
		d.Close()
		codec.Release()
		return nil, fmt.Errorf("could not create surface: %w", err)
	}

	p, err := New(cfg, d, codec, s, options...)
	if err != nil {
		d.Close()
		codec.Release()
		s.Close()
		return nil, err
	}
	return p, nil
}

// State returns the current state of the pump.
func (p *Pump) State() State { return State(p.state.Load()) }

func (p *Pump) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.cfg.Logger.Debug("pump state changed", "from", old.String(), "to", s.String())
	}
	p.metrics.setState(s)
}

// Stats returns a copy of the pump counters.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	s.Slices = make(map[h265dec.SliceType]int, len(p.stats.Slices))
	for k, v := range p.stats.Slices {
		s.Slices[k] = v
	}
	if len(p.intervals) > 1 {
		mean, std := stat.MeanStdDev(p.intervals, nil)
		s.IntervalMean = time.Duration(mean * float64(time.Second))
		s.IntervalStdDev = time.Duration(std * float64(time.Second))
	}
	ex := p.ex
	p.mu.Unlock()

	if ex != nil {
		s.Exchange = ex.Stats()
	}
	return s
}

func (p *Pump) count(f func(*Stats)) {
	p.mu.Lock()
	f(&p.stats)
	p.mu.Unlock()
}

// Start runs the pump on a new goroutine. Use Wait to obtain the result.
func (p *Pump) Start() error {
	if p.State() != StateIdle {
		return ErrState
	}
	go p.Run(context.Background())
	return nil
}

// Stop asks the pump to stop at the end of its current iteration. Pending
// decoder buffers are returned before the decoder is torn down.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Wait blocks until the pump has stopped and returns the error Run returned.
func (p *Pump) Wait() error {
	<-p.done
	return p.err
}

// Done returns a channel that is closed once the pump has stopped.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Run plays the input to completion, until ctx is cancelled or Stop is
// called. Cancellation is not an error. Resources are released exactly
// once before Run returns.
func (p *Pump) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrState
	}
	p.metrics.setState(StateRunning)
	p.cfg.Logger.Info("pump running", "input", p.cfg.InputPath)

	err := p.run(ctx)
	if err != nil {
		p.cfg.Logger.Error("pump failed", "error", err.Error())
	}
	cerr := p.teardown()
	if cerr != nil {
		p.cfg.Logger.Error("teardown failed", "error", cerr.Error())
	}
	p.setState(StateStopped)

	p.err = errors.Join(err, cerr)
	close(p.done)
	s := p.Stats()
	p.cfg.Logger.Info("pump stopped", "submitted", s.Submitted, "presented", s.Presented, "skipped", s.Skipped, "parseErrors", s.ParseErrors)
	return p.err
}

// run is the pump loop.
func (p *Pump) run(ctx context.Context) error {
	err := p.open()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			p.cfg.Logger.Info("context cancelled, stopping pump")
			return nil
		case <-p.stop:
			p.cfg.Logger.Info("stop requested, stopping pump")
			return nil
		default:
		}

		switch p.State() {
		case StateRunning:
			err = p.step(ctx)
		case StateDraining:
			err = p.drain(ctx)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// open opens the demuxer, then creates the exchange and converter. Each
// resource is added to the closer as it is acquired.
func (p *Pump) open() error {
	p.addCloser("surface", p.surface.Close)
	p.addCloser("demuxer", p.demux.Close)
	codecOwned := true
	defer func() {
		if codecOwned {
			p.codec.Release()
		}
	}()

	streams, err := p.demux.Open(p.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("could not open input: %w", err)
	}
	vs, ok := streams.Video()
	if !ok {
		return fmt.Errorf("no video stream in input: %w", demux.ErrNoStreams)
	}
	p.video = vs.Index
	p.cfg.Logger.Info("input opened", "streams", len(streams), "video", vs.Index, "mime", vs.MIME)

	f := mediacodec.Format{
		MIME:           vs.MIME,
		Width:          int(p.cfg.Width),
		Height:         int(p.cfg.Height),
		FrameRate:      int(p.cfg.FrameRate),
		BitRate:        int(p.cfg.Bitrate),
		IFrameInterval: int(p.cfg.IFrameInterval),
		CodecConfig:    vs.Config,
	}
	if vs.Width > 0 && vs.Height > 0 {
		f.Width, f.Height = vs.Width, vs.Height
	}
	p.inspect = f.MIME == mediacodec.MIMEHEVC && p.cfg.ChunkSize == 0

	codecOwned = false
	ex, err := NewExchange(p.codec, f, p.cfg.Logger)
	if err != nil {
		return err
	}
	ex.setMetrics(p.metrics)
	p.mu.Lock()
	p.ex = ex
	p.mu.Unlock()
	p.addCloser("decoder", p.ex.Close)

	p.conv, err = pixconv.NewConverter(p.surface.Format())
	if err != nil {
		return fmt.Errorf("could not create pixel converter: %w", err)
	}
	p.addCloser("converter", p.conv.Close)
	return nil
}

// teardown releases the converter, decoder, demuxer and surface, in that
// order, once.
func (p *Pump) teardown() error {
	p.closeOnce.Do(func() {
		p.cfg.Logger.Debug("tearing down pump")
		p.pending = nil
		err := p.closer.Close()
		if err != nil {
			p.closeErrs = append(p.closeErrs, err)
		}
		p.closeErr = errors.Join(p.closeErrs...)
	})
	return p.closeErr
}

// addCloser adds f to the resources released by teardown, most recently
// added first.
func (p *Pump) addCloser(name string, f func() error) {
	p.closer.Add(func() {
		err := f()
		if err != nil {
			p.closeErrs = append(p.closeErrs, fmt.Errorf("could not close %s: %w", name, err))
		}
	})
}

// step runs one iteration in the running state.
func (p *Pump) step(ctx context.Context) error {
	if p.pending == nil {
		au, err := p.demux.NextAccessUnit()
		if err == io.EOF {
			p.cfg.Logger.Info("end of input, draining decoder")
			p.setState(StateDraining)
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read access unit: %w", err)
		}
		if au.StreamIndex != p.video {
			p.count(func(s *Stats) { s.Dropped++ })
			p.metrics.drop()
			return nil
		}
		p.count(func(s *Stats) { s.AccessUnits++ })
		if p.inspect {
			p.inspectSlices(au)
		}
		p.pending = au
	}

	err := p.feed()
	if err != nil {
		return err
	}
	got, err := p.poll(ctx)
	if got == pollEOS {
		p.cfg.Logger.Warning("decoder signalled end of stream before end of input")
	}
	return err
}

// feed submits the pending access unit if an input buffer is free. If none
// is, the access unit stays pending.
func (p *Pump) feed() error {
	h, ok, err := p.ex.AcquireInputSlot(p.cfg.DequeueTimeout)
	if err != nil {
		return err
	}
	if !ok {
		p.count(func(s *Stats) { s.Stalls++ })
		return nil
	}

	au := p.pending
	if len(au.Data) > h.Capacity() {
		serr := p.ex.SubmitInput(h, 0, au.PTS, false)
		return errors.Join(fmt.Errorf("%w: access unit of %d bytes, input buffer of %d", ErrPayloadTooLarge, len(au.Data), h.Capacity()), serr)
	}
	n := copy(h.Buf, au.Data)
	err = p.ex.SubmitInput(h, n, au.PTS, false)
	if err != nil {
		return err
	}
	p.pending = nil
	p.lastPTS = au.PTS
	p.metrics.accessUnit()

	var submitted int
	p.count(func(s *Stats) { s.Submitted++; submitted = s.Submitted })
	if submitted%progressInterval == 0 {
		p.cfg.Logger.Info("progress", "submitted", submitted, "pts", au.PTS)
	}
	return nil
}

// drain runs one iteration in the draining state.
func (p *Pump) drain(ctx context.Context) error {
	if !p.eosSent {
		h, ok, err := p.ex.AcquireInputSlot(p.cfg.DequeueTimeout)
		if err != nil {
			return err
		}
		if ok {
			err = p.ex.SubmitInput(h, 0, p.lastPTS, true)
			if err != nil {
				return err
			}
			p.eosSent = true
			p.cfg.Logger.Debug("end of stream submitted")
		}
	}

	got, err := p.poll(ctx)
	if err != nil {
		return err
	}
	switch got {
	case pollEOS:
		p.cfg.Logger.Info("decoder drained")
		p.setState(StateStopped)
	case pollEmpty:
		p.emptyPolls++
		if p.emptyPolls >= p.cfg.DrainPolls {
			p.cfg.Logger.Warning("gave up waiting for end of stream", "polls", p.emptyPolls, "eosSent", p.eosSent)
			p.setState(StateStopped)
		}
	default:
		p.emptyPolls = 0
	}
	return nil
}

type pollResult int

const (
	pollEmpty pollResult = iota
	pollPicture
	pollEOS
)

// poll takes at most one decoded picture from the decoder, presents it and
// releases its buffer.
func (p *Pump) poll(ctx context.Context) (pollResult, error) {
	h, pic, ok, err := p.ex.AcquireOutputSlot(p.cfg.DequeueTimeout)
	if err != nil {
		return pollEmpty, err
	}
	if !ok {
		return pollEmpty, nil
	}
	if pic.Image == nil {
		return pollEOS, p.ex.ReleaseOutputSlot(h, false)
	}
	res := pollPicture
	if pic.EOS {
		res = pollEOS
	}
	p.interval()

	if !p.surface.Valid() {
		p.count(func(s *Stats) { s.Skipped++ })
		p.metrics.skip()
		return res, p.ex.ReleaseOutputSlot(h, false)
	}

	frame, err := p.conv.Convert(pic.Image)
	if err != nil {
		rerr := p.ex.ReleaseOutputSlot(h, false)
		return res, errors.Join(fmt.Errorf("could not convert picture at %v: %w", pic.PTS, err), rerr)
	}
	if !p.pace(ctx, pic.PTS) {
		return res, p.ex.ReleaseOutputSlot(h, false)
	}
	err = p.surface.Present(frame, pic.PTS)
	if err != nil {
		rerr := p.ex.ReleaseOutputSlot(h, false)
		return res, errors.Join(fmt.Errorf("could not present picture at %v: %w", pic.PTS, err), rerr)
	}
	p.count(func(s *Stats) { s.Presented++; s.Rebuilds = p.conv.Rebuilds() })
	p.metrics.present()
	return res, p.ex.ReleaseOutputSlot(h, true)
}

// pace waits, if pacing is enabled, until the wall clock time at which pts
// should be presented. It returns false if interrupted by ctx or Stop.
func (p *Pump) pace(ctx context.Context, pts time.Duration) bool {
	if !p.cfg.Pace {
		return true
	}
	now := time.Now()
	if p.origin.IsZero() {
		p.origin, p.originPTS = now, pts
		return true
	}
	d := p.origin.Add(pts - p.originPTS).Sub(now)
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-p.stop:
		return false
	}
}

// interval records the time since the previous decoded picture.
func (p *Pump) interval() {
	now := time.Now()
	if !p.lastOut.IsZero() {
		p.mu.Lock()
		p.intervals = append(p.intervals, now.Sub(p.lastOut).Seconds())
		if len(p.intervals) > maxIntervals {
			p.intervals = p.intervals[len(p.intervals)-maxIntervals:]
		}
		p.mu.Unlock()
	}
	p.lastOut = now
}

// inspectSlices parses the slice type of each slice segment in au. Failures
// are logged and counted; they never prevent submission of au.
func (p *Pump) inspectSlices(au *demux.AccessUnit) {
	nalus, err := h265.SplitNALUs(au.Data)
	if err != nil {
		p.parseError(au.PTS, "could not split access unit", err)
		return
	}
	for _, nalu := range nalus {
		hdr, err := h265dec.ParseHeader(nalu)
		if err != nil {
			p.parseError(au.PTS, "could not parse NAL unit header", err)
			continue
		}
		if !hdr.Type.IsSlice() {
			continue
		}
		t, err := h265dec.ParseSliceType(h265dec.UnescapeRBSP(nalu, h265dec.HeaderPrefixSize))
		if err != nil {
			p.parseError(au.PTS, "could not parse slice header", err, "nalType", hdr.Type.String())
			continue
		}

		p.count(func(s *Stats) { s.Slices[t]++ })
		p.metrics.slice(t)
		p.cfg.Logger.Debug("slice", "pts", au.PTS, "nalType", hdr.Type.String(), "sliceType", t.String())
		if p.onSlice != nil {
			p.onSlice(SliceReport{PTS: au.PTS, NALType: hdr.Type, Type: t})
		}
	}
}

func (p *Pump) parseError(pts time.Duration, msg string, err error, params ...interface{}) {
	p.count(func(s *Stats) { s.ParseErrors++ })
	p.metrics.parseError()
	params = append([]interface{}{"pts", pts, "error", err.Error()}, params...)
	p.cfg.Logger.Warning(msg, params...)
}

// SetLogLevel changes the logging level of a running pump.
func (p *Pump) SetLogLevel(l int8) {
	p.cfg.Logger.SetLevel(l)
}
