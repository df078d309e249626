/*
DESCRIPTION
  pump_test.go provides testing for the pump.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pump

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ausocean/hevcplay/codec/h265/h265dec"
	"github.com/ausocean/hevcplay/codec/mediacodec"
	"github.com/ausocean/hevcplay/container/demux"
	"github.com/ausocean/hevcplay/device/surface"
	"github.com/ausocean/hevcplay/pump/config"
)

// Test access units, start codes included.
var (
	// IDR_W_RADL, I slice.
	iAU = []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xd8}

	// TRAIL_R, truncated before slice_pic_parameter_set_id ends.
	truncatedAU = []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x80}

	// Truncated within the NAL unit header.
	truncatedHeaderAU = []byte{0x00, 0x00, 0x00, 0x01, 0x02}

	// TRAIL_R, P slice.
	pAU = []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0xe0}

	// TRAIL_R, B slice.
	bAU = []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0xd0}
)

const frame = 40 * time.Millisecond

// memDemuxer provides access units from memory. If loop is true the access
// units are repeated indefinitely.
type memDemuxer struct {
	streams demux.StreamSet
	aus     []demux.AccessUnit
	loop    bool

	mu     sync.Mutex
	i      int
	opened bool
	closed int
}

func newMemDemuxer(aus ...[]byte) *memDemuxer {
	d := &memDemuxer{streams: demux.StreamSet{{Index: 0, MIME: mediacodec.MIMEHEVC}}}
	for i, au := range aus {
		d.aus = append(d.aus, demux.AccessUnit{Data: au, PTS: time.Duration(i) * frame})
	}
	return d
}

func (d *memDemuxer) Open(uri string) (demux.StreamSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return d.streams, nil
}

func (d *memDemuxer) NextAccessUnit() (*demux.AccessUnit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened || d.closed != 0 {
		return nil, demux.ErrNotOpen
	}
	if d.i >= len(d.aus) {
		if !d.loop || len(d.aus) == 0 {
			return nil, io.EOF
		}
	}
	au := d.aus[d.i%len(d.aus)]
	au.PTS = time.Duration(d.i) * frame
	au.Data = append([]byte(nil), au.Data...)
	d.i++
	return &au, nil
}

func (d *memDemuxer) VideoStreamIndex() (int, bool) {
	v, ok := d.streams.Video()
	return v.Index, ok
}

func (d *memDemuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *memDemuxer) closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// invalidSurface is a surface that can never present.
type invalidSurface struct{ *surface.Null }

func (invalidSurface) Valid() bool { return false }

// noEOSCodec drops the end of stream flag from queued input buffers.
type noEOSCodec struct{ mediacodec.Codec }

func (c noEOSCodec) QueueInputBuffer(idx, offset, size int, pts time.Duration, flags mediacodec.Flags) error {
	return c.Codec.QueueInputBuffer(idx, offset, size, pts, flags&^mediacodec.FlagEndOfStream)
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Logger:         (*logging.TestLogger)(t),
		LogLevel:       logging.Debug,
		InputPath:      "memory",
		Width:          64,
		Height:         32,
		FrameRate:      25,
		DequeueTimeout: 5 * time.Millisecond,
		DrainPolls:     10,
	}
}

func newPump(t *testing.T, cfg config.Config, d demux.Demuxer, c mediacodec.Codec, s surface.Surface, options ...Option) *Pump {
	t.Helper()
	p, err := New(cfg, d, c, s, options...)
	if err != nil {
		t.Fatalf("could not create pump: %v", err)
	}
	return p
}

func runPump(t *testing.T, p *Pump, timeout time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Run(ctx)
}

func TestPumpEndToEnd(t *testing.T) {
	d := newMemDemuxer(iAU, truncatedAU, pAU)
	c := newEmulator(t)
	s := surface.NewNull()

	var reports []SliceReport
	p := newPump(t, testConfig(t), d, c, s, OnSlice(func(r SliceReport) { reports = append(reports, r) }))

	err := runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("unexpected state: got %v, want %v", p.State(), StateStopped)
	}

	wantReports := []SliceReport{
		{PTS: 0, NALType: h265dec.NALTypeIDRWRADL, Type: h265dec.SliceTypeI},
		{PTS: 2 * frame, NALType: h265dec.NALTypeTrailR, Type: h265dec.SliceTypeP},
	}
	if diff := cmp.Diff(wantReports, reports); diff != "" {
		t.Errorf("unexpected slice reports (-want +got):\n%s", diff)
	}

	st := p.Stats()
	if st.AccessUnits != 3 || st.Submitted != 3 {
		t.Errorf("all access units should be submitted: read %d, submitted %d", st.AccessUnits, st.Submitted)
	}
	if st.ParseErrors != 1 {
		t.Errorf("unexpected parse errors: got %d, want 1", st.ParseErrors)
	}
	wantSlices := map[h265dec.SliceType]int{h265dec.SliceTypeI: 1, h265dec.SliceTypeP: 1}
	if diff := cmp.Diff(wantSlices, st.Slices); diff != "" {
		t.Errorf("unexpected slice counts (-want +got):\n%s", diff)
	}
	if st.Presented != 3 {
		t.Errorf("unexpected presented count: got %d, want 3", st.Presented)
	}
	if st.Exchange.InputsSubmitted != 4 {
		t.Errorf("expected three access units and end of stream, got %d submissions", st.Exchange.InputsSubmitted)
	}

	n, last := s.Presented()
	if n != 3 || last != 2*frame {
		t.Errorf("unexpected surface state: %d frames, last at %v", n, last)
	}
	if d.closes() != 1 {
		t.Errorf("demuxer closed %d times, want once", d.closes())
	}
	c.check(true)

	err = p.Run(context.Background())
	if !errors.Is(err, ErrState) {
		t.Errorf("unexpected error from second Run: got %v, want %v", err, ErrState)
	}
}

func TestPumpTruncatedAccessUnits(t *testing.T) {
	tests := []struct {
		name   string
		second []byte
	}{
		{name: "truncated slice header", second: truncatedAU},
		{name: "truncated NAL unit header", second: truncatedHeaderAU},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := newMemDemuxer(iAU, test.second, pAU)
			c := newEmulator(t)
			s := surface.NewNull()
			p := newPump(t, testConfig(t), d, c, s)

			err := runPump(t, p, 5*time.Second)
			if err != nil {
				t.Fatalf("unexpected error from Run: %v", err)
			}
			st := p.Stats()
			if st.Submitted != 3 {
				t.Errorf("unexpected submitted count: got %d, want 3", st.Submitted)
			}
			if st.ParseErrors != 1 {
				t.Errorf("unexpected parse errors: got %d, want 1", st.ParseErrors)
			}
			if st.Presented != 3 {
				t.Errorf("unexpected presented count: got %d, want 3", st.Presented)
			}
			c.check(true)
		})
	}
}

func TestPumpPresentsPictureWithEndOfStream(t *testing.T) {
	d := newMemDemuxer(iAU, pAU, bAU)
	c := newEmulator(t)
	s := surface.NewNull()
	p := newPump(t, testConfig(t), d, finalPictureCodec{Codec: c, pts: 2 * frame}, s)

	err := runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("unexpected state: got %v, want %v", p.State(), StateStopped)
	}
	n, last := s.Presented()
	if n != 3 || last != 2*frame {
		t.Errorf("final picture not presented: %d frames, last at %v", n, last)
	}
	if st := p.Stats(); st.Skipped != 0 {
		t.Errorf("unexpected skipped count: %d", st.Skipped)
	}
	c.check(true)
}

// formatCodec records the format the codec is configured with.
type formatCodec struct {
	mediacodec.Codec
	got *mediacodec.Format
}

func (c formatCodec) Configure(f mediacodec.Format) error {
	*c.got = f
	return c.Codec.Configure(f)
}

func TestPumpForwardsCodecConfig(t *testing.T) {
	// Start of an hvcC record, configurationVersion 1, Main profile.
	hvcC := []byte{0x01, 0x01, 0x60, 0x00, 0x00, 0x00, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00, 0x5d}

	tests := []struct {
		name   string
		config []byte
	}{
		{name: "in band parameter sets"},
		{name: "hvcC record", config: hvcC},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := newMemDemuxer(iAU, pAU)
			d.streams[0].Config = test.config
			d.streams[0].Width, d.streams[0].Height = 64, 32
			c := newEmulator(t)
			var got mediacodec.Format
			p := newPump(t, testConfig(t), d, formatCodec{Codec: c, got: &got}, surface.NewNull())

			err := runPump(t, p, 5*time.Second)
			if err != nil {
				t.Fatalf("unexpected error from Run: %v", err)
			}
			if got.MIME != mediacodec.MIMEHEVC || got.Width != 64 || got.Height != 32 {
				t.Errorf("unexpected format: %+v", got)
			}
			if diff := cmp.Diff(test.config, got.CodecConfig); diff != "" {
				t.Errorf("unexpected codec config (-want +got):\n%s", diff)
			}
			c.check(true)
		})
	}
}

func TestPumpBackpressure(t *testing.T) {
	var aus [][]byte
	for i := 0; i < 20; i++ {
		aus = append(aus, [][]byte{iAU, pAU, bAU, pAU}[i%4])
	}
	d := newMemDemuxer(aus...)
	c := newEmulator(t, mediacodec.InputSlots(1), mediacodec.OutputSlots(1))
	s := surface.NewNull()
	p := newPump(t, testConfig(t), d, c, s)

	err := runPump(t, p, 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	st := p.Stats()
	if st.Submitted != len(aus) || st.Presented != len(aus) {
		t.Errorf("access units lost: %d read, %d submitted, %d presented", len(aus), st.Submitted, st.Presented)
	}
	want := map[h265dec.SliceType]int{h265dec.SliceTypeI: 5, h265dec.SliceTypeP: 10, h265dec.SliceTypeB: 5}
	if diff := cmp.Diff(want, st.Slices); diff != "" {
		t.Errorf("unexpected slice counts (-want +got):\n%s", diff)
	}
	if st.IntervalMean < 0 || st.IntervalStdDev < 0 {
		t.Errorf("unexpected interval statistics: mean %v, stddev %v", st.IntervalMean, st.IntervalStdDev)
	}
	c.check(true)
}

func TestPumpKeepsPendingAccessUnit(t *testing.T) {
	d := newMemDemuxer(iAU, pAU)
	c := newEmulator(t, mediacodec.InputSlots(0))
	p := newPump(t, testConfig(t), d, c, surface.NewNull())

	err := runPump(t, p, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	st := p.Stats()
	if st.AccessUnits != 1 {
		t.Errorf("access unit should stay pending while no input slot is free, read %d", st.AccessUnits)
	}
	if st.Submitted != 0 {
		t.Errorf("unexpected submissions: %d", st.Submitted)
	}
	if st.Stalls == 0 {
		t.Error("expected stalls to be counted")
	}
	c.check(true)
}

func TestPumpStop(t *testing.T) {
	d := newMemDemuxer(iAU, pAU, bAU)
	d.loop = true
	c := newEmulator(t)
	p := newPump(t, testConfig(t), d, c, surface.NewNull())

	err := p.Start()
	if err != nil {
		t.Fatalf("could not start pump: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Submitted < 10 {
		if time.Now().After(deadline) {
			t.Fatal("pump did not make progress")
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()
	p.Stop()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop")
	}
	err = p.Wait()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("unexpected state: got %v, want %v", p.State(), StateStopped)
	}
	if d.closes() != 1 {
		t.Errorf("demuxer closed %d times, want once", d.closes())
	}
	c.check(true)
}

func TestPumpDropsOtherStreams(t *testing.T) {
	d := newMemDemuxer(iAU, []byte{0xff, 0xf1, 0x50}, pAU, []byte{0xff, 0xf1, 0x50})
	d.streams = demux.StreamSet{{Index: 0, MIME: mediacodec.MIMEHEVC}, {Index: 1}}
	d.aus[1].StreamIndex = 1
	d.aus[3].StreamIndex = 1
	c := newEmulator(t)
	p := newPump(t, testConfig(t), d, c, surface.NewNull())

	err := runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	st := p.Stats()
	if st.Dropped != 2 || st.Submitted != 2 || st.ParseErrors != 0 {
		t.Errorf("unexpected stats: dropped %d, submitted %d, parse errors %d", st.Dropped, st.Submitted, st.ParseErrors)
	}
	c.check(true)
}

func TestPumpInvalidSurface(t *testing.T) {
	d := newMemDemuxer(iAU, pAU, bAU)
	c := newEmulator(t)
	s := invalidSurface{surface.NewNull()}
	p := newPump(t, testConfig(t), d, c, s)

	err := runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	st := p.Stats()
	if st.Skipped != 3 || st.Presented != 0 {
		t.Errorf("unexpected stats: skipped %d, presented %d", st.Skipped, st.Presented)
	}
	if st.Exchange.Rendered != 0 {
		t.Errorf("skipped pictures should not be rendered, rendered %d", st.Exchange.Rendered)
	}
	c.check(true)
}

func TestPumpDrainGivesUp(t *testing.T) {
	d := newMemDemuxer(iAU, pAU)
	c := newEmulator(t)
	cfg := testConfig(t)
	cfg.DrainPolls = 3
	p := newPump(t, cfg, d, noEOSCodec{c}, surface.NewNull())

	err := runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("unexpected state: got %v, want %v", p.State(), StateStopped)
	}
	if st := p.Stats(); st.Presented != 2 {
		t.Errorf("unexpected presented count: got %d, want 2", st.Presented)
	}
	c.check(true)
}

func TestPumpPayloadTooLarge(t *testing.T) {
	d := newMemDemuxer(iAU, pAU)
	c := newEmulator(t, mediacodec.InputCapacity(4))
	p := newPump(t, testConfig(t), d, c, surface.NewNull())

	err := runPump(t, p, 5*time.Second)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("unexpected error: got %v, want %v", err, ErrPayloadTooLarge)
	}
	if p.State() != StateStopped {
		t.Errorf("unexpected state: got %v, want %v", p.State(), StateStopped)
	}
	c.check(true)
}

func TestPumpConfigurationFailure(t *testing.T) {
	d := newMemDemuxer(iAU)
	d.streams = demux.StreamSet{{Index: 0, MIME: "video/x-unknown"}}
	c := newEmulator(t)
	p := newPump(t, testConfig(t), d, c, surface.NewNull())

	err := runPump(t, p, 5*time.Second)
	if !errors.Is(err, ErrDecoderConfiguration) {
		t.Errorf("unexpected error: got %v, want %v", err, ErrDecoderConfiguration)
	}
	if d.closes() != 1 {
		t.Errorf("demuxer closed %d times, want once", d.closes())
	}
	c.check(true)
}

func TestPumpMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("could not create metrics: %v", err)
	}
	_, err = NewMetrics(reg)
	if err == nil {
		t.Error("expected error registering metrics twice")
	}

	d := newMemDemuxer(iAU, truncatedAU, pAU)
	p := newPump(t, testConfig(t), d, newEmulator(t), surface.NewNull(), WithMetrics(m))
	err = runPump(t, p, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("could not gather metrics: %v", err)
	}
	got := make(map[string]float64)
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				got[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				got[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	want := map[string]float64{
		"hevcplay_pump_access_units_total":     3,
		"hevcplay_pump_parse_errors_total":     1,
		"hevcplay_pump_presented_frames_total": 3,
		"hevcplay_pump_slices_total":           2,
		"hevcplay_pump_format_changes_total":   1,
		"hevcplay_pump_state":                  float64(StateStopped),
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("unexpected value for %s: got %v, want %v", name, got[name], v)
		}
	}
}

func TestNewErrors(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil, newEmulator(t), surface.NewNull())
	if err == nil {
		t.Error("expected error for nil demuxer")
	}
	cfg.Logger = nil
	_, err = New(cfg, newMemDemuxer(), newEmulator(t), surface.NewNull())
	if err == nil {
		t.Error("expected error for nil logger")
	}
	_, err = New(testConfig(t), newMemDemuxer(), newEmulator(t), surface.NewNull(), OnSlice(nil))
	if err == nil {
		t.Error("expected error for nil slice callback")
	}
}
