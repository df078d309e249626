/*
DESCRIPTION
  metrics.go provides Prometheus metrics for the pump.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pump

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ausocean/hevcplay/codec/h265/h265dec"
)

// MetricsNamespace prefixes all pump metric names.
const MetricsNamespace = "hevcplay"

const pumpSubsystem = "pump"

// Metrics holds the pump's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	accessUnits   prometheus.Counter
	dropped       prometheus.Counter
	slices        *prometheus.CounterVec
	parseErrors   prometheus.Counter
	decodeErrors  prometheus.Counter
	formatChanges prometheus.Counter
	presented     prometheus.Counter
	skipped       prometheus.Counter
	state         prometheus.Gauge
}

// NewMetrics creates the pump collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: pumpSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		accessUnits:   counter("access_units_total", "The number of access units submitted to the decoder"),
		dropped:       counter("dropped_access_units_total", "The number of access units from streams other than the video stream"),
		parseErrors:   counter("parse_errors_total", "The number of NAL units whose headers could not be parsed"),
		decodeErrors:  counter("decode_errors_total", "The number of access units rejected by the decoder"),
		formatChanges: counter("format_changes_total", "The number of decoder output format changes"),
		presented:     counter("presented_frames_total", "The number of frames presented"),
		skipped:       counter("skipped_frames_total", "The number of decoded frames not presented because the surface was invalid"),
		slices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: pumpSubsystem,
			Name:      "slices_total",
			Help:      "The number of slice segments seen, by slice type",
		}, []string{"type"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: pumpSubsystem,
			Name:      "state",
			Help:      "The pump state: 0 idle, 1 running, 2 draining, 3 stopped",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.accessUnits, m.dropped, m.slices, m.parseErrors, m.decodeErrors,
		m.formatChanges, m.presented, m.skipped, m.state,
	} {
		err := reg.Register(c)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) accessUnit() {
	if m != nil {
		m.accessUnits.Inc()
	}
}

func (m *Metrics) drop() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) slice(t h265dec.SliceType) {
	if m != nil {
		m.slices.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) parseError() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) formatChange() {
	if m != nil {
		m.formatChanges.Inc()
	}
}

func (m *Metrics) present() {
	if m != nil {
		m.presented.Inc()
	}
}

func (m *Metrics) skip() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
