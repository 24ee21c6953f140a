// Package metrics exposes Prometheus instrumentation for the sequencers and
// the dispatcher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/sequencer"
)

type Metrics struct {
	commands   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	fills      *prometheus.CounterVec
	volume     *prometheus.CounterVec
	halted     *prometheus.GaugeVec
	deliveries *prometheus.CounterVec
	deliverDur *prometheus.HistogramVec
	backlog    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Name:      "commands_total",
			Help:      "Engine commands by instrument, command and outcome.",
		}, []string{"instrument", "cmd", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradepost",
			Name:      "command_seconds",
			Help:      "Time spent applying a command on the engine goroutine.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"instrument", "cmd"}),
		fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Name:      "fills_total",
			Help:      "Fills executed.",
		}, []string{"instrument"}),
		volume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Name:      "filled_qty_total",
			Help:      "Quantity executed, in lots.",
		}, []string{"instrument"}),
		halted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tradepost",
			Name:      "instrument_halted",
			Help:      "1 while an instrument's engine is halted.",
		}, []string{"instrument"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Name:      "deliveries_total",
			Help:      "Batch deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		deliverDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradepost",
			Name:      "delivery_seconds",
			Help:      "Time to deliver one batch to a sink.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		backlog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tradepost",
			Name:      "dispatch_backlog",
			Help:      "Batches waiting for the dispatcher.",
		}),
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrInvalidOrder):
		return "invalid"
	case errors.Is(err, engine.ErrOrderNotCancellable), errors.Is(err, engine.ErrOrderNotFound):
		return "rejected"
	case errors.Is(err, engine.ErrEngineInvariantViolation):
		return "halted"
	default:
		return "error"
	}
}

// Observe implements sequencer.Observer.
func (m *Metrics) Observe(instrument string, cmd sequencer.CmdType, res engine.Result, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(instrument, cmd.String(), outcome(err)).Inc()
	m.latency.WithLabelValues(instrument, cmd.String()).Observe(took.Seconds())
	if n := len(res.Fills); n > 0 {
		m.fills.WithLabelValues(instrument).Add(float64(n))
		var qty int64
		for _, f := range res.Fills {
			qty += f.Qty
		}
		m.volume.WithLabelValues(instrument).Add(float64(qty))
	}
}

// SetHalted flags an instrument as halted or running.
func (m *Metrics) SetHalted(instrument string, halted bool) {
	if m == nil {
		return
	}
	v := 0.0
	if halted {
		v = 1
	}
	m.halted.WithLabelValues(instrument).Set(v)
}

// Delivered implements publish.Observer.
func (m *Metrics) Delivered(sink string, took time.Duration, err error) {
	if m == nil {
		return
	}
	res := "ok"
	if err != nil {
		res = "error"
	}
	m.deliveries.WithLabelValues(sink, res).Inc()
	m.deliverDur.WithLabelValues(sink).Observe(took.Seconds())
}

// Backlog implements publish.Observer.
func (m *Metrics) Backlog(n int) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(n))
}

var _ sequencer.Observer = (*Metrics)(nil)
