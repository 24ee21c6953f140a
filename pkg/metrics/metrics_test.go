package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/sequencer"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())
	res := engine.Result{Fills: []engine.Fill{{Qty: 3}, {Qty: 4}}}

	m.Observe("GUILD", sequencer.CmdSubmit, res, nil, time.Millisecond)
	m.Observe("GUILD", sequencer.CmdSubmit, engine.Result{}, fmt.Errorf("bad: %w", engine.ErrInvalidOrder), 0)
	m.Observe("GUILD", sequencer.CmdCancel, engine.Result{}, engine.ErrOrderNotFound, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("GUILD", "submit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("GUILD", "submit", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("GUILD", "cancel", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fills.WithLabelValues("GUILD")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.volume.WithLabelValues("GUILD")))
}

func TestDispatchAndHalt(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Delivered("kafka", time.Millisecond, nil)
	m.Delivered("kafka", time.Millisecond, errors.New("broker down"))
	m.Backlog(12)
	m.SetHalted("GUILD", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("kafka", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("kafka", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.backlog))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.halted.WithLabelValues("GUILD")))

	m.SetHalted("GUILD", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.halted.WithLabelValues("GUILD")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("GUILD", sequencer.CmdSubmit, engine.Result{}, nil, 0)
		m.SetHalted("GUILD", true)
		m.Delivered("journal", 0, nil)
		m.Backlog(1)
	})
}
