package telemetry

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/spacenav/pkg/core"
)

func TestSeries(t *testing.T) {
	t.Run("bounded series drops the oldest sample", func(t *testing.T) {
		s := NewSeries(2)
		s.Store(Sample{Iteration: 0})
		s.Store(Sample{Iteration: 1})
		s.Store(Sample{Iteration: 2})

		got := s.Samples()
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Iteration)
		assert.Equal(t, 2, got[1].Iteration)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		s := NewSeries(0)
		s.Store(Sample{Reward: -1})
		got := s.Samples()
		got[0].Reward = 5
		assert.Equal(t, -1.0, s.Samples()[0].Reward)
		assert.Equal(t, 1, s.Len())
	})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	for i := 0; i < 5; i++ {
		ev := core.IterationEvent{Iteration: i, Epoch: core.Epoch(i), Reward: float64(-i)}
		if i == 3 {
			ev.Polled = true
			ev.Action = core.Action{DVx: 1000, DVy: 2, DVz: 3}
			ev.Rejection = "fuel budget exceeded"
		}
		r.OnIteration(ev)
	}

	samples := r.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, []int{0, 2, 4}, []int{samples[0].Iteration, samples[1].Iteration, samples[2].Iteration})

	rejections := r.Rejections()
	require.Len(t, rejections, 1)
	assert.Equal(t, Rejection{Iteration: 3, Epoch: 3, DVx: 1000, DVy: 2, DVz: 3, Reason: "fuel budget exceeded"}, rejections[0])

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last.Iteration)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.OnIteration(core.IterationEvent{Iteration: 0, CollisionProbability: 0.4})
	m.OnIteration(core.IterationEvent{Iteration: 1, Polled: true, Action: core.NoOp(1)})
	m.OnIteration(core.IterationEvent{Iteration: 2, Polled: true, Action: core.Action{DVx: 2}, Reward: -3})
	m.OnIteration(core.IterationEvent{Iteration: 3, Polled: true, Action: core.Action{DVx: 1000}, Rejection: "no fuel", Reward: -3, FuelConsumption: 2})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Iterations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PolicyPolls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Maneuvers.WithLabelValues(maneuverAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Maneuvers.WithLabelValues(maneuverRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Maneuvers.WithLabelValues(maneuverNoOp)))
	assert.Equal(t, -3.0, testutil.ToFloat64(m.Reward))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FuelConsumption))

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, WriteTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "spacenav_simulation_iterations_total 4")
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, 10, 0)

	r.OnIteration(core.IterationEvent{Iteration: 0, Epoch: 6600})
	r.OnIteration(core.IterationEvent{Iteration: 3})
	r.OnIteration(core.IterationEvent{Iteration: 4, Polled: true, Action: core.Action{DVx: 1.5}})
	r.OnIteration(core.IterationEvent{Iteration: 5, Polled: true, Action: core.Action{DVx: 1000}, Rejection: "fuel budget exceeded"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "epoch 6600.000000")
	assert.Contains(t, lines[1], "maneuver (dVx:1.5, dVy:0, dVz:0)")
	assert.Contains(t, lines[2], "REJECTED (dVx:1000, dVy:0, dVz:0): fuel budget exceeded")

	t.Run("pause paces rendered lines only", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewRenderer(&buf, 2, 20*time.Millisecond)

		began := time.Now()
		r.OnIteration(core.IterationEvent{Iteration: 1})
		assert.Less(t, time.Since(began), 20*time.Millisecond)
		assert.Empty(t, buf.String())

		began = time.Now()
		r.OnIteration(core.IterationEvent{Iteration: 2})
		assert.GreaterOrEqual(t, time.Since(began), 20*time.Millisecond)
		assert.Contains(t, buf.String(), "iter      2")
	})
}

func TestFormatPosition(t *testing.T) {
	sv := core.StateVector{Position: core.Vec3{1, 2, 3}, Velocity: core.Vec3{4, 5, 6}}
	assert.Equal(t,
		"sat position: x - 1.00000, y - 2.00000, z - 3.00000. sat velocity: Vx - 4.00000, Vy - 5.00000, Vz - 6.00000",
		FormatPosition("sat", sv))

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug, "json")
	logger.Debug("position", PositionAttrs("sat", sv)...)
	assert.Contains(t, buf.String(), `"position":{"x":1,"y":2,"z":3}`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
