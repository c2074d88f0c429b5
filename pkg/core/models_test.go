package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOp(t *testing.T) {
	a := NoOp(6600.5)

	assert.True(t, a.IsNoOp())
	assert.Equal(t, Vec3{}, a.DeltaV())
	assert.Zero(t, a.TimeToNextRequest)
	assert.Equal(t, Epoch(6600.5), a.ManeuverEpoch)
}

func TestEpochTime(t *testing.T) {
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Epoch(0).Time())
	assert.Equal(t, time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC), Epoch(1.5).Time())
	assert.True(t, Epoch(1).Before(Epoch(1).Add(0.0001)))
}

func TestVec3(t *testing.T) {
	v := Vec3{3, 4, 0}
	assert.InDelta(t, 5.0, v.Norm(), 1e-12)
	assert.Equal(t, Vec3{6, 8, 0}, v.Add(v))
	assert.Equal(t, Vec3{}, v.Sub(v))
	assert.Equal(t, Vec3{1.5, 2, 0}, v.Scale(0.5))

	a := Action{DVx: 1, DVy: 2, DVz: 2}
	assert.InDelta(t, 3.0, a.Magnitude(), 1e-12)
	assert.False(t, a.IsNoOp())
}

func TestIterationEventApplied(t *testing.T) {
	ev := IterationEvent{Polled: true, Action: Action{DVx: 1}}
	assert.True(t, ev.Applied())

	ev.Rejection = "fuel budget exceeded"
	assert.False(t, ev.Applied())

	assert.False(t, IterationEvent{Polled: true, Action: NoOp(1)}.Applied())
}
