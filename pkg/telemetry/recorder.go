package telemetry

import (
	"github.com/boristopalov/spacenav/pkg/core"
)

// Rejection is a maneuver the environment refused.
type Rejection struct {
	Iteration int
	Epoch     float64
	DVx       float64
	DVy       float64
	DVz       float64
	Reason    string
}

// Recorder collects a sampled series and every rejection of one session, for
// persistence once the session ends. Not safe for use by concurrent sessions.
type Recorder struct {
	every      int
	series     *Series
	rejections []Rejection
	last       core.IterationEvent
	seen       bool
}

// NewRecorder samples every n-th iteration (n <= 0 is treated as 1).
func NewRecorder(every int) *Recorder {
	if every <= 0 {
		every = 1
	}
	return &Recorder{
		every:  every,
		series: NewSeries(0),
	}
}

// OnIteration implements core.Observer.
func (r *Recorder) OnIteration(event core.IterationEvent) {
	r.last, r.seen = event, true
	if event.Iteration%r.every == 0 {
		r.series.Store(SampleFrom(event))
	}
	if event.Rejection != "" {
		r.rejections = append(r.rejections, Rejection{
			Iteration: event.Iteration,
			Epoch:     float64(event.Epoch),
			DVx:       event.Action.DVx,
			DVy:       event.Action.DVy,
			DVz:       event.Action.DVz,
			Reason:    event.Rejection,
		})
	}
}

func (r *Recorder) Samples() []Sample {
	return r.series.Samples()
}

func (r *Recorder) Rejections() []Rejection {
	out := make([]Rejection, len(r.rejections))
	copy(out, r.rejections)
	return out
}

// Last returns the most recent event, if any was observed.
func (r *Recorder) Last() (core.IterationEvent, bool) {
	return r.last, r.seen
}

// SampleFrom extracts the series point carried by an iteration event.
func SampleFrom(event core.IterationEvent) Sample {
	return Sample{
		Iteration:            event.Iteration,
		Epoch:                float64(event.Epoch),
		CollisionProbability: event.CollisionProbability,
		FuelConsumption:      event.FuelConsumption,
		Reward:               event.Reward,
	}
}
