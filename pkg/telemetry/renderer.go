package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/boristopalov/spacenav/pkg/core"
)

// Renderer prints a status line for every n-th iteration, plus every
// iteration that polled the policy. The optional pause only paces the
// output for a human watching it.
type Renderer struct {
	w     io.Writer
	every int
	pause time.Duration
}

func NewRenderer(w io.Writer, every int, pause time.Duration) *Renderer {
	if every <= 0 {
		every = 1
	}
	return &Renderer{w: w, every: every, pause: pause}
}

// OnIteration implements core.Observer.
func (r *Renderer) OnIteration(event core.IterationEvent) {
	maneuver := event.Polled && !event.Action.IsNoOp()
	if event.Iteration%r.every != 0 && !maneuver {
		return
	}

	fmt.Fprintf(r.w, "iter %6d  epoch %s  P %.7f  fuel %.5f  dev %.5f  reward %.5f",
		event.Iteration, event.Epoch, event.CollisionProbability,
		event.FuelConsumption, event.TrajectoryDeviation, event.Reward)
	switch {
	case event.Rejection != "":
		fmt.Fprintf(r.w, "  REJECTED (dVx:%g, dVy:%g, dVz:%g): %s",
			event.Action.DVx, event.Action.DVy, event.Action.DVz, event.Rejection)
	case maneuver:
		fmt.Fprintf(r.w, "  maneuver (dVx:%g, dVy:%g, dVz:%g)",
			event.Action.DVx, event.Action.DVy, event.Action.DVz)
	}
	fmt.Fprintln(r.w)

	if r.pause > 0 {
		time.Sleep(r.pause)
	}
}
