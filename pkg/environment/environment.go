// Package environment provides a reference scenario-driven environment: two-body
// propagation of the protected object and debris, a gaussian closest-approach
// collision probability and a fuel budget. It exists so the simulator can run
// end to end; richer physics plug in behind core.Environment.
package environment

import (
	"errors"
	"fmt"
	"math"

	"github.com/boristopalov/spacenav/pkg/core"
)

var (
	ErrFuelBudgetExceeded = errors.New("fuel budget exceeded")
	ErrInsufficientFuel   = errors.New("insufficient fuel")
	ErrInfeasibleManeuver = errors.New("infeasible maneuver")
)

// RewardComponents are the individual penalty terms, already weighted.
type RewardComponents struct {
	CollisionProbability float64
	Fuel                 float64
	TrajectoryDeviation  float64
}

// SpaceEnvironment implements core.Environment for one Scenario. It is not
// safe for concurrent use; every simulation session needs its own instance.
type SpaceEnvironment struct {
	scenario *Scenario

	epoch     core.Epoch
	protected core.StateVector
	nominal   core.StateVector
	debris    []core.StateVector

	minDistances  []float64
	fuelConsumed  float64
	fuelRemaining float64
	deviation     float64

	probability float64
	reward      float64
	components  RewardComponents
	lastUpdate  core.Epoch
	staleSteps  int

	nextAction core.Epoch
	started    bool
}

// NewSpaceEnvironment creates an environment positioned at the scenario's start epoch.
func NewSpaceEnvironment(scenario *Scenario) *SpaceEnvironment {
	e := &SpaceEnvironment{scenario: scenario}
	e.Reset()
	return e
}

// Reset restores the scenario's initial conditions.
func (e *SpaceEnvironment) Reset() {
	s := e.scenario
	e.epoch = s.StartEpoch
	e.protected = s.Protected.stateVector()
	e.nominal = e.protected
	e.debris = make([]core.StateVector, len(s.Debris))
	e.minDistances = make([]float64, len(s.Debris))
	for i, d := range s.Debris {
		e.debris[i] = d.stateVector()
		e.minDistances[i] = math.Inf(1)
	}
	e.fuelConsumed = 0
	e.fuelRemaining = s.Protected.Fuel
	e.deviation = 0
	e.staleSteps = 0
	e.nextAction = s.StartEpoch
	e.started = false
	e.trackDistances()
	e.refresh()
}

// PropagateForward moves every object to epoch and tracks closest approaches.
// Reward and probability are recomputed every updateRPStep calls; with
// updateRPStep == 0 only Act refreshes them. The first call after Reset
// schedules the first poll at epoch, so a session may start before or after
// the scenario start.
func (e *SpaceEnvironment) PropagateForward(epoch core.Epoch, updateRPStep int) {
	if !e.started {
		e.started = true
		e.nextAction = epoch
	}
	if epoch != e.epoch {
		dt := float64(epoch-e.epoch) * secondsPerDay
		e.protected = propagate(e.protected, dt)
		e.nominal = propagate(e.nominal, dt)
		for i := range e.debris {
			e.debris[i] = propagate(e.debris[i], dt)
		}
		e.epoch = epoch
	}
	e.trackDistances()
	e.deviation = trajectoryDeviation(e.protected, e.nominal)

	e.staleSteps++
	if updateRPStep > 0 && e.staleSteps >= updateRPStep {
		e.refresh()
	}
}

// NextActionEpoch implements core.Environment.
func (e *SpaceEnvironment) NextActionEpoch() core.Epoch {
	return e.nextAction
}

// State implements core.Environment.
func (e *SpaceEnvironment) State() core.StateSnapshot {
	debris := make([]core.StateVector, len(e.debris))
	copy(debris, e.debris)
	return core.StateSnapshot{
		Coordinates: core.Coordinates{
			Protected: e.protected,
			Debris:    debris,
		},
		TrajectoryDeviation: e.deviation,
		Epoch:               e.epoch,
		FuelRemaining:       e.fuelRemaining,
	}
}

// Act applies the maneuver to the protected object. A rejected maneuver
// leaves the physical state and fuel untouched; the next poll is rescheduled
// from the action either way.
func (e *SpaceEnvironment) Act(action core.Action) error {
	e.started = true
	e.nextAction = action.ManeuverEpoch.Add(action.TimeToNextRequest)

	for _, v := range []float64{action.DVx, action.DVy, action.DVz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite velocity delta", ErrInfeasibleManeuver)
		}
	}

	cost := action.Magnitude()
	if budget := e.scenario.MaxFuelConsumption; e.fuelConsumed+cost > budget {
		return fmt.Errorf("%w: requested %.5f, consumed %.5f of %.5f",
			ErrFuelBudgetExceeded, cost, e.fuelConsumed, budget)
	}
	if cost > e.fuelRemaining {
		return fmt.Errorf("%w: requested %.5f, remaining %.5f", ErrInsufficientFuel, cost, e.fuelRemaining)
	}

	e.protected.Velocity = e.protected.Velocity.Add(action.DeltaV())
	e.fuelConsumed += cost
	e.fuelRemaining -= cost
	e.refresh()
	return nil
}

func (e *SpaceEnvironment) Reward() float64 {
	return e.reward
}

func (e *SpaceEnvironment) FuelConsumption() float64 {
	return e.fuelConsumed
}

func (e *SpaceEnvironment) TrajectoryDeviation() float64 {
	return e.deviation
}

// CollisionProbability returns the last computed total probability, which may
// be stale depending on the refresh cadence.
func (e *SpaceEnvironment) CollisionProbability() float64 {
	return e.probability
}

// Window implements core.Environment.
func (e *SpaceEnvironment) Window() (core.Epoch, core.Epoch) {
	return e.scenario.StartEpoch, e.scenario.EndEpoch
}

// RewardComponents returns the weighted terms behind Reward.
func (e *SpaceEnvironment) RewardComponents() RewardComponents {
	return e.components
}

// LastUpdate is the epoch of the most recent reward/probability refresh.
func (e *SpaceEnvironment) LastUpdate() core.Epoch {
	return e.lastUpdate
}

// ObjectNames returns display names used in position logs.
func (e *SpaceEnvironment) ObjectNames() (string, []string) {
	names := make([]string, len(e.scenario.Debris))
	for i, d := range e.scenario.Debris {
		names[i] = d.Name
	}
	return e.scenario.Protected.Name, names
}

func (e *SpaceEnvironment) trackDistances() {
	for i, d := range e.debris {
		dist := d.Position.Sub(e.protected.Position).Norm()
		if dist < e.minDistances[i] {
			e.minDistances[i] = dist
		}
	}
}

func (e *SpaceEnvironment) refresh() {
	ps := make([]float64, len(e.minDistances))
	for i, d := range e.minDistances {
		ps[i] = collisionProbability(d, e.scenario.Sigma)
	}
	e.probability = totalProbability(ps)

	w := e.scenario.Reward
	e.components = RewardComponents{
		CollisionProbability: -w.CollisionProbability * e.probability,
		Fuel:                 -w.Fuel * e.fuelConsumed,
		TrajectoryDeviation:  -w.TrajectoryDeviation * e.deviation,
	}
	e.reward = e.components.CollisionProbability + e.components.Fuel + e.components.TrajectoryDeviation
	e.lastUpdate = e.epoch
	e.staleSteps = 0
}

func trajectoryDeviation(actual, nominal core.StateVector) float64 {
	n := nominal.Position.Norm()
	if n == 0 {
		return 0
	}
	return actual.Position.Sub(nominal.Position).Norm() / n
}

var _ core.Environment = (*SpaceEnvironment)(nil)
