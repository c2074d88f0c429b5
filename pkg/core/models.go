package core

import (
	"fmt"
	"math"
	"time"
)

// mjd2000Origin is day 0 of the MJD2000 calendar.
var mjd2000Origin = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Epoch is simulated time expressed in MJD2000 days.
type Epoch float64

// Add returns the epoch shifted by the given number of days.
func (e Epoch) Add(days float64) Epoch {
	return e + Epoch(days)
}

// Before reports whether e is strictly earlier than other.
func (e Epoch) Before(other Epoch) bool {
	return e < other
}

// Time converts the epoch to a UTC wall-clock time.
func (e Epoch) Time() time.Time {
	return mjd2000Origin.Add(time.Duration(float64(e) * float64(24*time.Hour)))
}

func (e Epoch) String() string {
	return fmt.Sprintf("%.6f", float64(e))
}

// Vec3 is a cartesian vector (metres or metres per second).
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v[0] * k, v[1] * k, v[2] * k}
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// StateVector is the position and velocity of one space object.
type StateVector struct {
	Position Vec3
	Velocity Vec3
}

// Coordinates holds the state vectors of the protected object and every debris object.
type Coordinates struct {
	Protected StateVector
	Debris    []StateVector
}

// StateSnapshot is what a policy sees once per decision. Environments hand out
// copies; the simulator never mutates a snapshot.
type StateSnapshot struct {
	Coordinates         Coordinates
	TrajectoryDeviation float64
	Epoch               Epoch
	FuelRemaining       float64
}

// Action is a maneuver request: velocity deltas (m/s), the epoch the maneuver
// applies at and the delay (days) before the environment polls the policy again.
type Action struct {
	DVx               float64
	DVy               float64
	DVz               float64
	ManeuverEpoch     Epoch
	TimeToNextRequest float64
}

// NoOp returns the action that changes nothing and asks to be polled again on
// the very next due-check.
func NoOp(epoch Epoch) Action {
	return Action{ManeuverEpoch: epoch}
}

// IsNoOp reports whether the action carries no velocity change.
func (a Action) IsNoOp() bool {
	return a.DVx == 0 && a.DVy == 0 && a.DVz == 0
}

// DeltaV returns the velocity deltas as a vector.
func (a Action) DeltaV() Vec3 {
	return Vec3{a.DVx, a.DVy, a.DVz}
}

// Magnitude is the total delta-v of the maneuver.
func (a Action) Magnitude() float64 {
	return a.DeltaV().Norm()
}

// IterationEvent is emitted to observers after every simulator iteration. It
// reflects the post-action state of the environment.
type IterationEvent struct {
	SessionID            string
	Iteration            int
	Epoch                Epoch
	CollisionProbability float64
	FuelConsumption      float64
	TrajectoryDeviation  float64
	Reward               float64
	Coordinates          Coordinates

	// Polled is set when the policy was asked for an action this iteration.
	Polled bool
	Action Action
	// Rejection is the environment's reason when the action was refused.
	Rejection string
}

// Applied reports whether a maneuver was accepted by the environment this iteration.
func (e IterationEvent) Applied() bool {
	return e.Polled && e.Rejection == "" && !e.Action.IsNoOp()
}
