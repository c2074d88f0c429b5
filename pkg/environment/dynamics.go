package environment

import (
	"math"

	"github.com/boristopalov/spacenav/pkg/core"
)

const (
	// EarthMu is Earth's gravitational parameter (m^3/s^2).
	EarthMu = 3.986004418e14
	// EarthRadius in metres.
	EarthRadius = 6.3781e6

	secondsPerDay = 86400.0
	maxSubstep    = 10.0 // seconds
)

func gravity(r core.Vec3) core.Vec3 {
	d := r.Norm()
	return r.Scale(-EarthMu / (d * d * d))
}

// propagate integrates two-body motion over dt seconds with fixed-size RK4
// substeps no longer than maxSubstep.
func propagate(sv core.StateVector, dt float64) core.StateVector {
	if dt == 0 {
		return sv
	}
	n := int(math.Ceil(math.Abs(dt) / maxSubstep))
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		sv = rk4(sv, h)
	}
	return sv
}

func rk4(sv core.StateVector, h float64) core.StateVector {
	r, v := sv.Position, sv.Velocity

	k1r, k1v := v, gravity(r)
	k2r, k2v := v.Add(k1v.Scale(h/2)), gravity(r.Add(k1r.Scale(h/2)))
	k3r, k3v := v.Add(k2v.Scale(h/2)), gravity(r.Add(k2r.Scale(h/2)))
	k4r, k4v := v.Add(k3v.Scale(h)), gravity(r.Add(k3r.Scale(h)))

	return core.StateVector{
		Position: r.Add(k1r.Add(k2r.Scale(2)).Add(k3r.Scale(2)).Add(k4r).Scale(h / 6)),
		Velocity: v.Add(k1v.Add(k2v.Scale(2)).Add(k3v.Scale(2)).Add(k4v).Scale(h / 6)),
	}
}

// collisionProbability turns a closest-approach distance into a probability
// under an isotropic gaussian position uncertainty sigma.
func collisionProbability(distance, sigma float64) float64 {
	return math.Exp(-(distance * distance) / (2 * sigma * sigma))
}

// totalProbability combines independent per-debris probabilities.
func totalProbability(ps []float64) float64 {
	miss := 1.0
	for _, p := range ps {
		miss *= 1 - p
	}
	return 1 - miss
}
