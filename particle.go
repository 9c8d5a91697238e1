/*
Copyright © 2018 the LPDM authors.
This file is part of LPDM.

LPDM is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LPDM is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LPDM.  If not, see <http://www.gnu.org/licenses/>.
*/

package lpdm

import (
	"math"
	"time"
)

// A Particle is one Lagrangian air parcel. Particles are created at
// emission time and mutated every integration step; a terminated particle
// is flagged inactive but never removed, so particle ids stay stable for
// the whole run.
type Particle struct {
	Lon  float64 `desc:"Longitude" units:"degrees"`
	Lat  float64 `desc:"Latitude" units:"degrees"`
	Z    float64 `desc:"Vertical coordinate" units:"hPa or m"`
	Mass float64 `desc:"Pollutant mass" units:"kg"`
	Age  float64 `desc:"Elapsed transport time" units:"s"`

	// Active is terminal when false: no further integration and no
	// further position or mass mutation happens.
	Active bool

	// Species indexes SimulationConfig.Species.
	Species int

	mass0 float64 // mass at emission, for the depletion threshold
}

// newParticle returns an active particle at the given release point.
func newParticle(lon, lat, z, mass float64, species int) Particle {
	return Particle{
		Lon: lon, Lat: lat, Z: z,
		Mass: mass, Active: true, Species: species,
		mass0: mass,
	}
}

// checkFinite returns a NumericalInstabilityError naming the first
// non-finite state variable, or nil when the whole state is finite.
func (p *Particle) checkFinite(step int) error {
	for _, q := range []struct {
		name string
		val  float64
	}{{"longitude", p.Lon}, {"latitude", p.Lat}, {"vertical coordinate", p.Z}, {"mass", p.Mass}} {
		if math.IsNaN(q.val) || math.IsInf(q.val, 0) {
			return &NumericalInstabilityError{Step: step, Quantity: q.name}
		}
	}
	return nil
}

// depleted reports whether deposition has removed enough of the particle's
// initial mass to end its trajectory.
func (p *Particle) depleted(fraction float64) bool {
	return p.Mass < p.mass0*fraction
}

// TerminationReason says why a trajectory stopped.
type TerminationReason int

const (
	// Completed means the full configured duration was integrated.
	Completed TerminationReason = iota
	// LeftDomain means the particle moved outside the meteorological
	// data domain, horizontally or in time.
	LeftDomain
	// Deposited means deposition reduced the particle's mass below the
	// depletion threshold.
	Deposited
	// Unstable means a non-finite value appeared in the particle state.
	Unstable
	// IterationLimit means the cooperative iteration cap was reached
	// before the run duration elapsed.
	IterationLimit
)

// String implements the fmt.Stringer interface.
func (r TerminationReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case LeftDomain:
		return "left domain"
	case Deposited:
		return "deposited"
	case Unstable:
		return "numerically unstable"
	case IterationLimit:
		return "iteration limit"
	default:
		return "unknown"
	}
}

// A TrajectoryPoint is one recorded position along a trajectory.
type TrajectoryPoint struct {
	T    time.Time
	Lon  float64 `desc:"Longitude" units:"degrees"`
	Lat  float64 `desc:"Latitude" units:"degrees"`
	Z    float64 `desc:"Vertical coordinate" units:"hPa or m"`
	Mass float64 `desc:"Pollutant mass" units:"kg"`
}

// A Trajectory is the recorded path of one particle: one point per output
// interval plus a mandatory final point, so it always contains at least the
// start point. Points are append-only.
type Trajectory struct {
	Particle int // particle id; indexes the engine's particle slice
	Species  int
	Points   []TrajectoryPoint

	Reason TerminationReason
	// Err holds the error that ended integration early, if any.
	Err error
}

// last returns the most recently recorded point.
func (tr *Trajectory) last() TrajectoryPoint {
	return tr.Points[len(tr.Points)-1]
}

// record appends a point for the given particle state at time t, skipping
// the append when it would duplicate the last recorded point.
func (tr *Trajectory) record(t time.Time, p *Particle) {
	pt := TrajectoryPoint{T: t, Lon: p.Lon, Lat: p.Lat, Z: p.Z, Mass: p.Mass}
	if n := len(tr.Points); n > 0 && tr.Points[n-1] == pt {
		return
	}
	tr.Points = append(tr.Points, pt)
}
