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

import "math"

// VertMotionMode selects how the vertical velocity used for particle
// displacement is derived from the data.
type VertMotionMode int

const (
	// VertMotionAuto picks a mode from the first start location's
	// latitude when the run is set up: spatially averaged in the
	// mid-latitudes, isentropic in the tropics.
	VertMotionAuto VertMotionMode = iota

	// VertMotionData uses the data's vertical velocity unchanged.
	VertMotionData

	// VertMotionIsobaric keeps the particle on its starting pressure
	// surface (no vertical displacement).
	VertMotionIsobaric

	// VertMotionConstantAltitude keeps the particle at its starting
	// altitude (no vertical displacement).
	VertMotionConstantAltitude

	// VertMotionIsentropic approximates motion along a constant
	// potential-temperature surface by suppressing vertical
	// displacement. Solving the full potential-temperature gradient
	// tracked observed trajectories worse than this simpler rule.
	VertMotionIsentropic

	// VertMotionAverage replaces the point vertical velocity with its
	// mean over a 3×3 horizontal window of grid cells.
	VertMotionAverage

	// VertMotionDamped downweights the vertical velocity when a
	// particle crosses grid cells faster than the data update interval,
	// avoiding amplification of stale values.
	VertMotionDamped
)

// String implements the fmt.Stringer interface.
func (m VertMotionMode) String() string {
	switch m {
	case VertMotionAuto:
		return "auto"
	case VertMotionData:
		return "data"
	case VertMotionIsobaric:
		return "isobaric"
	case VertMotionConstantAltitude:
		return "constant altitude"
	case VertMotionIsentropic:
		return "isentropic"
	case VertMotionAverage:
		return "spatially averaged"
	case VertMotionDamped:
		return "damped"
	default:
		return "unknown"
	}
}

// resolveVertMotion fixes the automatic mode choice, once, at setup.
func resolveVertMotion(mode VertMotionMode, firstLat float64) VertMotionMode {
	if mode != VertMotionAuto {
		return mode
	}
	if math.Abs(firstLat) >= autoVertMotionLat {
		return VertMotionAverage
	}
	return VertMotionIsentropic
}

// verticalVelocity applies the configured vertical-motion mode to the raw
// sampled vertical velocity w at the given point, using the horizontal wind
// (u, v) where the mode needs it.
func verticalVelocity(s *Sampler, mode VertMotionMode, damping, lon, lat, z, t, u, v, w float64) float64 {
	switch mode {
	case VertMotionData:
		return w
	case VertMotionIsobaric, VertMotionConstantAltitude, VertMotionIsentropic:
		return 0
	case VertMotionAverage:
		return windowAverageW(s, lon, lat, z, t, w)
	case VertMotionDamped:
		return dampedW(s.d, damping, lon, lat, t, u, v, w)
	default:
		return w
	}
}

// windowAverageW averages the vertical velocity over the 3×3 horizontal
// window of grid cells centered on (lon, lat), at the same level and time.
// If every window sample fails it falls back to the point value w.
func windowAverageW(s *Sampler, lon, lat, z, t, w float64) float64 {
	ix := clampCell(s.d.Lon, lon)
	iy := clampCell(s.d.Lat, lat)
	Δlon := math.Abs(s.d.Lon[ix+1] - s.d.Lon[ix])
	Δlat := math.Abs(s.d.Lat[iy+1] - s.d.Lat[iy])
	var sum float64
	var n int
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			l, err := s.locate(lon+float64(i)*Δlon, lat+float64(j)*Δlat, z, t)
			if err != nil {
				continue
			}
			sum += interp4(s.d.W, l)
			n++
		}
	}
	if n == 0 {
		return w
	}
	return sum / float64(n)
}

// dampedW scales w by min(1, gridCrossingTime/dataInterval)·damping, where
// gridCrossingTime is how long the horizontal wind takes to cross one grid
// cell.
func dampedW(d *MetData, damping, lon, lat, t, u, v, w float64) float64 {
	Δx, Δy := d.gridSpacing(lon, lat)
	speed := math.Max(math.Hypot(u, v), wsFloor)
	crossing := math.Min(Δx, Δy) / speed
	return w * math.Min(1, crossing/d.dataInterval(t)) * damping
}
