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

// computeDt returns the length [s] of the next integration step for a
// particle at (lon, lat) and model time t moving with horizontal wind
// (u, v). The step satisfies the CFL condition
//
//	Δt = min(TRATIO·Δx/max(|u|,ε), TRATIO·Δy/max(|v|,ε), dtMax)
//
// with Δx and Δy the local grid spacing in meters. Vertical velocity does
// not enter the bound; vertical motion is controlled by mode-specific
// damping instead. The step is further shortened so it never crosses the
// next meteorological time-slice boundary in the direction of integration.
//
// The returned value is always positive; the caller applies the
// integration direction as a sign.
func computeDt(d *MetData, tRatio, dtMax, u, v, lon, lat, t float64, forward bool) float64 {
	Δx, Δy := d.gridSpacing(lon, lat)
	Δt := dtMax
	if b := tRatio * Δx / math.Max(math.Abs(u), wsFloor); b < Δt {
		Δt = b
	}
	if b := tRatio * Δy / math.Max(math.Abs(v), wsFloor); b < Δt {
		Δt = b
	}
	if tb, ok := d.nextTimeBoundary(t, forward); ok {
		if gap := math.Abs(tb - t); gap < Δt {
			Δt = gap
		}
	}
	return Δt
}
