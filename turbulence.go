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

	"github.com/ctessum/atmos/acm2"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// TurbulenceMode selects how stochastic velocity perturbations are
// generated.
type TurbulenceMode int

const (
	// TurbulenceOff disables perturbations.
	TurbulenceOff TurbulenceMode = iota

	// TurbulenceFixed draws all three velocity components from a
	// zero-mean Gaussian with the configured standard deviation.
	TurbulenceFixed

	// TurbulenceBoundaryLayer derives the Gaussian widths from
	// boundary-layer diffusivities: vertical from the Pleim (2007)
	// stability parameterization, horizontal from a 4/3-power law of
	// the grid spacing.
	TurbulenceBoundaryLayer
)

// String implements the fmt.Stringer interface.
func (m TurbulenceMode) String() string {
	switch m {
	case TurbulenceOff:
		return "off"
	case TurbulenceFixed:
		return "fixed sigma"
	case TurbulenceBoundaryLayer:
		return "boundary layer"
	default:
		return "unknown"
	}
}

// turbulence generates stochastic velocity perturbations for one worker.
// It is not safe for concurrent use; each worker carries its own instance
// seeded independently so runs stay reproducible.
type turbulence struct {
	mode        TurbulenceMode
	σ           float64 // fixed-sigma width [m/s]
	khMax       float64 // horizontal diffusivity cap [m2/s]
	scaleHeight float64 // for height above ground and pressure-rate conversion [m]
	normal      distuv.Normal
}

func newTurbulence(mode TurbulenceMode, σ, khMax, scaleHeight float64, seed uint64) *turbulence {
	return &turbulence{
		mode:        mode,
		σ:           σ,
		khMax:       khMax,
		scaleHeight: scaleHeight,
		normal:      distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
	}
}

// perturbation returns the velocity perturbations (du, dv, dw) to add to
// the mean wind at the given point for a step of length Δt. When the data
// use pressure coordinates the vertical perturbation is converted to a
// pressure rate so it shares units with omega.
func (tb *turbulence) perturbation(s *Sampler, lon, lat, z, t, Δt float64) (du, dv, dw float64) {
	switch tb.mode {
	case TurbulenceFixed:
		du = tb.σ * tb.normal.Rand()
		dv = tb.σ * tb.normal.Rand()
		dw = tb.σ * tb.normal.Rand()
	case TurbulenceBoundaryLayer:
		σh, σw := tb.sigmas(s, lon, lat, z, t, Δt)
		du = σh * tb.normal.Rand()
		dv = σh * tb.normal.Rand()
		dw = σw * tb.normal.Rand()
	default:
		return 0, 0, 0
	}
	if s.d.VCoord == PressureLevels {
		dw *= -z / tb.scaleHeight
	}
	return du, dv, dw
}

// sigmas converts boundary-layer diffusivities into Gaussian velocity
// widths, σ = sqrt(2K / max(|Δt|, 1)).
func (tb *turbulence) sigmas(s *Sampler, lon, lat, z, t, Δt float64) (σh, σw float64) {
	h, ustar, L := pblDiagnostics(s, lon, lat, z, t)
	zAGL := heightAGL(s.d, tb.scaleHeight, lon, lat, z)
	var Kz float64
	if zAGL < h {
		Kz = math.Max(acm2.CalculateKm(zAGL, h, L, ustar), backgroundKz)
	} else {
		Kz = freeAtmKz
	}
	Δx, _ := s.d.gridSpacing(lon, lat)
	Kh := math.Min(kh43Coeff*math.Pow(Δx, 4./3.), tb.khMax)
	denom := math.Max(math.Abs(Δt), 1)
	return math.Sqrt(2 * Kh / denom), math.Sqrt(2 * Kz / denom)
}

// pblDiagnostics looks up the boundary-layer depth, friction velocity, and
// Monin-Obukhov length at a point, substituting defaults for anything the
// data do not carry. When the data include surface heat flux but no
// Obukhov length, the length is computed from the flux.
func pblDiagnostics(s *Sampler, lon, lat, z, t float64) (h, ustar, L float64) {
	h = scalarOrDefault(s, VarMixingHeight, lon, lat, z, t, defaultMixingHeight)
	ustar = scalarOrDefault(s, VarUstar, lon, lat, z, t, defaultUstar)
	switch {
	case s.d.hasScalar(VarObukhov):
		L = scalarOrDefault(s, VarObukhov, lon, lat, z, t, defaultObukhovL)
	case s.d.hasScalar(VarHeatFlux):
		hflux := scalarOrDefault(s, VarHeatFlux, lon, lat, z, t, 0)
		To := scalarOrDefault(s, VarTemperature, lon, lat, z, t, 288.15)
		L = acm2.ObukhovLen(hflux, ρAir, To, ustar)
	default:
		L = defaultObukhovL
	}
	return h, ustar, L
}

// scalarOrDefault samples the named field, returning def when the field is
// absent or the sample fails.
func scalarOrDefault(s *Sampler, name string, lon, lat, z, t, def float64) float64 {
	v, err := s.SampleScalar(name, lon, lat, z, t)
	if err != nil {
		return def
	}
	return v
}

// heightAGL converts a vertical coordinate into meters above ground, using
// the hydrostatic approximation z = -H·ln(p/p0) for pressure coordinates.
func heightAGL(d *MetData, scaleHeight, lon, lat, z float64) float64 {
	if d.VCoord == PressureLevels {
		return math.Max(-scaleHeight*math.Log(z/p0), 0)
	}
	return math.Max(z-d.surfaceHeight(lon, lat), 0)
}
