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

	"github.com/ctessum/atmos/seinfeld"
	"github.com/ctessum/atmos/wesely1989"
)

// Surface description used for dry deposition where the data carry no
// land-use information.
const defaultRoughness = 0.1 // roughness length [m]

var (
	defaultLandUseP = seinfeld.Grass
	defaultLandUseG = wesely1989.Range
)

// depositionModel removes mass from particles through dry and wet
// deposition and moves particulates downward by gravitational settling.
// It holds no per-particle state and is safe for concurrent use once
// constructed.
type depositionModel struct {
	sp          Species
	dry, wet    bool
	scaleHeight float64

	// vg is the Stokes settling velocity, precomputed once from the
	// particle diameter and density: vg = ρ·d²·g/(18µ).
	vg float64
}

func newDepositionModel(sp Species, dry, wet bool, scaleHeight float64) *depositionModel {
	m := &depositionModel{sp: sp, dry: dry, wet: wet, scaleHeight: scaleHeight}
	if !sp.gaseous() {
		m.vg = sp.Density * sp.Diameter * sp.Diameter * g / (18 * µAir)
	}
	return m
}

// applyStep depletes mass over one step of length Δt [s] and returns the
// new mass along with the settling displacement in the data's vertical
// coordinate. Mass never increases and never reaches zero; callers decide
// termination with a fractional depletion threshold instead of a zero
// test. Gases settle nothing.
func (m *depositionModel) applyStep(s *Sampler, lon, lat, z, t, Δt, mass float64) (float64, float64) {
	var vd, Λ float64
	if m.dry {
		vd = m.dryVelocity(s, lon, lat, z, t)
	}
	if m.wet {
		Λ = m.scavenging(s, lon, lat, z, t)
	}
	zAGL := heightAGL(s.d, m.scaleHeight, lon, lat, z)
	mass = massDecay(mass, vd, Λ, zAGL, Δt)
	var disp float64
	if !m.sp.gaseous() {
		disp = -m.vg * Δt
		if s.d.VCoord == PressureLevels {
			// Downward settling increases pressure.
			disp = m.vg * Δt * z / m.scaleHeight
		}
	}
	return mass, disp
}

// massDecay applies the deposition decay law
//
//	m' = m · exp(-(vd/max(Δz,1) + Λ)·|Δt|)
//
// floored above zero so repeated steps deplete fractionally instead of
// underflowing to an exact zero.
func massDecay(mass, vd, Λ, Δz, Δt float64) float64 {
	m := mass * math.Exp(-(vd/math.Max(Δz, 1)+Λ)*math.Abs(Δt))
	if m < massFloor {
		return massFloor
	}
	return m
}

// dryVelocity computes the dry deposition velocity [m/s] at the surface
// below the particle: the three-resistance form with settling for
// particulates, the Henry's-law-scaled surface resistance for gases. An
// explicit per-species override wins over both.
func (m *depositionModel) dryVelocity(s *Sampler, lon, lat, z, t float64) float64 {
	if m.sp.VDep > 0 {
		return m.sp.VDep
	}
	h, ustar, L := pblDiagnostics(s, lon, lat, z, t)
	To := scalarOrDefault(s, VarTemperature, lon, lat, z, t, 288.15)
	zs := h / 10 // surface layer is taken as 10% of the boundary layer
	iSeasonP, iSeasonG := seasonFromTemperature(To)
	if m.sp.gaseous() {
		if m.sp.GasData == nil {
			return 0
		}
		G := scalarOrDefault(s, VarRadiation, lon, lat, z, t, 0)
		rain := scalarOrDefault(s, VarPrecip, lon, lat, z, t, 0) > 0
		const dew = false     // the data cannot tell us whether there is dew
		const Θsurface = 0.   // assume the surface is flat
		return seinfeld.DryDepGas(zs, defaultRoughness, ustar, L, To, ρAir,
			G, Θsurface, m.sp.GasData, iSeasonG, defaultLandUseG,
			rain, dew, m.sp.IsSO2, m.sp.IsO3)
	}
	const pSurface = p0 * 100 // [Pa]
	return seinfeld.DryDepParticle(zs, defaultRoughness, ustar, L,
		m.sp.Diameter, To, pSurface, m.sp.Density, ρAir, iSeasonP, defaultLandUseP)
}

// seasonFromTemperature guesses the deposition season from the surface
// temperature [K]. This is not the best way to tell what season it is.
func seasonFromTemperature(To float64) (seinfeld.SeasonalCategory, wesely1989.SeasonCategory) {
	switch {
	case To > 273.+20.:
		return seinfeld.Midsummer, wesely1989.Midsummer
	case To > 273.+10.:
		return seinfeld.Autumn, wesely1989.Autumn
	case To > 273.:
		return seinfeld.LateAutumn, wesely1989.LateAutumn
	default:
		return seinfeld.Winter, wesely1989.Winter
	}
}

// scavenging returns the total wet scavenging coefficient Λ [1/s]:
// below-cloud Λ = A·Pᴮ whenever precipitation falls, plus in-cloud
// Λ = ratio·P while the particle sits between cloud base and cloud top.
func (m *depositionModel) scavenging(s *Sampler, lon, lat, z, t float64) float64 {
	precip := scalarOrDefault(s, VarPrecip, lon, lat, z, t, 0)
	if precip <= 0 {
		return 0
	}
	var Λ float64
	if m.sp.ScavengingA > 0 {
		Λ = m.sp.ScavengingA * math.Pow(precip, m.sp.ScavengingB)
	}
	if m.sp.InCloudRatio > 0 && s.d.hasScalar(VarCloudBase) && s.d.hasScalar(VarCloudTop) {
		base := scalarOrDefault(s, VarCloudBase, lon, lat, z, t, 0)
		top := scalarOrDefault(s, VarCloudTop, lon, lat, z, t, 0)
		lo, hi := math.Min(base, top), math.Max(base, top)
		if z >= lo && z <= hi {
			Λ += m.sp.InCloudRatio * precip
		}
	}
	return Λ
}
