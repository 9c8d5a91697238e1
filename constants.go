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

// Version gives the version number of this release.
const Version = "1.0.0"

// Physical constants.
const (
	rEarth = 6371200. // Earth mean radius [m]
	g      = 9.80665  // gravitational acceleration [m/s2]
	κ      = 0.41     // Von Kármán constant
	µAir   = 1.81e-5  // dynamic viscosity of air [kg/(m s)]
	ρAir   = 1.225    // standard air density [kg/m3]
	p0     = 1013.25  // standard sea-level pressure [hPa]
)

// Default numerical tuning values. Each can be overridden through
// SimulationConfig; they are gathered here rather than scattered through
// the code so tests can reference them directly.
const (
	// defaultTRatio is the maximum fraction of a grid cell a particle
	// is allowed to cross in one time step.
	defaultTRatio = 0.75

	// defaultDtMax is the longest allowed integration step [s].
	defaultDtMax = 3600.

	// wsFloor keeps the CFL bound finite in calm air [m/s].
	wsFloor = 1.e-3

	// defaultScaleHeight converts between height and pressure for
	// start locations, p = p0 exp(-z/H) [m].
	defaultScaleHeight = 8000.

	// defaultVerticalDamping scales the frequency-damped vertical
	// velocity mode.
	defaultVerticalDamping = 1.

	// minCosLat bounds the longitude advection metric away from the
	// poles.
	minCosLat = 0.01

	// massFloor keeps deposited mass from underflowing to exactly zero.
	massFloor = 1.e-30

	// defaultDepletionFraction of the initial mass below which a
	// particle is considered fully deposited.
	defaultDepletionFraction = 0.01
)

// Default planetary boundary layer diagnostics used when the
// meteorological data do not include them.
const (
	defaultMixingHeight = 1500.  // [m]
	defaultUstar        = 0.3    // [m/s]
	defaultObukhovL     = 1.e8   // near-neutral stability [m]
	backgroundKz        = 0.1    // minimum vertical diffusivity [m2/s]
	freeAtmKz           = 3.     // free-troposphere vertical diffusivity [m2/s]
	kh43Coeff           = 0.14   // Richardson 4/3-law coefficient [m^(2/3)/s]
	defaultKhMax        = 1.e5   // horizontal diffusivity cap [m2/s]
)

// autoVertMotionLat is the absolute latitude [degrees] above which
// automatic vertical-motion selection picks the spatially-averaged mode.
const autoVertMotionLat = 30.
