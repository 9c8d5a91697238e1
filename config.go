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

	"github.com/ctessum/atmos/wesely1989"
)

// HeightKind says how a start height is expressed.
type HeightKind int

const (
	// HeightAGL is meters above ground level.
	HeightAGL HeightKind = iota
	// HeightHPa is a pressure level [hPa].
	HeightHPa
)

// A StartLocation is one release point.
type StartLocation struct {
	Lat    float64 `desc:"Latitude" units:"degrees"`
	Lon    float64 `desc:"Longitude" units:"degrees"`
	Height float64 `desc:"Release height" units:"m AGL or hPa"`
	Kind   HeightKind
}

// Species describes one pollutant type. The zero value is a non-depositing
// unit tracer.
type Species struct {
	Name string

	// Diameter > 0 marks the species as particulate; zero means gaseous.
	Diameter float64 `desc:"Particle diameter" units:"m"`
	Density  float64 `desc:"Particle density" units:"kg/m3"`

	// GasData holds the Wesely (1989) solubility and reactivity
	// properties used for gaseous dry deposition; nil disables it.
	GasData *wesely1989.GasData
	IsSO2   bool
	IsO3    bool

	// VDep > 0 overrides the computed dry deposition velocity [m/s].
	VDep float64

	// Below-cloud scavenging coefficient Λ = A·Pᴮ, with P the
	// precipitation rate in mm/h and Λ in 1/s.
	ScavengingA float64
	ScavengingB float64

	// InCloudRatio scales precipitation rate into an in-cloud
	// scavenging coefficient [1/s per mm/h], applied only between
	// cloud base and cloud top.
	InCloudRatio float64
}

// gaseous reports whether the species deposits as a gas.
func (s Species) gaseous() bool { return s.Diameter <= 0 }

// SimulationConfig holds everything that defines one run. It is immutable
// for the duration of the run.
type SimulationConfig struct {
	Start     time.Time
	Locations []StartLocation

	// Duration is the total integration time; a negative value runs a
	// backward trajectory.
	Duration time.Duration

	VerticalMotion VertMotionMode

	// ModelTop is the vertical lid [m] for height-coordinate data.
	ModelTop float64

	// Numerical tuning constants; DefaultConfig supplies the standard
	// values.
	DtMax           float64 `desc:"Longest integration step" units:"s"`
	TRatio          float64 `desc:"CFL fraction of a grid cell per step" units:"-"`
	ScaleHeight     float64 `desc:"Height to pressure conversion scale" units:"m"`
	VerticalDamping float64 `desc:"Extra damping for the frequency-damped vertical mode" units:"-"`

	// Physics toggles.
	DryDeposition bool
	WetDeposition bool
	Turbulence    TurbulenceMode
	// TurbulenceSigma is the velocity standard deviation [m/s] for
	// TurbulenceFixed.
	TurbulenceSigma float64
	// KhMax caps the boundary-layer horizontal diffusivity [m2/s].
	KhMax float64
	// DepletionFraction of initial mass below which a particle is
	// considered fully deposited.
	DepletionFraction float64

	Species []Species

	// ParticlesPerLocation is the number of particles released from
	// each start location (per species).
	ParticlesPerLocation int
	// ReleaseMass is the total mass [kg] released per location per
	// species, divided evenly among its particles.
	ReleaseMass float64
	// EmissionDuration spreads particle release uniformly across a
	// window starting at Start; zero releases everything at Start.
	EmissionDuration time.Duration

	// OutputInterval is the time between recorded trajectory points;
	// zero records every integration step.
	OutputInterval time.Duration

	Grids []ConcGridConfig

	// Execution controls.
	Strategy      Strategy
	MaxIterations int
	RandomSeed    uint64
}

// DefaultConfig returns a configuration with all tuning constants at their
// defaults: one unit-mass tracer particle per location, no deposition, no
// turbulence, automatic vertical-motion selection, hourly output.
func DefaultConfig() *SimulationConfig {
	return &SimulationConfig{
		Duration:             24 * time.Hour,
		VerticalMotion:       VertMotionAuto,
		ModelTop:             10000.,
		DtMax:                defaultDtMax,
		TRatio:               defaultTRatio,
		ScaleHeight:          defaultScaleHeight,
		VerticalDamping:      defaultVerticalDamping,
		KhMax:                defaultKhMax,
		DepletionFraction:    defaultDepletionFraction,
		Species:              []Species{{Name: "tracer"}},
		ParticlesPerLocation: 1,
		ReleaseMass:          1,
		OutputInterval:       time.Hour,
		MaxIterations:        1000000,
	}
}

// Validate checks the configuration for values that cannot be run,
// returning an InvalidConfigurationError describing the first problem
// found. Checks that need the meteorological data, such as start-height
// conversion, happen in NewEngine instead.
func (c *SimulationConfig) Validate() error {
	if c.Duration == 0 {
		return &InvalidConfigurationError{Field: "Duration", Value: c.Duration,
			Reason: "run duration must be nonzero"}
	}
	if len(c.Locations) == 0 {
		return &InvalidConfigurationError{Field: "Locations", Value: c.Locations,
			Reason: "at least one start location is required"}
	}
	for _, loc := range c.Locations {
		if loc.Lat < -90 || loc.Lat > 90 {
			return &InvalidConfigurationError{Field: "Locations", Value: loc.Lat,
				Reason: "latitude must be within [-90, 90]"}
		}
		if loc.Kind == HeightHPa && loc.Height <= 0 {
			return &InvalidConfigurationError{Field: "Locations", Value: loc.Height,
				Reason: "pressure heights must be positive"}
		}
		if loc.Kind == HeightAGL && loc.Height < 0 {
			return &InvalidConfigurationError{Field: "Locations", Value: loc.Height,
				Reason: "heights above ground must not be negative"}
		}
	}
	if c.TRatio <= 0 || c.TRatio > 1 {
		return &InvalidConfigurationError{Field: "TRatio", Value: c.TRatio,
			Reason: "the CFL fraction must be within (0, 1]"}
	}
	if c.DtMax <= 0 {
		return &InvalidConfigurationError{Field: "DtMax", Value: c.DtMax,
			Reason: "the maximum time step must be positive"}
	}
	if c.ScaleHeight <= 0 {
		return &InvalidConfigurationError{Field: "ScaleHeight", Value: c.ScaleHeight,
			Reason: "the scale height must be positive"}
	}
	if c.VerticalDamping < 0 || c.VerticalDamping > 1 {
		return &InvalidConfigurationError{Field: "VerticalDamping", Value: c.VerticalDamping,
			Reason: "the damping factor must be within [0, 1]"}
	}
	if c.Turbulence == TurbulenceFixed && c.TurbulenceSigma <= 0 {
		return &InvalidConfigurationError{Field: "TurbulenceSigma", Value: c.TurbulenceSigma,
			Reason: "fixed-sigma turbulence needs a positive standard deviation"}
	}
	if c.DepletionFraction <= 0 || c.DepletionFraction >= 1 {
		return &InvalidConfigurationError{Field: "DepletionFraction", Value: c.DepletionFraction,
			Reason: "the depletion threshold must be within (0, 1)"}
	}
	if len(c.Species) == 0 {
		return &InvalidConfigurationError{Field: "Species", Value: c.Species,
			Reason: "at least one species is required"}
	}
	for _, sp := range c.Species {
		if sp.Diameter > 0 && sp.Density <= 0 {
			return &InvalidConfigurationError{Field: "Species", Value: sp.Name,
				Reason: "particulate species need a positive density"}
		}
		if sp.ScavengingA < 0 || sp.InCloudRatio < 0 {
			return &InvalidConfigurationError{Field: "Species", Value: sp.Name,
				Reason: "scavenging coefficients must not be negative"}
		}
	}
	if c.ParticlesPerLocation < 1 {
		return &InvalidConfigurationError{Field: "ParticlesPerLocation",
			Value: c.ParticlesPerLocation, Reason: "at least one particle per location is required"}
	}
	if c.ReleaseMass <= 0 {
		return &InvalidConfigurationError{Field: "ReleaseMass", Value: c.ReleaseMass,
			Reason: "the released mass must be positive"}
	}
	if c.OutputInterval < 0 {
		return &InvalidConfigurationError{Field: "OutputInterval", Value: c.OutputInterval,
			Reason: "the output interval must not be negative"}
	}
	if c.MaxIterations < 1 {
		return &InvalidConfigurationError{Field: "MaxIterations", Value: c.MaxIterations,
			Reason: "the iteration limit must be positive"}
	}
	for _, gc := range c.Grids {
		if err := gc.validate(); err != nil {
			return err
		}
	}
	return nil
}

// startHeight converts a StartLocation's height into the data's vertical
// coordinate: pressure coordinates use p = p0·exp(-z/H) with the configured
// scale height H, and height coordinates use its inverse.
func (c *SimulationConfig) startHeight(loc StartLocation, vc VerticalCoordinate) (float64, error) {
	switch vc {
	case PressureLevels:
		if loc.Kind == HeightHPa {
			return loc.Height, nil
		}
		return p0 * math.Exp(-loc.Height/c.ScaleHeight), nil
	case HeightLevels:
		if loc.Kind == HeightAGL {
			return loc.Height, nil
		}
		return -c.ScaleHeight * math.Log(loc.Height/p0), nil
	}
	return 0, &InvalidConfigurationError{Field: "VerticalCoordinate", Value: vc,
		Reason: "unknown vertical coordinate kind"}
}

// forward reports the direction of integration.
func (c *SimulationConfig) forward() bool { return c.Duration > 0 }
