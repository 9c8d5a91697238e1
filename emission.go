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
	"fmt"
	"io"
	"math"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/atmos/plumerise"
	"github.com/ctessum/unit"
)

// A Source is one point emission source. Stack parameters are optional;
// when all three of Diam, Temp, and Velocity are positive the release
// height is raised by buoyant and momentum plume rise, otherwise
// particles are released at Height directly.
type Source struct {
	Name string
	Lon  float64 `desc:"Longitude" units:"degrees"`
	Lat  float64 `desc:"Latitude" units:"degrees"`

	Height   float64 // stack height [m above ground]
	Diam     float64 // stack diameter [m]
	Temp     float64 // stack temperature [K]
	Velocity float64 // stack exit velocity [m/s]

	Rate float64 `desc:"Emission rate" units:"kg/s"`
}

// elevated reports whether the source has the stack parameters plume
// rise needs.
func (s *Source) elevated() bool {
	return s.Diam > 0 && s.Temp > 0 && s.Velocity > 0
}

// massRate is the dimension set of an emission rate.
var massRate = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -1}

// SetEmissionRate sets the source's emission rate, returning an error
// when v does not have dimensions of mass per time.
func (s *Source) SetEmissionRate(v *unit.Unit) error {
	if err := v.Check(massRate); err != nil {
		return fmt.Errorf("lpdm: emission rate of source %q: %v", s.Name, err)
	}
	s.Rate = v.Value()
	return nil
}

// EmissionRate returns the source's emission rate [kg/s].
func (s *Source) EmissionRate() *unit.Unit {
	return unit.New(s.Rate, massRate)
}

// EmittedMass returns the mass [kg] the source emits over d.
func (s *Source) EmittedMass(d time.Duration) float64 {
	return s.Rate * math.Abs(d.Seconds())
}

// EffectiveHeight returns the source's release height [m above ground]
// at time t: the stack height for ground-level sources, or the ASME
// plume rise height for elevated ones, clamped to the top level of the
// meteorological data when the plume rises out of it. scaleHeight is the
// height-to-pressure conversion scale [m] used when d has pressure
// levels.
func (s *Source) EffectiveHeight(d *MetData, scaleHeight float64, t time.Time) (float64, error) {
	if !s.elevated() {
		return s.Height, nil
	}
	prof, err := newPlumeProfile(d, scaleHeight, s.Lon, s.Lat, t)
	if err != nil {
		return 0, fmt.Errorf("lpdm: plume rise for source %q: %v", s.Name, err)
	}
	top := prof.centers[len(prof.centers)-1]
	_, h, err := plumerise.ASME(s.Height, s.Diam, s.Temp, s.Velocity,
		prof.layerHeights, prof.temperature, prof.windSpeed, prof.sClass, prof.s1)
	if err == plumerise.ErrAboveModelTop {
		return top, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lpdm: plume rise for source %q: %v", s.Name, err)
	}
	return math.Min(h, top), nil
}

// A plumeProfile is a single vertical column of the meteorological data
// in the layout the plume rise calculation wants: staggered layer
// heights [m above ground] plus per-layer temperature [K], wind speed
// [m/s], stability class (0 unstable, 1 stable), and stability
// parameter.
type plumeProfile struct {
	centers      []float64 // level center heights [m above ground]
	layerHeights []float64 // staggered, one more entry than levels
	temperature  []float64
	windSpeed    []float64
	sClass       []float64
	s1           []float64
}

// newPlumeProfile samples the column above (lon, lat) at time t.
// Temperature uses the standard atmosphere when the data carry no
// temperature field.
func newPlumeProfile(d *MetData, scaleHeight float64, lon, lat float64, t time.Time) (*plumeProfile, error) {
	n := len(d.Levels)
	p := &plumeProfile{
		centers:      make([]float64, n),
		layerHeights: make([]float64, n+1),
		temperature:  make([]float64, n),
		windSpeed:    make([]float64, n),
		sClass:       make([]float64, n),
		s1:           make([]float64, n),
	}
	surface := d.surfaceHeight(lon, lat)
	for k, lev := range d.Levels {
		var zc float64
		if d.VCoord == PressureLevels {
			zc = -scaleHeight * math.Log(lev/p0)
		} else {
			zc = lev - surface
		}
		p.centers[k] = math.Max(zc, 0)
	}
	for k := 1; k < n; k++ {
		p.layerHeights[k] = (p.centers[k-1] + p.centers[k]) / 2
	}
	p.layerHeights[n] = 2*p.centers[n-1] - p.layerHeights[n-1]

	s := NewSampler(d)
	tm := t.Sub(d.Start).Seconds()
	θ := make([]float64, n)
	for k, lev := range d.Levels {
		u, v, _, err := s.SampleWind(lon, lat, lev, tm)
		if err != nil {
			return nil, err
		}
		p.windSpeed[k] = math.Hypot(u, v)

		var T float64
		if d.hasScalar(VarTemperature) {
			if T, err = s.SampleScalar(VarTemperature, lon, lat, lev, tm); err != nil {
				return nil, err
			}
		} else {
			// Standard atmosphere, clamped at the tropopause.
			T = math.Max(288.15-0.0065*p.centers[k], 216.65)
		}
		p.temperature[k] = T

		var pressure float64 // Pa
		if d.VCoord == PressureLevels {
			pressure = lev * 100
		} else {
			pressure = p0 * 100 * math.Exp(-lev/scaleHeight)
		}
		θ[k] = potentialTemperature(T, pressure)
	}
	for k := 0; k < n; k++ {
		dθdz := 0.
		if k < n-1 {
			if Δz := p.centers[k+1] - p.centers[k]; Δz > 0 {
				dθdz = (θ[k+1] - θ[k]) / Δz
			}
		}
		p.s1[k] = dθdz / θ[k]
		if dθdz < 0.005 {
			p.sClass[k] = 0
		} else {
			p.sClass[k] = 1
		}
	}
	return p, nil
}

// potentialTemperature converts ambient temperature T [K] at pressure
// p [Pa] to potential temperature [K].
func potentialTemperature(T, p float64) float64 {
	const (
		po    = 101300. // Pa, reference pressure
		kappa = 0.2854
	)
	return T / math.Pow(p/po, kappa)
}

// ApplySources configures cfg to release from the given sources: one
// start location per source at its effective height, and a release mass
// derived from the source rates over the emission window. A zero
// EmissionDuration takes the sources to emit for the whole run. Because
// the configured release mass is shared by every location, sources with
// unequal rates keep the correct total released mass but are attributed
// an even share of it each.
func ApplySources(cfg *SimulationConfig, d *MetData, sources ...*Source) error {
	if len(sources) == 0 {
		return &InvalidConfigurationError{Field: "sources", Value: len(sources),
			Reason: "at least one emission source is required"}
	}
	H := cfg.ScaleHeight
	if H <= 0 {
		H = defaultScaleHeight
	}
	window := cfg.EmissionDuration
	if window == 0 {
		window = cfg.Duration
	}
	locs := make([]StartLocation, 0, len(sources))
	var total float64
	for _, src := range sources {
		if src.Rate <= 0 {
			return &InvalidConfigurationError{Field: "Source.Rate", Value: src.Rate,
				Reason: "emission sources need a positive rate"}
		}
		h, err := src.EffectiveHeight(d, H, cfg.Start)
		if err != nil {
			return err
		}
		locs = append(locs, StartLocation{
			Lat: src.Lat, Lon: src.Lon, Height: h, Kind: HeightAGL,
		})
		total += src.EmittedMass(window)
	}
	cfg.Locations = locs
	cfg.ReleaseMass = total / float64(len(sources))
	return nil
}

// ReadSources reads emission sources from TOML-formatted data, one
// [[source]] table per source:
//
//	[[source]]
//	name = "stack 1"
//	lon = -93.2
//	lat = 44.9
//	height = 75.0
//	diam = 3.0
//	temp = 410.0
//	velocity = 15.0
//	rate = 0.8
func ReadSources(r io.Reader) ([]*Source, error) {
	var holder struct {
		Source []*Source
	}
	if _, err := toml.DecodeReader(r, &holder); err != nil {
		return nil, fmt.Errorf("lpdm: reading emission sources: %v", err)
	}
	if len(holder.Source) == 0 {
		return nil, fmt.Errorf("lpdm: no emission sources found")
	}
	for _, s := range holder.Source {
		if math.IsNaN(s.Height) {
			s.Height = 0.
		}
		if math.IsNaN(s.Diam) {
			s.Diam = 0.
		}
		if math.IsNaN(s.Temp) {
			s.Temp = 0.
		}
		if math.IsNaN(s.Velocity) {
			s.Velocity = 0.
		}
	}
	return holder.Source, nil
}
