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
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Locations = []StartLocation{{Lat: 42, Lon: -86, Height: 10}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration does not validate: %v", err)
	}
	if cfg.Duration != 24*time.Hour {
		t.Errorf("duration: have %v, want 24h", cfg.Duration)
	}
	if cfg.ParticlesPerLocation != 1 || cfg.ReleaseMass != 1 {
		t.Errorf("release: have %d particles of %g kg, want 1 of 1",
			cfg.ParticlesPerLocation, cfg.ReleaseMass)
	}
	if len(cfg.Species) != 1 || cfg.Species[0].Name != "tracer" {
		t.Errorf("species: have %+v, want one unit tracer", cfg.Species)
	}

	// Negative durations are backward runs, not errors.
	cfg.Duration = -2 * time.Hour
	if err := cfg.Validate(); err != nil {
		t.Errorf("backward duration rejected: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		mutate func(*SimulationConfig)
	}{
		{"zero duration", "Duration", func(c *SimulationConfig) { c.Duration = 0 }},
		{"no locations", "Locations", func(c *SimulationConfig) { c.Locations = nil }},
		{"bad latitude", "Locations", func(c *SimulationConfig) { c.Locations[0].Lat = 91 }},
		{"zero pressure height", "Locations", func(c *SimulationConfig) {
			c.Locations[0].Kind = HeightHPa
			c.Locations[0].Height = 0
		}},
		{"negative height", "Locations", func(c *SimulationConfig) { c.Locations[0].Height = -5 }},
		{"zero CFL fraction", "TRatio", func(c *SimulationConfig) { c.TRatio = 0 }},
		{"CFL fraction above one", "TRatio", func(c *SimulationConfig) { c.TRatio = 1.5 }},
		{"zero max step", "DtMax", func(c *SimulationConfig) { c.DtMax = 0 }},
		{"zero scale height", "ScaleHeight", func(c *SimulationConfig) { c.ScaleHeight = 0 }},
		{"damping above one", "VerticalDamping", func(c *SimulationConfig) { c.VerticalDamping = 1.5 }},
		{"fixed turbulence without sigma", "TurbulenceSigma", func(c *SimulationConfig) {
			c.Turbulence = TurbulenceFixed
		}},
		{"zero depletion threshold", "DepletionFraction", func(c *SimulationConfig) {
			c.DepletionFraction = 0
		}},
		{"no species", "Species", func(c *SimulationConfig) { c.Species = nil }},
		{"particulate without density", "Species", func(c *SimulationConfig) {
			c.Species = []Species{{Name: "pm", Diameter: 1e-6}}
		}},
		{"negative scavenging", "Species", func(c *SimulationConfig) {
			c.Species = []Species{{Name: "x", ScavengingA: -1}}
		}},
		{"zero particles", "ParticlesPerLocation", func(c *SimulationConfig) {
			c.ParticlesPerLocation = 0
		}},
		{"zero release mass", "ReleaseMass", func(c *SimulationConfig) { c.ReleaseMass = 0 }},
		{"negative output interval", "OutputInterval", func(c *SimulationConfig) {
			c.OutputInterval = -time.Minute
		}},
		{"zero iteration limit", "MaxIterations", func(c *SimulationConfig) { c.MaxIterations = 0 }},
		{"bad grid", "ConcGridConfig.Nx/Ny", func(c *SimulationConfig) {
			gc := testGridConfig()
			gc.Nx = 0
			c.Grids = []ConcGridConfig{gc}
		}},
	}
	for _, c := range cases {
		cfg := testConfig()
		c.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: no error", c.name)
			continue
		}
		ice, ok := err.(*InvalidConfigurationError)
		if !ok {
			t.Errorf("%s: error type %T, want *InvalidConfigurationError", c.name, err)
			continue
		}
		if ice.Field != c.field {
			t.Errorf("%s: error names field %q, want %q", c.name, ice.Field, c.field)
		}
	}
}

func TestStartHeight(t *testing.T) {
	cfg := testConfig()

	// Heights pass through when they already match the data's
	// coordinate.
	h, err := cfg.startHeight(StartLocation{Height: 500, Kind: HeightAGL}, HeightLevels)
	if err != nil {
		t.Fatal(err)
	}
	if h != 500 {
		t.Errorf("AGL on height levels: have %g, want 500", h)
	}
	h, err = cfg.startHeight(StartLocation{Height: 850, Kind: HeightHPa}, PressureLevels)
	if err != nil {
		t.Fatal(err)
	}
	if h != 850 {
		t.Errorf("hPa on pressure levels: have %g, want 850", h)
	}

	// Mismatched kinds convert through the hydrostatic scale height.
	h, err = cfg.startHeight(StartLocation{Height: 850, Kind: HeightHPa}, HeightLevels)
	if err != nil {
		t.Fatal(err)
	}
	if want := -cfg.ScaleHeight * math.Log(850/p0); h != want {
		t.Errorf("hPa on height levels: have %g, want %g", h, want)
	}
	h, err = cfg.startHeight(StartLocation{Height: 500, Kind: HeightAGL}, PressureLevels)
	if err != nil {
		t.Fatal(err)
	}
	if want := p0 * math.Exp(-500/cfg.ScaleHeight); h != want {
		t.Errorf("AGL on pressure levels: have %g, want %g", h, want)
	}

	// The two conversions are inverses.
	p, err := cfg.startHeight(StartLocation{Height: 1200, Kind: HeightAGL}, PressureLevels)
	if err != nil {
		t.Fatal(err)
	}
	z, err := cfg.startHeight(StartLocation{Height: p, Kind: HeightHPa}, HeightLevels)
	if err != nil {
		t.Fatal(err)
	}
	if absDifferent(z, 1200, 1e-9) {
		t.Errorf("conversion round trip: have %g, want 1200", z)
	}

	if _, err := cfg.startHeight(StartLocation{Height: 500}, VerticalCoordinate(9)); err == nil {
		t.Error("unknown vertical coordinate: no error")
	}
}

func TestForward(t *testing.T) {
	cfg := testConfig()
	if !cfg.forward() {
		t.Error("positive duration should integrate forward")
	}
	cfg.Duration = -2 * time.Hour
	if cfg.forward() {
		t.Error("negative duration should integrate backward")
	}
}
