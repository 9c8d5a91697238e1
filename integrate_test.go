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
)

// testEngine builds an engine without running it.
func testEngine(t *testing.T, cfg *SimulationConfig, d *MetData) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, d)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// With zero wind and no turbulence a particle must not move at all.
func TestAdvanceCalm(t *testing.T) {
	d := testMetUniform(0, 0, 0)
	e := testEngine(t, testConfig(), d)
	s := NewSampler(d)
	tb := e.newTurbulence(0)

	p := newParticle(-86, 42, 500, 1, 0)
	for i := 0; i < 10; i++ {
		if err := e.advance(&p, s, tb, float64(i)*600, 600); err != nil {
			t.Fatal(err)
		}
	}
	if p.Lon != -86 || p.Lat != 42 || p.Z != 500 {
		t.Errorf("particle moved in calm air: (%g, %g, %g)", p.Lon, p.Lat, p.Z)
	}
}

// In a steady uniform wind the predictor and corrector agree, so a step
// must match the analytic displacement exactly.
func TestAdvanceUniformWind(t *testing.T) {
	const (
		u  = 10.
		v  = 5.
		Δt = 600.
	)

	// Zonal motion at constant latitude.
	d := testMetUniform(u, 0, 0)
	e := testEngine(t, testConfig(), d)
	s := NewSampler(d)
	tb := e.newTurbulence(0)
	p := newParticle(-86, 42, 500, 1, 0)
	if err := e.advance(&p, s, tb, 0, Δt); err != nil {
		t.Fatal(err)
	}
	wantLon := -86 + u*Δt/(rEarth*math.Cos(42*math.Pi/180))*degPerRad
	if different(p.Lon, wantLon, 1e-12) || p.Lat != 42 || p.Z != 500 {
		t.Errorf("zonal step: have (%.10f, %g, %g), want (%.10f, 42, 500)",
			p.Lon, p.Lat, p.Z, wantLon)
	}

	// Meridional motion is independent of the longitude metric.
	d = testMetUniform(0, v, 0)
	e = testEngine(t, testConfig(), d)
	s = NewSampler(d)
	p = newParticle(-86, 42, 500, 1, 0)
	if err := e.advance(&p, s, tb, 0, Δt); err != nil {
		t.Fatal(err)
	}
	wantLat := 42 + v*Δt/rEarth*degPerRad
	if different(p.Lat, wantLat, 1e-12) || p.Lon != -86 {
		t.Errorf("meridional step: have (%g, %.10f), want (-86, %.10f)",
			p.Lon, p.Lat, wantLat)
	}
}

// A step forward followed by the same step backward must return to the
// start when the wind is steady. The wind has no meridional component so
// the longitude metric is evaluated at the same latitude both ways.
func TestAdvanceReversible(t *testing.T) {
	d := testMetUniform(8, 0, 0.05)
	cfg := testConfig()
	cfg.VerticalMotion = VertMotionData
	e := testEngine(t, cfg, d)
	s := NewSampler(d)
	tb := e.newTurbulence(0)

	p := newParticle(-86, 42, 500, 1, 0)
	if err := e.advance(&p, s, tb, 3600, 600); err != nil {
		t.Fatal(err)
	}
	if err := e.advance(&p, s, tb, 4200, -600); err != nil {
		t.Fatal(err)
	}
	if absDifferent(p.Lon, -86, 1e-9) || absDifferent(p.Lat, 42, 1e-9) ||
		absDifferent(p.Z, 500, 1e-9) {
		t.Errorf("round trip drifted to (%.12f, %.12f, %.12f)", p.Lon, p.Lat, p.Z)
	}
}

// The predictor's vertical overshoot is clamped into the grid so the
// corrector can still sample, rather than failing the step.
func TestAdvanceVerticalOvershoot(t *testing.T) {
	d := testMetUniform(0, 0, 40) // 40 m/s upward
	cfg := testConfig()
	cfg.VerticalMotion = VertMotionData
	e := testEngine(t, cfg, d)
	s := NewSampler(d)
	tb := e.newTurbulence(0)

	p := newParticle(-86, 42, 4900, 1, 0)
	if err := e.advance(&p, s, tb, 0, 600); err != nil {
		t.Fatalf("overshooting step should not fail: %v", err)
	}
	// 4900 + 40*600 = 28900 before the boundary correction.
	if p.Z != 4900+40*600 {
		t.Errorf("have %g, want %g", p.Z, 4900.+40*600)
	}
}

// advanceBatch must reproduce advance point for point.
func TestAdvanceBatch(t *testing.T) {
	d := testMetGraded()
	// Scale the graded winds down so steps stay inside the grid.
	for i := range d.U.Elements {
		d.U.Elements[i] *= 1e-3
		d.V.Elements[i] *= 1e-3
		d.W.Elements[i] *= 1e-4
	}
	cfg := testConfig()
	cfg.VerticalMotion = VertMotionData
	e := testEngine(t, cfg, d)
	tb := e.newTurbulence(0)

	ps := []Particle{
		newParticle(-86, 42, 500, 1, 0),
		newParticle(-84.2, 40.7, 1200, 1, 0),
		newParticle(-103, 41, 800, 1, 0), // outside the domain
		newParticle(-88.9, 44.3, 300, 1, 0),
	}
	mask := []bool{true, true, true, false}
	want := make([]Particle, len(ps))
	copy(want, ps)

	const tm, Δt = 5400., 450.
	errs := make([]error, len(ps))
	e.advanceBatch(NewSampler(d), tb, ps, mask, tm, Δt, errs)

	scalar := NewSampler(d)
	for i := range want {
		if !mask[i] {
			if ps[i] != want[i] {
				t.Errorf("masked particle %d was modified", i)
			}
			continue
		}
		err := e.advance(&want[i], scalar, tb, tm, Δt)
		if (err == nil) != (errs[i] == nil) {
			t.Errorf("particle %d: batch error %v, scalar error %v", i, errs[i], err)
			continue
		}
		if err != nil {
			// A failed particle's state stays untouched.
			if i == 2 && ps[i].Lon != -103 {
				t.Errorf("failed particle %d was moved", i)
			}
			continue
		}
		if ps[i].Lon != want[i].Lon || ps[i].Lat != want[i].Lat || ps[i].Z != want[i].Z {
			t.Errorf("particle %d: batch (%.12f, %.12f, %.12f) != scalar (%.12f, %.12f, %.12f)",
				i, ps[i].Lon, ps[i].Lat, ps[i].Z,
				want[i].Lon, want[i].Lat, want[i].Z)
		}
	}
}

func TestCosLat(t *testing.T) {
	if c := cosLat(0); c != 1 {
		t.Errorf("equator: have %g, want 1", c)
	}
	if c := cosLat(90); c != minCosLat {
		t.Errorf("pole: have %g, want %g", c, minCosLat)
	}
	if c := cosLat(-89.999); c != minCosLat {
		t.Errorf("near pole: have %g, want %g", c, minCosLat)
	}
}
