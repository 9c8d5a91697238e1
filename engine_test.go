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
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"zero duration", func(c *SimulationConfig) { c.Duration = 0 }},
		{"start before the data", func(c *SimulationConfig) {
			c.Start = testStart.Add(-100 * time.Hour)
		}},
		{"start after the data", func(c *SimulationConfig) {
			c.Start = testStart.Add(100 * time.Hour)
		}},
		{"release above the data top", func(c *SimulationConfig) {
			c.Locations[0].Height = 20000
		}},
		{"release outside the grid", func(c *SimulationConfig) {
			c.Locations[0].Lon = -120
		}},
	}
	for _, test := range tests {
		cfg := testConfig()
		test.mutate(cfg)
		_, err := NewEngine(cfg, testMetUniform(0, 0, 0))
		if err == nil {
			t.Errorf("%s: no error", test.name)
			continue
		}
		if _, ok := err.(*InvalidConfigurationError); !ok {
			t.Errorf("%s: error type %T", test.name, err)
		}
	}

	// Broken meteorology is caught too.
	d := testMetUniform(0, 0, 0)
	d.U = nil
	if _, err := NewEngine(testConfig(), d); err == nil {
		t.Error("missing wind component: no error")
	}
}

// Particles are laid out by location, then species, then release index,
// with release offsets staggered uniformly across the emission window.
func TestNewEngineParticleLayout(t *testing.T) {
	cfg := testConfig()
	cfg.Locations = []StartLocation{
		{Lat: 42, Lon: -86, Height: 500, Kind: HeightAGL},
		{Lat: 40, Lon: -88, Height: 1000, Kind: HeightAGL},
	}
	cfg.Species = []Species{{Name: "so2"}, {Name: "pm25", Diameter: 2.5e-6, Density: 1000}}
	cfg.ParticlesPerLocation = 2
	cfg.ReleaseMass = 10
	cfg.EmissionDuration = time.Hour

	e := testEngine(t, cfg, testMetUniform(0, 0, 0))
	ps := e.Particles()
	if len(ps) != 8 {
		t.Fatalf("have %d particles, want 8", len(ps))
	}

	wantSpecies := []int{0, 0, 1, 1, 0, 0, 1, 1}
	wantStarts := []float64{0, 1800, 0, 1800, 0, 1800, 0, 1800}
	for i, p := range ps {
		if p.Species != wantSpecies[i] {
			t.Errorf("particle %d: species %d, want %d", i, p.Species, wantSpecies[i])
		}
		if e.starts[i] != wantStarts[i] {
			t.Errorf("particle %d: start %g, want %g", i, e.starts[i], wantStarts[i])
		}
		if p.Mass != 5 {
			t.Errorf("particle %d: mass %g, want 5", i, p.Mass)
		}
		wantLon := -86.
		if i >= 4 {
			wantLon = -88
		}
		if p.Lon != wantLon {
			t.Errorf("particle %d: longitude %g, want %g", i, p.Lon, wantLon)
		}
	}

	// Backward runs stagger the release backward as well.
	cfg = testConfig()
	cfg.Duration = -2 * time.Hour
	cfg.Start = testStart.Add(3 * time.Hour)
	cfg.ParticlesPerLocation = 2
	cfg.EmissionDuration = time.Hour
	e = testEngine(t, cfg, testMetUniform(0, 0, 0))
	if e.starts[1] != -1800 {
		t.Errorf("backward stagger: have %g, want -1800", e.starts[1])
	}
}

// A run records exactly one point per output interval, on the interval.
func TestRunOutputTimes(t *testing.T) {
	var buf bytes.Buffer
	e := testEngine(t, testConfig(), testMetUniform(0, 0, 0))
	e.Log = &buf
	trajs := e.Run()
	if len(trajs) != 1 {
		t.Fatalf("have %d trajectories, want 1", len(trajs))
	}
	tr := trajs[0]
	if tr.Reason != Completed {
		t.Fatalf("reason %v, want completed", tr.Reason)
	}
	if len(tr.Points) != 5 {
		t.Fatalf("have %d points, want 5", len(tr.Points))
	}
	for i, pt := range tr.Points {
		want := testStart.Add(time.Duration(i) * 30 * time.Minute)
		if !pt.T.Equal(want) {
			t.Errorf("point %d: time %v, want %v", i, pt.T, want)
		}
		// Calm air: the particle never moves.
		if pt.Lon != -86 || pt.Lat != 42 || pt.Z != 500 || pt.Mass != 1 {
			t.Errorf("point %d: %+v", i, pt)
		}
	}
	if !strings.Contains(buf.String(), "sequential strategy") {
		t.Errorf("log output %q", buf.String())
	}
}

// One particle leaving the domain terminates that trajectory only.
func TestRunErrorIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Locations = []StartLocation{
		{Lat: 42, Lon: -80.5, Height: 500, Kind: HeightAGL}, // near the east edge
		{Lat: 42, Lon: -86, Height: 500, Kind: HeightAGL},
	}
	trajs := testEngine(t, cfg, testMetUniform(50, 0, 0)).Run()
	if len(trajs) != 2 {
		t.Fatalf("have %d trajectories, want 2", len(trajs))
	}
	if trajs[0].Reason != LeftDomain {
		t.Errorf("edge particle: reason %v, want left domain", trajs[0].Reason)
	}
	if trajs[1].Reason != Completed {
		t.Errorf("interior particle: reason %v, want completed", trajs[1].Reason)
	}
	if len(trajs[0].Points) < 1 {
		t.Error("terminated trajectory lost its release point")
	}
}

// Parallel execution must reproduce sequential results exactly, even with
// turbulence switched on, because every particle owns a random stream.
func TestRunParallelMatchesSequential(t *testing.T) {
	run := func(strategy Strategy) []Trajectory {
		cfg := testConfig()
		cfg.ParticlesPerLocation = 6
		cfg.Turbulence = TurbulenceFixed
		cfg.TurbulenceSigma = 0.5
		cfg.RandomSeed = 11
		cfg.Strategy = strategy
		return testEngine(t, cfg, testMetUniform(4, 2, 0)).Run()
	}
	seq := run(StrategySequential)
	par := run(StrategyParallel)
	if len(seq) != len(par) {
		t.Fatalf("trajectory counts differ: %d != %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Reason != par[i].Reason {
			t.Errorf("particle %d: reasons differ: %v != %v", i, seq[i].Reason, par[i].Reason)
		}
		if len(seq[i].Points) != len(par[i].Points) {
			t.Fatalf("particle %d: point counts differ: %d != %d",
				i, len(seq[i].Points), len(par[i].Points))
		}
		for j, a := range seq[i].Points {
			b := par[i].Points[j]
			if !a.T.Equal(b.T) || a.Lon != b.Lon || a.Lat != b.Lat || a.Z != b.Z || a.Mass != b.Mass {
				t.Errorf("particle %d point %d: %+v != %+v", i, j, a, b)
			}
		}
	}
}

// With a simultaneous release and no turbulence the lock-step batch
// strategy follows the same shared clock as the scalar one.
func TestRunBatchedMatchesSequential(t *testing.T) {
	run := func(strategy Strategy) []Trajectory {
		cfg := testConfig()
		cfg.ParticlesPerLocation = 3
		cfg.Strategy = strategy
		return testEngine(t, cfg, testMetUniform(10, 5, 0)).Run()
	}
	seq := run(StrategySequential)
	bat := run(StrategyBatched)
	if len(seq) != len(bat) {
		t.Fatalf("trajectory counts differ: %d != %d", len(seq), len(bat))
	}
	for i := range seq {
		if seq[i].Reason != bat[i].Reason {
			t.Errorf("particle %d: reasons differ: %v != %v", i, seq[i].Reason, bat[i].Reason)
		}
		if len(seq[i].Points) != len(bat[i].Points) {
			t.Fatalf("particle %d: point counts differ: %d != %d",
				i, len(seq[i].Points), len(bat[i].Points))
		}
		for j, a := range seq[i].Points {
			b := bat[i].Points[j]
			if !a.T.Equal(b.T) {
				t.Errorf("particle %d point %d: times %v != %v", i, j, a.T, b.T)
			}
			if absDifferent(a.Lon, b.Lon, 1e-12) || absDifferent(a.Lat, b.Lat, 1e-12) ||
				absDifferent(a.Z, b.Z, 1e-12) {
				t.Errorf("particle %d point %d: %+v != %+v", i, j, a, b)
			}
		}
	}
}

// A staggered release under the batch strategy starts each particle on
// the shared clock and runs it for the full duration.
func TestRunBatchedStaggeredRelease(t *testing.T) {
	cfg := testConfig()
	cfg.ParticlesPerLocation = 2
	cfg.EmissionDuration = time.Hour
	cfg.Strategy = StrategyBatched
	trajs := testEngine(t, cfg, testMetUniform(0, 0, 0)).Run()

	if !trajs[0].Points[0].T.Equal(testStart) {
		t.Errorf("first particle released at %v", trajs[0].Points[0].T)
	}
	if !trajs[1].Points[0].T.Equal(testStart.Add(30 * time.Minute)) {
		t.Errorf("second particle released at %v", trajs[1].Points[0].T)
	}
	for i, tr := range trajs {
		if tr.Reason != Completed {
			t.Errorf("particle %d: reason %v", i, tr.Reason)
		}
		last := tr.Points[len(tr.Points)-1].T
		want := trajs[0].Points[0].T.Add(2*time.Hour + time.Duration(i)*30*time.Minute)
		if !last.Equal(want) {
			t.Errorf("particle %d: ended at %v, want %v", i, last, want)
		}
	}
}

// Deposition can end a trajectory before the run duration elapses.
func TestRunDeposited(t *testing.T) {
	cfg := testConfig()
	cfg.DryDeposition = true
	cfg.Species = []Species{{Name: "sticky", VDep: 10}}
	trajs := testEngine(t, cfg, testMetUniform(0, 0, 0)).Run()
	tr := trajs[0]
	if tr.Reason != Deposited {
		t.Fatalf("reason %v, want deposited", tr.Reason)
	}
	last := tr.Points[len(tr.Points)-1]
	if !last.T.Before(testStart.Add(2 * time.Hour)) {
		t.Error("deposited trajectory ran the full duration")
	}
	if last.Mass >= 0.01 {
		t.Errorf("final mass %g above the depletion threshold", last.Mass)
	}
}

// A backward run from a forward run's end point returns to its start.
func TestRunBackward(t *testing.T) {
	fwd := testEngine(t, testConfig(), testMetUniform(10, 0, 0)).Run()
	end := fwd[0].Points[len(fwd[0].Points)-1]

	cfg := testConfig()
	cfg.Start = testStart.Add(2 * time.Hour)
	cfg.Duration = -2 * time.Hour
	cfg.Locations = []StartLocation{{Lat: end.Lat, Lon: end.Lon, Height: end.Z, Kind: HeightAGL}}
	bwd := testEngine(t, cfg, testMetUniform(10, 0, 0)).Run()
	tr := bwd[0]
	if tr.Reason != Completed {
		t.Fatalf("reason %v, want completed", tr.Reason)
	}
	back := tr.Points[len(tr.Points)-1]
	if !back.T.Equal(testStart) {
		t.Errorf("backward run ended at %v, want %v", back.T, testStart)
	}
	if absDifferent(back.Lon, -86, 1e-9) || absDifferent(back.Lat, 42, 1e-9) ||
		absDifferent(back.Z, 500, 1e-9) {
		t.Errorf("backward run ended at (%.12f, %.12f, %.12f), want (-86, 42, 500)",
			back.Lon, back.Lat, back.Z)
	}
}

// The iteration cap terminates runaway particles without losing their
// recorded history.
func TestRunIterationLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2
	trajs := testEngine(t, cfg, testMetUniform(0, 0, 0)).Run()
	tr := trajs[0]
	if tr.Reason != IterationLimit {
		t.Fatalf("reason %v, want iteration limit", tr.Reason)
	}
	last := tr.Points[len(tr.Points)-1]
	if !last.T.Equal(testStart.Add(time.Hour)) {
		t.Errorf("stopped at %v, want %v", last.T, testStart.Add(time.Hour))
	}
}

func TestChooseStrategy(t *testing.T) {
	mk := func(n int, duration time.Duration, strategy Strategy) *Engine {
		cfg := DefaultConfig()
		cfg.Duration = duration
		cfg.Strategy = strategy
		return &Engine{cfg: cfg, particles: make([]Particle, n)}
	}
	tests := []struct {
		e    *Engine
		want Strategy
	}{
		{mk(100, 24 * time.Hour, StrategyAuto), StrategySequential},
		{mk(1000, 24 * time.Hour, StrategyAuto), StrategyParallel},
		{mk(5000, 24 * time.Hour, StrategyAuto), StrategyBatched},
		{mk(20000, 30 * time.Minute, StrategyAuto), StrategySequential}, // work boundary
		{mk(5000, -24 * time.Hour, StrategyAuto), StrategyBatched},
		{mk(100000, 24 * time.Hour, StrategySequential), StrategySequential},
		{mk(1, time.Hour, StrategyParallel), StrategyParallel},
	}
	for i, test := range tests {
		if have := test.e.chooseStrategy(); have != test.want {
			t.Errorf("case %d: have %v, want %v", i, have, test.want)
		}
	}
}

// Concentration grids accumulate one ensemble snapshot per output time.
func TestRunConcentrationGrid(t *testing.T) {
	cfg := testConfig()
	cfg.Grids = []ConcGridConfig{{
		Name: "plume", LonMin: -88, LatMin: 40, DLon: 1, DLat: 1,
		Nx: 4, Ny: 4, LevelTops: []float64{1000},
	}}
	e := testEngine(t, cfg, testMetUniform(0, 0, 0))
	e.Run()

	cg := e.Grids()[0]
	// Five snapshots of one unit-mass particle in cell (2, 2).
	if sum := cg.Mass.Sum(); different(sum, 5, 1e-12) {
		t.Errorf("accumulated mass: have %g, want 5", sum)
	}
	if have := cg.Mass.Get(0, 2, 2); different(have, 5, 1e-12) {
		t.Errorf("cell mass: have %g, want 5", have)
	}
	if n := cg.Counts.Get(0, 0, 0); n != 5 {
		t.Errorf("sample count: have %g, want 5", n)
	}
	conc := cg.Finalize()
	want := 1 / (cellArea(42, 43, 1) * 1000)
	if have := conc.Get(0, 2, 2); different(have, want, 1e-12) {
		t.Errorf("concentration: have %g, want %g", have, want)
	}
}
