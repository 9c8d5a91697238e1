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

package lpdmutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spatialmodel/lpdm"
	"github.com/spf13/viper"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		in   string
		want lpdm.StartLocation
	}{
		{"39.5/-84.2/850hPa", lpdm.StartLocation{Lat: 39.5, Lon: -84.2, Height: 850, Kind: lpdm.HeightHPa}},
		{"42/-86/500m", lpdm.StartLocation{Lat: 42, Lon: -86, Height: 500, Kind: lpdm.HeightAGL}},
		{"42/-86/500", lpdm.StartLocation{Lat: 42, Lon: -86, Height: 500, Kind: lpdm.HeightAGL}},
		{" 42 / -86 / 500 m ", lpdm.StartLocation{Lat: 42, Lon: -86, Height: 500, Kind: lpdm.HeightAGL}},
		{"-33.9/151.2/0", lpdm.StartLocation{Lat: -33.9, Lon: 151.2, Height: 0, Kind: lpdm.HeightAGL}},
	}
	for _, c := range cases {
		loc, err := parseLocation(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if loc != c.want {
			t.Errorf("%q: have %+v, want %+v", c.in, loc, c.want)
		}
	}

	for _, bad := range []string{"42/-86", "42/-86/500/0", "north/-86/500", "42/west/500", "42/-86/high"} {
		if _, err := parseLocation(bad); err == nil {
			t.Errorf("%q: no error", bad)
		}
	}
}

func TestParseVertMotion(t *testing.T) {
	cases := []struct {
		in   string
		want lpdm.VertMotionMode
	}{
		{"", lpdm.VertMotionAuto},
		{"auto", lpdm.VertMotionAuto},
		{"DATA", lpdm.VertMotionData},
		{"isobaric", lpdm.VertMotionIsobaric},
		{"constant", lpdm.VertMotionConstantAltitude},
		{"isentropic", lpdm.VertMotionIsentropic},
		{"average", lpdm.VertMotionAverage},
		{" damped ", lpdm.VertMotionDamped},
	}
	for _, c := range cases {
		m, err := parseVertMotion(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
		} else if m != c.want {
			t.Errorf("%q: have %v, want %v", c.in, m, c.want)
		}
	}
	if _, err := parseVertMotion("sideways"); err == nil {
		t.Error("unknown mode: no error")
	}
}

func TestParseTurbulence(t *testing.T) {
	cases := []struct {
		in   string
		want lpdm.TurbulenceMode
	}{
		{"", lpdm.TurbulenceOff},
		{"off", lpdm.TurbulenceOff},
		{"Fixed", lpdm.TurbulenceFixed},
		{"boundary-layer", lpdm.TurbulenceBoundaryLayer},
		{"boundarylayer", lpdm.TurbulenceBoundaryLayer},
	}
	for _, c := range cases {
		m, err := parseTurbulence(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
		} else if m != c.want {
			t.Errorf("%q: have %v, want %v", c.in, m, c.want)
		}
	}
	if _, err := parseTurbulence("windy"); err == nil {
		t.Error("unknown mode: no error")
	}
}

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want lpdm.Strategy
	}{
		{"", lpdm.StrategyAuto},
		{"auto", lpdm.StrategyAuto},
		{"sequential", lpdm.StrategySequential},
		{"Parallel", lpdm.StrategyParallel},
		{"batched", lpdm.StrategyBatched},
	}
	for _, c := range cases {
		s, err := parseStrategy(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
		} else if s != c.want {
			t.Errorf("%q: have %v, want %v", c.in, s, c.want)
		}
	}
	if _, err := parseStrategy("fastest"); err == nil {
		t.Error("unknown strategy: no error")
	}
}

func TestParseKernel(t *testing.T) {
	cases := []struct {
		in   string
		want lpdm.KernelType
	}{
		{"", lpdm.KernelTopHat},
		{"tophat", lpdm.KernelTopHat},
		{"top-hat", lpdm.KernelTopHat},
		{"Gaussian", lpdm.KernelGaussian},
	}
	for _, c := range cases {
		k, err := parseKernel(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
		} else if k != c.want {
			t.Errorf("%q: have %v, want %v", c.in, k, c.want)
		}
	}
	if _, err := parseKernel("box"); err == nil {
		t.Error("unknown kernel: no error")
	}
}

func TestGetDuration(t *testing.T) {
	v := viper.New()
	d, err := getDuration(v, "Sim.Duration")
	if err != nil {
		t.Fatal(err)
	}
	if d != 0 {
		t.Errorf("unset: have %v, want 0", d)
	}
	v.Set("Sim.Duration", "90m")
	if d, err = getDuration(v, "Sim.Duration"); err != nil {
		t.Fatal(err)
	}
	if d != 90*time.Minute {
		t.Errorf("have %v, want 90m", d)
	}
	v.Set("Sim.Duration", "four score")
	if _, err = getDuration(v, "Sim.Duration"); err == nil {
		t.Error("unparseable duration: no error")
	}
}

func TestToIntSliceE(t *testing.T) {
	// Values arriving from command-line flags are JSON-formatted strings.
	got, err := toIntSliceE("[100,500,1000]")
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{100, 500, 1000}; !reflect.DeepEqual(got, want) {
		t.Errorf("have %v, want %v", got, want)
	}
	// Values from a configuration file arrive as a typed slice.
	got, err = toIntSliceE([]interface{}{100, 2000})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{100, 2000}; !reflect.DeepEqual(got, want) {
		t.Errorf("have %v, want %v", got, want)
	}
	if _, err = toIntSliceE("[100,"); err == nil {
		t.Error("malformed JSON: no error")
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile("", "TrajectoryFile"); err == nil {
		t.Error("empty path: no error")
	}
	if _, err := checkOutputFile("/nonexistent/dir/out.txt", "TrajectoryFile"); err == nil {
		t.Error("missing directory: no error")
	}
	dir, err := ioutil.TempDir("", "lpdm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	want := filepath.Join(dir, "out.txt")
	got, err := checkOutputFile(want, "TrajectoryFile")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("have %q, want %q", got, want)
	}
}

func TestCheckLogFile(t *testing.T) {
	if got := checkLogFile("", "/out/traj.txt"); got != "/out/traj.log" {
		t.Errorf("have %q, want /out/traj.log", got)
	}
	if got := checkLogFile("/tmp/run.log", "/out/traj.txt"); got != "/tmp/run.log" {
		t.Errorf("have %q, want /tmp/run.log", got)
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"ugrd": "U", "vgrd": "V"}

	v := viper.New()
	v.Set("MetVarMap", want)
	if got := GetStringMapString("MetVarMap", v); !reflect.DeepEqual(got, want) {
		t.Errorf("map[string]string: have %v, want %v", got, want)
	}
	v.Set("MetVarMap", map[string]interface{}{"ugrd": "U", "vgrd": "V"})
	if got := GetStringMapString("MetVarMap", v); !reflect.DeepEqual(got, want) {
		t.Errorf("map[string]interface{}: have %v, want %v", got, want)
	}
	// Command-line values arrive as JSON text.
	v.Set("MetVarMap", `{"ugrd":"U","vgrd":"V"}`)
	if got := GetStringMapString("MetVarMap", v); !reflect.DeepEqual(got, want) {
		t.Errorf("json: have %v, want %v", got, want)
	}
}

func TestConcGrids(t *testing.T) {
	v := viper.New()
	grids, err := concGrids(v)
	if err != nil {
		t.Fatal(err)
	}
	if grids != nil {
		t.Errorf("no cells configured: have %+v, want nil", grids)
	}

	v.Set("Grid.Name", "plume")
	v.Set("Grid.LonMin", -90.0)
	v.Set("Grid.LatMin", 38.0)
	v.Set("Grid.DLon", 0.5)
	v.Set("Grid.DLat", 0.5)
	v.Set("Grid.Nx", 16)
	v.Set("Grid.Ny", 12)
	v.Set("Grid.Levels", "[100,500,1000]")
	v.Set("Grid.Kernel", "gaussian")
	v.Set("Grid.KernelSigma", 1.5)
	v.Set("Grid.SampleStart", "2018-07-15T01:00:00Z")
	grids, err = concGrids(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(grids) != 1 {
		t.Fatalf("have %d grids, want 1", len(grids))
	}
	want := lpdm.ConcGridConfig{
		Name:        "plume",
		LonMin:      -90,
		LatMin:      38,
		DLon:        0.5,
		DLat:        0.5,
		Nx:          16,
		Ny:          12,
		LevelTops:   []float64{100, 500, 1000},
		SampleStart: time.Date(2018, 7, 15, 1, 0, 0, 0, time.UTC),
		Kernel:      lpdm.KernelGaussian,
		KernelSigma: 1.5,
	}
	g := grids[0]
	if !g.SampleStart.Equal(want.SampleStart) {
		t.Errorf("sample start: have %v, want %v", g.SampleStart, want.SampleStart)
	}
	g.SampleStart = want.SampleStart
	if !reflect.DeepEqual(g, want) {
		t.Errorf("have %+v, want %+v", g, want)
	}

	v.Set("Grid.Levels", "[100,")
	if _, err := concGrids(v); err == nil {
		t.Error("malformed levels: no error")
	}
	v.Set("Grid.Levels", "[100]")
	v.Set("Grid.Kernel", "box")
	if _, err := concGrids(v); err == nil {
		t.Error("unknown kernel: no error")
	}
	v.Set("Grid.Kernel", "tophat")
	v.Set("Grid.SampleStart", "yesterday")
	if _, err := concGrids(v); err == nil {
		t.Error("unparseable sample start: no error")
	}
}

// TestSimulationConfig exercises the full assembly path through the global
// configuration, whose flag bindings supply the documented defaults for
// everything left unset.
func TestSimulationConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "lpdm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	speciesFile := filepath.Join(dir, "species.toml")
	err = ioutil.WriteFile(speciesFile, []byte("[[species]]\nname = \"SO2\"\ngas = \"so2\"\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	Cfg.Set("Sim.Start", "2018-07-15T06:00:00Z")
	Cfg.Set("Sim.Duration", "6h")
	Cfg.Set("Sim.Locations", []string{"42/-86/500", "39.5/-84.2/850hPa"})
	Cfg.Set("Sim.VerticalMotion", "data")
	Cfg.Set("Sim.Turbulence", "fixed")
	Cfg.Set("Sim.TurbulenceSigma", 0.4)
	Cfg.Set("Sim.ParticlesPerLocation", 10)
	Cfg.Set("Sim.ReleaseMass", 2.5)
	Cfg.Set("Sim.Strategy", "parallel")
	Cfg.Set("Sim.RandomSeed", 7)
	Cfg.Set("SpeciesFile", speciesFile)
	defer Cfg.Set("SpeciesFile", "")

	c, err := simulationConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2018, 7, 15, 6, 0, 0, 0, time.UTC); !c.Start.Equal(want) {
		t.Errorf("start: have %v, want %v", c.Start, want)
	}
	if c.Duration != 6*time.Hour {
		t.Errorf("duration: have %v, want 6h", c.Duration)
	}
	wantLocs := []lpdm.StartLocation{
		{Lat: 42, Lon: -86, Height: 500, Kind: lpdm.HeightAGL},
		{Lat: 39.5, Lon: -84.2, Height: 850, Kind: lpdm.HeightHPa},
	}
	if !reflect.DeepEqual(c.Locations, wantLocs) {
		t.Errorf("locations: have %+v, want %+v", c.Locations, wantLocs)
	}
	if c.VerticalMotion != lpdm.VertMotionData {
		t.Errorf("vertical motion: have %v, want data", c.VerticalMotion)
	}
	if c.Turbulence != lpdm.TurbulenceFixed || c.TurbulenceSigma != 0.4 {
		t.Errorf("turbulence: have %v sigma %g, want fixed sigma 0.4",
			c.Turbulence, c.TurbulenceSigma)
	}
	if c.ParticlesPerLocation != 10 || c.ReleaseMass != 2.5 {
		t.Errorf("release: have %d particles of %g kg total, want 10 of 2.5",
			c.ParticlesPerLocation, c.ReleaseMass)
	}
	if c.Strategy != lpdm.StrategyParallel {
		t.Errorf("strategy: have %v, want parallel", c.Strategy)
	}
	if c.RandomSeed != 7 {
		t.Errorf("random seed: have %d, want 7", c.RandomSeed)
	}
	if len(c.Species) != 1 || c.Species[0].Name != "SO2" || !c.Species[0].IsSO2 {
		t.Errorf("species: have %+v, want SO2", c.Species)
	}

	// Values never set keep the flag defaults.
	if c.DtMax != 3600 || c.TRatio != 0.75 || c.ScaleHeight != 8000 {
		t.Errorf("tuning defaults lost: DtMax %g, TRatio %g, ScaleHeight %g",
			c.DtMax, c.TRatio, c.ScaleHeight)
	}
	if c.MaxIterations != 1000000 {
		t.Errorf("iteration limit default lost: %d", c.MaxIterations)
	}
	if c.OutputInterval != time.Hour {
		t.Errorf("output interval default lost: %v", c.OutputInterval)
	}
}

func TestSimulationConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"bad start", "Sim.Start", "eleven"},
		{"bad duration", "Sim.Duration", "soon"},
		{"bad location", "Sim.Locations", []string{"42/-86"}},
		{"bad vertical motion", "Sim.VerticalMotion", "sideways"},
		{"bad turbulence", "Sim.Turbulence", "windy"},
		{"bad strategy", "Sim.Strategy", "fastest"},
		{"negative seed", "Sim.RandomSeed", -1},
		{"missing species file", "SpeciesFile", "/nonexistent/species.toml"},
	}
	for _, c := range cases {
		v := viper.New()
		v.Set(c.key, c.val)
		if _, err := simulationConfig(v); err == nil {
			t.Errorf("%s: no error", c.name)
		}
	}
}
