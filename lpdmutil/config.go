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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spatialmodel/lpdm"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// simulationConfig assembles a simulation configuration from the Sim, Grid,
// and SpeciesFile variables in cfg. Values the configuration leaves unset
// keep their defaults.
func simulationConfig(cfg *viper.Viper) (*lpdm.SimulationConfig, error) {
	c := lpdm.DefaultConfig()

	if s := cfg.GetString("Sim.Start"); s != "" {
		t, err := time.Parse(time.RFC3339, os.ExpandEnv(s))
		if err != nil {
			return nil, fmt.Errorf("lpdm: parsing Sim.Start: %v", err)
		}
		c.Start = t
	}
	var err error
	if c.Duration, err = getDuration(cfg, "Sim.Duration"); err != nil {
		return nil, err
	}
	if c.Locations, err = parseLocations(expandStringSlice(cfg.GetStringSlice("Sim.Locations"))); err != nil {
		return nil, err
	}
	if c.VerticalMotion, err = parseVertMotion(cfg.GetString("Sim.VerticalMotion")); err != nil {
		return nil, err
	}
	c.ModelTop = cfg.GetFloat64("Sim.ModelTop")
	c.DtMax = cfg.GetFloat64("Sim.DtMax")
	c.TRatio = cfg.GetFloat64("Sim.TRatio")
	c.ScaleHeight = cfg.GetFloat64("Sim.ScaleHeight")
	c.VerticalDamping = cfg.GetFloat64("Sim.VerticalDamping")
	c.DryDeposition = cfg.GetBool("Sim.DryDeposition")
	c.WetDeposition = cfg.GetBool("Sim.WetDeposition")
	if c.Turbulence, err = parseTurbulence(cfg.GetString("Sim.Turbulence")); err != nil {
		return nil, err
	}
	c.TurbulenceSigma = cfg.GetFloat64("Sim.TurbulenceSigma")
	c.KhMax = cfg.GetFloat64("Sim.KhMax")
	c.DepletionFraction = cfg.GetFloat64("Sim.DepletionFraction")
	c.ParticlesPerLocation = cfg.GetInt("Sim.ParticlesPerLocation")
	c.ReleaseMass = cfg.GetFloat64("Sim.ReleaseMass")
	if c.EmissionDuration, err = getDuration(cfg, "Sim.EmissionDuration"); err != nil {
		return nil, err
	}
	if c.OutputInterval, err = getDuration(cfg, "Sim.OutputInterval"); err != nil {
		return nil, err
	}
	if c.Strategy, err = parseStrategy(cfg.GetString("Sim.Strategy")); err != nil {
		return nil, err
	}
	c.MaxIterations = cfg.GetInt("Sim.MaxIterations")
	seed := cfg.GetInt64("Sim.RandomSeed")
	if seed < 0 {
		return nil, fmt.Errorf("lpdm: Sim.RandomSeed must not be negative but is %d", seed)
	}
	c.RandomSeed = uint64(seed)

	if f := cfg.GetString("SpeciesFile"); f != "" {
		if c.Species, err = readSpeciesFile(os.ExpandEnv(f)); err != nil {
			return nil, err
		}
	}
	if c.Grids, err = concGrids(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// concGrids builds the concentration sampling grids from the Grid
// variables in cfg. A zero cell count on both axes means sampling is
// switched off and nil is returned.
func concGrids(cfg *viper.Viper) ([]lpdm.ConcGridConfig, error) {
	nx, ny := cfg.GetInt("Grid.Nx"), cfg.GetInt("Grid.Ny")
	if nx == 0 && ny == 0 {
		return nil, nil
	}
	levels, err := toIntSliceE(cfg.Get("Grid.Levels"))
	if err != nil {
		return nil, fmt.Errorf("lpdm: parsing Grid.Levels: %v", err)
	}
	tops := make([]float64, len(levels))
	for i, l := range levels {
		tops[i] = float64(l)
	}
	kernel, err := parseKernel(cfg.GetString("Grid.Kernel"))
	if err != nil {
		return nil, err
	}
	start, err := parseTime(cfg.GetString("Grid.SampleStart"), "Grid.SampleStart")
	if err != nil {
		return nil, err
	}
	end, err := parseTime(cfg.GetString("Grid.SampleEnd"), "Grid.SampleEnd")
	if err != nil {
		return nil, err
	}
	return []lpdm.ConcGridConfig{{
		Name:         cfg.GetString("Grid.Name"),
		LonMin:       cfg.GetFloat64("Grid.LonMin"),
		LatMin:       cfg.GetFloat64("Grid.LatMin"),
		DLon:         cfg.GetFloat64("Grid.DLon"),
		DLat:         cfg.GetFloat64("Grid.DLat"),
		Nx:           nx,
		Ny:           ny,
		LevelTops:    tops,
		SampleStart:  start,
		SampleEnd:    end,
		Kernel:       kernel,
		KernelRadius: cfg.GetFloat64("Grid.KernelRadius"),
		KernelSigma:  cfg.GetFloat64("Grid.KernelSigma"),
	}}, nil
}

// parseLocations converts "lat/lon/height" triples into start locations.
func parseLocations(ss []string) ([]lpdm.StartLocation, error) {
	locs := make([]lpdm.StartLocation, 0, len(ss))
	for _, s := range ss {
		loc, err := parseLocation(s)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// parseLocation parses one "lat/lon/height" triple. Heights are meters
// above ground unless suffixed with "hPa", which names a pressure level.
func parseLocation(s string) (lpdm.StartLocation, error) {
	var loc lpdm.StartLocation
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return loc, fmt.Errorf("lpdm: release point %q is not in lat/lon/height form", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return loc, fmt.Errorf("lpdm: release point %q: parsing latitude: %v", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return loc, fmt.Errorf("lpdm: release point %q: parsing longitude: %v", s, err)
	}
	h := strings.TrimSpace(parts[2])
	kind := lpdm.HeightAGL
	if strings.HasSuffix(h, "hPa") {
		kind = lpdm.HeightHPa
		h = strings.TrimSpace(strings.TrimSuffix(h, "hPa"))
	} else {
		h = strings.TrimSpace(strings.TrimSuffix(h, "m"))
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return loc, fmt.Errorf("lpdm: release point %q: parsing height: %v", s, err)
	}
	return lpdm.StartLocation{Lat: lat, Lon: lon, Height: height, Kind: kind}, nil
}

func parseVertMotion(s string) (lpdm.VertMotionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return lpdm.VertMotionAuto, nil
	case "data":
		return lpdm.VertMotionData, nil
	case "isobaric":
		return lpdm.VertMotionIsobaric, nil
	case "constant":
		return lpdm.VertMotionConstantAltitude, nil
	case "isentropic":
		return lpdm.VertMotionIsentropic, nil
	case "average":
		return lpdm.VertMotionAverage, nil
	case "damped":
		return lpdm.VertMotionDamped, nil
	}
	return 0, fmt.Errorf("lpdm: Sim.VerticalMotion must be one of auto, data, "+
		"isobaric, constant, isentropic, average, or damped, but is %q", s)
}

func parseTurbulence(s string) (lpdm.TurbulenceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return lpdm.TurbulenceOff, nil
	case "fixed":
		return lpdm.TurbulenceFixed, nil
	case "boundary-layer", "boundarylayer":
		return lpdm.TurbulenceBoundaryLayer, nil
	}
	return 0, fmt.Errorf("lpdm: Sim.Turbulence must be one of off, fixed, or "+
		"boundary-layer, but is %q", s)
}

func parseStrategy(s string) (lpdm.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return lpdm.StrategyAuto, nil
	case "sequential":
		return lpdm.StrategySequential, nil
	case "parallel":
		return lpdm.StrategyParallel, nil
	case "batched":
		return lpdm.StrategyBatched, nil
	}
	return 0, fmt.Errorf("lpdm: Sim.Strategy must be one of auto, sequential, "+
		"parallel, or batched, but is %q", s)
}

func parseKernel(s string) (lpdm.KernelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tophat", "top-hat":
		return lpdm.KernelTopHat, nil
	case "gaussian":
		return lpdm.KernelGaussian, nil
	}
	return 0, fmt.Errorf("lpdm: Grid.Kernel must be tophat or gaussian, but is %q", s)
}

// getDuration parses the named configuration variable as a Go duration.
func getDuration(cfg *viper.Viper, name string) (time.Duration, error) {
	s := cfg.GetString(name)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("lpdm: parsing %s: %v", name, err)
	}
	return d, nil
}

// parseTime parses the named configuration variable as an RFC 3339 time,
// with the empty string meaning the zero time.
func parseTime(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, os.ExpandEnv(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("lpdm: parsing %s: %v", name, err)
	}
	return t, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the named output file is specified and
// its directory exists, and expands any environment variables.
func checkOutputFile(f, name string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("lpdm: you need to specify the %s configuration variable", name)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("lpdm: the %s directory doesn't exist: %v", name, err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for GetStringMapString variable %s: %#v", varName, i))
	}
}

// toIntSliceE converts a configuration value to a slice of ints, accounting
// for the fact that it might be a json array if it was set from a command
// line argument.
func toIntSliceE(s interface{}) ([]int, error) {
	if str, ok := s.(string); ok {
		var o []int
		if err := json.Unmarshal([]byte(str), &o); err != nil {
			return nil, err
		}
		return o, nil
	}
	return cast.ToIntSliceE(s)
}
