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

// Package lpdmutil provides the LPDM command-line interface.
package lpdmutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/lpdm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// log carries all command output not explicitly bound to a writer.
var log = logrus.StandardLogger()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	})
}

func init() {
	// Options are the configuration options available to LPDM.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MetData",
			usage: `
              MetData is the location of the meteorological archive to
              integrate through: a NetCDF file, a gob snapshot previously
              written by LPDM, or an http(s) URL to download one from.`,
			shorthand:  "m",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "MetVarMap",
			usage: `
              MetVarMap maps the NetCDF variable names LPDM expects (keys)
              to the names used in the archive (values), for archives whose
              conventions differ from the defaults.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "SourceFile",
			usage: `
              SourceFile is the location of a TOML file of [[source]] blocks
              describing emission points. Sources with stack parameters are
              released at their plume-rise height; the sources replace any
              Sim.Locations entries.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "SpeciesFile",
			usage: `
              SpeciesFile is the location of a TOML file of [[species]]
              blocks describing the pollutants to release. Without it a
              single non-depositing unit tracer is released.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. If
              unspecified it defaults to the trajectory output file path
              with the extension replaced by .log.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags()},
		},
		{
			name: "Sim.Start",
			usage: `
              Sim.Start is the release time in RFC 3339 format, for example
              2018-07-04T12:00:00Z. If unspecified the run starts at the
              beginning of the meteorological archive.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.Duration",
			usage: `
              Sim.Duration is the total integration time as a Go duration,
              for example 24h or 90m. A leading minus sign runs the
              trajectories backward in time.`,
			defaultVal: "24h",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.Locations",
			usage: `
              Sim.Locations lists release points as "lat/lon/height"
              triples. Heights are meters above ground unless suffixed with
              hPa, in which case they name a pressure level, for example
              "39.17/-84.52/850hPa". Ignored when SourceFile is set.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.VerticalMotion",
			usage: `
              Sim.VerticalMotion selects how vertical velocity is derived
              from the data: auto, data, isobaric, constant, isentropic,
              average, or damped.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.ModelTop",
			usage: `
              Sim.ModelTop is the vertical reflecting lid in meters for
              height-coordinate archives.`,
			defaultVal: 10000.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.DtMax",
			usage: `
              Sim.DtMax is the longest allowed integration step in seconds.`,
			defaultVal: 3600.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.TRatio",
			usage: `
              Sim.TRatio is the maximum fraction of a grid cell a particle
              may cross in one time step.`,
			defaultVal: 0.75,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.ScaleHeight",
			usage: `
              Sim.ScaleHeight is the atmospheric scale height in meters used
              to convert between pressure and height.`,
			defaultVal: 8000.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.VerticalDamping",
			usage: `
              Sim.VerticalDamping scales the damped vertical-motion mode.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.DryDeposition",
			usage: `
              Sim.DryDeposition switches on dry deposition and gravitational
              settling.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.WetDeposition",
			usage: `
              Sim.WetDeposition switches on precipitation scavenging.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.Turbulence",
			usage: `
              Sim.Turbulence selects the stochastic velocity perturbations:
              off, fixed, or boundary-layer.`,
			defaultVal: "off",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.TurbulenceSigma",
			usage: `
              Sim.TurbulenceSigma is the velocity standard deviation in m/s
              for the fixed turbulence mode.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.KhMax",
			usage: `
              Sim.KhMax caps the boundary-layer horizontal diffusivity in
              m2/s.`,
			defaultVal: 100000.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.DepletionFraction",
			usage: `
              Sim.DepletionFraction is the fraction of its initial mass
              below which a particle counts as fully deposited.`,
			defaultVal: 0.01,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.ParticlesPerLocation",
			usage: `
              Sim.ParticlesPerLocation is the number of particles released
              from each start location per species.`,
			shorthand:  "n",
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.ReleaseMass",
			usage: `
              Sim.ReleaseMass is the total mass in kg released per location
              per species, divided evenly among its particles. Ignored when
              SourceFile supplies emission rates.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.EmissionDuration",
			usage: `
              Sim.EmissionDuration spreads particle release uniformly over a
              window starting at Sim.Start; zero releases everything at
              once.`,
			defaultVal: "0s",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.OutputInterval",
			usage: `
              Sim.OutputInterval is the time between recorded trajectory
              points; zero records every integration step.`,
			defaultVal: "1h",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.Strategy",
			usage: `
              Sim.Strategy selects how particles are divided among workers:
              auto, sequential, parallel, or batched.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.MaxIterations",
			usage: `
              Sim.MaxIterations caps the number of integration steps per
              particle.`,
			defaultVal: 1000000,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Sim.RandomSeed",
			usage: `
              Sim.RandomSeed seeds the turbulence random streams; runs with
              the same seed reproduce bit-identical trajectories.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "TrajectoryFile",
			usage: `
              TrajectoryFile is the path where the trajectory endpoints file
              will be written.`,
			shorthand:  "o",
			defaultVal: "trajectories.txt",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags()},
		},
		{
			name: "TrajectoryGeoJSON",
			usage: `
              TrajectoryGeoJSON, if set, is the path where a GeoJSON feature
              collection of the trajectories will be written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), trajectoryCmd.Flags()},
		},
		{
			name: "ConcentrationFile",
			usage: `
              ConcentrationFile is the path where the packed binary
              concentration dump will be written.`,
			defaultVal: "concentrations.dat",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags()},
		},
		{
			name: "ConcentrationNetCDF",
			usage: `
              ConcentrationNetCDF, if set, is the path where a NetCDF export
              of the concentration grid will be written. With more than one
              grid configured, the grid index is appended to the file name.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags()},
		},
		{
			name: "ConcentrationGeoJSON",
			usage: `
              ConcentrationGeoJSON, if set, is the path where a GeoJSON
              feature collection of one concentration layer will be
              written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags()},
		},
		{
			name: "ConcentrationLayer",
			usage: `
              ConcentrationLayer is the vertical layer index exported to
              ConcentrationGeoJSON.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags()},
		},
		{
			name: "Grid.Name",
			usage: `
              Grid.Name labels the concentration sampling grid in output
              files.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.LonMin",
			usage: `
              Grid.LonMin is the longitude of the southwest corner of the
              concentration sampling grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.LatMin",
			usage: `
              Grid.LatMin is the latitude of the southwest corner of the
              concentration sampling grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.DLon",
			usage: `
              Grid.DLon is the concentration grid cell width in degrees
              longitude.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.DLat",
			usage: `
              Grid.DLat is the concentration grid cell height in degrees
              latitude.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx is the number of concentration grid cells in the
              west-east direction. Leaving Grid.Nx and Grid.Ny zero disables
              concentration sampling.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny is the number of concentration grid cells in the
              south-north direction.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.Levels",
			usage: `
              Grid.Levels lists the concentration layer top heights in
              meters above ground, ascending.`,
			defaultVal: []int{100, 500, 1000},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.Kernel",
			usage: `
              Grid.Kernel selects how particle mass is spread over grid
              cells: tophat or gaussian.`,
			defaultVal: "tophat",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.KernelRadius",
			usage: `
              Grid.KernelRadius is the top-hat window radius in cells;
              values of one or less assign mass wholly to the enclosing
              cell.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.KernelSigma",
			usage: `
              Grid.KernelSigma is the Gaussian kernel width in cells.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.SampleStart",
			usage: `
              Grid.SampleStart bounds the beginning of the concentration
              averaging window, in RFC 3339 format. Empty samples from the
              start of the run.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
		{
			name: "Grid.SampleEnd",
			usage: `
              Grid.SampleEnd bounds the end of the concentration averaging
              window, in RFC 3339 format. Empty samples to the end of the
              run.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), concCmd.Flags(), previewCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("LPDM")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(trajectoryCmd)
	Root.AddCommand(concCmd)
	Root.AddCommand(previewCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("lpdm: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "lpdm",
	Short: "A Lagrangian particle dispersion model.",
	Long: `LPDM computes air-parcel trajectories and pollutant dispersion by
integrating particles through archived meteorological fields.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'LPDM_var' where 'var' is the name of the variable to be set. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of LPDM.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("LPDM v%s\n", lpdm.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: `run integrates the configured particles through the meteorological
archive and writes every configured output: the trajectory endpoints file,
the binary concentration dump when a sampling grid is configured, and any
GeoJSON or NetCDF exports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := simulationConfig(Cfg)
		if err != nil {
			return err
		}
		trajFile, err := checkOutputFile(Cfg.GetString("TrajectoryFile"), "TrajectoryFile")
		if err != nil {
			return err
		}
		var concFile string
		if len(c.Grids) > 0 {
			concFile, err = checkOutputFile(Cfg.GetString("ConcentrationFile"), "ConcentrationFile")
			if err != nil {
				return err
			}
		}
		return Run(cmd,
			checkLogFile(Cfg.GetString("LogFile"), trajFile),
			c,
			maybeDownload(os.ExpandEnv(Cfg.GetString("MetData"))),
			GetStringMapString("MetVarMap", Cfg),
			os.ExpandEnv(Cfg.GetString("SourceFile")),
			trajFile,
			os.ExpandEnv(Cfg.GetString("TrajectoryGeoJSON")),
			concFile,
			os.ExpandEnv(Cfg.GetString("ConcentrationNetCDF")),
			os.ExpandEnv(Cfg.GetString("ConcentrationGeoJSON")),
			Cfg.GetInt("ConcentrationLayer"))
	},
	DisableAutoGenTag: true,
}

var trajectoryCmd = &cobra.Command{
	Use:   "trajectory",
	Short: "Compute trajectories only.",
	Long: `trajectory integrates the configured particles and writes the
trajectory endpoints file, skipping concentration sampling even when a
grid is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := simulationConfig(Cfg)
		if err != nil {
			return err
		}
		c.Grids = nil
		trajFile, err := checkOutputFile(Cfg.GetString("TrajectoryFile"), "TrajectoryFile")
		if err != nil {
			return err
		}
		return Run(cmd,
			checkLogFile(Cfg.GetString("LogFile"), trajFile),
			c,
			maybeDownload(os.ExpandEnv(Cfg.GetString("MetData"))),
			GetStringMapString("MetVarMap", Cfg),
			os.ExpandEnv(Cfg.GetString("SourceFile")),
			trajFile,
			os.ExpandEnv(Cfg.GetString("TrajectoryGeoJSON")),
			"", "", "", 0)
	},
	DisableAutoGenTag: true,
}

var concCmd = &cobra.Command{
	Use:   "conc",
	Short: "Compute a concentration grid.",
	Long: `conc integrates the configured particles and writes the sampled
concentration grid, skipping the trajectory endpoints file. A sampling
grid must be configured through the Grid options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := simulationConfig(Cfg)
		if err != nil {
			return err
		}
		if len(c.Grids) == 0 {
			return fmt.Errorf("lpdm: conc needs a sampling grid; set Grid.Nx and Grid.Ny")
		}
		concFile, err := checkOutputFile(Cfg.GetString("ConcentrationFile"), "ConcentrationFile")
		if err != nil {
			return err
		}
		return Run(cmd,
			checkLogFile(Cfg.GetString("LogFile"), concFile),
			c,
			maybeDownload(os.ExpandEnv(Cfg.GetString("MetData"))),
			GetStringMapString("MetVarMap", Cfg),
			os.ExpandEnv(Cfg.GetString("SourceFile")),
			"", "",
			concFile,
			os.ExpandEnv(Cfg.GetString("ConcentrationNetCDF")),
			os.ExpandEnv(Cfg.GetString("ConcentrationGeoJSON")),
			Cfg.GetInt("ConcentrationLayer"))
	},
	DisableAutoGenTag: true,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Check a configuration without running it.",
	Long: `preview validates the configuration against the meteorological
archive and prints the resulting run plan: the data window, the release
points with their converted heights, the particle count, and the sampling
grids. Nothing is integrated and no output files are written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := simulationConfig(Cfg)
		if err != nil {
			return err
		}
		return Preview(cmd, c,
			maybeDownload(os.ExpandEnv(Cfg.GetString("MetData"))),
			GetStringMapString("MetVarMap", Cfg),
			os.ExpandEnv(Cfg.GetString("SourceFile")))
	},
	DisableAutoGenTag: true,
}
