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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/lpdm"
	"github.com/spf13/cobra"
)

// Run integrates a simulation and writes its outputs.
//
// cmd is the cobra.Command instance Run is called from; its output stream
// receives a copy of the log, which is also written to logFile.
//
// metPath locates the meteorological archive: a NetCDF file or a gob
// snapshot previously written with lpdm.SaveMet. metVars renames NetCDF
// variables for archives whose conventions differ from the defaults.
//
// sourceFile, if nonempty, is a TOML file of emission sources; its release
// points replace c.Locations.
//
// trajFile, trajGeoJSON, concFile, concNC, and concGeoJSON are output
// paths; empty paths are skipped. concLayer selects the vertical layer
// exported to concGeoJSON.
func Run(cmd *cobra.Command, logFile string, c *lpdm.SimulationConfig,
	metPath string, metVars map[string]string, sourceFile,
	trajFile, trajGeoJSON, concFile, concNC, concGeoJSON string, concLayer int) error {

	startTime := time.Now()

	logfile, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("lpdm: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log.Out = io.MultiWriter(cmd.OutOrStdout(), logfile)

	d, err := getMetData(metPath, metVars)
	if err != nil {
		return err
	}
	if c.Start.IsZero() {
		c.Start = d.Start
	}

	if sourceFile != "" {
		srcs, err := readSourceFile(sourceFile)
		if err != nil {
			return err
		}
		if err := lpdm.ApplySources(c, d, srcs...); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"sources": len(srcs)}).Info("placed emission sources")
	}

	e, err := lpdm.NewEngine(c, d)
	if err != nil {
		return err
	}
	pw := log.Writer()
	defer pw.Close()
	e.Log = pw

	log.WithFields(logrus.Fields{
		"particles": len(e.Particles()),
		"start":     c.Start.Format(time.RFC3339),
		"duration":  c.Duration,
	}).Info("starting integration")

	trajs := e.Run()

	counts := make(map[string]int)
	for _, tr := range trajs {
		counts[tr.Reason.String()]++
	}
	fields := logrus.Fields{}
	for reason, n := range counts {
		fields[reason] = n
	}
	log.WithFields(fields).Info("integration finished")

	if trajFile != "" {
		f, err := os.Create(trajFile)
		if err != nil {
			return fmt.Errorf("lpdm: creating trajectory file: %v", err)
		}
		if err := e.WriteTrajectories(f, trajs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Infof("wrote %d trajectories to %s", len(trajs), trajFile)
	}
	if trajGeoJSON != "" {
		f, err := os.Create(trajGeoJSON)
		if err != nil {
			return fmt.Errorf("lpdm: creating trajectory GeoJSON file: %v", err)
		}
		if err := e.WriteTrajectoryGeoJSON(f, trajs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Infof("wrote trajectory GeoJSON to %s", trajGeoJSON)
	}

	if grids := e.Grids(); len(grids) > 0 {
		if concFile != "" {
			f, err := os.Create(concFile)
			if err != nil {
				return fmt.Errorf("lpdm: creating concentration file: %v", err)
			}
			if err := lpdm.WriteConcDump(f, grids...); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			log.Infof("wrote %d concentration grids to %s", len(grids), concFile)
		}
		if concNC != "" {
			for i, g := range grids {
				name := numberedPath(concNC, i, len(grids))
				if err := lpdm.WriteConcNC(name, g); err != nil {
					return err
				}
				log.Infof("wrote concentration NetCDF to %s", name)
			}
		}
		if concGeoJSON != "" {
			for i, g := range grids {
				name := numberedPath(concGeoJSON, i, len(grids))
				f, err := os.Create(name)
				if err != nil {
					return fmt.Errorf("lpdm: creating concentration GeoJSON file: %v", err)
				}
				if err := g.WriteConcGeoJSON(f, concLayer); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				log.Infof("wrote concentration GeoJSON to %s", name)
			}
		}
	}

	log.Infof("elapsed time: %v", time.Since(startTime))
	return nil
}

// getMetData reads a meteorological archive, accepting either a NetCDF
// file or a gob snapshot.
func getMetData(path string, rename map[string]string) (*lpdm.MetData, error) {
	log.Infof("reading meteorological data from %s", path)
	if filepath.Ext(path) == ".gob" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("lpdm: opening meteorological data: %v", err)
		}
		defer f.Close()
		return lpdm.LoadMet(f)
	}
	return lpdm.ReadMetNC(path, rename)
}

// readSourceFile reads a TOML emission source file.
func readSourceFile(filename string) ([]*lpdm.Source, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("lpdm: opening source file: %v", err)
	}
	defer f.Close()
	return lpdm.ReadSources(f)
}

// numberedPath inserts a grid index before the file extension when a run
// writes per-grid files for more than one concentration grid.
func numberedPath(path string, i, n int) string {
	if n <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
}
