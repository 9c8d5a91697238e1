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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spatialmodel/lpdm"
	"github.com/spf13/cobra"
)

// Preview validates the configuration against the meteorological archive
// and prints the resulting run plan to the command's output stream.
// Nothing is integrated and no output files are written: every check that
// would reject the configuration at the start of a run happens here too,
// so a configuration that previews cleanly will start.
func Preview(cmd *cobra.Command, c *lpdm.SimulationConfig, metPath string,
	metVars map[string]string, sourceFile string) error {

	log.Out = cmd.OutOrStdout()

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
	}
	e, err := lpdm.NewEngine(c, d)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	t0 := d.Start.Add(seconds(d.Times[0]))
	t1 := d.Start.Add(seconds(d.Times[len(d.Times)-1]))
	fmt.Fprintf(w, "meteorology:\t%s\n", metPath)
	fmt.Fprintf(w, "data window:\t%s to %s\n",
		t0.Format(time.RFC3339), t1.Format(time.RFC3339))
	fmt.Fprintf(w, "vertical coordinate:\t%s\n", d.VCoord)
	fmt.Fprintf(w, "field shape:\t%d levels x %d lat x %d lon\n",
		len(d.Levels), len(d.Lat), len(d.Lon))
	fmt.Fprintf(w, "run:\t%s for %s\n", c.Start.Format(time.RFC3339), c.Duration)
	fmt.Fprintf(w, "vertical motion:\t%s\n", c.VerticalMotion)
	fmt.Fprintf(w, "strategy:\t%s\n", c.Strategy)
	fmt.Fprintf(w, "species:\t%s\n", strings.Join(speciesNames(c.Species), ", "))
	fmt.Fprintf(w, "particles:\t%d\n", len(e.Particles()))

	// Particles are laid out location-major, so the first particle of
	// each location block carries that location's converted height.
	stride := len(c.Species) * c.ParticlesPerLocation
	for i, loc := range c.Locations {
		fmt.Fprintf(w, "release %d:\t%.4f, %.4f, %s -> %.1f %s\n",
			i, loc.Lat, loc.Lon, heightLabel(loc),
			e.Particles()[i*stride].Z, coordUnits(d.VCoord))
	}
	for i, g := range c.Grids {
		name := g.Name
		if name == "" {
			name = fmt.Sprintf("grid %d", i)
		}
		fmt.Fprintf(w, "sampling grid:\t%s, %d x %d cells, %d layers, %s kernel\n",
			name, g.Nx, g.Ny, len(g.LevelTops), g.Kernel)
	}
	return w.Flush()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func speciesNames(species []lpdm.Species) []string {
	names := make([]string, len(species))
	for i, sp := range species {
		names[i] = sp.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("species%d", i)
		}
	}
	return names
}

func heightLabel(loc lpdm.StartLocation) string {
	if loc.Kind == lpdm.HeightHPa {
		return fmt.Sprintf("%g hPa", loc.Height)
	}
	return fmt.Sprintf("%g m AGL", loc.Height)
}

func coordUnits(vc lpdm.VerticalCoordinate) string {
	if vc == lpdm.PressureLevels {
		return "hPa"
	}
	return "m"
}
