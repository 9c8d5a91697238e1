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
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/atmos/wesely1989"
	"github.com/spatialmodel/lpdm"
)

// gasData maps gas class names to the Wesely (1989) solubility and
// reactivity properties used for gaseous dry deposition.
var gasData = map[string]*wesely1989.GasData{
	"so2":  wesely1989.So2Data,
	"o3":   wesely1989.O3Data,
	"no2":  wesely1989.No2Data,
	"no":   wesely1989.NoData,
	"hno3": wesely1989.Hno3Data,
	"h2o2": wesely1989.H2o2Data,
	"ald":  wesely1989.AldData,
	"hcho": wesely1989.HchoData,
	"op":   wesely1989.OpData,
	"paa":  wesely1989.PaaData,
	"ora":  wesely1989.OraData,
	"nh3":  wesely1989.Nh3Data,
	"pan":  wesely1989.PanData,
	"hno2": wesely1989.Hno2Data,
}

type speciesEntry struct {
	Name string
	// Gas names a Wesely (1989) gas class for gaseous dry deposition.
	// Leaving it empty makes the species a particle when Diameter is
	// set and an inert tracer otherwise.
	Gas          string
	Diameter     float64 // [m]
	Density      float64 // [kg/m3]
	VDep         float64 // deposition velocity override [m/s]
	ScavengingA  float64
	ScavengingB  float64
	InCloudRatio float64
}

// ReadSpecies reads TOML species definitions of the form
//
//	[[species]]
//	name = "SO2"
//	gas = "so2"
//	scavenginga = 5.0e-5
//	scavengingb = 0.8
//
// Gas classes name entries from Wesely (1989) Table 2: so2, o3, no2, no,
// hno3, h2o2, ald, hcho, op, paa, ora, nh3, pan, or hno2. A positive
// diameter makes the species particulate instead.
func ReadSpecies(r io.Reader) ([]lpdm.Species, error) {
	var f struct {
		Species []speciesEntry
	}
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, fmt.Errorf("lpdm: decoding species file: %v", err)
	}
	if len(f.Species) == 0 {
		return nil, fmt.Errorf("lpdm: no species found")
	}
	out := make([]lpdm.Species, len(f.Species))
	for i, e := range f.Species {
		if e.Name == "" {
			return nil, fmt.Errorf("lpdm: species %d has no name", i)
		}
		sp := lpdm.Species{
			Name:         e.Name,
			Diameter:     e.Diameter,
			Density:      e.Density,
			VDep:         e.VDep,
			ScavengingA:  e.ScavengingA,
			ScavengingB:  e.ScavengingB,
			InCloudRatio: e.InCloudRatio,
		}
		if e.Gas != "" {
			if e.Diameter > 0 {
				return nil, fmt.Errorf("lpdm: species %q has both a gas class and a particle diameter", e.Name)
			}
			gas := strings.ToLower(e.Gas)
			gd, ok := gasData[gas]
			if !ok {
				return nil, fmt.Errorf("lpdm: species %q: unknown gas class %q", e.Name, e.Gas)
			}
			sp.GasData = gd
			sp.IsSO2 = gas == "so2"
			sp.IsO3 = gas == "o3"
		}
		out[i] = sp
	}
	return out, nil
}

// readSpeciesFile reads TOML species definitions from the named file.
func readSpeciesFile(filename string) ([]lpdm.Species, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("lpdm: opening species file: %v", err)
	}
	defer f.Close()
	return ReadSpecies(f)
}
