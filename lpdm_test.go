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
	"time"

	"github.com/ctessum/sparse"
)

// Shared test archive: a 7×6 horizontal grid over the midwestern US with
// six height levels and seven hourly time slices.
var (
	testLon    = []float64{-92, -90, -88, -86, -84, -82, -80}
	testLat    = []float64{36, 38, 40, 42, 44, 46}
	testLevels = []float64{0, 250, 500, 1000, 2000, 5000}
	testPLev   = []float64{1000, 925, 850, 700, 500}
	testTimes  = []float64{0, 3600, 7200, 10800, 14400, 18000, 21600}
	testStart  = time.Date(2018, 7, 15, 0, 0, 0, 0, time.UTC)
)

func constArray(v float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	for i := range a.Elements {
		a.Elements[i] = v
	}
	return a
}

// testMetUniform returns a height-coordinate archive holding the given
// uniform wind everywhere.
func testMetUniform(u, v, w float64) *MetData {
	nt, nz := len(testTimes), len(testLevels)
	ny, nx := len(testLat), len(testLon)
	return &MetData{
		U:      constArray(u, nt, nz, ny, nx),
		V:      constArray(v, nt, nz, ny, nx),
		W:      constArray(w, nt, nz, ny, nx),
		Lon:    append([]float64{}, testLon...),
		Lat:    append([]float64{}, testLat...),
		Levels: append([]float64{}, testLevels...),
		Times:  append([]float64{}, testTimes...),
		Start:  testStart,
		VCoord: HeightLevels,
	}
}

// testMetPressure is testMetUniform on descending pressure levels.
func testMetPressure(u, v, w float64) *MetData {
	d := testMetUniform(u, v, w)
	nt, nz := len(testTimes), len(testPLev)
	ny, nx := len(testLat), len(testLon)
	d.Levels = append([]float64{}, testPLev...)
	d.U = constArray(u, nt, nz, ny, nx)
	d.V = constArray(v, nt, nz, ny, nx)
	d.W = constArray(w, nt, nz, ny, nx)
	d.VCoord = PressureLevels
	return d
}

// gradedValue is the wind value stored at a grid node in a graded archive,
// chosen so every node holds a distinct, exactly representable value.
func gradedValue(it, iz, iy, ix int) float64 {
	return float64(1000*it + 100*iz + 10*iy + ix)
}

// testMetGraded returns an archive whose wind components hold index-coded
// values, for checking that interpolation reproduces the stored fields.
func testMetGraded() *MetData {
	d := testMetUniform(0, 0, 0)
	nt, nz := len(testTimes), len(testLevels)
	ny, nx := len(testLat), len(testLon)
	for it := 0; it < nt; it++ {
		for iz := 0; iz < nz; iz++ {
			for iy := 0; iy < ny; iy++ {
				for ix := 0; ix < nx; ix++ {
					v := gradedValue(it, iz, iy, ix)
					d.U.Set(v, it, iz, iy, ix)
					d.V.Set(2*v, it, iz, iy, ix)
					d.W.Set(-v, it, iz, iy, ix)
				}
			}
		}
	}
	return d
}

// testConfig returns a small two-hour tracer run starting at the archive
// start from a release point in the middle of the test grid.
func testConfig() *SimulationConfig {
	cfg := DefaultConfig()
	cfg.Start = testStart
	cfg.Duration = 2 * time.Hour
	cfg.OutputInterval = 30 * time.Minute
	cfg.VerticalMotion = VertMotionData
	cfg.Locations = []StartLocation{{Lat: 42, Lon: -86, Height: 500, Kind: HeightAGL}}
	return cfg
}

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}
