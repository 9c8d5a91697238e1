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

// VerticalCoordinate is the kind of vertical coordinate a meteorological
// data set uses. It governs sign and bound semantics everywhere downstream.
type VerticalCoordinate int

const (
	// PressureLevels means the vertical axis is pressure [hPa],
	// decreasing with height.
	PressureLevels VerticalCoordinate = iota

	// HeightLevels means the vertical axis is height [m] above the
	// data set's reference surface, increasing with height.
	HeightLevels
)

// String implements the fmt.Stringer interface.
func (vc VerticalCoordinate) String() string {
	switch vc {
	case PressureLevels:
		return "pressure"
	case HeightLevels:
		return "height"
	default:
		return "unknown"
	}
}

// Names of the optional scalar fields a MetData may carry.
const (
	VarTemperature  = "temperature"        // [K]
	VarHumidity     = "humidity"           // specific humidity [kg/kg]
	VarGeopotential = "geopotential"       // geopotential height [m]
	VarPrecip       = "precipitation"      // precipitation rate [mm/h]
	VarMixingHeight = "mixing_height"      // boundary layer depth [m]
	VarUstar        = "friction_velocity"  // [m/s]
	VarObukhov      = "obukhov_length"     // [m]
	VarHeatFlux     = "heat_flux"          // surface sensible heat flux [W/m2]
	VarRadiation    = "radiation"          // downward shortwave irradiation [W/m2]
	VarCloudBase    = "cloud_base"         // in vertical coordinate units
	VarCloudTop     = "cloud_top"          // in vertical coordinate units
)

// MetData holds one gridded meteorological archive, fully resident in
// memory. Wind and scalar arrays share the axis order
// (time, vertical, latitude, longitude). A MetData is immutable once
// loaded; particle workers share a single instance read-only and must
// never copy or modify it.
type MetData struct {
	U *sparse.DenseArray `desc:"East-West wind speed" units:"m/s"`
	V *sparse.DenseArray `desc:"North-South wind speed" units:"m/s"`
	W *sparse.DenseArray `desc:"Vertical velocity; omega when the vertical coordinate is pressure" units:"m/s or hPa/s"`

	// Scalars holds the optional fields, keyed by the Var* names above.
	// Each array is 4-D (time, level, lat, lon), 3-D (time, lat, lon)
	// for single-level quantities, or 2-D (lat, lon) for static ones.
	Scalars map[string]*sparse.DenseArray

	Lon    []float64 `desc:"Longitude grid" units:"degrees"`
	Lat    []float64 `desc:"Latitude grid" units:"degrees"`
	Levels []float64 `desc:"Vertical grid" units:"hPa or m"`

	// Times are offsets from Start for each time slice [s].
	Times []float64
	Start time.Time

	VCoord VerticalCoordinate

	// Terrain is the surface elevation (lat, lon) [m]; it may be nil,
	// in which case the surface is taken to be at zero height.
	Terrain *sparse.DenseArray
}

// Check verifies the structural invariants a MetData must satisfy before
// any sampling: present wind arrays with matching shapes, strictly
// monotonic coordinates, and a vertical ordering that matches the
// coordinate kind. It returns an InvalidConfigurationError describing the
// first violation found.
func (d *MetData) Check() error {
	if d.U == nil || d.V == nil || d.W == nil {
		return &InvalidConfigurationError{Field: "MetData", Value: nil,
			Reason: "u, v, and w wind arrays are all required"}
	}
	nt, nz, ny, nx := len(d.Times), len(d.Levels), len(d.Lat), len(d.Lon)
	for _, n := range []struct {
		name string
		val  int
	}{{"time", nt}, {"vertical", nz}, {"latitude", ny}, {"longitude", nx}} {
		if n.val < 2 {
			return &InvalidConfigurationError{Field: "MetData." + n.name,
				Value: n.val, Reason: "each coordinate axis needs at least 2 points"}
		}
	}
	want := []int{nt, nz, ny, nx}
	for name, a := range map[string]*sparse.DenseArray{"u": d.U, "v": d.V, "w": d.W} {
		if !shapeMatches(a.Shape, want) {
			return &InvalidConfigurationError{Field: "MetData." + name,
				Value: a.Shape, Reason: "array shape does not match the coordinate axes"}
		}
	}
	if err := checkMonotonic("longitude", d.Lon, true); err != nil {
		return err
	}
	if err := checkMonotonic("latitude", d.Lat, true); err != nil {
		return err
	}
	if err := checkMonotonic("time", d.Times, true); err != nil {
		return err
	}
	ascending := d.VCoord == HeightLevels
	if err := checkMonotonic("vertical", d.Levels, ascending); err != nil {
		return err
	}
	if d.Terrain != nil && !shapeMatches(d.Terrain.Shape, []int{ny, nx}) {
		return &InvalidConfigurationError{Field: "MetData.Terrain",
			Value: d.Terrain.Shape, Reason: "terrain must be 2-D (lat, lon)"}
	}
	return nil
}

func shapeMatches(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i, w := range want {
		if got[i] != w {
			return false
		}
	}
	return true
}

func checkMonotonic(name string, grid []float64, ascending bool) error {
	for i := 0; i < len(grid)-1; i++ {
		ok := grid[i+1] > grid[i]
		if !ascending {
			ok = grid[i+1] < grid[i]
		}
		if !ok {
			dir := "increasing"
			if !ascending {
				dir = "decreasing"
			}
			return &InvalidConfigurationError{Field: "MetData." + name,
				Value:  grid[i+1],
				Reason: "coordinate values must be strictly " + dir}
		}
	}
	return nil
}

// vertRange returns the low and high bounds of the vertical grid,
// independent of the axis ordering.
func (d *MetData) vertRange() (lo, hi float64) {
	a, b := d.Levels[0], d.Levels[len(d.Levels)-1]
	return math.Min(a, b), math.Max(a, b)
}

// surfaceHeight returns the terrain elevation [m] below the given point,
// bilinearly interpolated, or zero when no terrain field is present or the
// point lies outside the horizontal grid.
func (d *MetData) surfaceHeight(lon, lat float64) float64 {
	if d.Terrain == nil {
		return 0
	}
	iy, dy, err := cellIndex(d.Lat, lat, "latitude")
	if err != nil {
		return 0
	}
	ix, dx, err := cellIndex(d.Lon, lon, "longitude")
	if err != nil {
		return 0
	}
	t00 := d.Terrain.Get(iy, ix)
	t01 := d.Terrain.Get(iy, ix+1)
	t10 := d.Terrain.Get(iy+1, ix)
	t11 := d.Terrain.Get(iy+1, ix+1)
	return (t00*(1-dx)+t01*dx)*(1-dy) + (t10*(1-dx)+t11*dx)*dy
}

// gridSpacing returns the local grid spacing [m] in the east-west and
// north-south directions at the given location, using a great-circle
// approximation with mid-latitude cosine correction. Locations outside the
// grid use the spacing of the nearest edge cell.
func (d *MetData) gridSpacing(lon, lat float64) (Δx, Δy float64) {
	ix := clampCell(d.Lon, lon)
	iy := clampCell(d.Lat, lat)
	Δlon := math.Abs(d.Lon[ix+1] - d.Lon[ix])
	Δlat := math.Abs(d.Lat[iy+1] - d.Lat[iy])
	cosφ := math.Max(math.Cos(lat*math.Pi/180), minCosLat)
	Δx = rEarth * cosφ * Δlon * math.Pi / 180
	Δy = rEarth * Δlat * math.Pi / 180
	return
}

// clampCell locates the cell containing c, treating out-of-range
// coordinates as belonging to the nearest edge cell.
func clampCell(grid []float64, c float64) int {
	i, _, err := cellIndex(grid, c, "")
	if err == nil {
		return i
	}
	ascending := grid[len(grid)-1] > grid[0]
	if (c < grid[0]) == ascending {
		return 0
	}
	return len(grid) - 2
}

// nextTimeBoundary returns the offset [s] of the first time slice strictly
// beyond t in the direction of integration, and whether one exists.
func (d *MetData) nextTimeBoundary(t float64, forward bool) (float64, bool) {
	if forward {
		for _, tb := range d.Times {
			if tb > t {
				return tb, true
			}
		}
		return 0, false
	}
	for i := len(d.Times) - 1; i >= 0; i-- {
		if d.Times[i] < t {
			return d.Times[i], true
		}
	}
	return 0, false
}

// dataInterval returns the update interval [s] of the time axis at model
// time t.
func (d *MetData) dataInterval(t float64) float64 {
	it := clampCell(d.Times, t)
	return d.Times[it+1] - d.Times[it]
}

// timeBounds returns the first and last time offsets [s] in the archive.
func (d *MetData) timeBounds() (float64, float64) {
	return d.Times[0], d.Times[len(d.Times)-1]
}

// hasScalar reports whether the archive carries the named scalar field.
func (d *MetData) hasScalar(name string) bool {
	_, ok := d.Scalars[name]
	return ok
}
