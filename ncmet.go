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
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// NetCDF dimension and variable names written by WriteMetNC and expected,
// after renaming, by ReadMetNC.
const (
	ncDimTime  = "time"
	ncDimLevel = "level"
	ncDimLat   = "latitude"
	ncDimLon   = "longitude"

	ncVarU       = "U"
	ncVarV       = "V"
	ncVarW       = "W"
	ncVarTerrain = "terrain"

	// ncTimeUnitsPrefix prefixes the reference time in the time
	// variable's units attribute.
	ncTimeUnitsPrefix = "seconds since "
)

// ReadMetNC reads a meteorological archive from the NetCDF file at
// filename. rename maps variable names in the file to the names used
// here; it may be nil when the file already follows the conventions
// WriteMetNC writes.
//
// The file must contain coordinate variables time, level, latitude, and
// longitude, and wind components U and V with dimensions
// (time, level, latitude, longitude). A missing W is treated as zero
// vertical motion. A terrain variable with dimensions
// (latitude, longitude) becomes the terrain elevation, and every other
// variable whose dimensions are (time, level, latitude, longitude),
// (time, latitude, longitude), or (latitude, longitude) is loaded as a
// scalar field under its renamed name; variables with other shapes are
// skipped.
//
// The reference time comes from the time variable's units attribute
// ("seconds since <RFC3339>") and the vertical coordinate kind from the
// level variable's units attribute ("hPa" or "m"), with descending levels
// read as pressure when the attribute is missing.
func ReadMetNC(filename string, rename map[string]string) (*MetData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("lpdm: opening meteorology file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("lpdm: reading meteorology file %s: %v", filename, err)
	}

	// canonical returns the name a file variable is used under here.
	canonical := func(v string) string {
		if n, ok := rename[v]; ok {
			return n
		}
		return v
	}
	// fileVar finds the file variable used under a canonical name.
	fileVar := func(want string) string {
		for _, v := range ff.Header.Variables() {
			if canonical(v) == want {
				return v
			}
		}
		return want
	}

	d := new(MetData)
	if d.Times, err = readNCCoord(ff, fileVar(ncDimTime)); err != nil {
		return nil, err
	}
	if d.Levels, err = readNCCoord(ff, fileVar(ncDimLevel)); err != nil {
		return nil, err
	}
	if d.Lat, err = readNCCoord(ff, fileVar(ncDimLat)); err != nil {
		return nil, err
	}
	if d.Lon, err = readNCCoord(ff, fileVar(ncDimLon)); err != nil {
		return nil, err
	}
	if d.Start, err = ncStartTime(ff, fileVar(ncDimTime)); err != nil {
		return nil, err
	}
	d.VCoord = ncVCoord(ff, fileVar(ncDimLevel), d.Levels)

	if d.U, err = readNCDense(ff, fileVar(ncVarU)); err != nil {
		return nil, err
	}
	if d.V, err = readNCDense(ff, fileVar(ncVarV)); err != nil {
		return nil, err
	}
	nt, nz := len(d.Times), len(d.Levels)
	ny, nx := len(d.Lat), len(d.Lon)
	if hasNCVar(ff, fileVar(ncVarW)) {
		if d.W, err = readNCDense(ff, fileVar(ncVarW)); err != nil {
			return nil, err
		}
	} else {
		d.W = sparse.ZerosDense(nt, nz, ny, nx)
	}
	if hasNCVar(ff, fileVar(ncVarTerrain)) {
		if d.Terrain, err = readNCDense(ff, fileVar(ncVarTerrain)); err != nil {
			return nil, err
		}
	}

	claimed := map[string]bool{
		ncDimTime: true, ncDimLevel: true, ncDimLat: true, ncDimLon: true,
		ncVarU: true, ncVarV: true, ncVarW: true, ncVarTerrain: true,
	}
	for _, v := range ff.Header.Variables() {
		cn := canonical(v)
		if claimed[cn] {
			continue
		}
		switch lens := ff.Header.Lengths(v); {
		case dimsEqual(lens, nt, nz, ny, nx),
			dimsEqual(lens, nt, ny, nx),
			dimsEqual(lens, ny, nx):
			a, err := readNCDense(ff, v)
			if err != nil {
				return nil, err
			}
			if d.Scalars == nil {
				d.Scalars = make(map[string]*sparse.DenseArray)
			}
			d.Scalars[cn] = a
		}
	}
	return d, d.Check()
}

func hasNCVar(ff *cdf.File, v string) bool {
	return len(ff.Header.Lengths(v)) > 0
}

func dimsEqual(lens []int, want ...int) bool {
	if len(lens) != len(want) {
		return false
	}
	for i, l := range lens {
		if l != want[i] {
			return false
		}
	}
	return true
}

// readNCCoord reads a one-dimensional coordinate variable as float64.
func readNCCoord(ff *cdf.File, v string) ([]float64, error) {
	lens := ff.Header.Lengths(v)
	if len(lens) == 0 {
		return nil, fmt.Errorf("lpdm: meteorology file does not contain coordinate variable %q", v)
	}
	if len(lens) != 1 {
		return nil, fmt.Errorf("lpdm: coordinate variable %q has %d dimensions, want 1", v, len(lens))
	}
	r := ff.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("lpdm: reading coordinate variable %q: %v", v, err)
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("lpdm: coordinate variable %q has unsupported type %T", v, buf)
}

// readNCDense reads a whole variable into a dense array, converting from
// whichever float type the file stores.
func readNCDense(ff *cdf.File, v string) (*sparse.DenseArray, error) {
	dims := ff.Header.Lengths(v)
	if len(dims) == 0 {
		return nil, fmt.Errorf("lpdm: meteorology file does not contain variable %q", v)
	}
	r := ff.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("lpdm: reading variable %q: %v", v, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float32:
		for i, x := range b {
			data.Elements[i] = float64(x)
		}
	case []float64:
		copy(data.Elements, b)
	default:
		return nil, fmt.Errorf("lpdm: variable %q has unsupported type %T", v, buf)
	}
	return data, nil
}

// ncStartTime parses the reference time out of the time variable's units
// attribute.
func ncStartTime(ff *cdf.File, timeVar string) (time.Time, error) {
	attr, _ := ff.Header.GetAttribute(timeVar, "units").(string)
	if !strings.HasPrefix(attr, ncTimeUnitsPrefix) {
		return time.Time{}, fmt.Errorf(
			"lpdm: time variable %q needs a units attribute of the form %q, have %q",
			timeVar, ncTimeUnitsPrefix+"2006-01-02T15:04:05Z", attr)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(attr, ncTimeUnitsPrefix)))
	if err != nil {
		return time.Time{}, fmt.Errorf("lpdm: parsing time reference %q: %v", attr, err)
	}
	return t, nil
}

// ncVCoord determines the vertical coordinate kind from the level
// variable's units attribute, falling back to the axis direction.
func ncVCoord(ff *cdf.File, levelVar string, levels []float64) VerticalCoordinate {
	units, _ := ff.Header.GetAttribute(levelVar, "units").(string)
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "hpa", "mb", "millibar", "millibars":
		return PressureLevels
	case "m", "meter", "meters":
		return HeightLevels
	}
	if len(levels) >= 2 && levels[len(levels)-1] < levels[0] {
		return PressureLevels
	}
	return HeightLevels
}

// WriteMetNC writes d to a NetCDF file at filename using the variable
// names ReadMetNC expects. Wind components and scalar fields are stored
// as float32, coordinates as float64.
func WriteMetNC(filename string, d *MetData) error {
	if err := d.Check(); err != nil {
		return err
	}
	nt, nz := len(d.Times), len(d.Levels)
	ny, nx := len(d.Lat), len(d.Lon)

	h := cdf.NewHeader(
		[]string{ncDimTime, ncDimLevel, ncDimLat, ncDimLon},
		[]int{nt, nz, ny, nx})
	h.AddAttribute("", "comment", "LPDM meteorological archive")

	h.AddVariable(ncDimTime, []string{ncDimTime}, []float64{0})
	h.AddAttribute(ncDimTime, "units", ncTimeUnitsPrefix+d.Start.UTC().Format(time.RFC3339))
	h.AddVariable(ncDimLevel, []string{ncDimLevel}, []float64{0})
	windWUnits := "m/s"
	if d.VCoord == PressureLevels {
		h.AddAttribute(ncDimLevel, "units", "hPa")
		windWUnits = "hPa/s"
	} else {
		h.AddAttribute(ncDimLevel, "units", "m")
	}
	h.AddVariable(ncDimLat, []string{ncDimLat}, []float64{0})
	h.AddAttribute(ncDimLat, "units", "degrees_north")
	h.AddVariable(ncDimLon, []string{ncDimLon}, []float64{0})
	h.AddAttribute(ncDimLon, "units", "degrees_east")

	windDims := []string{ncDimTime, ncDimLevel, ncDimLat, ncDimLon}
	h.AddVariable(ncVarU, windDims, []float32{0})
	h.AddAttribute(ncVarU, "description", "West-east wind component")
	h.AddAttribute(ncVarU, "units", "m/s")
	h.AddVariable(ncVarV, windDims, []float32{0})
	h.AddAttribute(ncVarV, "description", "South-north wind component")
	h.AddAttribute(ncVarV, "units", "m/s")
	h.AddVariable(ncVarW, windDims, []float32{0})
	h.AddAttribute(ncVarW, "description", "Vertical velocity")
	h.AddAttribute(ncVarW, "units", windWUnits)
	if d.Terrain != nil {
		h.AddVariable(ncVarTerrain, []string{ncDimLat, ncDimLon}, []float32{0})
		h.AddAttribute(ncVarTerrain, "description", "Terrain elevation")
		h.AddAttribute(ncVarTerrain, "units", "m")
	}

	scalars := make([]string, 0, len(d.Scalars))
	for name := range d.Scalars {
		scalars = append(scalars, name)
	}
	sort.Strings(scalars)
	for _, name := range scalars {
		a := d.Scalars[name]
		var dims []string
		switch len(a.Shape) {
		case 4:
			dims = windDims
		case 3:
			dims = []string{ncDimTime, ncDimLat, ncDimLon}
		case 2:
			dims = []string{ncDimLat, ncDimLon}
		}
		h.AddVariable(name, dims, []float32{0})
		h.AddAttribute(name, "description", name)
	}

	h.Define()
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("lpdm: creating meteorology file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("lpdm: writing meteorology file %s: %v", filename, err)
	}

	if err = writeNCFloat64(ff, ncDimTime, d.Times); err != nil {
		return err
	}
	if err = writeNCFloat64(ff, ncDimLevel, d.Levels); err != nil {
		return err
	}
	if err = writeNCFloat64(ff, ncDimLat, d.Lat); err != nil {
		return err
	}
	if err = writeNCFloat64(ff, ncDimLon, d.Lon); err != nil {
		return err
	}
	if err = writeNCDense(ff, ncVarU, d.U); err != nil {
		return err
	}
	if err = writeNCDense(ff, ncVarV, d.V); err != nil {
		return err
	}
	if err = writeNCDense(ff, ncVarW, d.W); err != nil {
		return err
	}
	if d.Terrain != nil {
		if err = writeNCDense(ff, ncVarTerrain, d.Terrain); err != nil {
			return err
		}
	}
	for _, name := range scalars {
		if err = writeNCDense(ff, name, d.Scalars[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeNCFloat64(ff *cdf.File, v string, data []float64) error {
	end := ff.Header.Lengths(v)
	start := make([]int, len(end))
	w := ff.Writer(v, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("lpdm: writing variable %q: %v", v, err)
	}
	return nil
}

func writeNCDense(ff *cdf.File, v string, data *sparse.DenseArray) error {
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := ff.Header.Lengths(v)
	start := make([]int, len(end))
	w := ff.Writer(v, start, end)
	if _, err := w.Write(data32); err != nil {
		return fmt.Errorf("lpdm: writing variable %q: %v", v, err)
	}
	return nil
}

// SaveMet writes d to w in gob format (format description at
// https://golang.org/pkg/encoding/gob/) for fast restarts.
func SaveMet(w io.Writer, d *MetData) error {
	if err := gob.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("lpdm: saving meteorology: %v", err)
	}
	return nil
}

// LoadMet reads an archive previously written by SaveMet.
func LoadMet(r io.Reader) (*MetData, error) {
	d := new(MetData)
	if err := gob.NewDecoder(r).Decode(d); err != nil {
		return nil, fmt.Errorf("lpdm: loading meteorology: %v", err)
	}
	return d, d.Check()
}
