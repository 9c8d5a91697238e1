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
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
)

// cellIndex locates the grid cell containing coordinate c: the index i such
// that G[i] ≤ c ≤ G[i+1] (orientation-aware), found by a right-biased search
// then decrement, clamped so the last grid point falls within the last cell.
// It also returns the fractional distance of c across the cell,
// d = (c - G[i]) / (G[i+1] - G[i]). Coordinates strictly outside the grid
// return an OutOfDomainError before any arithmetic.
func cellIndex(grid []float64, c float64, axis string) (int, float64, error) {
	n := len(grid)
	ascending := grid[n-1] > grid[0]
	lo, hi := grid[0], grid[n-1]
	if !ascending {
		lo, hi = hi, lo
	}
	if c < lo || c > hi {
		return 0, 0, &OutOfDomainError{Axis: axis, Value: c, Min: lo, Max: hi}
	}
	var i int
	if ascending {
		i = sort.Search(n, func(j int) bool { return grid[j] > c })
	} else {
		i = sort.Search(n, func(j int) bool { return grid[j] < c })
	}
	i--
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}
	return i, (c - grid[i]) / (grid[i+1] - grid[i]), nil
}

// cellLoc is a fully resolved sample location: the enclosing cell on each
// axis and the fractional distance across it.
type cellLoc struct {
	ix, iy, iz, it int
	dx, dy, dz, dt float64
}

// A Sampler interpolates wind and scalar fields to arbitrary points in space
// and time. Spatial interpolation is trilinear and always proceeds in
// longitude, latitude, vertical order within each of the two bounding time
// slices; the two spatial results are then interpolated linearly in time.
// The axis order is numerically significant and must not be changed.
//
// A Sampler remembers the most recently used cell on each axis to skip the
// search for the repeated nearby queries a particle integration makes; the
// cache affects call cost only, never results. Samplers are not safe for
// concurrent use. Create one per worker; all of them may share one MetData.
type Sampler struct {
	d              *MetData
	ix, iy, iz, it int
}

// NewSampler creates a Sampler for the given meteorological data.
func NewSampler(d *MetData) *Sampler {
	return &Sampler{d: d, ix: -1, iy: -1, iz: -1, it: -1}
}

// lookup is cellIndex with a single-cell cache in front of it.
func lookup(grid []float64, c float64, cached *int, axis string) (int, float64, error) {
	if i := *cached; i >= 0 && i <= len(grid)-2 {
		if (c-grid[i])*(c-grid[i+1]) <= 0 {
			return i, (c - grid[i]) / (grid[i+1] - grid[i]), nil
		}
	}
	i, d, err := cellIndex(grid, c, axis)
	if err != nil {
		return 0, 0, err
	}
	*cached = i
	return i, d, nil
}

// locate resolves a query point to grid cells and fractions, checking each
// axis in longitude, latitude, vertical, time order.
func (s *Sampler) locate(lon, lat, z, t float64) (cellLoc, error) {
	var l cellLoc
	var err error
	if l.ix, l.dx, err = lookup(s.d.Lon, lon, &s.ix, "longitude"); err != nil {
		return l, err
	}
	if l.iy, l.dy, err = lookup(s.d.Lat, lat, &s.iy, "latitude"); err != nil {
		return l, err
	}
	if l.iz, l.dz, err = lookup(s.d.Levels, z, &s.iz, "vertical"); err != nil {
		return l, err
	}
	if l.it, l.dt, err = lookup(s.d.Times, t, &s.it, "time"); err != nil {
		return l, err
	}
	return l, nil
}

// trilinear interpolates one time slice of a 4-D array at the given cell
// location, in x then y then z order.
func trilinear(a *sparse.DenseArray, it int, l cellLoc) float64 {
	c00 := a.Get(it, l.iz, l.iy, l.ix)*(1-l.dx) + a.Get(it, l.iz, l.iy, l.ix+1)*l.dx
	c10 := a.Get(it, l.iz, l.iy+1, l.ix)*(1-l.dx) + a.Get(it, l.iz, l.iy+1, l.ix+1)*l.dx
	c01 := a.Get(it, l.iz+1, l.iy, l.ix)*(1-l.dx) + a.Get(it, l.iz+1, l.iy, l.ix+1)*l.dx
	c11 := a.Get(it, l.iz+1, l.iy+1, l.ix)*(1-l.dx) + a.Get(it, l.iz+1, l.iy+1, l.ix+1)*l.dx
	c0 := c00*(1-l.dy) + c10*l.dy
	c1 := c01*(1-l.dy) + c11*l.dy
	return c0*(1-l.dz) + c1*l.dz
}

// bilinear interpolates one time slice of a 3-D (time, lat, lon) array.
func bilinear(a *sparse.DenseArray, it int, l cellLoc) float64 {
	c0 := a.Get(it, l.iy, l.ix)*(1-l.dx) + a.Get(it, l.iy, l.ix+1)*l.dx
	c1 := a.Get(it, l.iy+1, l.ix)*(1-l.dx) + a.Get(it, l.iy+1, l.ix+1)*l.dx
	return c0*(1-l.dy) + c1*l.dy
}

// interp4 interpolates a 4-D array spatially at both bounding time slices
// and then linearly in time.
func interp4(a *sparse.DenseArray, l cellLoc) float64 {
	v0 := trilinear(a, l.it, l)
	v1 := trilinear(a, l.it+1, l)
	return v0*(1-l.dt) + v1*l.dt
}

// SampleWind returns the three wind components interpolated to the given
// longitude [deg], latitude [deg], vertical coordinate (units of the data's
// vertical axis), and model time t [s since the archive start].
func (s *Sampler) SampleWind(lon, lat, z, t float64) (u, v, w float64, err error) {
	l, err := s.locate(lon, lat, z, t)
	if err != nil {
		return 0, 0, 0, err
	}
	u = interp4(s.d.U, l)
	v = interp4(s.d.V, l)
	w = interp4(s.d.W, l)
	return u, v, w, nil
}

// SampleScalar interpolates the named scalar field (one of the Var* names)
// to the given point. Single-level (time, lat, lon) and static (lat, lon)
// fields are interpolated horizontally only.
func (s *Sampler) SampleScalar(name string, lon, lat, z, t float64) (float64, error) {
	a, ok := s.d.Scalars[name]
	if !ok {
		return 0, fmt.Errorf("lpdm: meteorological data do not contain field %q", name)
	}
	l, err := s.locate(lon, lat, z, t)
	if err != nil {
		return 0, err
	}
	switch len(a.Shape) {
	case 4:
		return interp4(a, l), nil
	case 3:
		v0 := bilinear(a, l.it, l)
		v1 := bilinear(a, l.it+1, l)
		return v0*(1-l.dt) + v1*l.dt, nil
	case 2:
		c0 := a.Get(l.iy, l.ix)*(1-l.dx) + a.Get(l.iy, l.ix+1)*l.dx
		c1 := a.Get(l.iy+1, l.ix)*(1-l.dx) + a.Get(l.iy+1, l.ix+1)*l.dx
		return c0*(1-l.dy) + c1*l.dy, nil
	default:
		return 0, fmt.Errorf("lpdm: field %q has unsupported rank %d", name, len(a.Shape))
	}
}

// SampleWindBatch interpolates the wind for a batch of query points sharing
// one model time, writing results into us, vs, and ws and per-point errors
// into errs. Points where active is false are skipped and left untouched.
// Results are numerically identical to SampleWind, point for point.
func (s *Sampler) SampleWindBatch(lons, lats, zs []float64, t float64, active []bool, us, vs, ws []float64, errs []error) {
	for i := range lons {
		if !active[i] {
			continue
		}
		us[i], vs[i], ws[i], errs[i] = s.SampleWind(lons[i], lats[i], zs[i], t)
	}
}
