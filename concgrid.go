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

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// KernelType selects how a particle's mass is spread over concentration
// grid cells.
type KernelType int

const (
	// KernelTopHat spreads mass uniformly over a square cell window.
	KernelTopHat KernelType = iota
	// KernelGaussian spreads mass with Gaussian weights over a 3σ
	// window.
	KernelGaussian
)

// String implements the fmt.Stringer interface.
func (k KernelType) String() string {
	switch k {
	case KernelTopHat:
		return "top hat"
	case KernelGaussian:
		return "gaussian"
	default:
		return "unknown"
	}
}

// ConcGridConfig describes one concentration sampling grid: a regular
// longitude-latitude mesh with layer tops in meters above ground.
type ConcGridConfig struct {
	Name           string
	LonMin, LatMin float64 `desc:"Southwest grid corner" units:"degrees"`
	DLon, DLat     float64 `desc:"Cell size" units:"degrees"`
	Nx, Ny         int
	LevelTops      []float64 `desc:"Layer top heights, ascending" units:"m above ground"`

	// SampleStart and SampleEnd bound the averaging window; when both
	// are zero the grid samples for the whole run.
	SampleStart, SampleEnd time.Time

	Kernel KernelType
	// KernelRadius is the top-hat window radius in cells; values of one
	// or less assign mass wholly to the enclosing cell.
	KernelRadius float64
	// KernelSigma is the Gaussian width in cells.
	KernelSigma float64
}

func (c *ConcGridConfig) validate() error {
	if c.Nx < 1 || c.Ny < 1 {
		return &InvalidConfigurationError{Field: "ConcGridConfig.Nx/Ny",
			Value: []int{c.Nx, c.Ny}, Reason: "the grid needs at least one cell per axis"}
	}
	if c.DLon <= 0 || c.DLat <= 0 {
		return &InvalidConfigurationError{Field: "ConcGridConfig.DLon/DLat",
			Value: []float64{c.DLon, c.DLat}, Reason: "cell sizes must be positive"}
	}
	if len(c.LevelTops) == 0 {
		return &InvalidConfigurationError{Field: "ConcGridConfig.LevelTops",
			Value: c.LevelTops, Reason: "at least one vertical layer is required"}
	}
	prev := 0.
	for _, top := range c.LevelTops {
		if top <= prev {
			return &InvalidConfigurationError{Field: "ConcGridConfig.LevelTops",
				Value: top, Reason: "layer tops must be positive and ascending"}
		}
		prev = top
	}
	if !c.SampleStart.IsZero() && !c.SampleEnd.IsZero() && !c.SampleEnd.After(c.SampleStart) {
		return &InvalidConfigurationError{Field: "ConcGridConfig.SampleEnd",
			Value: c.SampleEnd, Reason: "the sampling window must end after it starts"}
	}
	if c.Kernel == KernelGaussian && c.KernelSigma <= 0 {
		return &InvalidConfigurationError{Field: "ConcGridConfig.KernelSigma",
			Value: c.KernelSigma, Reason: "the Gaussian kernel needs a positive width"}
	}
	return nil
}

// A ConcentrationGrid accumulates particle mass onto a regular mesh over a
// sampling window. Mass and Counts carry the raw accumulation state;
// Finalize derives time-averaged concentrations from them without
// modifying them.
type ConcentrationGrid struct {
	Config ConcGridConfig

	// Mass is the accumulated mass [kg] per (layer, lat, lon) cell.
	Mass *sparse.DenseArray
	// Counts is the parallel per-cell sample count.
	Counts *sparse.DenseArray

	d           *MetData
	scaleHeight float64
}

func newConcentrationGrid(c ConcGridConfig, d *MetData, scaleHeight float64) *ConcentrationGrid {
	nz := len(c.LevelTops)
	return &ConcentrationGrid{
		Config:      c,
		Mass:        sparse.ZerosDense(nz, c.Ny, c.Nx),
		Counts:      sparse.ZerosDense(nz, c.Ny, c.Nx),
		d:           d,
		scaleHeight: scaleHeight,
	}
}

// inWindow reports whether t falls within the sampling window.
func (cg *ConcentrationGrid) inWindow(t time.Time) bool {
	c := &cg.Config
	if c.SampleStart.IsZero() && c.SampleEnd.IsZero() {
		return true
	}
	return !t.Before(c.SampleStart) && !t.After(c.SampleEnd)
}

// layerOf returns the vertical layer index containing a height above
// ground, or false when the height is above the grid top.
func (cg *ConcentrationGrid) layerOf(zAGL float64) (int, bool) {
	for k, top := range cg.Config.LevelTops {
		if zAGL <= top {
			return k, true
		}
	}
	return 0, false
}

// accumulate adds the mass of every active particle to the grid when t is
// within the sampling window, and advances every cell's sample count by
// one so Finalize can average over time. Calls outside the window do
// nothing.
func (cg *ConcentrationGrid) accumulate(particles []Particle, t time.Time) {
	if !cg.inWindow(t) {
		return
	}
	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}
		zAGL := heightAGL(cg.d, cg.scaleHeight, p.Lon, p.Lat, p.Z)
		iz, ok := cg.layerOf(zAGL)
		if !ok {
			continue
		}
		switch cg.Config.Kernel {
		case KernelGaussian:
			cg.addGaussian(p, iz)
		default:
			cg.addTopHat(p, iz)
		}
	}
	for i := range cg.Counts.Elements {
		cg.Counts.Elements[i]++
	}
}

// addTopHat spreads a particle's mass equally over the square window of
// cells around it. Every window cell is assigned the same share; shares
// belonging to cells outside the grid are dropped without renormalizing,
// so a window straddling the grid edge deposits less than the full mass.
func (cg *ConcentrationGrid) addTopHat(p *Particle, iz int) {
	c := &cg.Config
	ix := int(math.Floor((p.Lon - c.LonMin) / c.DLon))
	iy := int(math.Floor((p.Lat - c.LatMin) / c.DLat))
	r := 0
	if c.KernelRadius > 1 {
		r = int(c.KernelRadius)
	}
	share := p.Mass / float64((2*r+1)*(2*r+1))
	for j := iy - r; j <= iy+r; j++ {
		if j < 0 || j >= c.Ny {
			continue
		}
		for i := ix - r; i <= ix+r; i++ {
			if i < 0 || i >= c.Nx {
				continue
			}
			cg.Mass.AddVal(share, iz, j, i)
		}
	}
}

// addGaussian spreads a particle's mass over the cells within 3σ of it,
// weighted by exp(-0.5·((Δx/σ)²+(Δy/σ)²)) and renormalized over the
// in-bounds cells so the full mass is always deposited.
func (cg *ConcentrationGrid) addGaussian(p *Particle, iz int) {
	c := &cg.Config
	σ := c.KernelSigma
	fx := (p.Lon - c.LonMin) / c.DLon
	fy := (p.Lat - c.LatMin) / c.DLat
	ix := int(math.Floor(fx))
	iy := int(math.Floor(fy))
	r := int(math.Ceil(3 * σ))

	type share struct {
		i, j int
		w    float64
	}
	shares := make([]share, 0, (2*r+1)*(2*r+1))
	var wsum float64
	for j := iy - r; j <= iy+r; j++ {
		if j < 0 || j >= c.Ny {
			continue
		}
		for i := ix - r; i <= ix+r; i++ {
			if i < 0 || i >= c.Nx {
				continue
			}
			Δx := (float64(i) + 0.5 - fx) / σ
			Δy := (float64(j) + 0.5 - fy) / σ
			w := math.Exp(-0.5 * (Δx*Δx + Δy*Δy))
			shares = append(shares, share{i: i, j: j, w: w})
			wsum += w
		}
	}
	if wsum <= 0 {
		return
	}
	for _, sh := range shares {
		cg.Mass.AddVal(p.Mass*sh.w/wsum, iz, sh.j, sh.i)
	}
}

// Finalize converts the accumulated mass into a time-averaged
// concentration [kg/m³]: mass divided by the spherical cell volume and by
// the per-cell sample count. It derives a fresh array each call and leaves
// the accumulation state untouched, so it is idempotent and may be called
// at any time.
func (cg *ConcentrationGrid) Finalize() *sparse.DenseArray {
	c := &cg.Config
	conc := sparse.ZerosDense(cg.Mass.Shape...)
	for k, top := range c.LevelTops {
		bottom := 0.
		if k > 0 {
			bottom = c.LevelTops[k-1]
		}
		thickness := top - bottom
		for j := 0; j < c.Ny; j++ {
			lat1 := c.LatMin + float64(j)*c.DLat
			vol := cellArea(lat1, lat1+c.DLat, c.DLon) * thickness
			for i := 0; i < c.Nx; i++ {
				n := cg.Counts.Get(k, j, i)
				if n == 0 {
					continue
				}
				conc.Set(cg.Mass.Get(k, j, i)/vol/n, k, j, i)
			}
		}
	}
	return conc
}

// cellArea is the area [m²] of a longitude-latitude cell on the sphere,
// A = R²·Δλ·(sin φ₂ − sin φ₁).
func cellArea(lat1, lat2, Δlon float64) float64 {
	const rad = math.Pi / 180
	return rEarth * rEarth * Δlon * rad *
		math.Abs(math.Sin(lat2*rad)-math.Sin(lat1*rad))
}

// Geometry returns the horizontal outline of every grid cell in row-major
// (south to north, then west to east) order; all vertical layers share the
// same horizontal geometry.
func (cg *ConcentrationGrid) Geometry() []geom.Polygonal {
	c := &cg.Config
	gg := make([]geom.Polygonal, 0, c.Nx*c.Ny)
	for j := 0; j < c.Ny; j++ {
		y0 := c.LatMin + float64(j)*c.DLat
		y1 := y0 + c.DLat
		for i := 0; i < c.Nx; i++ {
			x0 := c.LonMin + float64(i)*c.DLon
			x1 := x0 + c.DLon
			gg = append(gg, geom.Polygon{{
				{X: x0, Y: y0},
				{X: x1, Y: y0},
				{X: x1, Y: y1},
				{X: x0, Y: y1},
			}})
		}
	}
	return gg
}
