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

import "math"

const degPerRad = 180 / math.Pi

// cosLat is the longitude metric factor, bounded away from zero so
// advection stays finite next to the poles.
func cosLat(lat float64) float64 {
	return math.Max(math.Cos(lat*math.Pi/180), minCosLat)
}

// totalVelocity samples the mean wind at a point and applies the
// vertical-motion mode and the turbulence perturbation to it.
func (e *Engine) totalVelocity(s *Sampler, tb *turbulence, lon, lat, z, tm, Δt float64) (u, v, w float64, err error) {
	u, v, w, err = s.SampleWind(lon, lat, z, tm)
	if err != nil {
		return 0, 0, 0, err
	}
	w = verticalVelocity(s, e.mode, e.cfg.VerticalDamping, lon, lat, z, tm, u, v, w)
	du, dv, dw := tb.perturbation(s, lon, lat, z, tm, Δt)
	return u + du, v + dv, w + dw, nil
}

// advance moves one particle through a single Heun predictor-corrector
// step of signed length Δt [s] starting at model time tm. The predictor
// advects with the velocity at the current position; the corrector
// resamples at the predicted position and time, and the final position is
// re-advected from the original position with the average of the two
// velocity estimates.
//
// The predicted vertical coordinate is clamped into the vertical grid
// before the corrector samples it, so a small overshoot does not abort the
// step; the caller's boundary correction settles the final position. A
// negative Δt reverses every directional term through sign alone.
// OutOfDomainErrors from either stage propagate unchanged.
func (e *Engine) advance(p *Particle, s *Sampler, tb *turbulence, tm, Δt float64) error {
	u1, v1, w1, err := e.totalVelocity(s, tb, p.Lon, p.Lat, p.Z, tm, Δt)
	if err != nil {
		return err
	}

	lat1 := p.Lat + v1*Δt/rEarth*degPerRad
	lon1 := p.Lon + u1*Δt/(rEarth*cosLat(p.Lat))*degPerRad
	z1 := p.Z + w1*Δt
	zlo, zhi := e.d.vertRange()
	z1 = math.Min(math.Max(z1, zlo), zhi)

	u2, v2, w2, err := e.totalVelocity(s, tb, lon1, lat1, z1, tm+Δt, Δt)
	if err != nil {
		return err
	}

	u := (u1 + u2) / 2
	v := (v1 + v2) / 2
	w := (w1 + w2) / 2
	lat0 := p.Lat
	p.Lat += v * Δt / rEarth * degPerRad
	p.Lon += u * Δt / (rEarth * cosLat(lat0)) * degPerRad
	p.Z += w * Δt
	return nil
}

// advanceBatch performs one Heun step of signed length Δt for every
// particle whose mask entry is true, in lock-step: each stage issues one
// batched wind sample for the whole set of query points instead of one
// call per particle. Per-point results are numerically identical to
// advance. Errors are isolated per particle in errs; a failed particle's
// state is left unchanged.
func (e *Engine) advanceBatch(s *Sampler, tb *turbulence, ps []Particle, mask []bool, tm, Δt float64, errs []error) {
	n := len(ps)
	lons := make([]float64, n)
	lats := make([]float64, n)
	zs := make([]float64, n)
	us := make([]float64, n)
	vs := make([]float64, n)
	ws := make([]float64, n)
	live := make([]bool, n)
	for i := range ps {
		live[i] = mask[i]
		lons[i], lats[i], zs[i] = ps[i].Lon, ps[i].Lat, ps[i].Z
	}

	// Predictor stage.
	s.SampleWindBatch(lons, lats, zs, tm, live, us, vs, ws, errs)
	u1 := make([]float64, n)
	v1 := make([]float64, n)
	w1 := make([]float64, n)
	zlo, zhi := e.d.vertRange()
	for i := range ps {
		if !live[i] {
			continue
		}
		if errs[i] != nil {
			live[i] = false
			continue
		}
		w := verticalVelocity(s, e.mode, e.cfg.VerticalDamping, lons[i], lats[i], zs[i], tm, us[i], vs[i], ws[i])
		du, dv, dw := tb.perturbation(s, lons[i], lats[i], zs[i], tm, Δt)
		u1[i], v1[i], w1[i] = us[i]+du, vs[i]+dv, w+dw
		lats[i] = ps[i].Lat + v1[i]*Δt/rEarth*degPerRad
		lons[i] = ps[i].Lon + u1[i]*Δt/(rEarth*cosLat(ps[i].Lat))*degPerRad
		zs[i] = math.Min(math.Max(ps[i].Z+w1[i]*Δt, zlo), zhi)
	}

	// Corrector stage at the predicted positions.
	s.SampleWindBatch(lons, lats, zs, tm+Δt, live, us, vs, ws, errs)
	for i := range ps {
		if !live[i] {
			continue
		}
		if errs[i] != nil {
			continue
		}
		w := verticalVelocity(s, e.mode, e.cfg.VerticalDamping, lons[i], lats[i], zs[i], tm+Δt, us[i], vs[i], ws[i])
		du, dv, dw := tb.perturbation(s, lons[i], lats[i], zs[i], tm+Δt, Δt)
		u2, v2, w2 := us[i]+du, vs[i]+dv, w+dw
		p := &ps[i]
		lat0 := p.Lat
		p.Lat += (v1[i] + v2) / 2 * Δt / rEarth * degPerRad
		p.Lon += (u1[i] + u2) / 2 * Δt / (rEarth * cosLat(lat0)) * degPerRad
		p.Z += (w1[i] + w2) / 2 * Δt
	}
}
