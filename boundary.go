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

// A boundaryHandler corrects particle positions against the edges of the
// data domain. It is applied after every integration step, always in the
// same order: longitude wrap, pole reflection, horizontal extent check,
// vertical reflection.
type boundaryHandler struct {
	d        *MetData
	modelTop float64
}

// apply corrects a position. The returned active flag is false when the
// particle has left the horizontal data domain, which is terminal; in that
// case the partially corrected position is returned without vertical
// reflection.
func (b *boundaryHandler) apply(lon, lat, z float64) (float64, float64, float64, bool) {
	lon = wrapLongitude(lon)
	if lat > 90 {
		lat = 180 - lat
		lon = wrapLongitude(lon + 180)
	} else if lat < -90 {
		lat = -180 - lat
		lon = wrapLongitude(lon + 180)
	}
	if lon < b.d.Lon[0] || lon > b.d.Lon[len(b.d.Lon)-1] ||
		lat < b.d.Lat[0] || lat > b.d.Lat[len(b.d.Lat)-1] {
		return lon, lat, z, false
	}
	return lon, lat, b.reflectVertical(lon, lat, z), true
}

// reflectVertical bounces z back between the domain floor and ceiling:
// terrain to model top for height coordinates, the extremes of the
// vertical grid for pressure coordinates.
func (b *boundaryHandler) reflectVertical(lon, lat, z float64) float64 {
	var floor, ceil float64
	switch b.d.VCoord {
	case HeightLevels:
		floor = b.d.surfaceHeight(lon, lat)
		ceil = b.modelTop
	default:
		floor, ceil = b.d.vertRange()
	}
	return reflect(z, floor, ceil)
}

// wrapLongitude moves a longitude into [-180, 180).
func wrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// reflect bounces z back inside [floor, ceil] as a triangle wave. The
// modulo form handles overshoot past both walls within a single step, not
// just one bounce.
func reflect(z, floor, ceil float64) float64 {
	span := ceil - floor
	if span <= 0 {
		return floor
	}
	r := math.Mod(z-floor, 2*span)
	if r < 0 {
		r += 2 * span
	}
	if r > span {
		r = 2*span - r
	}
	return floor + r
}
