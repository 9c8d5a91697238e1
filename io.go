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
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/sparse"
)

// endpointMagic is the first line of a trajectory endpoints file.
const endpointMagic = "LPDM ENDPOINTS 1"

// speciesName returns the configured name of species i, or a generated
// placeholder when the configuration carries none.
func (e *Engine) speciesName(i int) string {
	if i >= 0 && i < len(e.cfg.Species) && e.cfg.Species[i].Name != "" {
		return e.cfg.Species[i].Name
	}
	return fmt.Sprintf("species%d", i)
}

// WriteTrajectories writes trajs to w as a plain-text endpoints file:
// a four-line header (format tag, release time, vertical coordinate
// kind, trajectory count) followed, for each trajectory, by one
// description line and one line per recorded point holding the time
// (RFC 3339), longitude and latitude [degrees], vertical coordinate,
// and mass [kg]. ReadTrajectories reads the result back.
func (e *Engine) WriteTrajectories(w io.Writer, trajs []Trajectory) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", endpointMagic)
	fmt.Fprintf(bw, "start: %s\n", e.cfg.Start.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "vertical: %s\n", e.d.VCoord)
	fmt.Fprintf(bw, "trajectories: %d\n", len(trajs))
	for _, tr := range trajs {
		fmt.Fprintf(bw, "trajectory %d species %d %q reason %q points %d\n",
			tr.Particle, tr.Species, e.speciesName(tr.Species),
			tr.Reason.String(), len(tr.Points))
		for _, pt := range tr.Points {
			fmt.Fprintf(bw, "%s %12.6f %12.6f %12.4f %13.6e\n",
				pt.T.UTC().Format(time.RFC3339), pt.Lon, pt.Lat, pt.Z, pt.Mass)
		}
	}
	return bw.Flush()
}

// ReadTrajectories reads a trajectory endpoints file written by
// WriteTrajectories. Point values carry the precision of the text format
// rather than full float64 precision, and the Err field, which is not
// serialized, is always nil.
func ReadTrajectories(r io.Reader) ([]Trajectory, error) {
	sc := bufio.NewScanner(r)
	line := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return sc.Text(), nil
	}

	l, err := line()
	if err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: %v", err)
	}
	if l != endpointMagic {
		return nil, fmt.Errorf("lpdm: not a trajectory endpoints file (first line %q)", l)
	}
	if l, err = line(); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: %v", err)
	}
	var startText string
	if _, err = fmt.Sscanf(l, "start: %s", &startText); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: bad start line %q", l)
	}
	if _, err = time.Parse(time.RFC3339, startText); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: %v", err)
	}
	var vertical string
	if l, err = line(); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: %v", err)
	}
	if _, err = fmt.Sscanf(l, "vertical: %s", &vertical); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: bad vertical line %q", l)
	}
	var n int
	if l, err = line(); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: %v", err)
	}
	if _, err = fmt.Sscanf(l, "trajectories: %d", &n); err != nil {
		return nil, fmt.Errorf("lpdm: reading trajectories: bad count line %q", l)
	}

	trajs := make([]Trajectory, 0, n)
	for k := 0; k < n; k++ {
		if l, err = line(); err != nil {
			return nil, fmt.Errorf("lpdm: reading trajectory %d: %v", k, err)
		}
		var (
			tr           Trajectory
			name, reason string
			npts         int
		)
		if _, err = fmt.Sscanf(l, "trajectory %d species %d %q reason %q points %d",
			&tr.Particle, &tr.Species, &name, &reason, &npts); err != nil {
			return nil, fmt.Errorf("lpdm: reading trajectory %d: bad description line %q", k, l)
		}
		if tr.Reason, err = parseReason(reason); err != nil {
			return nil, fmt.Errorf("lpdm: reading trajectory %d: %v", k, err)
		}
		tr.Points = make([]TrajectoryPoint, npts)
		for i := 0; i < npts; i++ {
			if l, err = line(); err != nil {
				return nil, fmt.Errorf("lpdm: reading trajectory %d point %d: %v", k, i, err)
			}
			pt := &tr.Points[i]
			var ts string
			if _, err = fmt.Sscanf(l, "%s %g %g %g %g",
				&ts, &pt.Lon, &pt.Lat, &pt.Z, &pt.Mass); err != nil {
				return nil, fmt.Errorf("lpdm: reading trajectory %d point %d: bad line %q", k, i, l)
			}
			if pt.T, err = time.Parse(time.RFC3339, ts); err != nil {
				return nil, fmt.Errorf("lpdm: reading trajectory %d point %d: %v", k, i, err)
			}
		}
		trajs = append(trajs, tr)
	}
	return trajs, nil
}

// parseReason is the inverse of TerminationReason.String.
func parseReason(s string) (TerminationReason, error) {
	for _, r := range []TerminationReason{
		Completed, LeftDomain, Deposited, Unstable, IterationLimit,
	} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unrecognized termination reason %q", s)
}

// jsonFeature and jsonFeatureCollection define the GeoJSON output
// document.
type jsonFeature struct {
	Type       string                 `json:"type"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type jsonFeatureCollection struct {
	Type     string         `json:"type"`
	Name     string         `json:"name,omitempty"`
	Features []*jsonFeature `json:"features"`
}

// WriteTrajectoryGeoJSON writes trajs to w as a GeoJSON
// FeatureCollection with one LineString feature per trajectory (a Point
// when only a single position was recorded). Coordinates are
// longitude-latitude; the vertical coordinates, times, and masses of the
// recorded points travel in the feature properties along with the
// particle id, species name, and termination reason.
func (e *Engine) WriteTrajectoryGeoJSON(w io.Writer, trajs []Trajectory) error {
	out := jsonFeatureCollection{Type: "FeatureCollection"}
	for _, tr := range trajs {
		var g geom.Geom
		if len(tr.Points) == 1 {
			g = geom.Point{X: tr.Points[0].Lon, Y: tr.Points[0].Lat}
		} else {
			ls := make(geom.LineString, len(tr.Points))
			for i, pt := range tr.Points {
				ls[i] = geom.Point{X: pt.Lon, Y: pt.Lat}
			}
			g = ls
		}
		gj, err := geojson.ToGeoJSON(g)
		if err != nil {
			return fmt.Errorf("lpdm: encoding trajectory %d: %v", tr.Particle, err)
		}
		times := make([]string, len(tr.Points))
		heights := make([]float64, len(tr.Points))
		masses := make([]float64, len(tr.Points))
		for i, pt := range tr.Points {
			times[i] = pt.T.UTC().Format(time.RFC3339)
			heights[i] = pt.Z
			masses[i] = pt.Mass
		}
		out.Features = append(out.Features, &jsonFeature{
			Type:     "Feature",
			Geometry: gj,
			Properties: map[string]interface{}{
				"particle": tr.Particle,
				"species":  e.speciesName(tr.Species),
				"reason":   tr.Reason.String(),
				"times":    times,
				"heights":  heights,
				"masses":   masses,
			},
		})
	}
	return json.NewEncoder(w).Encode(out)
}

// WriteConcGeoJSON writes one vertical layer of cg's concentration field
// to w as a GeoJSON FeatureCollection with one Polygon feature per grid
// cell. Cells whose concentration is zero are omitted.
func (cg *ConcentrationGrid) WriteConcGeoJSON(w io.Writer, layer int) error {
	c := &cg.Config
	if layer < 0 || layer >= len(c.LevelTops) {
		return fmt.Errorf("lpdm: concentration layer %d out of range [0,%d)",
			layer, len(c.LevelTops))
	}
	conc := cg.Finalize()
	cells := cg.Geometry()
	out := jsonFeatureCollection{Type: "FeatureCollection", Name: c.Name}
	for j := 0; j < c.Ny; j++ {
		for i := 0; i < c.Nx; i++ {
			v := conc.Get(layer, j, i)
			if v == 0 {
				continue
			}
			gj, err := geojson.ToGeoJSON(cells[j*c.Nx+i])
			if err != nil {
				return fmt.Errorf("lpdm: encoding grid cell (%d,%d): %v", j, i, err)
			}
			out.Features = append(out.Features, &jsonFeature{
				Type:       "Feature",
				Geometry:   gj,
				Properties: map[string]interface{}{"concentration": v},
			})
		}
	}
	return json.NewEncoder(w).Encode(out)
}

// concDumpMagic identifies the binary concentration dump layout.
const concDumpMagic = "LPDMCNC1"

// concDumpFixed is the fixed-size portion of one grid record in a binary
// concentration dump.
type concDumpFixed struct {
	LonMin, LatMin, DLon, DLat float64
	Nx, Ny, NLevels            uint32
	Kernel                     uint8
	KernelRadius, KernelSigma  float64
}

// A ConcRecord is one grid read back from a binary concentration dump:
// the grid's configuration and its finalized concentration field [kg/m³]
// with shape (level, lat, lon).
type ConcRecord struct {
	Config ConcGridConfig
	Conc   *sparse.DenseArray
}

// WriteConcDump writes the finalized concentration fields of the given
// grids to w as a packed big-endian binary dump readable with
// ReadConcDump. Each grid record carries the full grid configuration, so
// the dump is self-describing.
func WriteConcDump(w io.Writer, grids ...*ConcentrationGrid) error {
	// binary.Write to a bytes.Buffer cannot fail for fixed-size values.
	buf, endi := new(bytes.Buffer), binary.BigEndian
	buf.WriteString(concDumpMagic)
	binary.Write(buf, endi, uint32(len(grids)))
	for _, cg := range grids {
		c := &cg.Config
		writeBinBytes(buf, []byte(c.Name))
		binary.Write(buf, endi, concDumpFixed{
			LonMin: c.LonMin, LatMin: c.LatMin,
			DLon: c.DLon, DLat: c.DLat,
			Nx: uint32(c.Nx), Ny: uint32(c.Ny),
			NLevels:      uint32(len(c.LevelTops)),
			Kernel:       uint8(c.Kernel),
			KernelRadius: c.KernelRadius, KernelSigma: c.KernelSigma,
		})
		binary.Write(buf, endi, c.LevelTops)
		for _, t := range []time.Time{c.SampleStart, c.SampleEnd} {
			tb, err := t.MarshalBinary()
			if err != nil {
				return fmt.Errorf("lpdm: writing concentration dump: %v", err)
			}
			writeBinBytes(buf, tb)
		}
		binary.Write(buf, endi, cg.Finalize().Elements)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("lpdm: writing concentration dump: %v", err)
	}
	return nil
}

// ReadConcDump reads every grid record from a binary concentration dump
// written by WriteConcDump.
func ReadConcDump(r io.Reader) ([]ConcRecord, error) {
	endi := binary.BigEndian
	magic := make([]byte, len(concDumpMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("lpdm: reading concentration dump: %v", err)
	}
	if string(magic) != concDumpMagic {
		return nil, fmt.Errorf("lpdm: not a concentration dump (magic %q)", magic)
	}
	var n uint32
	if err := binary.Read(r, endi, &n); err != nil {
		return nil, fmt.Errorf("lpdm: reading concentration dump: %v", err)
	}
	recs := make([]ConcRecord, 0, n)
	for g := uint32(0); g < n; g++ {
		name, err := readBinBytes(r, 1<<16)
		if err != nil {
			return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
		}
		var fx concDumpFixed
		if err := binary.Read(r, endi, &fx); err != nil {
			return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
		}
		cells := int64(fx.NLevels) * int64(fx.Ny) * int64(fx.Nx)
		if cells <= 0 || cells > 1<<28 {
			return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: implausible size %d×%d×%d",
				g, fx.NLevels, fx.Ny, fx.Nx)
		}
		tops := make([]float64, fx.NLevels)
		if err := binary.Read(r, endi, tops); err != nil {
			return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
		}
		rec := ConcRecord{Config: ConcGridConfig{
			Name:   string(name),
			LonMin: fx.LonMin, LatMin: fx.LatMin,
			DLon: fx.DLon, DLat: fx.DLat,
			Nx: int(fx.Nx), Ny: int(fx.Ny),
			LevelTops:    tops,
			Kernel:       KernelType(fx.Kernel),
			KernelRadius: fx.KernelRadius, KernelSigma: fx.KernelSigma,
		}}
		for _, t := range []*time.Time{&rec.Config.SampleStart, &rec.Config.SampleEnd} {
			tb, err := readBinBytes(r, 256)
			if err != nil {
				return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
			}
			if err := t.UnmarshalBinary(tb); err != nil {
				return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
			}
		}
		rec.Conc = sparse.ZerosDense(int(fx.NLevels), int(fx.Ny), int(fx.Nx))
		if err := binary.Read(r, endi, rec.Conc.Elements); err != nil {
			return nil, fmt.Errorf("lpdm: reading concentration dump grid %d: %v", g, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// writeBinBytes writes b length-prefixed to buf.
func writeBinBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

// readBinBytes reads a length-prefixed byte string of at most max bytes.
func readBinBytes(r io.Reader, max uint32) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("length %d exceeds limit %d", n, max)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteConcNC writes cg's finalized concentration field to a NetCDF file
// at filename. The level coordinate holds the layer top heights
// [m above ground] and the latitude and longitude coordinates the cell
// centers [degrees]; the concentration itself is stored as float32.
func WriteConcNC(filename string, cg *ConcentrationGrid) error {
	c := &cg.Config
	nz := len(c.LevelTops)

	h := cdf.NewHeader(
		[]string{ncDimLevel, ncDimLat, ncDimLon},
		[]int{nz, c.Ny, c.Nx})
	h.AddAttribute("", "comment", "LPDM concentration grid")
	if c.Name != "" {
		h.AddAttribute("", "name", c.Name)
	}
	if !c.SampleStart.IsZero() || !c.SampleEnd.IsZero() {
		h.AddAttribute("", "sample_start", c.SampleStart.UTC().Format(time.RFC3339))
		h.AddAttribute("", "sample_end", c.SampleEnd.UTC().Format(time.RFC3339))
	}

	h.AddVariable(ncDimLevel, []string{ncDimLevel}, []float64{0})
	h.AddAttribute(ncDimLevel, "description", "Layer top height")
	h.AddAttribute(ncDimLevel, "units", "m")
	h.AddVariable(ncDimLat, []string{ncDimLat}, []float64{0})
	h.AddAttribute(ncDimLat, "units", "degrees_north")
	h.AddVariable(ncDimLon, []string{ncDimLon}, []float64{0})
	h.AddAttribute(ncDimLon, "units", "degrees_east")
	h.AddVariable("concentration", []string{ncDimLevel, ncDimLat, ncDimLon}, []float32{0})
	h.AddAttribute("concentration", "description", "Time-averaged concentration")
	h.AddAttribute("concentration", "units", "kg m-3")
	h.Define()

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("lpdm: creating concentration file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("lpdm: writing concentration file %s: %v", filename, err)
	}

	lats := make([]float64, c.Ny)
	for j := range lats {
		lats[j] = c.LatMin + (float64(j)+0.5)*c.DLat
	}
	lons := make([]float64, c.Nx)
	for i := range lons {
		lons[i] = c.LonMin + (float64(i)+0.5)*c.DLon
	}
	if err = writeNCFloat64(ff, ncDimLevel, c.LevelTops); err != nil {
		return err
	}
	if err = writeNCFloat64(ff, ncDimLat, lats); err != nil {
		return err
	}
	if err = writeNCFloat64(ff, ncDimLon, lons); err != nil {
		return err
	}
	return writeNCDense(ff, "concentration", cg.Finalize())
}
