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
	"io"
	"math"
	"sort"
	"time"
)

// An Engine integrates a set of particles through a meteorological archive
// according to a SimulationConfig. Create one with NewEngine and run it
// with Run; an Engine is good for a single run.
type Engine struct {
	// Log receives progress and termination messages when non-nil.
	Log io.Writer

	cfg  *SimulationConfig
	d    *MetData
	mode VertMotionMode
	bh   boundaryHandler

	// dep holds one deposition model per species; entries are nil when
	// both deposition processes are switched off.
	dep   []*depositionModel
	grids []*ConcentrationGrid

	particles []Particle
	// starts holds each particle's release offset [s] from the
	// configured start time, signed with the integration direction.
	starts []float64
	// offset0 is the configured start time as seconds from the archive
	// start.
	offset0 float64
}

// NewEngine validates the configuration against the meteorological data
// and prepares the particle set. All configuration problems surface here,
// before any integration begins.
func NewEngine(cfg *SimulationConfig, d *MetData) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		d:       d,
		mode:    resolveVertMotion(cfg.VerticalMotion, cfg.Locations[0].Lat),
		bh:      boundaryHandler{d: d, modelTop: cfg.ModelTop},
		offset0: cfg.Start.Sub(d.Start).Seconds(),
	}
	t0, t1 := d.timeBounds()
	if e.offset0 < t0 || e.offset0 > t1 {
		return nil, &InvalidConfigurationError{Field: "Start", Value: cfg.Start,
			Reason: fmt.Sprintf("start time is outside the data window %v to %v",
				d.Start.Add(time.Duration(t0*float64(time.Second))),
				d.Start.Add(time.Duration(t1*float64(time.Second))))}
	}

	e.dep = make([]*depositionModel, len(cfg.Species))
	if cfg.DryDeposition || cfg.WetDeposition {
		for i, sp := range cfg.Species {
			e.dep[i] = newDepositionModel(sp, cfg.DryDeposition, cfg.WetDeposition, cfg.ScaleHeight)
		}
	}

	zlo, zhi := d.vertRange()
	probe := NewSampler(d)
	mass := cfg.ReleaseMass / float64(cfg.ParticlesPerLocation)
	emit := math.Abs(cfg.EmissionDuration.Seconds())
	dir := 1.
	if !cfg.forward() {
		dir = -1
	}
	n := len(cfg.Locations) * len(cfg.Species) * cfg.ParticlesPerLocation
	e.particles = make([]Particle, 0, n)
	e.starts = make([]float64, 0, n)
	for _, loc := range cfg.Locations {
		z, err := cfg.startHeight(loc, d.VCoord)
		if err != nil {
			return nil, err
		}
		if d.VCoord == HeightLevels && loc.Kind == HeightAGL {
			z += d.surfaceHeight(loc.Lon, loc.Lat)
		}
		if z < zlo || z > zhi {
			return nil, &InvalidConfigurationError{Field: "Locations", Value: loc.Height,
				Reason: fmt.Sprintf("start height converts to %g, outside the vertical data range [%g, %g]",
					z, zlo, zhi)}
		}
		if _, _, _, err := probe.SampleWind(loc.Lon, loc.Lat, z, e.offset0); err != nil {
			return nil, &InvalidConfigurationError{Field: "Locations",
				Value: [2]float64{loc.Lon, loc.Lat}, Reason: err.Error()}
		}
		for si := range cfg.Species {
			for k := 0; k < cfg.ParticlesPerLocation; k++ {
				e.particles = append(e.particles, newParticle(loc.Lon, loc.Lat, z, mass, si))
				var off float64
				if emit > 0 {
					off = dir * emit * float64(k) / float64(cfg.ParticlesPerLocation)
				}
				e.starts = append(e.starts, off)
			}
		}
	}
	for _, gc := range cfg.Grids {
		e.grids = append(e.grids, newConcentrationGrid(gc, d, cfg.ScaleHeight))
	}
	return e, nil
}

// Particles returns the engine's particle set. The returned slice is the
// engine's own storage; treat it as read-only.
func (e *Engine) Particles() []Particle { return e.particles }

// Grids returns the engine's concentration grids in configuration order.
// They hold accumulated mass only after Run has finished.
func (e *Engine) Grids() []*ConcentrationGrid { return e.grids }

// wallTime converts a model time offset [s from the archive start] into a
// wall-clock time.
func (e *Engine) wallTime(tm float64) time.Time {
	return e.d.Start.Add(time.Duration(tm * float64(time.Second)))
}

// newTurbulence creates a turbulence source. Each particle gets its own
// stream so trajectories do not depend on the execution strategy or on
// how particles are divided among workers.
func (e *Engine) newTurbulence(stream uint64) *turbulence {
	return newTurbulence(e.cfg.Turbulence, e.cfg.TurbulenceSigma, e.cfg.KhMax,
		e.cfg.ScaleHeight, e.cfg.RandomSeed+stream)
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log != nil {
		fmt.Fprintf(e.Log, format, args...)
	}
}

// integrateParticle runs the full trajectory loop for the particle at
// index idx using a worker-local sampler. Terminal conditions are checked
// in a fixed priority order: elapsed duration first, then domain exit,
// then mass depletion, so a particle that finishes its run on the same
// step it would deplete counts as completed. The returned trajectory
// always carries at least the release point, and its last point is the
// last numerically valid state.
func (e *Engine) integrateParticle(idx int, s *Sampler) Trajectory {
	p := &e.particles[idx]
	tb := e.newTurbulence(uint64(idx))
	traj := Trajectory{Particle: idx, Species: p.Species}
	dir := 1.
	if !e.cfg.forward() {
		dir = -1
	}
	total := math.Abs(e.cfg.Duration.Seconds())
	outEvery := e.cfg.OutputInterval.Seconds()
	dep := e.dep[p.Species]

	elapsed := 0.
	nextOut := outEvery
	traj.record(e.wallTime(e.offset0+e.starts[idx]), p)

	for step := 0; ; step++ {
		if elapsed >= total {
			traj.Reason = Completed
			break
		}
		if step >= e.cfg.MaxIterations {
			traj.Reason = IterationLimit
			break
		}
		tm := e.offset0 + e.starts[idx] + dir*elapsed
		u, v, _, err := s.SampleWind(p.Lon, p.Lat, p.Z, tm)
		if err != nil {
			p.Active = false
			traj.Reason = LeftDomain
			traj.Err = err
			break
		}
		Δt := computeDt(e.d, e.cfg.TRatio, e.cfg.DtMax, u, v, p.Lon, p.Lat, tm, e.cfg.forward())
		// Shorten the step so it lands exactly on the end of the run
		// or the next output time, whichever comes first. Assigning
		// elapsed from the snapped target below keeps output times
		// bit-identical across particles, which the concentration
		// grids rely on to synchronize ensemble snapshots.
		onRun, onOut := false, false
		if rem := total - elapsed; rem <= Δt {
			Δt, onRun = rem, true
		}
		if outEvery > 0 {
			if gap := nextOut - elapsed; gap > 0 && gap <= Δt {
				if gap < Δt {
					onRun = false
				}
				Δt, onOut = gap, true
			}
		}
		if err := e.advance(p, s, tb, tm, dir*Δt); err != nil {
			p.Active = false
			traj.Reason = LeftDomain
			traj.Err = err
			break
		}
		var active bool
		p.Lon, p.Lat, p.Z, active = e.bh.apply(p.Lon, p.Lat, p.Z)
		if !active {
			p.Active = false
			traj.Reason = LeftDomain
			break
		}
		if dep != nil {
			var disp float64
			p.Mass, disp = dep.applyStep(s, p.Lon, p.Lat, p.Z, tm, dir*Δt, p.Mass)
			if disp != 0 {
				p.Z = e.bh.reflectVertical(p.Lon, p.Lat, p.Z+disp)
			}
		}
		switch {
		case onOut:
			elapsed = nextOut
		case onRun:
			elapsed = total
		default:
			elapsed += Δt
		}
		p.Age += dir * Δt
		if err := p.checkFinite(step); err != nil {
			// The unstable state is never recorded.
			p.Active = false
			traj.Reason = Unstable
			traj.Err = err
			return traj
		}
		if outEvery > 0 {
			if onOut {
				traj.record(e.wallTime(e.offset0+e.starts[idx]+dir*elapsed), p)
				nextOut += outEvery
			}
		} else {
			traj.record(e.wallTime(e.offset0+e.starts[idx]+dir*elapsed), p)
		}
		if dep != nil && elapsed < total && p.depleted(e.cfg.DepletionFraction) {
			p.Active = false
			traj.Reason = Deposited
			break
		}
	}
	traj.record(e.wallTime(e.offset0+e.starts[idx]+dir*elapsed), p)
	return traj
}

// accumulateGrids replays recorded trajectory points through the
// concentration grids. Points are grouped by recorded time so that each
// grid sees ensemble snapshots, one call per distinct output time, the
// same way regardless of the execution strategy or the order particles
// finished in.
func (e *Engine) accumulateGrids(trajs []Trajectory) {
	if len(e.grids) == 0 {
		return
	}
	byTime := make(map[time.Time][]Particle)
	for i := range trajs {
		tr := &trajs[i]
		for _, pt := range tr.Points {
			byTime[pt.T] = append(byTime[pt.T], Particle{
				Lon: pt.Lon, Lat: pt.Lat, Z: pt.Z, Mass: pt.Mass,
				Active: true, Species: tr.Species,
			})
		}
	}
	times := make([]time.Time, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for _, t := range times {
		for _, cg := range e.grids {
			cg.accumulate(byTime[t], t)
		}
	}
}
