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
	"runtime"
	"sync"
	"time"
)

// A Strategy says how a run divides its particles among workers.
type Strategy int

const (
	// StrategyAuto selects a strategy from the estimated problem size.
	StrategyAuto Strategy = iota
	// StrategySequential integrates one particle at a time on the
	// calling goroutine.
	StrategySequential
	// StrategyParallel distributes particles over GOMAXPROCS workers.
	StrategyParallel
	// StrategyBatched advances all particles in lock step through a
	// BatchKernel.
	StrategyBatched
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategySequential:
		return "sequential"
	case StrategyParallel:
		return "parallel"
	case StrategyBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// Problem size, in particles times estimated steps, below which sequential
// execution wins, and the particle count above which lock-step batching
// pays off.
const (
	sequentialMaxWork   = 20000
	batchedMinParticles = 4096
)

// chooseStrategy resolves StrategyAuto from the estimated amount of work:
// the particle count times a step-count estimate from the run duration and
// the maximum time step.
func (e *Engine) chooseStrategy() Strategy {
	if e.cfg.Strategy != StrategyAuto {
		return e.cfg.Strategy
	}
	steps := math.Abs(e.cfg.Duration.Seconds()) / e.cfg.DtMax
	if steps < 1 {
		steps = 1
	}
	switch work := float64(len(e.particles)) * steps; {
	case work <= sequentialMaxWork:
		return StrategySequential
	case len(e.particles) >= batchedMinParticles:
		return StrategyBatched
	default:
		return StrategyParallel
	}
}

// Run integrates every particle using the configured or automatically
// selected strategy, then accumulates the concentration grids from the
// recorded trajectories. Trajectories are returned in particle order
// regardless of the order particles finished in; per-particle failures
// are reported in each trajectory, never by aborting the rest of the run.
func (e *Engine) Run() []Trajectory {
	strategy := e.chooseStrategy()
	e.logf("lpdm: %d particles, %s strategy, %s vertical motion\n",
		len(e.particles), strategy, e.mode)
	start := time.Now()
	var trajs []Trajectory
	switch strategy {
	case StrategyParallel:
		trajs = e.runParallel()
	case StrategyBatched:
		trajs = e.runBatched()
	default:
		trajs = e.runSequential()
	}
	for i := range trajs {
		if err := trajs[i].Err; err != nil {
			e.logf("lpdm: particle %d %s: %v\n", i, trajs[i].Reason, err)
		}
	}
	e.accumulateGrids(trajs)
	e.logf("lpdm: finished in %v\n", time.Since(start))
	return trajs
}

// runSequential integrates every particle on the calling goroutine.
func (e *Engine) runSequential() []Trajectory {
	trajs := make([]Trajectory, len(e.particles))
	s := NewSampler(e.d)
	for i := range e.particles {
		trajs[i] = e.integrateParticle(i, s)
	}
	return trajs
}

// runParallel distributes particles over GOMAXPROCS workers. Each worker
// keeps its own sampler and writes into its own result slots, so results
// match sequential execution and need no locking.
func (e *Engine) runParallel() []Trajectory {
	trajs := make([]Trajectory, len(e.particles))
	nprocs := runtime.GOMAXPROCS(0) // number of workers
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			s := NewSampler(e.d)
			for ii := pp; ii < len(e.particles); ii += nprocs {
				trajs[ii] = e.integrateParticle(ii, s)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
	return trajs
}

// A BatchKernel advances a whole particle batch through one shared time
// step. Implementations may run anywhere, but Advance must produce
// positions point-for-point identical to the scalar integrator given the
// same winds and time step.
type BatchKernel interface {
	// Name identifies the kernel in log output.
	Name() string
	// Acquire reserves the resources needed for a batch of n particles.
	// An error means the kernel cannot run here; the engine then falls
	// back to another kernel or to sequential execution.
	Acquire(n int) error
	// Release frees whatever Acquire reserved.
	Release()
	// Advance steps every particle whose mask entry is true from model
	// time tm by the signed step Δt, updating positions in place and
	// recording per-particle failures in errs.
	Advance(ps []Particle, mask []bool, tm, Δt float64, errs []error)
}

// kernelFactories holds registered accelerator kernels, probed in
// registration order before the built-in CPU kernel.
var kernelFactories []func(*Engine) BatchKernel

// RegisterKernel adds a BatchKernel candidate for batched runs.
func RegisterKernel(f func(*Engine) BatchKernel) {
	kernelFactories = append(kernelFactories, f)
}

// cpuKernel is the built-in BatchKernel. It shares the scalar
// integrator's arithmetic, so a batched step agrees bit for bit with a
// scalar step over the same winds.
type cpuKernel struct {
	e  *Engine
	s  *Sampler
	tb *turbulence
}

func (k *cpuKernel) Name() string { return "cpu" }

func (k *cpuKernel) Acquire(n int) error {
	k.s = NewSampler(k.e.d)
	k.tb = k.e.newTurbulence(0)
	return nil
}

func (k *cpuKernel) Release() {}

func (k *cpuKernel) Advance(ps []Particle, mask []bool, tm, Δt float64, errs []error) {
	k.e.advanceBatch(k.s, k.tb, ps, mask, tm, Δt, errs)
}

// runBatched probes registered kernels in order and runs the batch on the
// first one that accepts it, falling back to the built-in CPU kernel and,
// should that also refuse, to sequential execution.
func (e *Engine) runBatched() []Trajectory {
	kernels := make([]BatchKernel, 0, len(kernelFactories)+1)
	for _, f := range kernelFactories {
		kernels = append(kernels, f(e))
	}
	kernels = append(kernels, &cpuKernel{e: e})
	for _, k := range kernels {
		if err := k.Acquire(len(e.particles)); err != nil {
			e.logf("lpdm: batch kernel %s unavailable: %v\n", k.Name(), err)
			continue
		}
		e.logf("lpdm: batch kernel %s\n", k.Name())
		return e.runBatch(k)
	}
	e.logf("lpdm: no batch kernel available, running sequentially\n")
	return e.runSequential()
}

// runBatch advances all particles in lock step with a shared time step,
// the smallest CFL step over the live batch, shortened to land on the
// next release, output time, or particle run end. Releases, terminations,
// and deposition happen per particle between steps. Output recording is
// synchronized to the shared clock, so with a staggered release the
// recorded times differ from the per-particle times the scalar strategies
// use. The iteration cap counts shared steps.
func (e *Engine) runBatch(k BatchKernel) []Trajectory {
	defer k.Release()

	n := len(e.particles)
	dir := 1.
	if !e.cfg.forward() {
		dir = -1
	}
	total := math.Abs(e.cfg.Duration.Seconds())
	outEvery := e.cfg.OutputInterval.Seconds()

	trajs := make([]Trajectory, n)
	estart := make([]float64, n) // release offsets as nonnegative elapsed times
	live := make([]bool, n)
	done := make([]bool, n)
	endAt := total
	for i := range e.particles {
		trajs[i] = Trajectory{Particle: i, Species: e.particles[i].Species}
		estart[i] = math.Abs(e.starts[i])
		if estart[i]+total > endAt {
			endAt = estart[i] + total
		}
	}

	s := NewSampler(e.d)
	lons := make([]float64, n)
	lats := make([]float64, n)
	zs := make([]float64, n)
	us := make([]float64, n)
	vs := make([]float64, n)
	ws := make([]float64, n)
	serrs := make([]error, n)
	kerrs := make([]error, n)

	elapsed := 0.
	nextOut := outEvery

	release := func(i int) {
		live[i] = true
		trajs[i].record(e.wallTime(e.offset0+dir*elapsed), &e.particles[i])
	}
	finish := func(i int, reason TerminationReason, err error) {
		p := &e.particles[i]
		p.Active = false
		live[i] = false
		done[i] = true
		trajs[i].Reason = reason
		trajs[i].Err = err
		if reason != Unstable {
			trajs[i].record(e.wallTime(e.offset0+dir*elapsed), p)
		}
	}

	for i := range e.particles {
		if estart[i] <= 0 {
			release(i)
		}
	}

	for step := 0; step < e.cfg.MaxIterations && elapsed < endAt; step++ {
		tm := e.offset0 + dir*elapsed

		anyLive, anyPending := false, false
		for i := range e.particles {
			if live[i] {
				anyLive = true
			} else if !done[i] {
				anyPending = true
			}
		}
		if !anyLive && !anyPending {
			break
		}

		Δt := e.cfg.DtMax
		if anyLive {
			for i := range e.particles {
				p := &e.particles[i]
				lons[i], lats[i], zs[i] = p.Lon, p.Lat, p.Z
			}
			s.SampleWindBatch(lons, lats, zs, tm, live, us, vs, ws, serrs)
			for i := range e.particles {
				if !live[i] {
					continue
				}
				if serrs[i] != nil {
					finish(i, LeftDomain, serrs[i])
					continue
				}
				if d := computeDt(e.d, e.cfg.TRatio, e.cfg.DtMax, us[i], vs[i],
					lons[i], lats[i], tm, e.cfg.forward()); d < Δt {
					Δt = d
				}
			}
		}
		for i := range e.particles {
			if done[i] {
				continue
			}
			if !live[i] {
				if gap := estart[i] - elapsed; gap > 0 && gap < Δt {
					Δt = gap
				}
			} else if gap := estart[i] + total - elapsed; gap > 0 && gap < Δt {
				Δt = gap
			}
		}
		onOut := false
		if outEvery > 0 {
			if gap := nextOut - elapsed; gap > 0 && gap <= Δt {
				Δt, onOut = gap, true
			}
		}

		k.Advance(e.particles, live, tm, dir*Δt, kerrs)
		if onOut {
			elapsed = nextOut
			nextOut += outEvery
		} else {
			elapsed += Δt
		}

		for i := range e.particles {
			if !live[i] {
				continue
			}
			p := &e.particles[i]
			if kerrs[i] != nil {
				finish(i, LeftDomain, kerrs[i])
				continue
			}
			var active bool
			p.Lon, p.Lat, p.Z, active = e.bh.apply(p.Lon, p.Lat, p.Z)
			if !active {
				finish(i, LeftDomain, nil)
				continue
			}
			dep := e.dep[p.Species]
			if dep != nil {
				var disp float64
				p.Mass, disp = dep.applyStep(s, p.Lon, p.Lat, p.Z, tm, dir*Δt, p.Mass)
				if disp != 0 {
					p.Z = e.bh.reflectVertical(p.Lon, p.Lat, p.Z+disp)
				}
			}
			p.Age += dir * Δt
			if err := p.checkFinite(step); err != nil {
				finish(i, Unstable, err)
				continue
			}
			if elapsed-estart[i] >= total {
				finish(i, Completed, nil)
				continue
			}
			if onOut || outEvery == 0 {
				trajs[i].record(e.wallTime(e.offset0+dir*elapsed), p)
			}
			if dep != nil && p.depleted(e.cfg.DepletionFraction) {
				finish(i, Deposited, nil)
			}
		}
		for i := range e.particles {
			if !done[i] && !live[i] && elapsed >= estart[i] {
				release(i)
			}
		}
	}
	for i := range e.particles {
		if !done[i] {
			finish(i, IterationLimit, nil)
		}
	}
	return trajs
}
