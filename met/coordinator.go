// Package met coordinates meteorological forcing for the simulation
// core: it owns a set of stations (real or virtual), a subsetted
// common time axis, and the interpolation needed to hand the core a
// per-face value for a met-provided variable at the current tick.
package met

import (
	"fmt"
	"time"

	"github.com/spatialmodel/chm"
)

// Backend is the contract an ascii station-file reader or a gridded
// netcdf reader implements: given a name and a timestamp, return the
// value each of its stations observed (spec §4.D).
type Backend interface {
	// Stations returns the fixed set of stations this backend exposes.
	Stations() *chm.StationSet
	// Variables returns every variable name this backend can supply.
	Variables() []string
	// At returns the observed value of name at station st at time t.
	// It returns chm.ErrMissingVariable if the backend has no such
	// variable, or a non-nil error if the timestamp falls outside the
	// backend's data.
	At(st *chm.Station, name string, t time.Time) (float64, error)
	// TimeRange returns the inclusive start and end of the backend's
	// data and its native time step.
	TimeRange() (start, end time.Time, dt time.Duration)
}

// Interpolator lifts a set of station observations of one variable to
// an arbitrary target point (spec §4.E).
type Interpolator interface {
	// Interpolate returns the estimated value of name at (x, y, z)
	// given the current station values obs (station -> value), or
	// chm.ErrInsufficientData if too few stations are available.
	Interpolate(x, y, z float64, obs map[*chm.Station]float64) (float64, error)
}

// binding pairs a met-provided variable with the interpolator used to
// produce it and, when present, the lifting/lowering strategy applied
// before and after interpolation (spec §4.F).
type binding struct {
	variable string
	interp   Interpolator
	lift     Lift
}

// Lift adjusts a station value to sea level before interpolation and
// an interpolated value back up to a face's elevation afterward
// (constant lapse rate, monthly table, per-timestep OLS fit, or the
// Dodson-Marks domain average potential-temperature lapse).
type Lift interface {
	Lower(value, elevation float64, t time.Time) float64
	Raise(value, elevation float64, t time.Time) float64
}

// Coordinator is the unified meteorological forcing façade the core's
// chm.MetSource interface is implemented against. It multiplexes one
// or more Backends, each contributing disjoint variable names, over a
// single subsetted time axis.
type Coordinator struct {
	backends  []Backend
	bindings  map[string]binding
	current   time.Time
	values    map[string]map[int]float64 // variable -> faceID -> value
	faceLoc   map[int][3]float64         // faceID -> x, y, z in station projection
	faceOrder []int
}

// NewCoordinator returns a Coordinator with no backends bound yet.
// faceLoc maps every face id the simulation will query to its
// (x, y, z) location in the same projection as the bound backends'
// stations.
func NewCoordinator(faceLoc map[int][3]float64) *Coordinator {
	order := make([]int, 0, len(faceLoc))
	for id := range faceLoc {
		order = append(order, id)
	}
	return &Coordinator{
		bindings: make(map[string]binding),
		values:   make(map[string]map[int]float64),
		faceLoc:  faceLoc,
		faceOrder: order,
	}
}

// Bind registers backend and, for each of the variables it names,
// the Interpolator (and optional Lift) used to distribute it to
// faces. Binding a variable that is already bound makes Bind return
// an error wrapping chm.ErrAmbiguousProvider.
func (c *Coordinator) Bind(backend Backend, variables map[string]struct {
	Interp Interpolator
	Lift   Lift
}) error {
	c.backends = append(c.backends, backend)
	offered := make(map[string]bool)
	for _, v := range backend.Variables() {
		offered[v] = true
	}
	for name, spec := range variables {
		if !offered[name] {
			return fmt.Errorf("met: backend does not offer variable %q", name)
		}
		if _, dup := c.bindings[name]; dup {
			return fmt.Errorf("met: variable %q already bound to a backend: %w", name, chm.ErrAmbiguousProvider)
		}
		c.bindings[name] = binding{variable: name, interp: spec.Interp, lift: spec.Lift}
	}
	return nil
}

// ListVariables implements chm.MetSource.
func (c *Coordinator) ListVariables() []string {
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	return names
}

// Advance implements chm.MetSource: it pulls every bound backend's
// station observations at t, lowers them if a Lift is bound, runs the
// interpolator for every face, and raises the result back to the
// face's elevation.
func (c *Coordinator) Advance(t time.Time) error {
	c.current = t
	for name, b := range c.bindings {
		backend := c.backendFor(name)
		if backend == nil {
			return fmt.Errorf("met: variable %q has no backend", name)
		}
		obs := make(map[*chm.Station]float64)
		for _, st := range backend.Stations().All() {
			v, err := backend.At(st, name, t)
			if err != nil {
				return fmt.Errorf("met: station %s variable %q at %s: %v", st.ID, name, t, err)
			}
			v, err = ApplyFilters(v, st.Filters)
			if err != nil {
				return fmt.Errorf("met: station %s variable %q at %s: %w", st.ID, name, t, err)
			}
			if b.lift != nil {
				v = b.lift.Lower(v, st.Z, t)
			}
			obs[st] = v
		}

		faceVals := make(map[int]float64, len(c.faceOrder))
		for _, id := range c.faceOrder {
			loc := c.faceLoc[id]
			v, err := b.interp.Interpolate(loc[0], loc[1], loc[2], obs)
			if err != nil {
				return fmt.Errorf("met: interpolating %q at face %d: %w", name, id, chm.ErrInsufficientData)
			}
			if b.lift != nil {
				v = b.lift.Raise(v, loc[2], t)
			}
			faceVals[id] = v
		}
		c.values[name] = faceVals
	}
	return nil
}

// Value implements chm.MetSource.
func (c *Coordinator) Value(faceID int, name string) (float64, error) {
	byFace, ok := c.values[name]
	if !ok {
		return 0, fmt.Errorf("met: %w: %q", chm.ErrMissingVariable, name)
	}
	v, ok := byFace[faceID]
	if !ok {
		return 0, fmt.Errorf("met: face %d has no value for %q: %w", faceID, name, chm.ErrMissingVariable)
	}
	return v, nil
}

func (c *Coordinator) backendFor(variable string) Backend {
	for _, b := range c.backends {
		for _, v := range b.Variables() {
			if v == variable {
				return b
			}
		}
	}
	return nil
}

// Subset checks that [start, end] and every bound backend's time range
// share a common window, returning chm.ErrEmptyOverlap if they do not
// and chm.ErrInconsistentDt if the backends' native time steps differ
// (spec §4.D, scenario S6). On success it returns the common time step.
// It stores nothing: the backends' ranges and the Coordinator's
// current time are left unchanged.
func (c *Coordinator) Subset(start, end time.Time) (time.Duration, error) {
	if len(c.backends) == 0 {
		return 0, fmt.Errorf("met: no backends bound")
	}
	var dt time.Duration
	for i, b := range c.backends {
		bStart, bEnd, bDt := b.TimeRange()
		if i == 0 {
			dt = bDt
		} else if bDt != dt {
			return 0, fmt.Errorf("met: backend time steps differ (%s vs %s): %w", bDt, dt, chm.ErrInconsistentDt)
		}
		if bStart.After(start) {
			start = bStart
		}
		if bEnd.Before(end) {
			end = bEnd
		}
	}
	if !start.Before(end) {
		return 0, fmt.Errorf("met: %w", chm.ErrEmptyOverlap)
	}
	return dt, nil
}

// Ticks returns every timestamp from start to end (inclusive) spaced
// dt apart, the tick-count arithmetic exercised by scenario S6.
func Ticks(start, end time.Time, dt time.Duration) []time.Time {
	if dt <= 0 {
		return nil
	}
	n := int(end.Sub(start)/dt) + 1
	out := make([]time.Time, 0, n)
	for t := start; !t.After(end); t = t.Add(dt) {
		out = append(out, t)
	}
	return out
}
