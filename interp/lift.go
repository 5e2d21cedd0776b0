package interp

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ConstantLapse lowers and raises by a single fixed rate [unit per
// metre], the simplest of original_source's Dist_tlapse strategies.
type ConstantLapse struct {
	RatePerMeter float64
}

// Lower implements met.Lift.
func (c ConstantLapse) Lower(value, elevation float64, _ time.Time) float64 {
	return value - c.RatePerMeter*elevation
}

// Raise implements met.Lift.
func (c ConstantLapse) Raise(value, elevation float64, _ time.Time) float64 {
	return value + c.RatePerMeter*elevation
}

// MonthlyLapse looks up a lapse rate by calendar month, following the
// Kunkel monthly dewpoint/RH lapse table original_source ships
// (Kunkel_monthlyTd_rh.hpp) generalized to any monthly-varying
// variable.
type MonthlyLapse struct {
	// RatePerMeter[m-1] is the rate for month m (1=January).
	RatePerMeter [12]float64
}

func (m MonthlyLapse) rate(t time.Time) float64 {
	return m.RatePerMeter[int(t.Month())-1]
}

// Lower implements met.Lift.
func (m MonthlyLapse) Lower(value, elevation float64, t time.Time) float64 {
	return value - m.rate(t)*elevation
}

// Raise implements met.Lift.
func (m MonthlyLapse) Raise(value, elevation float64, t time.Time) float64 {
	return value + m.rate(t)*elevation
}

// FittedLapse fits an ordinary-least-squares lapse rate from the
// current set of station (elevation, value) pairs once per timestamp
// and caches it, the same "static last_update / lapse" memoization
// original_source's rh_from_obs.cpp uses to avoid refitting when
// asked for the same tick's lapse rate more than once (e.g. once per
// face). Fit/Lower/Raise are safe to call concurrently, since a single
// FittedLapse is typically shared across a FaceParallel module's
// worker pool.
type FittedLapse struct {
	mu      sync.Mutex
	lastFit time.Time
	haveFit bool
	alpha   float64 // sea-level intercept
	beta    float64 // rate per metre
}

// Fit performs (or reuses a cached) OLS regression of value on
// elevation for timestamp t. Calling it again with the same t and any
// station data is a no-op; a caller wanting a fresh fit for a new set
// of stations at the same t must construct a new FittedLapse.
func (f *FittedLapse) Fit(t time.Time, elevations, values []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.haveFit && f.lastFit.Equal(t) {
		return
	}
	f.alpha, f.beta = stat.LinearRegression(elevations, values, nil, false)
	f.lastFit = t
	f.haveFit = true
}

// Lower implements met.Lift. Fit must have been called for t first.
func (f *FittedLapse) Lower(value, elevation float64, _ time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return value - f.beta*elevation
}

// Raise implements met.Lift.
func (f *FittedLapse) Raise(value, elevation float64, _ time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return value + f.beta*elevation
}

// Rate returns the most recently fitted rate per metre.
func (f *FittedLapse) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beta
}

// LastFit returns the timestamp of the most recent fit.
func (f *FittedLapse) LastFit() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFit
}

// DodsonMarksLapse computes the Dodson-Marks domain-average
// potential-temperature lapse rate: the negated slope of the
// regression of potential temperature against elevation across all
// stations (the dry adiabatic rate until a fit succeeds), following
// original_source's
// Dodson_NSA_ta.hpp. Unlike FittedLapse it fits once from
// externally-supplied domain-average station data rather than a
// single face's neighbourhood, and applies uniformly across the mesh.
type DodsonMarksLapse struct {
	// DryAdiabaticRate is the fallback rate per metre used until Fit
	// has been called at least once (≈0.0098 K/m).
	DryAdiabaticRate float64
	rate             float64
	fitted           bool
}

// Fit regresses potential temperature against elevation across every
// station reporting a value this tick.
func (d *DodsonMarksLapse) Fit(elevations, potentialTemps []float64) {
	if len(elevations) < 2 {
		return
	}
	_, beta := stat.LinearRegression(elevations, potentialTemps, nil, false)
	d.rate = -beta
	d.fitted = true
}

func (d *DodsonMarksLapse) rateOrDefault() float64 {
	if d.fitted {
		return d.rate
	}
	return d.DryAdiabaticRate
}

// Lower implements met.Lift.
func (d *DodsonMarksLapse) Lower(value, elevation float64, _ time.Time) float64 {
	return value + d.rateOrDefault()*elevation
}

// Raise implements met.Lift.
func (d *DodsonMarksLapse) Raise(value, elevation float64, _ time.Time) float64 {
	return value - d.rateOrDefault()*elevation
}
