package modules

import (
	"fmt"
	"math"
	"time"

	"github.com/spatialmodel/chm"
	"github.com/spatialmodel/chm/interp"
)

// esat returns saturation vapour pressure [Pa] for air temperature ta
// [°C] using the Magnus formula, with separate parameter sets above
// and below freezing, following original_source's esat().
func esat(ta float64) float64 {
	const (
		aw, bw, cw = 611.21, 17.502, 240.97
		ai, bi, ci = 611.15, 22.452, 272.55
	)
	if ta >= 0 {
		return aw * math.Exp((bw*ta)/(cw+ta))
	}
	return ai * math.Exp((bi*ta)/(ci+ta))
}

// RHFromObs derives relative humidity at every face from station
// vapour pressure observations, following original_source's
// rh_from_obs: it fits a single domain-wide vapour-pressure lapse
// rate once per timestamp (cached, since every face would otherwise
// refit the same regression), lowers every station's vapour pressure
// to sea level, interpolates with a thin-plate spline, raises back to
// the face's elevation, and converts to RH using the face's own
// temperature, clamped to [10, 100].
type RHFromObs struct {
	Stations []*chm.Station
	Observe  ObservedValue

	// fit holds the once-per-timestamp vapour-pressure lapse
	// regression. Its own mutex serializes fitting across the
	// FaceParallel worker pool, so faces run concurrently but the fit
	// itself runs once per tick, matching the single-threaded-regression
	// rule of the concurrency model.
	fit interp.FittedLapse
}

// Descriptor implements chm.Module.
func (r *RHFromObs) Descriptor() chm.Descriptor {
	return chm.Descriptor{
		Name:           "rh_from_obs",
		Provides:       []string{"rh"},
		Depends:        []string{"t"},
		DependsFromMet: []string{"rh_raw", "t_raw"},
		Parallelism:    chm.FaceParallel,
	}
}

// Init implements chm.Module.
func (r *RHFromObs) Init(mesh chm.Mesh, store *chm.Store) error { return nil }

// vaporPressureAt returns a station's vapour pressure derived from its
// rh_raw and t_raw met observations, or an error if either is missing
// or non-finite.
func (r *RHFromObs) vaporPressureAt(st *chm.Station, t time.Time) (float64, error) {
	rh, err := r.Observe(st, "rh_raw", t)
	if err != nil {
		return 0, err
	}
	ta, err := r.Observe(st, "t_raw", t)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(rh) || math.IsNaN(ta) {
		return 0, chm.ErrMissingVariable
	}
	return (rh / 100) * esat(ta), nil
}

// fitLapse regresses station vapour pressure against elevation across
// every station, once per distinct timestamp (spec §8, scenario S2).
func (r *RHFromObs) fitLapse(t time.Time) error {
	if last := r.fit.LastFit(); !last.IsZero() && last.Equal(t) {
		return nil
	}
	elevations := make([]float64, 0, len(r.Stations))
	vaporPressures := make([]float64, 0, len(r.Stations))
	for _, st := range r.Stations {
		ea, err := r.vaporPressureAt(st, t)
		if err != nil {
			continue
		}
		elevations = append(elevations, st.Z)
		vaporPressures = append(vaporPressures, ea)
	}
	if len(elevations) < 2 {
		return fmt.Errorf("modules: rh_from_obs: %w", chm.ErrInsufficientData)
	}
	r.fit.Fit(t, elevations, vaporPressures)
	return nil
}

// RunFace implements chm.FaceModule.
func (r *RHFromObs) RunFace(f *chm.Face, store *chm.Store, t time.Time, dt time.Duration) error {
	if err := r.fitLapse(t); err != nil {
		return err
	}

	lowered := make(map[*chm.Station]float64, len(r.Stations))
	for _, st := range r.Stations {
		ea, err := r.vaporPressureAt(st, t)
		if err != nil {
			continue
		}
		lowered[st] = r.fit.Lower(ea, st.Z, t)
	}
	if len(lowered) < interp.MinStations {
		return fmt.Errorf("modules: rh_from_obs: face %d: %w", f.ID(), chm.ErrInsufficientData)
	}

	tps := interp.ThinPlateSpline{}
	ea, err := tps.Interpolate(f.Centroid.X, f.Centroid.Y, f.Centroid.Z, lowered)
	if err != nil {
		return fmt.Errorf("modules: rh_from_obs: face %d: %v", f.ID(), err)
	}
	ea = r.fit.Raise(ea, f.Centroid.Z, t)

	faceTemp, err := store.Get(f.ID(), "t")
	if err != nil {
		return err
	}
	es := esat(faceTemp)
	rh := ea / es * 100

	rh = math.Min(rh, 100)
	rh = math.Max(10, rh)

	store.Set(f.ID(), "rh", rh)
	return nil
}

// Run implements chm.Module to satisfy the interface; RHFromObs is
// FaceParallel and is always dispatched through RunFace.
func (r *RHFromObs) Run(mesh chm.Mesh, store *chm.Store, t time.Time, dt time.Duration) error {
	for i := 0; i < mesh.NumFaces(); i++ {
		if err := r.RunFace(mesh.Face(i), store, t, dt); err != nil {
			return err
		}
	}
	return nil
}
