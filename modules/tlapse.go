package modules

import (
	"fmt"
	"math"
	"time"

	"github.com/spatialmodel/chm"
	"github.com/spatialmodel/chm/interp"
)

// ObservedValue looks up a station's raw observation of a variable at
// a timestamp; met.Coordinator's bound Backends satisfy this shape
// directly.
type ObservedValue func(st *chm.Station, name string, t time.Time) (float64, error)

// TLapse distributes station temperature to every face by lowering
// nearby station observations to sea level with a lapse rate,
// interpolating, and raising the result back up to each face's
// elevation, following original_source's Dist_tlapse module. Unlike
// the generic met.Coordinator binding, TLapse owns its own station
// radius and interpolator so it can be tuned independently of
// whatever handles other met variables.
//
// The lapse rate itself is not a tunable of this module: it is read
// per-tick, per-face from the "t_lapse_rate" met variable, the same
// value original_source's Dist_tlapse.cpp reads off the station set
// rather than a config-file constant.
type TLapse struct {
	Stations []*chm.Station
	Radius   float64
	Observe  ObservedValue

	// Geographic marks the mesh's projection as geographic
	// (+proj=longlat), so the station index uses great-circle rather
	// than planar distance for its radius query (spec §4.K).
	Geographic bool

	index *interp.Index
}

// Descriptor implements chm.Module.
func (l *TLapse) Descriptor() chm.Descriptor {
	return chm.Descriptor{
		Name:           "Dist_tlapse",
		Provides:       []string{"t"},
		DependsFromMet: []string{"t_raw", "t_lapse_rate"},
		Parallelism:    chm.FaceParallel,
	}
}

// Init implements chm.Module: builds the station index once.
func (l *TLapse) Init(mesh chm.Mesh, store *chm.Store) error {
	if l.Geographic {
		l.index = interp.NewGeographicIndex(l.Stations)
	} else {
		l.index = interp.NewIndex(l.Stations)
	}
	return nil
}

// RunFace implements chm.FaceModule.
func (l *TLapse) RunFace(f *chm.Face, store *chm.Store, t time.Time, dt time.Duration) error {
	gamma, err := store.Get(f.ID(), "t_lapse_rate")
	if err != nil {
		return fmt.Errorf("modules: Dist_tlapse: face %d: %w", f.ID(), err)
	}
	lift := interp.ConstantLapse{RatePerMeter: gamma}

	nearby := l.index.Radius(f.Centroid.X, f.Centroid.Y, l.Radius)
	if len(nearby) == 0 {
		return fmt.Errorf("modules: Dist_tlapse: face %d: %w", f.ID(), chm.ErrInsufficientData)
	}

	lowered := make(map[*chm.Station]float64, len(nearby))
	for _, st := range nearby {
		v, err := l.Observe(st, "t_raw", t)
		if err != nil || math.IsNaN(v) {
			continue // matches original_source's is_nan(s->get("t")) skip
		}
		lowered[st] = lift.Lower(v, -st.Z, t)
	}
	if len(lowered) == 0 {
		return fmt.Errorf("modules: Dist_tlapse: face %d: %w", f.ID(), chm.ErrInsufficientData)
	}

	tps := interp.ThinPlateSpline{}
	var value float64
	if len(lowered) >= interp.MinStations {
		value, err = tps.Interpolate(f.Centroid.X, f.Centroid.Y, f.Centroid.Z, lowered)
		if err != nil {
			return fmt.Errorf("modules: Dist_tlapse: face %d: %v", f.ID(), err)
		}
	} else {
		idw := interp.IDW{Power: 2}
		value, _ = idw.Interpolate(f.Centroid.X, f.Centroid.Y, f.Centroid.Z, lowered)
	}

	value = lift.Raise(value, -f.Centroid.Z, t)

	store.Set(f.ID(), "t", value)
	return nil
}

// Run implements chm.Module for the DomainSerial-only Module
// interface; TLapse is FaceParallel and always dispatched through
// RunFace, so Run is never called by the driver but is provided to
// satisfy the interface.
func (l *TLapse) Run(mesh chm.Mesh, store *chm.Store, t time.Time, dt time.Duration) error {
	for i := 0; i < mesh.NumFaces(); i++ {
		if err := l.RunFace(mesh.Face(i), store, t, dt); err != nil {
			return err
		}
	}
	return nil
}
