// Package modules holds the neighbour-coupled and met-interpolating
// physics modules that plug into the driver's module graph.
package modules

import (
	"math"
	"time"

	"github.com/spatialmodel/chm"
)

// snowSlideState is the per-face working state snow_slide keeps
// across the height-sorted routing pass. snowdepthCopy/sweCopy are
// scratch copies of the store's snowdepthavg/swe values so routing can
// mutate a face's holdings without touching another module's view of
// the same tick's snowdepthavg/swe.
type snowSlideState struct {
	maxDepthNorm float64
	maxDepthVert float64

	snowdepthCopy     float64
	snowdepthVertCopy float64
	sweCopy           float64

	deltaAvalancheSnowdepth float64
	deltaAvalancheMass      float64
}

// SnowSlide redistributes snow downslope between neighbouring faces
// once a face's snow depth exceeds a slope- and canopy-derived holding
// capacity, following original_source's snow_slide module: a
// deterministic highest-to-lowest sweep routes the excess to each
// face's lower neighbours weighted by elevation difference, dumping
// snow off the mesh at domain edges and leaving local sinks untouched.
type SnowSlide struct {
	// AvalancheMult and AvalanchePow parametrize the holding-depth
	// power law maxDepth = max(AvalancheMult*slopeDeg^AvalanchePow, canopyHeight).
	AvalancheMult float64
	AvalanchePow  float64
	// UseVerticalSnow selects whether the holding-depth comparison is
	// against the slope-normal or vertical snow depth.
	UseVerticalSnow bool
}

// Descriptor implements chm.Module.
func (s *SnowSlide) Descriptor() chm.Descriptor {
	return chm.Descriptor{
		Name:                "snow_slide",
		Provides:            []string{"delta_avalanche_mass", "delta_avalanche_snowdepth", "maxDepth"},
		Depends:             []string{"swe"},
		DependsFromNeighbor: []string{"snowdepthavg"},
		Parallelism:         chm.DomainSerial,
	}
}

// Init implements chm.Module: it computes each face's holding depth
// from slope and canopy height, exactly as original_source's
// snow_slide::init does.
func (s *SnowSlide) Init(mesh chm.Mesh, store *chm.Store) error {
	mult, pow := s.AvalancheMult, s.AvalanchePow
	if mult == 0 {
		mult = 3178.4
	}
	if pow == 0 {
		pow = -1.998
	}
	for i := 0; i < mesh.NumFaces(); i++ {
		f := mesh.Face(i)
		canopyHeight := 0.0
		if f.Vegetation != nil {
			canopyHeight = f.Vegetation.CanopyHeight
		}
		slopeDeg := math.Max(10, f.Slope*180/math.Pi)
		maxDepthNorm := math.Max(mult*math.Pow(slopeDeg, pow), canopyHeight)
		maxDepthVert := maxDepthNorm * math.Max(0.001, math.Cos(f.Slope))

		store.SetModuleState(f.ID(), "snow_slide", &snowSlideState{
			maxDepthNorm: maxDepthNorm,
			maxDepthVert: maxDepthVert,
		})
		store.Set(f.ID(), "maxDepth", maxDepthNorm)
	}
	return nil
}

// Run implements chm.Module. It runs once per tick over the whole
// mesh: snapshot every face's snow state, sort faces from highest to
// lowest (elevation plus vertical snowdepth), then route each face's
// excess above its holding depth to its lower neighbours in that
// order, so a face that receives snow this tick can itself avalanche
// later in the same pass if it is processed afterward.
func (s *SnowSlide) Run(mesh chm.Mesh, store *chm.Store, t time.Time, dt time.Duration) error {
	n := mesh.NumFaces()
	sorted := make([]sortedFace, 0, n)

	for i := 0; i < n; i++ {
		f := mesh.Face(i)
		st := store.ModuleState(f.ID(), "snow_slide").(*snowSlideState)

		snowdepth, err := store.Get(f.ID(), "snowdepthavg")
		if err != nil {
			return err
		}
		swe, err := store.Get(f.ID(), "swe")
		if err != nil {
			return err
		}

		cosSlope := math.Max(0.001, math.Cos(f.Slope))
		st.snowdepthCopy = snowdepth
		st.snowdepthVertCopy = snowdepth / cosSlope
		st.sweCopy = swe / 1000 // mm to m
		st.deltaAvalancheSnowdepth = 0
		st.deltaAvalancheMass = 0

		sorted = append(sorted, sortedFace{
			zKey: f.Centroid.Z + st.snowdepthVertCopy,
			face: f,
		})
	}

	sortFacesDescending(sorted)

	for _, sf := range sorted {
		f := sf.face
		st := store.ModuleState(f.ID(), "snow_slide").(*snowSlideState)
		cenArea := f.Area

		maxDepth := st.maxDepthNorm
		if s.UseVerticalSnow {
			maxDepth = st.maxDepthVert
		}

		if st.snowdepthCopy > maxDepth {
			delDepth := st.snowdepthCopy - maxDepth
			delSWE := st.sweCopy * (1 - maxDepth/st.snowdepthCopy)

			zs := f.Centroid.Z + st.snowdepthVertCopy
			w, edge := downhillWeights(f, zs, func(nb *chm.Face) float64 {
				nbState := store.ModuleState(nb.ID(), "snow_slide").(*snowSlideState)
				return nb.Centroid.Z + nbState.snowdepthVertCopy
			})

			if edge {
				st.snowdepthCopy = maxDepth
				st.sweCopy = st.sweCopy * maxDepth / (maxDepth + delDepth)
				st.deltaAvalancheSnowdepth -= delDepth * cenArea
				st.deltaAvalancheMass -= delSWE * cenArea
				store.Set(f.ID(), "delta_avalanche_snowdepth", st.deltaAvalancheSnowdepth)
				store.Set(f.ID(), "delta_avalanche_mass", st.deltaAvalancheMass)
				continue
			}

			if normalizeWeights(&w) {
				// Sink cell: no lower neighbour to route to.
				store.Set(f.ID(), "delta_avalanche_snowdepth", st.deltaAvalancheSnowdepth)
				store.Set(f.ID(), "delta_avalanche_mass", st.deltaAvalancheMass)
				continue
			}

			for j := 0; j < 3; j++ {
				nb := f.Neighbor(j)
				if nb == nil || nb.Ghost || w[j] == 0 {
					continue
				}
				nbState := store.ModuleState(nb.ID(), "snow_slide").(*snowSlideState)
				nArea := nb.Area
				ratio := cenArea / nArea

				nbState.snowdepthCopy += delDepth * ratio * w[j]
				nbState.sweCopy += delSWE * ratio * w[j]
				nbState.snowdepthVertCopy = nbState.snowdepthCopy / math.Max(0.001, math.Cos(nb.Slope))

				nbState.deltaAvalancheSnowdepth += delDepth * cenArea * w[j]
				nbState.deltaAvalancheMass += delSWE * cenArea * w[j]
			}

			st.snowdepthCopy = maxDepth
			st.snowdepthVertCopy = st.snowdepthCopy / math.Max(0.001, math.Cos(f.Slope))
			st.sweCopy = st.sweCopy * maxDepth / (maxDepth + delDepth)
			st.deltaAvalancheSnowdepth -= delDepth * cenArea
			st.deltaAvalancheMass -= delSWE * cenArea
		}

		store.Set(f.ID(), "delta_avalanche_snowdepth", st.deltaAvalancheSnowdepth)
		store.Set(f.ID(), "delta_avalanche_mass", st.deltaAvalancheMass)
	}

	return nil
}
