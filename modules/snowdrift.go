package modules

import (
	"math"
	"time"

	"github.com/spatialmodel/chm"
)

const (
	densityIce   = 917.0 // kg/m^3
	densityAir   = 1.225 // kg/m^3
	gravity      = 9.80665
	schmidtFudge = 1.0
)

// snowDriftState mirrors snow_slide's snapshot-then-route shape but
// for wind-eroded mass rather than gravity-avalanched mass.
type snowDriftState struct {
	snowdepthVertCopy float64
	sweCopy           float64
	erodedMass        float64 // kg/m^2 leaving this face this tick
}

// SnowDrift redistributes wind-eroded snow mass between neighbouring
// faces, following original_source/src/modules/snowpack/SnowDrift.cc:
// like snow_slide (§4.I) it sweeps faces from highest to lowest and
// routes mass to lower neighbours weighted by elevation difference,
// dumping mass off the mesh at domain edges and leaving local sinks
// untouched. Unlike snow_slide, the reference implementation never
// enables the wind-shear physics that would compute a non-zero erosion
// rate on its own (SnowDrift.cc's compMassFlux call is present but
// dead code): massErode is always zero unless forcedErosion supplies a
// value, a hook only tests use.
type SnowDrift struct {
	// GrainRadius is a fixed representative surface grain radius [m],
	// standing in for the layer-resolved value SNOWPACK derives from
	// its own microstructure model. Used only by compMassFlux, which
	// Run never calls.
	GrainRadius float64

	// forcedErosion, when set, supplies the eroded mass [kg/m^2] for a
	// face for this tick in place of the disabled wind-shear physics.
	// It exists only so tests can exercise the routing logic below
	// without wiring up compMassFlux.
	forcedErosion func(faceID int) float64
}

// Descriptor implements chm.Module.
func (d *SnowDrift) Descriptor() chm.Descriptor {
	return chm.Descriptor{
		Name:                "snowdrift",
		Provides:            []string{"massErode"},
		Depends:             []string{"swe"},
		DependsFromNeighbor: []string{"snowdepthavg"},
		DependsFromMet:      []string{"windspeed"},
		Parallelism:         chm.DomainSerial,
	}
}

// Init implements chm.Module.
func (d *SnowDrift) Init(mesh chm.Mesh, store *chm.Store) error {
	if d.GrainRadius == 0 {
		d.GrainRadius = 0.0003 // 0.3 mm, a fresh-snow default
	}
	for i := 0; i < mesh.NumFaces(); i++ {
		store.SetModuleState(mesh.Face(i).ID(), "snowdrift", &snowDriftState{})
	}
	return nil
}

// compMassFlux returns the saltation mass flux [kg/m/s] for a given
// friction velocity and slope angle, or 0 below the Schmidt transport
// threshold, following SnowDrift.cc's compMassFlux. Run never calls
// this: the reference implementation short-circuits the wind-erosion
// branch it belongs to, so it is exercised directly by
// TestCompMassFluxBelowAndAboveThreshold instead.
func compMassFlux(ustar, slopeRad, grainRadius float64) float64 {
	weight := 0.02 * densityIce * gravity * grainRadius
	const bindingSigma = 300.0
	binding := 0.0015 * bindingSigma
	tauThresh := schmidtFudge * (weight + binding)
	tau := densityAir * ustar * ustar
	if tauThresh > tau {
		return 0
	}
	// Pomeroy & Gray saltation flux, reduced from the full model to
	// its dominant term: excess shear stress scaled by threshold shear
	// velocity, in the same spirit as SnowDrift.cc's call into
	// saltation.compSaltation without carrying over that model's
	// snowpack-layer bookkeeping.
	ustarThresh := math.Sqrt(tauThresh / densityAir)
	return math.Max(0, ustar-ustarThresh) * densityAir * ustar * math.Cos(slopeRad)
}

// windToFrictionVelocity converts a 10 m wind speed to a friction
// velocity using a fixed roughness length, the same log-wind-profile
// simplification SnowDrift.cc defers under a "TODO change this
// later". Like compMassFlux, Run never calls this.
func windToFrictionVelocity(windspeed float64) float64 {
	const (
		karman = 0.4
		z      = 10.0
		z0     = 0.001
	)
	if windspeed <= 0 {
		return 0
	}
	return karman * windspeed / math.Log(z/z0)
}

// Run implements chm.Module. It runs once per tick over the whole
// mesh: snapshot every face's snow state and this tick's forced
// erosion (if any), sort faces from highest to lowest (elevation plus
// vertical snowdepth, exactly as snow_slide sorts), then route each
// face's eroded mass to its lower neighbours in that order.
func (d *SnowDrift) Run(mesh chm.Mesh, store *chm.Store, t time.Time, dt time.Duration) error {
	n := mesh.NumFaces()
	sorted := make([]sortedFace, 0, n)

	for i := 0; i < n; i++ {
		f := mesh.Face(i)
		st := store.ModuleState(f.ID(), "snowdrift").(*snowDriftState)

		snowdepth, err := store.Get(f.ID(), "snowdepthavg")
		if err != nil {
			return err
		}
		swe, err := store.Get(f.ID(), "swe")
		if err != nil {
			return err
		}

		st.snowdepthVertCopy = snowdepth / math.Max(0.001, math.Cos(f.Slope))
		st.sweCopy = swe
		st.erodedMass = 0
		if d.forcedErosion != nil {
			st.erodedMass = math.Min(math.Max(0, d.forcedErosion(f.ID())), st.sweCopy)
		}

		sorted = append(sorted, sortedFace{
			zKey: f.Centroid.Z + st.snowdepthVertCopy,
			face: f,
		})
	}

	sortFacesDescending(sorted)

	for _, sf := range sorted {
		f := sf.face
		st := store.ModuleState(f.ID(), "snowdrift").(*snowDriftState)

		if st.erodedMass > 0 {
			zs := f.Centroid.Z + st.snowdepthVertCopy
			w, edge := downhillWeights(f, zs, func(nb *chm.Face) float64 {
				nbState := store.ModuleState(nb.ID(), "snowdrift").(*snowDriftState)
				return nb.Centroid.Z + nbState.snowdepthVertCopy
			})

			switch {
			case edge:
				// Mesh edge: eroded mass leaves the domain entirely.
				st.sweCopy -= st.erodedMass
			case normalizeWeights(&w):
				// Sink cell: nowhere lower to route to, so nothing erodes.
				st.erodedMass = 0
			default:
				for j := 0; j < 3; j++ {
					nb := f.Neighbor(j)
					if nb == nil || nb.Ghost || w[j] == 0 {
						continue
					}
					nbState := store.ModuleState(nb.ID(), "snowdrift").(*snowDriftState)
					nbState.sweCopy += st.erodedMass * w[j]
				}
				st.sweCopy -= st.erodedMass
			}
		}

		store.Set(f.ID(), "swe", st.sweCopy)
		store.Set(f.ID(), "massErode", st.erodedMass)
	}

	return nil
}
