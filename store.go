package chm

import (
	"fmt"

	"github.com/ctessum/unit"
)

// variableUnits describes the physical dimensions of the variables the
// representative modules produce or consume, the way the domain stack
// tags emissions and concentration fields with a github.com/ctessum/unit
// dimension for self-describing output.
var variableUnits = map[string]unit.Dimensions{
	"t":                          unit.Kelvin,
	"t_lapse_rate":               unit.Kelvin,
	"rh":                         unit.Dimless,
	"snowdepthavg":               unit.Meter,
	"swe":                        unit.Meter,
	"maxDepth":                   unit.Meter,
	"delta_avalanche_snowdepth":  unit.Meter3,
	"delta_avalanche_mass":       unit.Meter3,
	"massErode":                  unit.Kilogram,
	"windspeed":                  unit.MeterPerSecond,
}

// VariableUnit returns a one-unit github.com/ctessum/unit value carrying
// the physical dimensions of the named variable, or nil if the variable
// has no registered dimensions.
func VariableUnit(name string) *unit.Unit {
	d, ok := variableUnits[name]
	if !ok {
		return nil
	}
	return unit.New(1, d)
}

// Store is the face variable store (spec §3, §4): a mapping
// (face id, variable name) -> value, plus, per module, an opaque
// per-face state block. The Store exclusively owns its cells; a module
// exclusively owns its per-face state block for the face's lifetime.
type Store struct {
	vars  []map[string]float64 // indexed by face id
	state []map[string]interface{}
}

// NewStore allocates a Store sized for nFaces faces.
func NewStore(nFaces int) *Store {
	s := &Store{
		vars:  make([]map[string]float64, nFaces),
		state: make([]map[string]interface{}, nFaces),
	}
	for i := range s.vars {
		s.vars[i] = make(map[string]float64)
		s.state[i] = make(map[string]interface{})
	}
	return s
}

// Get returns the current value of name on face id. It returns
// ErrMissingVariable if no module has written that name on that face
// yet this run.
func (s *Store) Get(faceID int, name string) (float64, error) {
	v, ok := s.vars[faceID][name]
	if !ok {
		return 0, fmt.Errorf("chm: face %d: %w: %q", faceID, ErrMissingVariable, name)
	}
	return v, nil
}

// MustGet returns the current value of name on face id, for a value a
// caller has already determined must be present (invariant 1 in spec
// §8); it panics if that invariant is violated, since a scheduler-verified dependency being absent is a
// programming error, not a runtime one.
func (s *Store) MustGet(faceID int, name string) float64 {
	v, err := s.Get(faceID, name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set writes value for name on face id.
func (s *Store) Set(faceID int, name string, value float64) {
	s.vars[faceID][name] = value
}

// Has reports whether name has been written on face id this run.
func (s *Store) Has(faceID int, name string) bool {
	_, ok := s.vars[faceID][name]
	return ok
}

// ModuleState returns the opaque state block a module previously
// stored for (faceID, moduleName) via SetModuleState, or nil if none
// has been set.
func (s *Store) ModuleState(faceID int, moduleName string) interface{} {
	return s.state[faceID][moduleName]
}

// SetModuleState stores an opaque per-face state block for a module.
// Modules call this once during Init and mutate the returned pointer
// in place during Run; the block is released implicitly when the
// Store is discarded at teardown.
func (s *Store) SetModuleState(faceID int, moduleName string, block interface{}) {
	s.state[faceID][moduleName] = block
}

// Reset deletes the named variables from every face, keeping all other
// variables and module state intact. The driver does not call it; most
// module outputs are simply overwritten each tick.
func (s *Store) Reset(names ...string) {
	for _, row := range s.vars {
		for _, n := range names {
			delete(row, n)
		}
	}
}
