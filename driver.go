package chm

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// MetSource is the subset of met.Coordinator the Driver depends on: it
// advances the forcing to a timestamp and hands back the value a
// DependsFromMet module should see for a given face and variable.
// Declaring it here rather than importing the met package keeps the
// core free of a dependency on any one forcing backend.
type MetSource interface {
	// Advance moves the coordinator's current timestamp to t, refilling
	// any interpolated fields the backends expose.
	Advance(t time.Time) error
	// Value returns the met-provided value of name at face id, or
	// ErrMissingVariable if the coordinator has no such variable.
	Value(faceID int, name string) (float64, error)
	// ListVariables returns every variable name the coordinator can
	// supply, used by the Driver to validate DependsFromMet names at
	// startup.
	ListVariables() []string
}

// Checkpointer persists and restores the face variable store between
// runs (spec §4.L, §6). A nil Checkpointer disables checkpointing.
// descriptors is every active module's Descriptor, so a Checkpointer
// can namespace keys by module id and validate that a restored
// checkpoint covers every field the current module set declares.
type Checkpointer interface {
	Save(t time.Time, store *Store, mesh Mesh, descriptors []Descriptor) error
	Load(t time.Time, store *Store, mesh Mesh, descriptors []Descriptor) error
}

// Driver owns the module dependency graph, the face variable store,
// and the outer simulation loop: for each tick it advances the
// meteorological forcing, copies met-provided variables into the
// store, dispatches every batch in order, and optionally checkpoints.
type Driver struct {
	Mesh Mesh
	Met  MetSource
	Chk  Checkpointer

	Store   *Store
	batches []Batch

	Log *logrus.Logger

	// CheckpointEvery, if positive, checkpoints once every N ticks.
	CheckpointEvery int

	tick int
}

// NewDriver validates and compiles modules into a batch plan and
// returns a Driver ready to Run. It returns the same graph-compile
// errors ModuleGraph.Compile does, plus ErrUnresolvedDependency if a
// DependsFromMet name is not offered by met.
func NewDriver(mesh Mesh, met MetSource, modules []Module) (*Driver, error) {
	batches, err := NewModuleGraph(modules).Compile()
	if err != nil {
		return nil, err
	}

	offered := make(map[string]bool)
	for _, name := range met.ListVariables() {
		offered[name] = true
	}
	for _, m := range modules {
		for _, name := range m.Descriptor().DependsFromMet {
			if !offered[name] {
				return nil, fmt.Errorf("chm: %q required by %q: %w",
					name, m.Descriptor().Name, ErrUnresolvedDependency)
			}
		}
	}

	store := NewStore(mesh.NumFaces())
	for _, m := range modules {
		if err := m.Init(mesh, store); err != nil {
			return nil, fmt.Errorf("chm: init %q: %w", m.Descriptor().Name, err)
		}
	}

	return &Driver{
		Mesh:    mesh,
		Met:     met,
		Store:   store,
		batches: batches,
		Log:     logrus.StandardLogger(),
	}, nil
}

// descriptors returns every registered module's Descriptor, in batch
// order, for a Checkpointer to namespace and validate against.
func (d *Driver) descriptors() []Descriptor {
	var out []Descriptor
	for _, b := range d.batches {
		for _, m := range b.Modules {
			out = append(out, m.Descriptor())
		}
	}
	return out
}

// metDependents returns the names every registered module reads from
// met, deduplicated, so RunTick knows which values to pull off the
// coordinator each tick.
func (d *Driver) metDependents() []string {
	seen := make(map[string]bool)
	var names []string
	for _, b := range d.batches {
		for _, m := range b.Modules {
			for _, name := range m.Descriptor().DependsFromMet {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	return names
}

// RunTick advances the forcing to t, refreshes met-provided variables
// on every face, and dispatches every batch of modules in dependency
// order (spec §5).
func (d *Driver) RunTick(t time.Time, dt time.Duration) error {
	start := time.Now()
	if err := d.Met.Advance(t); err != nil {
		return fmt.Errorf("chm: advancing met to %s: %w", t, err)
	}

	metNames := d.metDependents()
	for i := 0; i < d.Mesh.NumFaces(); i++ {
		f := d.Mesh.Face(i)
		for _, name := range metNames {
			v, err := d.Met.Value(f.ID(), name)
			if err != nil {
				return fmt.Errorf("chm: face %d tick %s: %w", f.ID(), t, err)
			}
			d.Store.Set(f.ID(), name, v)
		}
	}

	for _, b := range d.batches {
		var err error
		switch b.Parallelism {
		case FaceParallel:
			faceMods := make([]FaceModule, 0, len(b.Modules))
			for _, m := range b.Modules {
				fm, ok := m.(FaceModule)
				if !ok {
					return fmt.Errorf("chm: %q declared face-parallel but does not implement RunFace", m.Descriptor().Name)
				}
				faceMods = append(faceMods, fm)
			}
			err = dispatchFaceParallel(faceMods, d.Mesh, d.Store, t, dt)
		case DomainSerial:
			err = dispatchDomainSerial(b.Modules, d.Mesh, d.Store, t, dt)
		}
		if err != nil {
			return err
		}
	}

	d.tick++
	if d.Chk != nil && d.CheckpointEvery > 0 && d.tick%d.CheckpointEvery == 0 {
		if err := d.Chk.Save(t, d.Store, d.Mesh, d.descriptors()); err != nil {
			return fmt.Errorf("chm: checkpointing at %s: %w", t, err)
		}
	}

	d.Log.WithFields(logrus.Fields{
		"tick":    d.tick,
		"time":    t,
		"elapsed": time.Since(start),
	}).Debug("tick complete")
	return nil
}

// Run calls RunTick once per timestamp in times, in order, stopping
// and returning the first error encountered.
func (d *Driver) Run(times []time.Time, dt time.Duration) error {
	for _, t := range times {
		if err := d.RunTick(t, dt); err != nil {
			return err
		}
	}
	return nil
}

// Results collects the current value of each named variable on every
// non-ghost face, in mesh order.
func (d *Driver) Results(names ...string) map[string][]float64 {
	out := make(map[string][]float64, len(names))
	for _, name := range names {
		vals := make([]float64, 0, d.Mesh.NumFaces())
		for i := 0; i < d.Mesh.NumFaces(); i++ {
			f := d.Mesh.Face(i)
			if f.Ghost {
				continue
			}
			v, err := d.Store.Get(f.ID(), name)
			if err != nil {
				v = MissingValue
			}
			vals = append(vals, v)
		}
		out[name] = vals
	}
	return out
}
