package chm

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// checkpointTimeLayout matches the "%Y%m%dT%H%M%S" timestamp string
// original_source's netcdf checkpoint writer embeds as a global
// attribute, so a checkpoint file's nominal time can be validated
// without depending on filename convention.
const checkpointTimeLayout = "20060102T150405"

// checkpointKey identifies one checkpointed field by the module that
// provides it and the field's bare variable name, so two modules that
// happen to provide the same variable name never collide in a
// checkpoint file (spec §4.L: "one 1-D variable per
// <module-id>:<field-name> key").
type checkpointKey struct {
	module   string
	variable string
}

// String returns the netcdf variable name this key is written under.
func (k checkpointKey) String() string { return k.module + ":" + k.variable }

// checkpointKeys returns one key per (module, provided variable) pair
// declared by descriptors.
func checkpointKeys(descriptors []Descriptor) []checkpointKey {
	var keys []checkpointKey
	for _, d := range descriptors {
		for _, v := range d.Provides {
			keys = append(keys, checkpointKey{module: d.Name, variable: v})
		}
	}
	return keys
}

// NCFCheckpointer persists the face variable store to a netcdf file,
// one variable per <module-id>:<field-name> key (spec §4.L), following
// the same key convention original_source/src/modules/snow_slide.cpp's
// checkpoint method uses (e.g. "snow_slide:delta_avalanche_snowdepth").
// Loading a checkpoint whose face count does not match the mesh, whose
// embedded timestamp does not match the requested restart time, or
// that is missing a variable a currently active module declares, is a
// fatal ErrCheckpointMismatch (spec §4.L, §7).
type NCFCheckpointer struct {
	Path string
	// Variables restricts checkpointing to fields whose bare variable
	// name (ignoring which module provides it) appears in this list; a
	// nil slice checkpoints every field any active module provides.
	Variables []string
}

func (c *NCFCheckpointer) keys(descriptors []Descriptor) []checkpointKey {
	keys := checkpointKeys(descriptors)
	if len(c.Variables) == 0 {
		sortCheckpointKeys(keys)
		return keys
	}
	wanted := make(map[string]bool, len(c.Variables))
	for _, v := range c.Variables {
		wanted[v] = true
	}
	var filtered []checkpointKey
	for _, k := range keys {
		if wanted[k.variable] {
			filtered = append(filtered, k)
		}
	}
	sortCheckpointKeys(filtered)
	return filtered
}

func sortCheckpointKeys(keys []checkpointKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

// Save writes t, mesh.NumFaces(), and every field declared by
// descriptors (restricted to c.Variables if set) to a fresh netcdf
// file at c.Path, keyed by module:variable.
func (c *NCFCheckpointer) Save(t time.Time, store *Store, mesh Mesh, descriptors []Descriptor) error {
	keys := c.keys(descriptors)

	n := mesh.NumFaces()
	h := cdf.NewHeader([]string{"face"}, []int{n})
	h.AddAttribute("", "checkpoint_time", t.UTC().Format(checkpointTimeLayout))
	h.AddAttribute("", "num_faces", []int32{int32(n)})
	for _, k := range keys {
		h.AddVariable(k.String(), []string{"face"}, []float32{0})
	}
	h.Define()

	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("chm: creating checkpoint %s: %w", c.Path, err)
	}
	defer f.Close()

	cf, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("chm: writing checkpoint header %s: %w", c.Path, err)
	}

	for _, k := range keys {
		data := sparse.ZerosDense(n)
		for i := 0; i < n; i++ {
			v, err := store.Get(mesh.Face(i).ID(), k.variable)
			if err != nil {
				v = MissingValue
			}
			data.Elements[i] = v
		}
		if err := writeCheckpointVar(cf, k.String(), data); err != nil {
			return fmt.Errorf("chm: writing checkpoint variable %q: %w", k, err)
		}
	}
	return cdf.UpdateNumRecs(f)
}

// Load restores every field declared by descriptors (restricted to
// c.Variables if set) from c.Path into store, checked against t and
// mesh.NumFaces() for ErrCheckpointMismatch. A declared field whose
// module:variable key is missing from the file is also
// ErrCheckpointMismatch.
func (c *NCFCheckpointer) Load(t time.Time, store *Store, mesh Mesh, descriptors []Descriptor) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("chm: opening checkpoint %s: %w", c.Path, ErrMissingFile)
	}
	defer f.Close()

	cf, err := cdf.Open(f)
	if err != nil {
		return fmt.Errorf("chm: reading checkpoint header %s: %v", c.Path, err)
	}

	savedTime, ok := cf.Header.GetAttribute("", "checkpoint_time").(string)
	if !ok {
		return fmt.Errorf("chm: checkpoint %s has no checkpoint_time attribute: %w", c.Path, ErrCheckpointMismatch)
	}
	parsed, err := time.Parse(checkpointTimeLayout, savedTime)
	if err != nil || !parsed.Equal(t.UTC()) {
		return fmt.Errorf("chm: checkpoint %s is for %s, requested restart at %s: %w",
			c.Path, savedTime, t, ErrCheckpointMismatch)
	}

	nFaces := int(cf.Header.GetAttribute("", "num_faces").([]int32)[0])
	if nFaces != mesh.NumFaces() {
		return fmt.Errorf("chm: checkpoint %s has %d faces, mesh has %d: %w",
			c.Path, nFaces, mesh.NumFaces(), ErrCheckpointMismatch)
	}

	available := make(map[string]bool)
	for _, name := range cf.Header.Variables() {
		available[name] = true
	}

	for _, k := range c.keys(descriptors) {
		if !available[k.String()] {
			return fmt.Errorf("chm: checkpoint %s missing declared field %q: %w", c.Path, k, ErrCheckpointMismatch)
		}
		dims := cf.Header.Lengths(k.String())
		r := cf.Reader(k.String(), nil, nil)
		tmp := make([]float32, dims[0])
		if _, err := r.Read(tmp); err != nil {
			return fmt.Errorf("chm: reading checkpoint variable %q: %w", k, err)
		}
		for i := 0; i < nFaces; i++ {
			store.Set(mesh.Face(i).ID(), k.variable, float64(tmp[i]))
		}
	}
	return nil
}

func writeCheckpointVar(f *cdf.File, name string, data *sparse.DenseArray) error {
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data32)
	return err
}
