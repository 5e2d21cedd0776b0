package chm

import "testing"

func TestOutputterEvaluate(t *testing.T) {
	o, err := NewOutputter(map[string]string{
		"total": "swe + snowdepthavg",
		"raw":   "t",
	})
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(1)
	store.Set(0, "swe", 0.1)
	store.Set(0, "snowdepthavg", 0.5)
	store.Set(0, "t", 270)

	row, err := o.Evaluate(store, 0)
	if err != nil {
		t.Fatal(err)
	}
	if row["total"] != 0.6 {
		t.Errorf("total got %v, want 0.6", row["total"])
	}
	if row["raw"] != 270 {
		t.Errorf("raw got %v, want 270", row["raw"])
	}
}

func TestOutputterMissingVariableDefaultsRatherThanFails(t *testing.T) {
	o, err := NewOutputter(map[string]string{"x": "unwritten_variable"})
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(1)
	row, err := o.Evaluate(store, 0)
	if err != nil {
		t.Fatalf("expected a soft failure, got error: %v", err)
	}
	if row["x"] != MissingValue {
		t.Errorf("got %v, want MissingValue for an unresolved expression variable", row["x"])
	}
}

func TestOutputterEvaluateAllSkipsGhostFaces(t *testing.T) {
	b := NewMeshBuilder()
	b.AddFace(Point3{}, 1, 0, 0, Point3{Z: 1}, false, nil, [3]int{-1, -1, -1})
	b.AddFace(Point3{}, 1, 0, 0, Point3{Z: 1}, true, nil, [3]int{-1, -1, -1})
	mesh := b.Build()

	o, err := NewOutputter(map[string]string{"t": "t"})
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(mesh.NumFaces())
	store.Set(0, "t", 1)
	store.Set(1, "t", 2)

	rows, err := o.EvaluateAll(store, mesh)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (ghost face excluded)", len(rows))
	}
}

func TestOutputterNamesAreSorted(t *testing.T) {
	o, err := NewOutputter(map[string]string{"zeta": "1", "alpha": "1"})
	if err != nil {
		t.Fatal(err)
	}
	names := o.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("got %v, want [alpha zeta]", names)
	}
}
