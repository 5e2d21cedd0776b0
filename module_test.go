package chm

import (
	"sync"
	"testing"
	"time"
)

func threeFaceMesh() Mesh {
	b := NewMeshBuilder()
	b.AddFace(Point3{X: 0, Y: 0, Z: 30}, 100, 0, 0, Point3{Z: 1}, false, nil, [3]int{1, 2, -1})
	b.AddFace(Point3{X: 10, Y: 0, Z: 20}, 100, 0, 0, Point3{Z: 1}, false, nil, [3]int{0, -1, -1})
	b.AddFace(Point3{X: 0, Y: 10, Z: 10}, 100, 0, 0, Point3{Z: 1}, false, nil, [3]int{0, -1, -1})
	return b.Build()
}

// countingFaceModule records every face id it is invoked on, guarded
// by a mutex since dispatchFaceParallel calls it from a worker pool.
type countingFaceModule struct {
	mu   sync.Mutex
	seen []int
}

func (m *countingFaceModule) Descriptor() Descriptor {
	return Descriptor{Name: "counter", Parallelism: FaceParallel}
}
func (m *countingFaceModule) Init(Mesh, *Store) error { return nil }
func (m *countingFaceModule) Run(mesh Mesh, store *Store, t time.Time, dt time.Duration) error {
	for i := 0; i < mesh.NumFaces(); i++ {
		if err := m.RunFace(mesh.Face(i), store, t, dt); err != nil {
			return err
		}
	}
	return nil
}
func (m *countingFaceModule) RunFace(f *Face, store *Store, t time.Time, dt time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, f.ID())
	return nil
}

func TestDispatchFaceParallelVisitsEveryNonGhostFace(t *testing.T) {
	mesh := threeFaceMesh()
	store := NewStore(mesh.NumFaces())
	mod := &countingFaceModule{}
	if err := dispatchFaceParallel([]FaceModule{mod}, mesh, store, time.Now(), time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(mod.seen) != mesh.NumFaces() {
		t.Fatalf("got %d visits, want %d", len(mod.seen), mesh.NumFaces())
	}
	seen := make(map[int]bool)
	for _, id := range mod.seen {
		seen[id] = true
	}
	for i := 0; i < mesh.NumFaces(); i++ {
		if !seen[i] {
			t.Errorf("face %d was never visited", i)
		}
	}
}

// domainOrderModule records its own name into a shared slice, letting
// a test check that DomainSerial modules run in declaration order.
type domainOrderModule struct {
	name  string
	order *[]string
}

func (m *domainOrderModule) Descriptor() Descriptor {
	return Descriptor{Name: m.name, Parallelism: DomainSerial}
}
func (m *domainOrderModule) Init(Mesh, *Store) error { return nil }
func (m *domainOrderModule) Run(Mesh, *Store, time.Time, time.Duration) error {
	*m.order = append(*m.order, m.name)
	return nil
}

func TestDispatchDomainSerialPreservesOrder(t *testing.T) {
	var order []string
	mods := []Module{
		&domainOrderModule{name: "first", order: &order},
		&domainOrderModule{name: "second", order: &order},
	}
	mesh := threeFaceMesh()
	store := NewStore(mesh.NumFaces())
	if err := dispatchDomainSerial(mods, mesh, store, time.Now(), time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("got %v, want [first second]", order)
	}
}
