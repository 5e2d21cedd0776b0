package chm

import (
	"runtime"
	"sync"
	"time"
)

// Parallelism classifies how a Module's Run may be scheduled across
// faces (spec §5). FaceParallel modules see one face at a time and may
// run concurrently with themselves across faces; DomainSerial modules
// see the whole mesh at once and always run alone.
type Parallelism int

const (
	// FaceParallel modules are dispatched across a worker pool, one
	// call per face, with no ordering guarantee between faces.
	FaceParallel Parallelism = iota
	// DomainSerial modules run once per tick, single-threaded, with
	// access to the whole mesh; among domain-serial modules sharing a
	// batch, ModuleGraph orders them by name for determinism (spec §4.G).
	DomainSerial
)

// Descriptor is a module's static capability record: the names it
// reads and writes, and how it may be scheduled. A module registers
// one Descriptor with the Driver before the run starts; the Driver
// never inspects a module beyond its Descriptor and its Module
// interface.
type Descriptor struct {
	Name string

	// Provides lists the variable names this module writes.
	Provides []string
	// Depends lists variable names this module reads that must have
	// been written earlier in the same tick, by another module.
	Depends []string
	// DependsFromMet lists variable names this module reads that come
	// from the meteorological forcing coordinator rather than from
	// another module.
	DependsFromMet []string
	// DependsFromNeighbor lists variable names this module reads off
	// of a face's neighbours (as opposed to the face itself).
	DependsFromNeighbor []string

	Parallelism Parallelism
}

// Module is the physics contract every domain module implements
// (spec §4.B). Init is called once per module before the first tick;
// Run is called once per tick, per face for FaceParallel modules or
// once for the whole mesh for DomainSerial modules.
type Module interface {
	Descriptor() Descriptor
	Init(mesh Mesh, store *Store) error
	Run(mesh Mesh, store *Store, t time.Time, dt time.Duration) error
}

// FaceModule is the subset of Module a FaceParallel module implements
// when it would rather be handed one face at a time than iterate the
// mesh itself. The Driver requires every FaceParallel module to
// implement it and reports an error for one that does not; following
// the domain stack's own per-cell dispatch style (see run.go's
// Calculations), such modules implement RunFace directly and let the
// scheduler own the worker pool.
type FaceModule interface {
	Module
	RunFace(f *Face, store *Store, t time.Time, dt time.Duration) error
}

// dispatchFaceParallel runs a batch of FaceParallel modules across the
// mesh's faces using a static, GOMAXPROCS-sized worker pool, the same
// partitioning scheme as the domain stack's own Calculations
// (run.go): worker pp handles faces pp, pp+nprocs, pp+2*nprocs, ....
// Faces are independent within a batch by construction of the
// dependency graph, so no per-face locking is needed.
func dispatchFaceParallel(mods []FaceModule, mesh Mesh, store *Store, t time.Time, dt time.Duration) error {
	if len(mods) == 0 {
		return nil
	}
	nprocs := runtime.GOMAXPROCS(0)
	if n := mesh.NumFaces(); n > 0 && nprocs > n {
		nprocs = n
	}

	var wg sync.WaitGroup
	errs := make([]error, nprocs)
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for ii := pp; ii < mesh.NumFaces(); ii += nprocs {
				f := mesh.Face(ii)
				if f.Ghost {
					continue
				}
				for _, m := range mods {
					if err := m.RunFace(f, store, t, dt); err != nil {
						errs[pp] = err
						return
					}
				}
			}
		}(pp)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatchDomainSerial runs a batch of DomainSerial modules in the
// order ModuleGraph placed them in the batch, single-threaded.
func dispatchDomainSerial(mods []Module, mesh Mesh, store *Store, t time.Time, dt time.Duration) error {
	for _, m := range mods {
		if err := m.Run(mesh, store, t, dt); err != nil {
			return err
		}
	}
	return nil
}
