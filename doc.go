// Package chm implements the core of a distributed, physically based
// hydrological simulator. It advances meteorological and hydrological
// state forward in time over an unstructured triangular mesh: at each
// time step it refreshes station observations, runs an ordered set of
// modules that derive per-face quantities, and lets neighbour-coupled
// modules redistribute mass between faces.
//
// Mesh loading, module physics, checkpoint file layout beyond a
// key/value contract, and station file parsing are treated as external
// collaborators; this package owns the module dependency graph, the
// scheduler, the face variable store and the outer simulation loop.
package chm
