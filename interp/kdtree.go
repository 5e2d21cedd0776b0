// Package interp implements the spatial interpolation subsystem: a
// 2-D station index and a set of interpolators that estimate a
// variable's value at an arbitrary point from nearby station
// observations.
package interp

import (
	"math"
	"sort"

	"github.com/spatialmodel/chm"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// earthRadiusMeters is used to convert the equirectangular projection
// a geographic Index builds its tree over back into metres, so a
// Radius query's argument stays a distance in metres regardless of
// whether the index is planar or geographic.
const earthRadiusMeters = 6371000.0

// stationPoint adapts a station position to kdtree.Comparable over
// two working coordinates x, y; elevation plays no part in the index,
// matching the "2-D k-d tree" station index (station elevation only
// enters through a Lift). For a planar Index, x and y are the
// station's own X, Y. For a geographic Index, they are an
// equirectangular projection of the station's (longitude, latitude)
// centred on the station set's mean latitude, so the tree's notion of
// distance approximates great-circle distance (spec §4.K) rather than
// treating a degree of longitude and a degree of latitude as the same
// length.
type stationPoint struct {
	x, y    float64
	station *chm.Station // nil for a query point
}

func (p stationPoint) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return p.x
	}
	return p.y
}

// Compare implements kdtree.Comparable.
func (p stationPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(stationPoint).coord(d)
}

// Dims implements kdtree.Comparable: the index has exactly 2 dimensions.
func (p stationPoint) Dims() int { return 2 }

// Distance implements kdtree.Comparable, returning squared distance in
// the index's working coordinate system (metres, planar or projected)
// as gonum's kdtree expects for pruning efficiency.
func (p stationPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(stationPoint)
	dx := p.x - q.x
	dy := p.y - q.y
	return dx*dx + dy*dy
}

// stationPoints implements kdtree.Interface over a slice of
// stationPoint, the way gonum's own kdtree.Points reference type does:
// value-receiver methods so Slice returns an independent view onto
// the shared backing array rather than mutating the receiver, which
// build's recursive Left/Right calls both depend on.
type stationPoints []stationPoint

func (s stationPoints) Index(i int) kdtree.Comparable { return s[i] }
func (s stationPoints) Len() int                      { return len(s) }
func (s stationPoints) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s stationPoints) Pivot(d kdtree.Dim) int {
	sorter := stationPointSorter{pts: s, dim: d}
	sort.Sort(sorter)
	return len(s) / 2
}

type stationPointSorter struct {
	pts stationPoints
	dim kdtree.Dim
}

func (s stationPointSorter) Len() int      { return len(s.pts) }
func (s stationPointSorter) Swap(i, j int) { s.pts[i], s.pts[j] = s.pts[j], s.pts[i] }
func (s stationPointSorter) Less(i, j int) bool {
	return s.pts[i].coord(s.dim) < s.pts[j].coord(s.dim)
}

// radiusKeeper collects every kdtree.ComparableDist within a fixed
// squared radius, the gonum-recommended way to run a bounded-distance
// query: a Keeper whose Max stays fixed at the query radius makes the
// tree prune subtrees outside it, rather than degrading into a full
// scan the way an unbounded NKeeper capacity would.
type radiusKeeper struct {
	radius2 float64
	found   []kdtree.ComparableDist
}

func newRadiusKeeper(radius float64) *radiusKeeper {
	return &radiusKeeper{radius2: radius * radius}
}

func (k *radiusKeeper) Keep(c kdtree.ComparableDist) {
	if c.Dist <= k.radius2 {
		k.found = append(k.found, c)
	}
}

// Max returns the fixed query radius. Comparable is set to a non-nil
// placeholder so kdtree.Tree.NearestSet does not mistake it for a
// sentinel stored in found (radiusKeeper, unlike kdtree.DistKeeper,
// never stores its bound inside found itself).
func (k *radiusKeeper) Max() kdtree.ComparableDist {
	return kdtree.ComparableDist{Comparable: stationPoint{}, Dist: k.radius2}
}

func (k *radiusKeeper) Len() int { return len(k.found) }

func (k *radiusKeeper) Less(i, j int) bool { return k.found[i].Dist > k.found[j].Dist }
func (k *radiusKeeper) Swap(i, j int)      { k.found[i], k.found[j] = k.found[j], k.found[i] }

func (k *radiusKeeper) Push(x interface{}) {
	k.found = append(k.found, x.(kdtree.ComparableDist))
}

func (k *radiusKeeper) Pop() interface{} {
	old := k.found
	n := len(old)
	item := old[n-1]
	k.found = old[:n-1]
	return item
}

// Index is a 2-D k-d tree over a fixed set of stations, supporting
// deterministic radius and k-nearest queries (spec §4.E, invariant 7:
// query results match brute force for the same radius/k).
type Index struct {
	tree       *kdtree.Tree
	stations   []*chm.Station
	geographic bool
	lat0       float64 // radians; reference latitude for a geographic Index's projection
}

// NewIndex builds a planar Index over stations whose X, Y are already
// in a common projected coordinate system (metres). Query results
// tie-break by each station's position in this slice, so callers that
// want deterministic output across runs should pass stations in a
// stable order (e.g. sorted by ID).
func NewIndex(stations []*chm.Station) *Index {
	return newIndex(stations, false)
}

// NewGeographicIndex builds an Index over stations whose X, Y are
// longitude and latitude in degrees. Radius and KNearest queries
// approximate great-circle distance rather than planar Euclidean
// distance over degrees, matching spec §4.K's requirement for meshes
// whose projection is geographic (+proj=longlat).
func NewGeographicIndex(stations []*chm.Station) *Index {
	return newIndex(stations, true)
}

func newIndex(stations []*chm.Station, geographic bool) *Index {
	idx := &Index{stations: stations, geographic: geographic}
	if geographic {
		idx.lat0 = meanLatRadians(stations)
	}
	pts := make(stationPoints, len(stations))
	for i, st := range stations {
		p := idx.project(st.X, st.Y)
		p.station = st
		pts[i] = p
	}
	idx.tree = kdtree.New(pts, false)
	return idx
}

func meanLatRadians(stations []*chm.Station) float64 {
	if len(stations) == 0 {
		return 0
	}
	var sum float64
	for _, st := range stations {
		sum += st.Y
	}
	return (sum / float64(len(stations))) * math.Pi / 180
}

// project converts (x, y) into the index's working coordinate system:
// unchanged for a planar Index, or an equirectangular projection
// (metres) of (longitude, latitude) degrees for a geographic Index.
func (idx *Index) project(x, y float64) stationPoint {
	if !idx.geographic {
		return stationPoint{x: x, y: y}
	}
	lonRad := x * math.Pi / 180
	latRad := y * math.Pi / 180
	return stationPoint{
		x: earthRadiusMeters * lonRad * math.Cos(idx.lat0),
		y: earthRadiusMeters * latRad,
	}
}

// Radius returns every station within radius metres (inclusive) of
// (x, y), sorted by ascending distance then by the station's index in
// the slice NewIndex/NewGeographicIndex was built from, for
// deterministic tie-breaking. For a geographic Index, x and y are
// longitude and latitude in degrees.
func (idx *Index) Radius(x, y, radius float64) []*chm.Station {
	q := idx.project(x, y)
	keeper := newRadiusKeeper(radius)
	idx.tree.NearestSet(keeper, q)
	sort.Slice(keeper.found, func(i, j int) bool {
		if keeper.found[i].Dist != keeper.found[j].Dist {
			return keeper.found[i].Dist < keeper.found[j].Dist
		}
		return idx.order(keeper.found[i]) < idx.order(keeper.found[j])
	})
	out := make([]*chm.Station, len(keeper.found))
	for i, cd := range keeper.found {
		out[i] = cd.Comparable.(stationPoint).station
	}
	return out
}

// KNearest returns the k stations nearest to (x, y), sorted by
// ascending distance with the same tie-break as Radius. For a
// geographic Index, x and y are longitude and latitude in degrees.
func (idx *Index) KNearest(x, y float64, k int) []*chm.Station {
	q := idx.project(x, y)
	keeper := kdtree.NewNKeeper(k)
	idx.tree.NearestSet(keeper, q)
	found := keeper.Heap
	sort.Slice(found, func(i, j int) bool {
		if found[i].Dist != found[j].Dist {
			return found[i].Dist < found[j].Dist
		}
		return idx.order(found[i]) < idx.order(found[j])
	})
	out := make([]*chm.Station, 0, len(found))
	for _, cd := range found {
		if sp, ok := cd.Comparable.(stationPoint); ok {
			out = append(out, sp.station)
		}
	}
	return out
}

func (idx *Index) order(cd kdtree.ComparableDist) int {
	st := cd.Comparable.(stationPoint).station
	for i, s := range idx.stations {
		if s == st {
			return i
		}
	}
	return len(idx.stations)
}
