package interp

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/spatialmodel/chm"
)

// bruteRadius returns every station within radius of (x, y), computed
// without the tree, for comparison against Index.Radius (invariant 7).
func bruteRadius(stations []*chm.Station, x, y, radius float64) []*chm.Station {
	var out []*chm.Station
	r2 := radius * radius
	for _, st := range stations {
		dx, dy := st.X-x, st.Y-y
		if dx*dx+dy*dy <= r2 {
			out = append(out, st)
		}
	}
	return out
}

func byID(stations []*chm.Station) []*chm.Station {
	out := append([]*chm.Station(nil), stations...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TestIndexRadiusMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var stations []*chm.Station
	for i := 0; i < 50; i++ {
		stations = append(stations, &chm.Station{
			ID: string(rune('a' + i%26)),
			X:  rng.Float64() * 100,
			Y:  rng.Float64() * 100,
		})
	}
	idx := NewIndex(stations)

	for _, q := range [][3]float64{{50, 50, 20}, {0, 0, 10}, {100, 100, 5}, {50, 50, 200}} {
		got := byID(idx.Radius(q[0], q[1], q[2]))
		want := byID(bruteRadius(stations, q[0], q[1], q[2]))
		if len(got) != len(want) {
			t.Fatalf("radius %v: got %d stations, want %d", q, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("radius %v: station set differs from brute force", q)
				break
			}
		}
	}
}

func TestIndexKNearestOrderedByDistance(t *testing.T) {
	stations := []*chm.Station{
		{ID: "a", X: 0, Y: 0},
		{ID: "b", X: 1, Y: 0},
		{ID: "c", X: 5, Y: 0},
		{ID: "d", X: 10, Y: 0},
	}
	idx := NewIndex(stations)
	got := idx.KNearest(0, 0, 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("got %v, want [a b]", ids(got))
	}
}

func ids(stations []*chm.Station) []string {
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = s.ID
	}
	return out
}

func TestIndexRadiusEmpty(t *testing.T) {
	stations := []*chm.Station{{ID: "a", X: 0, Y: 0}}
	idx := NewIndex(stations)
	got := idx.Radius(1000, 1000, 1)
	if len(got) != 0 {
		t.Errorf("got %d stations, want 0", len(got))
	}
}

func TestGeographicIndexKNearestOrderedByDistance(t *testing.T) {
	// Stations spread along a line of latitude near the equator, where
	// a degree of longitude and a degree of latitude are both close to
	// 111km, so ordering by great-circle distance agrees with ordering
	// by degrees for this configuration.
	stations := []*chm.Station{
		{ID: "a", X: 0, Y: 0},
		{ID: "b", X: 0.01, Y: 0},
		{ID: "c", X: 1, Y: 0},
		{ID: "d", X: 5, Y: 0},
	}
	idx := NewGeographicIndex(stations)
	got := idx.KNearest(0, 0, 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("got %v, want [a b]", ids(got))
	}
}

func TestGeographicIndexRadiusAccountsForLatitude(t *testing.T) {
	// At 60 degrees latitude a degree of longitude covers about half
	// the ground distance of a degree of latitude; a station one
	// degree east should be much closer (in metres) than one degree
	// north at this latitude, so a radius tuned to the longitude
	// distance must exclude the latitude station.
	stations := []*chm.Station{
		{ID: "east", X: 1, Y: 60},
		{ID: "north", X: 0, Y: 61},
	}
	idx := NewGeographicIndex(stations)
	got := idx.Radius(0, 60, 60000)
	if len(got) != 1 || got[0].ID != "east" {
		t.Fatalf("got %v, want [east] (60km radius should exclude the ~111km-distant north station)", ids(got))
	}
}

func TestIndexRadiusExcludesZ(t *testing.T) {
	// Elevation must not affect the 2-D radius query.
	stations := []*chm.Station{
		{ID: "low", X: 0, Y: 0, Z: 0},
		{ID: "high", X: 0, Y: 0, Z: math.MaxFloat64 / 2},
	}
	idx := NewIndex(stations)
	got := idx.Radius(0, 0, 1)
	if len(got) != 2 {
		t.Errorf("got %d stations, want 2 (elevation should not enter a 2-D radius query)", len(got))
	}
}
