package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/spatialmodel/chm"
	"gonum.org/v1/gonum/mat"
)

// obsPair is a station/value pair pulled out of the map an
// Interpolator receives, in a stable order, so repeated calls with
// the same observations produce bit-identical results.
type obsPair struct {
	station *chm.Station
	value   float64
}

func sortedPairs(obs map[*chm.Station]float64) []obsPair {
	pairs := make([]obsPair, 0, len(obs))
	for st, v := range obs {
		pairs = append(pairs, obsPair{station: st, value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].station.ID < pairs[j].station.ID })
	return pairs
}

// NearestNeighbor returns the value of the closest station, ignoring
// z. Ties are broken by station ID.
type NearestNeighbor struct{}

// Interpolate implements met.Interpolator.
func (NearestNeighbor) Interpolate(x, y, _ float64, obs map[*chm.Station]float64) (float64, error) {
	pairs := sortedPairs(obs)
	if len(pairs) == 0 {
		return 0, fmt.Errorf("interp: %w", chm.ErrInsufficientData)
	}
	best := pairs[0]
	bestD := dist2(x, y, best.station)
	for _, p := range pairs[1:] {
		if d := dist2(x, y, p.station); d < bestD {
			best, bestD = p, d
		}
	}
	return best.value, nil
}

// IDW is inverse-distance-weighted interpolation with the given power
// exponent (2 is the conventional default). A query point exactly at
// a station returns that station's value.
type IDW struct {
	Power float64
}

// Interpolate implements met.Interpolator.
func (w IDW) Interpolate(x, y, _ float64, obs map[*chm.Station]float64) (float64, error) {
	pairs := sortedPairs(obs)
	if len(pairs) == 0 {
		return 0, fmt.Errorf("interp: %w", chm.ErrInsufficientData)
	}
	power := w.Power
	if power == 0 {
		power = 2
	}
	var sumW, sumWV float64
	for _, p := range pairs {
		d2 := dist2(x, y, p.station)
		if d2 == 0 {
			return p.value, nil
		}
		wt := 1 / math.Pow(d2, power/2)
		sumW += wt
		sumWV += wt * p.value
	}
	return sumWV / sumW, nil
}

// MinStations is the minimum station count ThinPlateSpline requires to
// fit a non-degenerate surface.
const MinStations = 3

// ThinPlateSpline fits a thin-plate spline surface to the current
// observations and evaluates it at the query point. It solves the
// standard TPS linear system [K P; P^T 0][w; a] = [v; 0] via
// gonum/mat's dense solver, refitting on every call since the station
// set and its values can change from tick to tick.
type ThinPlateSpline struct{}

// Interpolate implements met.Interpolator.
func (ThinPlateSpline) Interpolate(x, y, _ float64, obs map[*chm.Station]float64) (float64, error) {
	pairs := sortedPairs(obs)
	n := len(pairs)
	if n < MinStations {
		return 0, fmt.Errorf("interp: %d stations, need at least %d: %w", n, MinStations, chm.ErrInsufficientData)
	}

	// Build the (n+3) x (n+3) system.
	size := n + 3
	a := mat.NewDense(size, size, nil)
	b := mat.NewDense(size, 1, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, tpsKernel(pairs[i].station, pairs[j].station))
		}
		a.Set(i, n, 1)
		a.Set(i, n+1, pairs[i].station.X)
		a.Set(i, n+2, pairs[i].station.Y)
		a.Set(n, i, 1)
		a.Set(n+1, i, pairs[i].station.X)
		a.Set(n+2, i, pairs[i].station.Y)
		b.Set(i, 0, pairs[i].value)
	}

	var coeffs mat.Dense
	if err := coeffs.Solve(a, b); err != nil {
		return 0, fmt.Errorf("interp: fitting thin-plate spline: %v", err)
	}

	result := coeffs.At(n, 0) + coeffs.At(n+1, 0)*x + coeffs.At(n+2, 0)*y
	for i := 0; i < n; i++ {
		result += coeffs.At(i, 0) * tpsKernelXY(pairs[i].station, x, y)
	}
	return result, nil
}

// tpsKernel is the TPS radial basis function r^2*log(r) evaluated
// between two stations.
func tpsKernel(a, b *chm.Station) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	r2 := dx*dx + dy*dy
	if r2 == 0 {
		return 0
	}
	return r2 * math.Log(r2) / 2
}

func tpsKernelXY(a *chm.Station, x, y float64) float64 {
	dx := a.X - x
	dy := a.Y - y
	r2 := dx*dx + dy*dy
	if r2 == 0 {
		return 0
	}
	return r2 * math.Log(r2) / 2
}

func dist2(x, y float64, st *chm.Station) float64 {
	dx := x - st.X
	dy := y - st.Y
	return dx*dx + dy*dy
}
