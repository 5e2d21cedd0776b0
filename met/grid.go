package met

import (
	"fmt"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/chm"
)

// GridBackend exposes a structured NetCDF grid as a set of virtual
// stations, one per grid cell centre, the way the domain stack's own
// LoadCTMData reads a rectangular meteorology file's dimensions and
// per-variable data into memory. Grid attributes "x0", "y0", "dx",
// "dy", "nx", "ny" locate cell centres; the record dimension is time.
type GridBackend struct {
	f     *cdf.File
	fh    *os.File
	stations *chm.StationSet
	cellOf   map[string][2]int // station ID -> (row, col)
	vars     []string
	start    time.Time
	dt       time.Duration
	nRecords int
}

// OpenGrid opens a gridded meteorology file at path. epoch and dt
// describe the record dimension's timestamps: record i corresponds to
// epoch.Add(i * dt). elevation supplies each cell's elevation, indexed
// [row][col], since gridded meteorology files rarely carry terrain
// height themselves.
func OpenGrid(path string, epoch time.Time, dt time.Duration, elevation [][]float64) (*GridBackend, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("met: opening %s: %w", path, chm.ErrMissingFile)
	}
	f, err := cdf.Open(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("met: reading header of %s: %v", path, err)
	}

	dx := f.Header.GetAttribute("", "dx").([]float64)[0]
	dy := f.Header.GetAttribute("", "dy").([]float64)[0]
	nx := int(f.Header.GetAttribute("", "nx").([]int32)[0])
	ny := int(f.Header.GetAttribute("", "ny").([]int32)[0])
	x0 := f.Header.GetAttribute("", "x0").([]float64)[0]
	y0 := f.Header.GetAttribute("", "y0").([]float64)[0]

	g := &GridBackend{
		f:      f,
		fh:     fh,
		cellOf: make(map[string][2]int, nx*ny),
		start:  epoch,
		dt:     dt,
	}

	var stations []*chm.Station
	for row := 0; row < ny; row++ {
		for col := 0; col < nx; col++ {
			id := fmt.Sprintf("grid:%d:%d", row, col)
			var z float64
			if elevation != nil && row < len(elevation) && col < len(elevation[row]) {
				z = elevation[row][col]
			}
			st := &chm.Station{
				ID: id,
				X:  x0 + (float64(col)+0.5)*dx,
				Y:  y0 + (float64(row)+0.5)*dy,
				Z:  z,
			}
			stations = append(stations, st)
			g.cellOf[id] = [2]int{row, col}
		}
	}
	g.stations = chm.NewStationSet(stations)

	for _, v := range f.Header.Variables() {
		g.vars = append(g.vars, v)
	}
	if len(g.vars) > 0 {
		dims := f.Header.Lengths(g.vars[0])
		g.nRecords = dims[0]
	}
	return g, nil
}

// Close releases the underlying file handle.
func (g *GridBackend) Close() error { return g.fh.Close() }

// Stations implements Backend.
func (g *GridBackend) Stations() *chm.StationSet { return g.stations }

// Variables implements Backend.
func (g *GridBackend) Variables() []string { return g.vars }

// TimeRange implements Backend.
func (g *GridBackend) TimeRange() (time.Time, time.Time, time.Duration) {
	end := g.start.Add(time.Duration(g.nRecords-1) * g.dt)
	return g.start, end, g.dt
}

// At implements Backend by reading the single (record, row, col) cell
// out of the variable's netcdf array.
func (g *GridBackend) At(st *chm.Station, name string, t time.Time) (float64, error) {
	cell, ok := g.cellOf[st.ID]
	if !ok {
		return 0, fmt.Errorf("met: unknown grid station %s", st.ID)
	}
	rec := int(t.Sub(g.start) / g.dt)
	if rec < 0 || rec >= g.nRecords {
		return 0, fmt.Errorf("met: %s has no record at %s", name, t)
	}
	dims := g.f.Header.Lengths(name)
	if len(dims) != 3 {
		return 0, fmt.Errorf("met: variable %q is not a (time, row, col) field", name)
	}

	start := []int{rec, cell[0], cell[1]}
	end := []int{rec + 1, cell[0] + 1, cell[1] + 1}
	r := g.f.Reader(name, start, end)
	data := sparse.ZerosDense(1, 1, 1)
	tmp := make([]float32, len(data.Elements))
	if _, err := r.Read(tmp); err != nil {
		return 0, fmt.Errorf("met: reading %s at %s: %w", name, t, chm.ErrMissingVariable)
	}
	return float64(tmp[0]), nil
}
