package met

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/chm"
)

// writeTestGrid builds a minimal (time, row, col) netcdf file with nx
// by ny cells and nRecords timesteps, one variable named varName whose
// value at (rec, row, col) is rec*100 + row*10 + col, so a test can
// check exactly which cell and record OpenGrid/At end up reading.
func writeTestGrid(t *testing.T, varName string, nx, ny, nRecords int, dx, dy, x0, y0 float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.nc")

	h := cdf.NewHeader([]string{"time", "row", "col"}, []int{0, ny, nx})
	h.AddAttribute("", "dx", []float64{dx})
	h.AddAttribute("", "dy", []float64{dy})
	h.AddAttribute("", "nx", []int32{int32(nx)})
	h.AddAttribute("", "ny", []int32{int32(ny)})
	h.AddAttribute("", "x0", []float64{x0})
	h.AddAttribute("", "y0", []float64{y0})
	h.AddVariable(varName, []string{"time", "row", "col"}, []float32{0})
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]float32, nRecords*ny*nx)
	i := 0
	for rec := 0; rec < nRecords; rec++ {
		for row := 0; row < ny; row++ {
			for col := 0; col < nx; col++ {
				data[i] = float32(rec*100 + row*10 + col)
				i++
			}
		}
	}
	w := cf.Writer(varName, []int{0, 0, 0}, []int{nRecords, ny, nx})
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenGridReadsCellsAtCentroids(t *testing.T) {
	path := writeTestGrid(t, "t2", 2, 2, 2, 100, 100, 0, 0)
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := OpenGrid(path, epoch, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	stations := g.Stations().All()
	if len(stations) != 4 {
		t.Fatalf("got %d stations, want 4", len(stations))
	}

	var row0col1 *chm.Station
	for _, st := range stations {
		if st.X == 150 && st.Y == 50 { // col 1, row 0, cell centres at (col+0.5)*dx
			row0col1 = st
		}
	}
	if row0col1 == nil {
		t.Fatal("expected a station at the row 0, col 1 cell centre")
	}

	v, err := g.At(row0col1, "t2", epoch)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 { // rec 0, row 0, col 1 -> 0*100 + 0*10 + 1
		t.Errorf("got %v, want 1", v)
	}

	v, err = g.At(row0col1, "t2", epoch.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if v != 101 { // rec 1, row 0, col 1 -> 100 + 0 + 1
		t.Errorf("got %v, want 101", v)
	}
}

func TestOpenGridTimeRange(t *testing.T) {
	path := writeTestGrid(t, "t2", 2, 2, 3, 100, 100, 0, 0)
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := OpenGrid(path, epoch, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	start, end, dt := g.TimeRange()
	if !start.Equal(epoch) {
		t.Errorf("got start %v, want %v", start, epoch)
	}
	if !end.Equal(epoch.Add(2 * time.Hour)) {
		t.Errorf("got end %v, want %v", end, epoch.Add(2*time.Hour))
	}
	if dt != time.Hour {
		t.Errorf("got dt %v, want 1h", dt)
	}
}

func TestOpenGridAtOutOfRangeRecord(t *testing.T) {
	path := writeTestGrid(t, "t2", 2, 2, 1, 100, 100, 0, 0)
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := OpenGrid(path, epoch, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	st := g.Stations().All()[0]
	if _, err := g.At(st, "t2", epoch.Add(24*time.Hour)); err == nil {
		t.Error("expected an error for a record outside the file's time range")
	}
}

func TestOpenGridMissingFile(t *testing.T) {
	_, err := OpenGrid(filepath.Join(t.TempDir(), "nope.nc"), time.Now(), time.Hour, nil)
	if err == nil {
		t.Error("expected an error opening a missing grid file")
	}
}
