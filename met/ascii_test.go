package met

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spatialmodel/chm"
)

func writeStationFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAsciiReadsStations(t *testing.T) {
	dir := t.TempDir()
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 -5.0\n2020-01-01T01:00:00 -4.0\n")
	b := writeStationFile(t, dir, "b.dat", "datetime t_raw\n2020-01-01T00:00:00 -3.0\n2020-01-01T01:00:00 -2.0\n")

	backend, err := LoadAscii(map[string]*chm.Station{
		a: {ID: "a", X: 0, Y: 0},
		b: {ID: "b", X: 10, Y: 0},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if backend.Stations().Len() != 2 {
		t.Fatalf("got %d stations, want 2", backend.Stations().Len())
	}
	st := backend.Stations().ByID("a")
	v, err := backend.At(st, "t_raw", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if v != -5.0 {
		t.Errorf("got %v, want -5.0", v)
	}
}

func TestLoadAsciiMissingFile(t *testing.T) {
	_, err := LoadAscii(map[string]*chm.Station{
		"/does/not/exist.dat": {ID: "a"},
	}, 0)
	if !errors.Is(err, chm.ErrMissingFile) {
		t.Errorf("got %v, want ErrMissingFile", err)
	}
}

func TestLoadAsciiInconsistentTimestep(t *testing.T) {
	dir := t.TempDir()
	// Station a reports hourly, station b reports every two hours.
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 1\n2020-01-01T01:00:00 2\n2020-01-01T02:00:00 3\n")
	b := writeStationFile(t, dir, "b.dat", "datetime t_raw\n2020-01-01T00:00:00 1\n2020-01-01T02:00:00 2\n2020-01-01T04:00:00 3\n")

	_, err := LoadAscii(map[string]*chm.Station{
		a: {ID: "a"},
		b: {ID: "b"},
	}, 0)
	if !errors.Is(err, chm.ErrInconsistentDt) {
		t.Errorf("got %v, want ErrInconsistentDt", err)
	}
}

func TestLoadAsciiInconsistentTimestepWithinFile(t *testing.T) {
	dir := t.TempDir()
	// Station a's own rows: 00:00-01:00 is one hour, 01:00-03:00 is two.
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 1\n2020-01-01T01:00:00 2\n2020-01-01T03:00:00 3\n")

	_, err := LoadAscii(map[string]*chm.Station{a: {ID: "a"}}, 0)
	if !errors.Is(err, chm.ErrInconsistentDt) {
		t.Errorf("got %v, want ErrInconsistentDt", err)
	}
}

func TestLoadAsciiAppliesUTCOffset(t *testing.T) {
	dir := t.TempDir()
	// The file's timestamp is local standard time 5 hours west of UTC.
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 -5.0\n2020-01-01T01:00:00 -4.0\n")

	backend, err := LoadAscii(map[string]*chm.Station{a: {ID: "a"}}, 5*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	st := backend.Stations().ByID("a")
	v, err := backend.At(st, "t_raw", time.Date(2020, 1, 1, 5, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("expected the offset row to land at 05:00 UTC: %v", err)
	}
	if v != -5.0 {
		t.Errorf("got %v, want -5.0", v)
	}
}

func TestLoadAsciiSentinelBecomesNaN(t *testing.T) {
	dir := t.TempDir()
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 -9999\n2020-01-01T01:00:00 -4.0\n")

	backend, err := LoadAscii(map[string]*chm.Station{a: {ID: "a"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	st := backend.Stations().ByID("a")
	v, err := backend.At(st, "t_raw", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(v) {
		t.Errorf("got %v, want NaN for the -9999 sentinel", v)
	}
}

func TestAsciiBackendAtMissingTimestamp(t *testing.T) {
	dir := t.TempDir()
	a := writeStationFile(t, dir, "a.dat", "datetime t_raw\n2020-01-01T00:00:00 1\n2020-01-01T01:00:00 2\n")
	backend, err := LoadAscii(map[string]*chm.Station{a: {ID: "a"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	st := backend.Stations().ByID("a")
	if _, err := backend.At(st, "t_raw", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("expected an error for a timestamp outside the station's data")
	}
}
