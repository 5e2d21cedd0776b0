package met

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spatialmodel/chm"
)

// asciiMissing is the sentinel a station file uses for a missing cell
// (spec §4.D: "Missing cells use the sentinel -9999"). Parsed cells
// matching it become math.NaN() rather than the literal float -9999;
// a reported value of exactly -9999 is therefore always read as a gap.
const asciiMissing = -9999

// AsciiBackend reads one time series per station from a whitespace- or
// comma-delimited text file: a header line "datetime var1 var2 ..."
// followed by one row per timestamp. Each station is a separate file;
// AsciiBackend.rows carries each file's parsed rows in memory since
// the domain's forcing files are small relative to a run's mesh.
type AsciiBackend struct {
	stations *chm.StationSet
	vars     []string
	rows     map[string][]asciiRow // station ID -> rows, sorted by time
	dt       time.Duration
	start    time.Time
	end      time.Time
}

type asciiRow struct {
	t      time.Time
	values map[string]float64
}

// timeLayouts are attempted in order when parsing a row's timestamp
// column, since station files in the wild mix ISO-ish formats.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// LoadAscii reads one file per station (path -> station) and returns
// an AsciiBackend. utcOffset is added to every parsed timestamp,
// following spec §4.D's "positive west" convention: a station file
// timestamped in local standard time N hours west of UTC uses
// utcOffset = N*time.Hour. It returns chm.ErrMissingFile if a path
// does not exist, and chm.ErrInconsistentDt if stations disagree on
// their time step (spec §4.D, scenario S4).
func LoadAscii(files map[string]*chm.Station, utcOffset time.Duration) (*AsciiBackend, error) {
	b := &AsciiBackend{
		rows: make(map[string][]asciiRow),
	}
	var stations []*chm.Station
	var varSet map[string]bool

	for path, st := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("met: opening %s: %w", path, chm.ErrMissingFile)
		}
		rows, names, err := parseAsciiFile(f, utcOffset)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("met: parsing %s: %v", path, err)
		}
		if varSet == nil {
			varSet = make(map[string]bool, len(names))
			for _, n := range names {
				varSet[n] = true
				b.vars = append(b.vars, n)
			}
		}
		b.rows[st.ID] = rows
		stations = append(stations, st)

		if len(rows) < 2 {
			continue
		}
		for i := 1; i < len(rows)-1; i++ {
			if d := rows[i+1].t.Sub(rows[i].t); d != rows[1].t.Sub(rows[0].t) {
				return nil, fmt.Errorf("met: station %s time step %s between rows %d-%d differs from %s between rows %d-%d: %w",
					st.ID, d, i, i+1, rows[1].t.Sub(rows[0].t), 0, 1, chm.ErrInconsistentDt)
			}
		}
		stepDt := rows[1].t.Sub(rows[0].t)
		if b.dt == 0 {
			b.dt = stepDt
			b.start = rows[0].t
			b.end = rows[len(rows)-1].t
		} else if stepDt != b.dt {
			return nil, fmt.Errorf("met: station %s time step %s differs from %s: %w",
				st.ID, stepDt, b.dt, chm.ErrInconsistentDt)
		}
		if rows[0].t.After(b.start) {
			b.start = rows[0].t
		}
		if rows[len(rows)-1].t.Before(b.end) {
			b.end = rows[len(rows)-1].t
		}
	}
	b.stations = chm.NewStationSet(stations)
	return b, nil
}

func parseAsciiFile(f *os.File, utcOffset time.Duration) ([]asciiRow, []string, error) {
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	header := splitAsciiLine(scanner.Text())
	if len(header) < 2 {
		return nil, nil, fmt.Errorf("header must have a timestamp column and at least one variable")
	}
	names := header[1:]

	var rows []asciiRow
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := splitAsciiLine(line)
		if len(fields) != len(header) {
			return nil, nil, fmt.Errorf("row %q has %d fields, header has %d", line, len(fields), len(header))
		}
		t, err := parseAsciiTime(fields[0])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing timestamp %q: %v", fields[0], err)
		}
		t = t.Add(utcOffset)
		values := make(map[string]float64, len(names))
		for i, name := range names {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing %s value %q: %v", name, fields[i+1], err)
			}
			if v == asciiMissing {
				v = math.NaN()
			}
			values[name] = v
		}
		rows = append(rows, asciiRow{t: t, values: values})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return rows, names, nil
}

func splitAsciiLine(line string) []string {
	line = strings.ReplaceAll(line, ",", " ")
	return strings.Fields(line)
}

func parseAsciiTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// Stations implements Backend.
func (b *AsciiBackend) Stations() *chm.StationSet { return b.stations }

// Variables implements Backend.
func (b *AsciiBackend) Variables() []string { return b.vars }

// TimeRange implements Backend.
func (b *AsciiBackend) TimeRange() (time.Time, time.Time, time.Duration) {
	return b.start, b.end, b.dt
}

// At implements Backend by binary-searching the station's row slice
// for an exact timestamp match.
func (b *AsciiBackend) At(st *chm.Station, name string, t time.Time) (float64, error) {
	rows, ok := b.rows[st.ID]
	if !ok {
		return 0, fmt.Errorf("met: unknown station %s", st.ID)
	}
	lo, hi := 0, len(rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if rows[mid].t.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == len(rows) || !rows[lo].t.Equal(t) {
		return 0, fmt.Errorf("met: station %s has no observation at %s", st.ID, t)
	}
	v, ok := rows[lo].values[name]
	if !ok {
		return 0, fmt.Errorf("met: %w: %q", chm.ErrMissingVariable, name)
	}
	return v, nil
}
