package chm

import "time"

// Station is a single point of meteorological observation, real
// (an ascii station) or virtual (a grid cell centre exposed by the
// gridded backend). Its identity and location are fixed for the
// lifetime of a run; its observations are looked up through the
// owning met.Coordinator by timestamp.
type Station struct {
	ID   string
	X, Y float64 // projected coordinates, metres
	Z    float64 // elevation, metres above sea level

	// Filters is the ordered set of variable transformations applied to
	// this station's raw observations before they reach an interpolator
	// (unit conversion, sign flips, per-station calibration offsets).
	Filters []string
}

// Observation is one variable's value from one station at one
// timestamp.
type Observation struct {
	Station *Station
	Time    time.Time
	Value   float64
}

// StationSet is a fixed collection of stations, indexed by ID for
// coordinator bookkeeping and offered up as a slice for spatial
// indexing.
type StationSet struct {
	stations []*Station
	byID     map[string]*Station
}

// NewStationSet builds a StationSet from stations. Station IDs must be
// unique; the second and later station carrying a duplicate ID is
// dropped.
func NewStationSet(stations []*Station) *StationSet {
	s := &StationSet{
		stations: make([]*Station, 0, len(stations)),
		byID:     make(map[string]*Station, len(stations)),
	}
	for _, st := range stations {
		if _, dup := s.byID[st.ID]; dup {
			continue
		}
		s.byID[st.ID] = st
		s.stations = append(s.stations, st)
	}
	return s
}

// Len returns the number of stations in the set.
func (s *StationSet) Len() int { return len(s.stations) }

// Station returns the i'th station in insertion order.
func (s *StationSet) Station(i int) *Station { return s.stations[i] }

// ByID returns the station with the given ID, or nil if none exists.
func (s *StationSet) ByID(id string) *Station { return s.byID[id] }

// All returns every station in the set, in insertion order. The
// returned slice must not be mutated by the caller.
func (s *StationSet) All() []*Station { return s.stations }
