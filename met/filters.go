package met

import "fmt"

// Filter transforms one station's raw observation of a variable
// before it reaches an interpolator: unit conversion, a sign flip, or
// a per-station calibration offset (spec §4.D, chm.Station.Filters).
type Filter interface {
	Apply(value float64) float64
}

// ScaleFilter multiplies by Factor and adds Offset: value*Factor+Offset.
type ScaleFilter struct {
	Factor float64
	Offset float64
}

// Apply implements Filter.
func (f ScaleFilter) Apply(value float64) float64 { return value*f.Factor + f.Offset }

// registeredFilters maps a chm.Station.Filters name to a Filter, so a
// station's filter list can be a plain slice of strings in
// configuration rather than requiring a Go value.
var registeredFilters = map[string]Filter{
	"fahrenheit-to-kelvin": ScaleFilter{Factor: 5.0 / 9.0, Offset: 255.372222},
	"celsius-to-kelvin":    ScaleFilter{Factor: 1, Offset: 273.15},
	"mm-to-m":              ScaleFilter{Factor: 0.001},
	"negate":               ScaleFilter{Factor: -1},
}

// RegisterFilter adds or overrides a named filter, letting a
// configuration file reference custom per-deployment calibrations.
func RegisterFilter(name string, f Filter) { registeredFilters[name] = f }

// ApplyFilters runs value through each named filter in order,
// returning an error for any name that is not registered.
func ApplyFilters(value float64, names []string) (float64, error) {
	for _, name := range names {
		f, ok := registeredFilters[name]
		if !ok {
			return 0, fmt.Errorf("met: unknown filter %q", name)
		}
		value = f.Apply(value)
	}
	return value, nil
}
