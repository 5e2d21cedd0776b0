package modules

import (
	"fmt"

	"github.com/spatialmodel/chm"
)

// Factory builds a module from its "[Modules.<name>]" configuration
// sub-tree. Modules that need no configuration ignore cfg. geographic
// reports whether the mesh's projection is geographic (+proj=longlat),
// for modules that build their own station index (spec §4.K).
type Factory func(cfg Config, stations []*chm.Station, observe ObservedValue, geographic bool) (chm.Module, error)

// Config is the narrow subset of *viper.Viper a Factory needs, kept as
// an interface so this package does not import viper directly.
type Config interface {
	GetFloat64(key string) float64
	GetBool(key string) bool
}

// registry maps a config file's "Modules" entry to the Factory that
// builds it, following the domain stack's own name-to-constructor
// dispatch (inmaputil/config.go's InitVarGridData / init-function
// switches use the same shape for grid variables).
var registry = map[string]Factory{
	"snow_slide": func(cfg Config, _ []*chm.Station, _ ObservedValue, _ bool) (chm.Module, error) {
		return &SnowSlide{
			AvalancheMult:   cfg.GetFloat64("AvalancheMult"),
			AvalanchePow:    cfg.GetFloat64("AvalanchePow"),
			UseVerticalSnow: cfg.GetBool("UseVerticalSnow"),
		}, nil
	},
	"Dist_tlapse": func(cfg Config, stations []*chm.Station, observe ObservedValue, geographic bool) (chm.Module, error) {
		radius := cfg.GetFloat64("Radius")
		if radius == 0 {
			radius = 50000
		}
		return &TLapse{
			Stations:   stations,
			Radius:     radius,
			Observe:    observe,
			Geographic: geographic,
		}, nil
	},
	"rh_from_obs": func(_ Config, stations []*chm.Station, observe ObservedValue, _ bool) (chm.Module, error) {
		return &RHFromObs{Stations: stations, Observe: observe}, nil
	},
	"snowdrift": func(cfg Config, _ []*chm.Station, _ ObservedValue, _ bool) (chm.Module, error) {
		return &SnowDrift{
			GrainRadius: cfg.GetFloat64("GrainRadius"),
		}, nil
	},
}

// Build constructs the named module by looking it up in registry.
func Build(name string, cfg Config, stations []*chm.Station, observe ObservedValue, geographic bool) (chm.Module, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("modules: no module registered under name %q", name)
	}
	return f(cfg, stations, observe, geographic)
}

// Names returns every module name registered, for validation and help
// text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
