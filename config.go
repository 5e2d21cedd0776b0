package chm

import (
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// Config wraps a viper.Viper preloaded from a TOML run configuration
// file, the same "read config, ask cast.ToXE for a typed value"
// pattern the domain stack's own cmd/inmap CLI uses (inmaputil/cmd.go,
// inmaputil/config.go): unmarshalling top-level structs is avoided in
// favour of narrow accessors so a config file can carry sections this
// package never looks at.
type Config struct {
	v *viper.Viper
}

// LoadConfig reads a TOML configuration file at path. It returns
// ErrMissingFile if path does not exist.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chm: reading config %s: %w", path, ErrMissingFile)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	v.SetEnvPrefix("CHM")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("chm: parsing config %s: %v", path, err)
	}
	return &Config{v: v}, nil
}

// MeshFile returns the "Mesh.File" configuration value, expanding
// environment variables.
func (c *Config) MeshFile() string { return os.ExpandEnv(c.v.GetString("Mesh.File")) }

// MetBackend returns the "Met.Backend" configuration value. The chm
// command accepts only "ascii"; the grid backend is not selectable
// through configuration.
func (c *Config) MetBackend() string { return c.v.GetString("Met.Backend") }

// MetPath returns the "Met.Path" configuration value.
func (c *Config) MetPath() string { return os.ExpandEnv(c.v.GetString("Met.Path")) }

// GridProj returns the "GridProj" PROJ.4 string configuration value:
// the mesh's working spatial reference (spec §4.K).
func (c *Config) GridProj() string { return c.v.GetString("GridProj") }

// MetProj returns the "Met.Proj" PROJ.4 string configuration value:
// the native spatial reference of the met backend's stations, before
// reprojection into GridProj. Empty means the backend's stations are
// already in the mesh's reference frame.
func (c *Config) MetProj() string { return c.v.GetString("Met.Proj") }

// UTCOffset returns the "Met.UTCOffsetHours" configuration value as a
// time.Duration, following spec §4.D's "positive west" convention: a
// station file timestamped in local standard time N hours west of UTC
// sets this to N. Defaults to 0 (files already in UTC) if unset.
func (c *Config) UTCOffset() time.Duration {
	return time.Duration(c.v.GetFloat64("Met.UTCOffsetHours") * float64(time.Hour))
}

// StartTime and EndTime parse the "StartDate"/"EndDate" configuration
// values, which are stored as RFC3339 strings, into time.Time.
func (c *Config) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.v.GetString("StartDate"))
}

func (c *Config) EndTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.v.GetString("EndDate"))
}

// TimeStep returns the "TimeStepSeconds" configuration value as a
// time.Duration.
func (c *Config) TimeStep() time.Duration {
	return time.Duration(c.v.GetInt("TimeStepSeconds")) * time.Second
}

// CheckpointEvery returns the "CheckpointEveryNTicks" configuration
// value, defaulting to 0 (checkpointing disabled) if unset.
func (c *Config) CheckpointEvery() int { return c.v.GetInt("CheckpointEveryNTicks") }

// CheckpointPath returns the "CheckpointFile" configuration value.
func (c *Config) CheckpointPath() string { return os.ExpandEnv(c.v.GetString("CheckpointFile")) }

// Modules returns the "Modules" configuration list: the names of the
// registered modules to run this simulation. Declaration order does
// not affect scheduling: ModuleGraph orders ties by module name.
func (c *Config) Modules() ([]string, error) {
	return cast.ToStringSliceE(c.v.Get("Modules"))
}

// OutputVariables returns the "OutputVariables" map of output column
// name to govaluate expression (spec §4.Q), the same
// name-to-expression shape the domain stack's legacy io.go output
// layer used.
func (c *Config) OutputVariables() (map[string]string, error) {
	raw, ok := c.v.Get("OutputVariables").(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("chm: OutputVariables configuration section is missing or malformed")
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("chm: OutputVariables.%s: %v", k, err)
		}
		out[os.ExpandEnv(k)] = os.ExpandEnv(s)
	}
	return out, nil
}

// Sub returns a nested viper section, for module-specific
// configuration blocks a module reads directly (e.g. "[Modules.snow_slide]").
func (c *Config) Sub(key string) *viper.Viper { return c.v.Sub(key) }
