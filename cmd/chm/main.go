// Command chm is a thin command-line entry point around the
// simulation core: it reads a TOML run configuration, wires up a met
// backend and the modules it names, and drives the run to completion.
// Mesh loading is deliberately minimal (a flat text format, no
// partitioning) since a production mesh format and CLI flag surface
// beyond this are out of scope; a real deployment is expected to build
// a chm.Mesh some other way and call the core packages directly.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/chm"
	"github.com/spatialmodel/chm/met"
	"github.com/spatialmodel/chm/modules"
)

var cfgPath string

var root = &cobra.Command{
	Use:   "chm",
	Short: "A distributed hydrological model.",
	Long: `chm simulates snow and hydrological processes over an unstructured
triangular mesh. Configuration is supplied as a TOML file; see -c.`,
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:               "run",
	Short:             "Run a simulation to completion.",
	DisableAutoGenTag: true,
	RunE:              runModel,
}

func init() {
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "chm.toml", "path to a TOML run configuration file")
	root.AddCommand(runCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runModel(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()

	cfg, err := chm.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	mesh, err := loadFlatMesh(cfg.MeshFile())
	if err != nil {
		return fmt.Errorf("chm: loading mesh: %w", err)
	}

	start, err := cfg.StartTime()
	if err != nil {
		return fmt.Errorf("chm: StartDate: %v", err)
	}
	end, err := cfg.EndTime()
	if err != nil {
		return fmt.Errorf("chm: EndDate: %v", err)
	}
	dt := cfg.TimeStep()

	backend, err := loadMetBackend(cfg)
	if err != nil {
		return err
	}
	if err := reprojectStations(cfg, backend); err != nil {
		return err
	}

	faceLoc := make(map[int][3]float64, mesh.NumFaces())
	for i := 0; i < mesh.NumFaces(); i++ {
		f := mesh.Face(i)
		faceLoc[f.ID()] = [3]float64{f.Centroid.X, f.Centroid.Y, f.Centroid.Z}
	}
	coord := met.NewCoordinator(faceLoc)
	if err := coord.Bind(backend, defaultBindings(backend)); err != nil {
		return fmt.Errorf("chm: binding met backend: %w", err)
	}

	modNames, err := cfg.Modules()
	if err != nil {
		return fmt.Errorf("chm: Modules: %v", err)
	}
	geographic := strings.Contains(cfg.GridProj(), "longlat")
	mods, err := buildModules(modNames, cfg, backend, geographic)
	if err != nil {
		return err
	}

	driver, err := chm.NewDriver(mesh, coord, mods)
	if err != nil {
		return err
	}
	driver.Log = log

	if every := cfg.CheckpointEvery(); every > 0 {
		driver.Chk = &chm.NCFCheckpointer{Path: cfg.CheckpointPath()}
		driver.CheckpointEvery = every
	}

	ticks := met.Ticks(start, end, dt)
	log.WithFields(logrus.Fields{"ticks": len(ticks), "dt": dt}).Info("starting run")
	if err := driver.Run(ticks, dt); err != nil {
		return err
	}

	outVars, err := cfg.OutputVariables()
	if err != nil {
		return err
	}
	outputter, err := chm.NewOutputter(outVars)
	if err != nil {
		return err
	}
	rows, err := outputter.EvaluateAll(driver.Store, mesh)
	if err != nil {
		return err
	}
	log.WithField("faces", len(rows)).Info("run complete")
	return nil
}

// defaultBindings binds every variable a backend offers to a plain
// nearest-neighbour interpolator with no lift. A real deployment with
// elevation-sensitive variables configures its own bindings (thin
// plate spline plus a Lift) instead of calling this; the CLI's job
// here is to be runnable out of the box, not to pick good physics.
func defaultBindings(b met.Backend) map[string]struct {
	Interp met.Interpolator
	Lift   met.Lift
} {
	out := make(map[string]struct {
		Interp met.Interpolator
		Lift   met.Lift
	}, len(b.Variables()))
	for _, v := range b.Variables() {
		out[v] = struct {
			Interp met.Interpolator
			Lift   met.Lift
		}{Interp: &interpNearest{}}
	}
	return out
}

// interpNearest is the same nearest-station selection as
// interp.NearestNeighbor (ties broken by the lower station ID),
// implemented here so this package need not import interp just for
// one type.
type interpNearest struct{}

func (interpNearest) Interpolate(x, y, z float64, obs map[*chm.Station]float64) (float64, error) {
	var (
		best   *chm.Station
		bestD2 float64
	)
	for st := range obs {
		dx, dy := st.X-x, st.Y-y
		d2 := dx*dx + dy*dy
		if best == nil || d2 < bestD2 || (d2 == bestD2 && st.ID < best.ID) {
			best, bestD2 = st, d2
		}
	}
	if best == nil {
		return 0, fmt.Errorf("chm: no stations available")
	}
	return obs[best], nil
}

// reprojectStations transforms every station backend's stations from
// their native projection (Met.Proj) into the mesh's working
// projection (GridProj), if both are set and differ, before the
// spatial index or Coordinator ever sees them (spec §4.K).
func reprojectStations(cfg *chm.Config, backend met.Backend) error {
	from, to := cfg.MetProj(), cfg.GridProj()
	if from == "" || to == "" || from == to {
		return nil
	}
	p, err := met.NewProjector(from, to)
	if err != nil {
		return fmt.Errorf("chm: building station reprojection: %w", err)
	}
	if err := p.TransformStations(backend.Stations().All()); err != nil {
		return fmt.Errorf("chm: reprojecting stations: %w", err)
	}
	return nil
}

func loadMetBackend(cfg *chm.Config) (met.Backend, error) {
	switch cfg.MetBackend() {
	case "ascii":
		files, err := listAsciiFiles(cfg.MetPath())
		if err != nil {
			return nil, err
		}
		return met.LoadAscii(files, cfg.UTCOffset())
	default:
		return nil, fmt.Errorf("chm: unsupported Met.Backend %q", cfg.MetBackend())
	}
}

// listAsciiFiles walks Met.Path for "<stationID>.dat" files, building
// one placeholder chm.Station per file (position 0,0,0); a real
// deployment supplies station metadata alongside the config instead.
func listAsciiFiles(dir string) (map[string]*chm.Station, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("chm: reading %s: %w", dir, chm.ErrMissingFile)
	}
	files := make(map[string]*chm.Station)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dat") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".dat")
		files[dir+"/"+e.Name()] = &chm.Station{ID: id}
	}
	return files, nil
}

func buildModules(names []string, cfg *chm.Config, backend met.Backend, geographic bool) ([]chm.Module, error) {
	stations := backend.Stations().All()
	observe := func(st *chm.Station, name string, t time.Time) (float64, error) {
		return backend.At(st, name, t)
	}
	mods := make([]chm.Module, 0, len(names))
	for _, name := range names {
		var mc moduleConfig
		if sub := cfg.Sub("Modules." + name); sub != nil {
			mc.v = sub
		}
		m, err := modules.Build(name, mc, stations, observe, geographic)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// moduleConfig adapts *viper.Viper to modules.Config, tolerating an
// absent "[Modules.<name>]" section (Sub returns nil in that case) by
// falling back to the type's zero value rather than dereferencing nil.
// v is left nil rather than holding a nil *viper.Viper so the interface
// comparison in GetFloat64/GetBool below is not a typed-nil trap.
type moduleConfig struct {
	v interface {
		GetFloat64(string) float64
		GetBool(string) bool
	}
}

func (m moduleConfig) GetFloat64(key string) float64 {
	if m.v == nil {
		return 0
	}
	return m.v.GetFloat64(key)
}

func (m moduleConfig) GetBool(key string) bool {
	if m.v == nil {
		return false
	}
	return m.v.GetBool(key)
}

func loadFlatMesh(path string) (chm.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, chm.ErrMissingFile)
	}
	defer f.Close()

	b := chm.NewMeshBuilder()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			return nil, fmt.Errorf("%s: malformed mesh line %q", path, line)
		}
		x, _ := strconv.ParseFloat(fields[0], 64)
		y, _ := strconv.ParseFloat(fields[1], 64)
		z, _ := strconv.ParseFloat(fields[2], 64)
		area, _ := strconv.ParseFloat(fields[3], 64)
		slope, _ := strconv.ParseFloat(fields[4], 64)
		azimuth, _ := strconv.ParseFloat(fields[5], 64)
		n0, _ := strconv.Atoi(fields[6])
		n1, _ := strconv.Atoi(fields[7])
		n2, _ := strconv.Atoi(fields[8])
		b.AddFace(chm.Point3{X: x, Y: y, Z: z}, area, slope, azimuth, chm.Point3{Z: 1}, false, nil, [3]int{n0, n1, n2})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
