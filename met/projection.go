package met

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/chm"
)

// Projector reprojects station and grid-cell coordinates from a
// backend's native spatial reference into the mesh's projection
// (spec §4.K), the same PROJ.4-string parse-and-transform pattern
// VarGridConfig.webMapTrans uses.
type Projector struct {
	forward proj.Transformer
}

// NewProjector parses fromProj and toProj as PROJ.4 strings and
// returns a Projector that transforms points from the former into the
// latter. It returns chm.ErrProjectionFailure if either string fails
// to parse or no transform exists between them.
func NewProjector(fromProj, toProj string) (*Projector, error) {
	from, err := proj.Parse(fromProj)
	if err != nil {
		return nil, fmt.Errorf("met: parsing source projection %q: %w", fromProj, chm.ErrProjectionFailure)
	}
	to, err := proj.Parse(toProj)
	if err != nil {
		return nil, fmt.Errorf("met: parsing destination projection %q: %w", toProj, chm.ErrProjectionFailure)
	}
	t, err := from.NewTransform(to)
	if err != nil {
		return nil, fmt.Errorf("met: building transform %q -> %q: %w", fromProj, toProj, chm.ErrProjectionFailure)
	}
	return &Projector{forward: t}, nil
}

// Transform reprojects (x, y) and returns the projected coordinates.
func (p *Projector) Transform(x, y float64) (float64, float64, error) {
	tx, ty, err := p.forward(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("met: transforming (%g, %g): %w", x, y, chm.ErrProjectionFailure)
	}
	return tx, ty, nil
}

// TransformStations reprojects every station in place.
func (p *Projector) TransformStations(stations []*chm.Station) error {
	for _, st := range stations {
		x, y, err := p.Transform(st.X, st.Y)
		if err != nil {
			return err
		}
		st.X, st.Y = x, y
	}
	return nil
}
