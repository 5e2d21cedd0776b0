package chm

import (
	"fmt"
	"sort"

	"github.com/Knetic/govaluate"
)

// Outputter evaluates a set of named, user-supplied expressions
// against the current face variable store (spec §4.Q), the same
// expression-per-output-column idea the domain stack's legacy
// Outputter used, scaled down from grid-wide array expressions to
// per-face scalar expressions since a hydrological tick's outputs are
// naturally per-face.
type Outputter struct {
	names []string
	exprs map[string]*govaluate.EvaluableExpression
}

// NewOutputter compiles outputVariables, a map of output column name
// to a govaluate expression referencing store variable names, e.g.
// {"SnowWaterEquiv": "swe", "SnowMassChange": "delta_avalanche_mass * 1000"}.
func NewOutputter(outputVariables map[string]string) (*Outputter, error) {
	o := &Outputter{
		exprs: make(map[string]*govaluate.EvaluableExpression, len(outputVariables)),
	}
	for name, expr := range outputVariables {
		compiled, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return nil, fmt.Errorf("chm: output variable %q: %v", name, err)
		}
		o.exprs[name] = compiled
		o.names = append(o.names, name)
	}
	sort.Strings(o.names)
	return o, nil
}

// Names returns the output column names, in a stable sorted order.
func (o *Outputter) Names() []string { return o.names }

// Evaluate computes every output column for a single face by handing
// each expression a parameter lookup backed by store.Get, defaulting
// an expression's unresolved variables to MissingValue rather than
// failing the whole row, matching the per-module soft-failure sentinel
// convention (spec §7).
func (o *Outputter) Evaluate(store *Store, faceID int) (map[string]float64, error) {
	out := make(map[string]float64, len(o.names))
	for _, name := range o.names {
		expr := o.exprs[name]
		params := make(map[string]interface{}, len(expr.Vars()))
		for _, v := range expr.Vars() {
			val, err := store.Get(faceID, v)
			if err != nil {
				val = MissingValue
			}
			params[v] = val
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("chm: evaluating output %q on face %d: %v", name, faceID, err)
		}
		f, ok := result.(float64)
		if !ok {
			return nil, fmt.Errorf("chm: output %q on face %d did not evaluate to a number", name, faceID)
		}
		out[name] = f
	}
	return out, nil
}

// EvaluateAll runs Evaluate over every non-ghost face in mesh order.
func (o *Outputter) EvaluateAll(store *Store, mesh Mesh) ([]map[string]float64, error) {
	rows := make([]map[string]float64, 0, mesh.NumFaces())
	for i := 0; i < mesh.NumFaces(); i++ {
		f := mesh.Face(i)
		if f.Ghost {
			continue
		}
		row, err := o.Evaluate(store, f.ID())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
