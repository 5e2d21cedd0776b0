package chm

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
)

// moduleNode wraps a registered Module for graph.Node identity.
type moduleNode struct {
	id int64
	m  Module
}

func (n moduleNode) ID() int64 { return n.id }

// Batch is one step of the scheduler's execution plan: a set of
// modules that may run together because none depends, even
// transitively within the batch, on another's output.
type Batch struct {
	Parallelism Parallelism
	Modules     []Module
}

// ModuleGraph resolves a set of registered modules into an ordered
// list of Batches by building a directed dependency graph (module ->
// module for Depends and DependsFromNeighbor) and peeling it into
// levels by Kahn's algorithm (spec §4.C).
type ModuleGraph struct {
	modules []Module
}

// NewModuleGraph returns a ModuleGraph over the given modules. Module
// declaration order does not affect the resulting batches: independent
// modules within a batch are ordered by name for determinism (spec
// §4.G), and domain-serial modules within a batch run sequentially in
// that same name order.
func NewModuleGraph(modules []Module) *ModuleGraph {
	return &ModuleGraph{modules: modules}
}

// Compile builds the dependency graph and returns its batches in
// dependency order. It returns ErrUnresolvedDependency if a Depends or
// DependsFromNeighbor name has no provider, ErrAmbiguousProvider if a
// name is provided by more than one module, and ErrCycle if the
// dependency graph is not acyclic.
func (g *ModuleGraph) Compile() ([]Batch, error) {
	provider := make(map[string]int) // variable name -> index into g.modules
	for i, m := range g.modules {
		for _, name := range m.Descriptor().Provides {
			if j, dup := provider[name]; dup {
				return nil, fmt.Errorf("chm: %q provided by both %q and %q: %w",
					name, g.modules[j].Descriptor().Name, m.Descriptor().Name, ErrAmbiguousProvider)
			}
			provider[name] = i
		}
	}

	dg := simple.NewDirectedGraph()
	nodes := make([]moduleNode, len(g.modules))
	for i, m := range g.modules {
		nodes[i] = moduleNode{id: int64(i), m: m}
		dg.AddNode(nodes[i])
	}

	resolve := func(names []string, self int) error {
		for _, name := range names {
			j, ok := provider[name]
			if !ok {
				return fmt.Errorf("chm: %q required by %q: %w",
					name, g.modules[self].Descriptor().Name, ErrUnresolvedDependency)
			}
			if j == self {
				continue
			}
			dg.SetEdge(simple.Edge{F: nodes[j], T: nodes[self]})
		}
		return nil
	}

	for i, m := range g.modules {
		d := m.Descriptor()
		if err := resolve(d.Depends, i); err != nil {
			return nil, err
		}
		if err := resolve(d.DependsFromNeighbor, i); err != nil {
			return nil, err
		}
		// DependsFromMet names are satisfied by the meteorological
		// coordinator, not by another module, so they impose no graph
		// edge; the Driver checks them against the coordinator's
		// variable list at startup instead.
	}

	return kahnBatches(dg, nodes)
}

// kahnBatches peels dg into levels by repeatedly removing the nodes
// with zero remaining in-degree. Each level becomes one or more
// Batches, split and ordered by Parallelism, ties among independent
// modules broken by module name for determinism (spec §4.G).
func kahnBatches(dg *simple.DirectedGraph, nodes []moduleNode) ([]Batch, error) {
	indegree := make(map[int64]int, len(nodes))
	for _, n := range nodes {
		indegree[n.id] = dg.To(n.id).Len()
	}

	remaining := len(nodes)
	var batches []Batch
	for remaining > 0 {
		var frontier []moduleNode
		for _, n := range nodes {
			if indegree[n.id] == 0 {
				frontier = append(frontier, n)
			}
		}
		if len(frontier) == 0 {
			return nil, fmt.Errorf("chm: %d modules form a cycle: %w", remaining, ErrCycle)
		}
		sort.Slice(frontier, func(i, j int) bool {
			return frontier[i].m.Descriptor().Name < frontier[j].m.Descriptor().Name
		})

		var order []Parallelism
		byParallelism := map[Parallelism][]Module{}
		for _, mn := range frontier {
			indegree[mn.id] = -1 // remove from further consideration
			remaining--
			p := mn.m.Descriptor().Parallelism
			if _, ok := byParallelism[p]; !ok {
				order = append(order, p)
			}
			byParallelism[p] = append(byParallelism[p], mn.m)

			to := dg.From(mn.id)
			for to.Next() {
				succ := to.Node().ID()
				if indegree[succ] > 0 {
					indegree[succ]--
				}
			}
		}
		for _, p := range order {
			batches = append(batches, Batch{Parallelism: p, Modules: byParallelism[p]})
		}
	}
	return batches, nil
}
