package agentflow

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationReport is the result of Flow.Validate: a pure inspection of a
// flow definition that never runs any node. DuplicateNodeIDs and
// DanglingDependencies/HasCycle indicate a broken definition; Unreachable
// is warning-only (a Sequential flow can run fine and still have nodes no
// route ever reaches) and is only filled in Sequential mode.
type ValidationReport struct {
	DuplicateNodeIDs     []string
	DanglingDependencies []string
	HasCycle             bool
	CycleDetail          string
	UnreachableNodes     []string
	ParallelismByLevel   []int
	MaxDepth             int
}

// Valid reports whether the flow definition is free of structural errors.
// UnreachableNodes does not affect this: it is advisory only.
func (r ValidationReport) Valid() bool {
	return len(r.DuplicateNodeIDs) == 0 && len(r.DanglingDependencies) == 0 && !r.HasCycle
}

// Validate inspects the flow definition without executing anything: duplicate
// node IDs, dangling routes/dependencies, cycles, nodes no route reaches
// (Sequential only, warning-only), and the parallelism available at
// each execution level.
func (f *Flow) Validate() ValidationReport {
	report := ValidationReport{DuplicateNodeIDs: f.duplicateNodeIDs()}

	switch f.Mode {
	case DAG:
		report.DanglingDependencies = f.danglingDependencies()
		if len(report.DanglingDependencies) == 0 {
			if err := f.validateDAG(); err != nil {
				report.HasCycle = true
				report.CycleDetail = err.Error()
			} else if levels, err := f.dagLevels(); err == nil {
				report.MaxDepth = len(levels)
				for _, level := range levels {
					report.ParallelismByLevel = append(report.ParallelismByLevel, len(level))
				}
			}
		}
	case Parallel:
		report.DanglingDependencies = f.danglingRoutes()
		if len(f.Nodes) > 0 {
			report.MaxDepth = 1
			report.ParallelismByLevel = []int{len(f.Nodes)}
		}
	default:
		dangling := f.danglingRoutes()
		if f.StartNode != "" {
			if _, ok := f.Nodes[f.StartNode]; !ok {
				dangling = append([]string{fmt.Sprintf("start node %q not found", f.StartNode)}, dangling...)
			}
		}
		report.DanglingDependencies = dangling

		reachable, hasCycle, cycleDetail, depth := f.walkRoutingGraph()
		report.HasCycle = hasCycle
		report.CycleDetail = cycleDetail
		report.MaxDepth = depth
		if depth > 0 {
			levels := make([]int, depth)
			for i := range levels {
				levels[i] = 1
			}
			report.ParallelismByLevel = levels
		}

		names := make([]string, 0, len(f.Nodes))
		for name := range f.Nodes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !reachable[name] {
				report.UnreachableNodes = append(report.UnreachableNodes, name)
			}
		}
	}

	return report
}

// duplicateNodeIDs reports map keys whose node's Name() collides with
// another node's Name(): routing and event attribution key on Name(), so
// two map entries sharing one would be indistinguishable downstream even
// though Go's map itself enforces unique keys.
func (f *Flow) duplicateNodeIDs() []string {
	keys := make([]string, 0, len(f.Nodes))
	for k := range f.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	firstKeyForName := make(map[string]string, len(keys))
	reported := make(map[string]bool)
	var dups []string
	for _, key := range keys {
		name := f.Nodes[key].Name()
		if first, seen := firstKeyForName[name]; seen {
			if !reported[name] {
				dups = append(dups, fmt.Sprintf("%q used by nodes %q and %q", name, first, key))
				reported[name] = true
			}
			continue
		}
		firstKeyForName[name] = key
	}
	return dups
}

// danglingDependencies reports Dependencies entries (DAG mode) naming nodes
// absent from f.Nodes.
func (f *Flow) danglingDependencies() []string {
	names := make([]string, 0, len(f.Dependencies))
	for name := range f.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var dangling []string
	for _, name := range names {
		if _, ok := f.Nodes[name]; !ok {
			dangling = append(dangling, fmt.Sprintf("dependency entry for unknown node %q", name))
			continue
		}
		for _, dep := range f.Dependencies[name] {
			if _, ok := f.Nodes[dep]; !ok {
				dangling = append(dangling, fmt.Sprintf("%q depends on unknown node %q", name, dep))
			}
		}
	}
	return dangling
}

// danglingRoutes reports RoutingTable entries (Sequential/Parallel mode)
// pointing at nodes absent from f.Nodes.
func (f *Flow) danglingRoutes() []string {
	keys := make([]string, 0, len(f.RoutingTable))
	for k := range f.RoutingTable {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dangling []string
	for _, key := range keys {
		target := f.RoutingTable[key]
		if _, ok := f.Nodes[target]; !ok {
			dangling = append(dangling, fmt.Sprintf("route %q points to unknown node %q", key, target))
		}
	}
	return dangling
}

// edgesFrom returns the node names RoutingTable sends name's actions to, in
// a stable order.
func (f *Flow) edgesFrom(name string) []string {
	prefix := name + "."
	var targets []string
	for key, target := range f.RoutingTable {
		if strings.HasPrefix(key, prefix) {
			targets = append(targets, target)
		}
	}
	sort.Strings(targets)
	return targets
}

// walkRoutingGraph performs a DFS over the routing graph from StartNode,
// reporting every node reached, whether a cycle exists, and the longest
// path length encountered. Edges into nodes absent from f.Nodes are
// skipped; danglingRoutes reports those separately.
func (f *Flow) walkRoutingGraph() (reachable map[string]bool, hasCycle bool, cycleDetail string, maxDepth int) {
	reachable = make(map[string]bool)
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(f.Nodes))

	var visit func(name string, depth int)
	visit = func(name string, depth int) {
		if hasCycle {
			return
		}
		switch color[name] {
		case gray:
			hasCycle = true
			cycleDetail = fmt.Sprintf("routing cycle detected at %q", name)
			return
		case black:
			return
		}
		color[name] = gray
		reachable[name] = true
		if depth > maxDepth {
			maxDepth = depth
		}
		for _, next := range f.edgesFrom(name) {
			if _, ok := f.Nodes[next]; !ok {
				continue
			}
			visit(next, depth+1)
		}
		color[name] = black
	}

	if f.StartNode != "" {
		if _, ok := f.Nodes[f.StartNode]; ok {
			visit(f.StartNode, 1)
		}
	}
	return reachable, hasCycle, cycleDetail, maxDepth
}
