package agentflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// dagLevels computes dependency-ordered execution levels: level 0 contains
// every node with no unsatisfied dependency, level 1 contains nodes whose
// dependencies are all in level 0 (or earlier), and so on. Computed by
// repeated ready-set extraction, a variant of Kahn's algorithm.
//
// Returns an error if the dependency graph references an unknown node or a
// node is unreachable from any level (which can only happen if a cycle
// excludes it, also reported as FlowDefinitionError).
func (f *Flow) dagLevels() ([][]string, error) {
	if err := f.validateDAG(); err != nil {
		return nil, err
	}

	remaining := make(map[string][]string, len(f.Nodes))
	for name := range f.Nodes {
		remaining[name] = append([]string(nil), f.Dependencies[name]...)
	}

	var levels [][]string
	done := make(map[string]bool, len(f.Nodes))

	for len(done) < len(f.Nodes) {
		var ready []string
		for name, deps := range remaining {
			if done[name] {
				continue
			}
			if allDone(deps, done) {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, NewFlowError(FlowDefinitionError, "dependency cycle prevents further progress")
		}
		sort.Strings(ready)
		levels = append(levels, ready)
		for _, name := range ready {
			done[name] = true
		}
	}
	return levels, nil
}

func allDone(deps []string, done map[string]bool) bool {
	for _, d := range deps {
		if !done[d] {
			return false
		}
	}
	return true
}

// validateDAG checks the dependency graph for dangling references (a
// dependency naming a node not in f.Nodes) and true cycles via DFS with a
// recursion stack. dagLevels calls it first, so a cycle is reported here,
// naming a node on it, before any level is computed.
func (f *Flow) validateDAG() error {
	for name, deps := range f.Dependencies {
		if _, ok := f.Nodes[name]; !ok {
			return NewFlowError(FlowDefinitionError, fmt.Sprintf("dependency entry for unknown node %q", name))
		}
		for _, d := range deps {
			if _, ok := f.Nodes[d]; !ok {
				return NewFlowError(FlowDefinitionError, fmt.Sprintf("node %q depends on unknown node %q", name, d))
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(f.Nodes))
	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, dep := range f.Dependencies[node] {
			switch color[dep] {
			case gray:
				return NewFlowError(FlowDefinitionError, fmt.Sprintf("dependency cycle detected at %q", dep))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}
	for name := range f.Nodes {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// runDAG executes nodes level by level, running every node within a level
// concurrently. A failure anywhere in a level lets its already-started
// siblings finish (their SharedState writes stand, since post already
// committed by the time a sibling error surfaces), but no further levels
// are started.
func (f *Flow) runDAG(ctx context.Context, runID string, state *SharedState, seq *atomic.Int64) (*Result, error) {
	levels, err := f.dagLevels()
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		completed []string
		firstErr  error
	)

	for _, level := range levels {
		if firstErr != nil {
			break
		}

		var wg sync.WaitGroup
		for _, name := range level {
			node, ok := f.Nodes[name]
			if !ok {
				return nil, NewFlowError(FlowDefinitionError, fmt.Sprintf("unknown node %q", name))
			}
			wg.Add(1)
			go func(name string, node Node) {
				defer wg.Done()
				_, nodeErr := f.runNode(ctx, runID, node, state, seq)
				mu.Lock()
				defer mu.Unlock()
				if nodeErr != nil {
					if firstErr == nil {
						firstErr = nodeErr
					}
					return
				}
				completed = append(completed, name)
			}(name, node)
		}
		wg.Wait()
	}

	if firstErr != nil {
		return &Result{RunID: runID, CompletedAt: completed}, firstErr
	}
	return &Result{RunID: runID, CompletedAt: completed}, nil
}
