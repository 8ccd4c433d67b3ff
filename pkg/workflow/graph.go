package workflow

import (
	"fmt"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// Plan is the resolved execution order of a workflow: the nodes on the
// single START-to-END path, in the order they run.
type Plan struct {
	// Workflow is the flow name from the config
	Workflow string

	// Nodes are the execution units in run order
	Nodes []config.NodeConfig
}

// BuildPlan walks the edge graph from START to END and returns the node
// sequence. It expects a config that already passed validation; structural
// defects it still encounters (missing START edge, branching, unknown
// targets, cycles) are reported as errors rather than panics.
func BuildPlan(cfg *config.WorkflowConfig) (*Plan, error) {
	byID := make(map[string]config.NodeConfig, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		byID[n.ID] = n
	}

	outgoing := make(map[string]string)
	for _, e := range cfg.Edges {
		if _, dup := outgoing[e.From]; dup {
			return nil, &errors.ValidationError{
				Path:    "edges",
				Message: fmt.Sprintf("node %q has more than one outgoing edge", e.From),
			}
		}
		outgoing[e.From] = e.To
	}

	if _, ok := outgoing[config.StartNode]; !ok {
		return nil, &errors.ValidationError{
			Path:    "edges",
			Message: "no edge leaves START",
		}
	}

	plan := &Plan{Workflow: cfg.Flow.Name}
	visited := make(map[string]bool)

	for current := outgoing[config.StartNode]; current != config.EndNode; current = outgoing[current] {
		if visited[current] {
			return nil, &errors.ValidationError{
				Path:    "edges",
				Message: fmt.Sprintf("cycle detected at node %q", current),
			}
		}
		visited[current] = true

		node, ok := byID[current]
		if !ok {
			return nil, &errors.ValidationError{
				Path:    "edges",
				Message: fmt.Sprintf("edge references unknown node %q", current),
			}
		}
		plan.Nodes = append(plan.Nodes, node)

		if _, ok := outgoing[current]; !ok {
			return nil, &errors.ValidationError{
				Path:    "edges",
				Message: fmt.Sprintf("node %q has no outgoing edge", current),
			}
		}
	}

	return plan, nil
}
