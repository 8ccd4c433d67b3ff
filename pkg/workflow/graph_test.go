package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
)

func linearConfig(nodeIDs ...string) *config.WorkflowConfig {
	cfg := &config.WorkflowConfig{
		SchemaVersion: "1.0",
		Flow:          config.FlowMeta{Name: "linear"},
	}
	prev := config.StartNode
	for _, id := range nodeIDs {
		cfg.Nodes = append(cfg.Nodes, config.NodeConfig{ID: id})
		cfg.Edges = append(cfg.Edges, config.EdgeConfig{From: prev, To: id})
		prev = id
	}
	cfg.Edges = append(cfg.Edges, config.EdgeConfig{From: prev, To: config.EndNode})
	return cfg
}

func TestBuildPlanLinearOrder(t *testing.T) {
	plan, err := BuildPlan(linearConfig("draft", "review", "publish"))
	require.NoError(t, err)

	require.Len(t, plan.Nodes, 3)
	assert.Equal(t, "draft", plan.Nodes[0].ID)
	assert.Equal(t, "review", plan.Nodes[1].ID)
	assert.Equal(t, "publish", plan.Nodes[2].ID)
	assert.Equal(t, "linear", plan.Workflow)
}

func TestBuildPlanNoStartEdge(t *testing.T) {
	cfg := linearConfig("draft")
	cfg.Edges = cfg.Edges[1:]

	_, err := BuildPlan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START")
}

func TestBuildPlanBranchingRejected(t *testing.T) {
	cfg := linearConfig("draft")
	cfg.Edges = append(cfg.Edges, config.EdgeConfig{From: "draft", To: config.EndNode})

	_, err := BuildPlan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one outgoing edge")
}

func TestBuildPlanUnknownNode(t *testing.T) {
	cfg := linearConfig("draft")
	cfg.Nodes = nil

	_, err := BuildPlan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestBuildPlanCycle(t *testing.T) {
	cfg := &config.WorkflowConfig{
		Flow:  config.FlowMeta{Name: "loop"},
		Nodes: []config.NodeConfig{{ID: "a"}, {ID: "b"}},
		Edges: []config.EdgeConfig{
			{From: config.StartNode, To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	_, err := BuildPlan(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildPlanDanglingNode(t *testing.T) {
	cfg := &config.WorkflowConfig{
		Flow:  config.FlowMeta{Name: "dangling"},
		Nodes: []config.NodeConfig{{ID: "a"}, {ID: "b"}},
		Edges: []config.EdgeConfig{
			{From: config.StartNode, To: "a"},
			{From: "a", To: config.EndNode},
			{From: "b", To: config.EndNode},
		},
	}

	// b never runs; the planner only follows the START path.
	plan, err := BuildPlan(cfg)
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, "a", plan.Nodes[0].ID)
}
