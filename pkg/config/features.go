package config

import "fmt"

// Supported schema versions. Bare "1" is accepted as shorthand for "1.0".
var supportedSchemaVersions = map[string]bool{
	"1":   true,
	"1.0": true,
}

// SchemaVersionSupported reports whether this runtime recognizes the given
// config schema version.
func SchemaVersionSupported(v string) bool {
	return supportedSchemaVersions[v]
}

// Feature identifies a schema-valid capability that this runtime version
// does not execute.
type Feature string

const (
	// FeatureOptimization is the optimization/A-B testing subsystem.
	// Its config is parsed and carried but never executed.
	FeatureOptimization Feature = "optimization"

	// FeatureConditionalEdges is guard expressions on edges.
	// Conditions are compile-checked at validation time but not evaluated.
	FeatureConditionalEdges Feature = "conditional_edges"

	// FeatureBoundedLoops is cyclic routes with max_iterations bounds.
	FeatureBoundedLoops Feature = "bounded_loops"
)

// Warning is a non-fatal validation finding: the config is schema-valid but
// uses a feature this runtime version will not execute. Warnings are never
// silently dropped; they are surfaced by validate and at run start.
type Warning struct {
	// Path identifies the config location the warning applies to
	Path string

	// Feature is the gated capability, when the warning is a feature gate
	Feature Feature

	// Message is the human-readable warning text
	Message string
}

func (w Warning) String() string {
	if w.Path != "" {
		return fmt.Sprintf("%s: %s", w.Path, w.Message)
	}
	return w.Message
}

// GateFeatures inspects a parsed config for schema-valid features that this
// runtime version does not execute, and returns one warning per finding.
// This implements the "accept the full schema, gate execution by version"
// policy: nothing here is a hard failure, and nothing is silently ignored.
func GateFeatures(cfg *WorkflowConfig) []Warning {
	var warnings []Warning

	if len(cfg.Optimization) > 0 {
		warnings = append(warnings, Warning{
			Path:    "optimization",
			Feature: FeatureOptimization,
			Message: "optimization config is accepted but not executed in this version",
		})
	}

	for i, node := range cfg.Nodes {
		if len(node.Optimization) > 0 {
			warnings = append(warnings, Warning{
				Path:    fmt.Sprintf("nodes[%d].optimization", i),
				Feature: FeatureOptimization,
				Message: fmt.Sprintf("node %q optimization config is accepted but not executed in this version", node.ID),
			})
		}
	}

	for i, edge := range cfg.Edges {
		if edge.Condition != "" {
			warnings = append(warnings, Warning{
				Path:    fmt.Sprintf("edges[%d].condition", i),
				Feature: FeatureConditionalEdges,
				Message: fmt.Sprintf("edge %s -> %s condition is compile-checked but not evaluated in this version", edge.From, edge.To),
			})
		}
		if edge.MaxIterations > 0 {
			warnings = append(warnings, Warning{
				Path:    fmt.Sprintf("edges[%d].max_iterations", i),
				Feature: FeatureBoundedLoops,
				Message: fmt.Sprintf("edge %s -> %s max_iterations is accepted but loops are not executed in this version", edge.From, edge.To),
			})
		}
	}

	return warnings
}
