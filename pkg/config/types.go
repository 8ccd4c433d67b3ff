// Package config defines the workflow configuration model.
//
// Workflow configs are YAML or JSON documents (1:1 convertible) describing a
// state schema, a set of LLM-invoking nodes, and the edges connecting them.
// The schema_version field is required; unknown versions are rejected. Fields
// belonging to gated features (optimization, conditional edges) are parsed
// into the model regardless, and a separate feature-gate pass reports them as
// warnings so configs stay forward-compatible across runtime upgrades.
package config

import (
	"regexp"
	"strings"
)

// Reserved node identifiers marking the entry and exit of the edge graph.
const (
	StartNode = "START"
	EndNode   = "END"
)

// ReservedStatePrefix marks state field names maintained by the runtime.
// Loop iteration counters live under this prefix; configs may not declare
// fields that use it.
const ReservedStatePrefix = "_loop_iteration_"

// WorkflowConfig is the top-level workflow definition.
type WorkflowConfig struct {
	// SchemaVersion is the config schema version (required, e.g. "1.0")
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// Flow holds workflow metadata
	Flow FlowMeta `yaml:"flow" json:"flow"`

	// State declares the typed fields of the run state
	State StateSchema `yaml:"state" json:"state"`

	// Nodes are the executable units of the workflow
	Nodes []NodeConfig `yaml:"nodes" json:"nodes"`

	// Edges connect nodes and the START/END sentinels
	Edges []EdgeConfig `yaml:"edges" json:"edges"`

	// Optimization is accepted as opaque config for forward compatibility.
	// It is never executed by this runtime; its presence produces a warning.
	Optimization map[string]interface{} `yaml:"optimization,omitempty" json:"optimization,omitempty"`

	// Global holds infrastructure defaults (LLM, execution limits, observability)
	Global *GlobalConfig `yaml:"global,omitempty" json:"global,omitempty"`
}

// FlowMeta holds human-readable workflow metadata.
type FlowMeta struct {
	// Name is the workflow identifier
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context about the workflow
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version is the user-assigned version of this workflow (not the schema version)
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// StateSchema declares the typed fields of the run state.
type StateSchema struct {
	// Fields maps field name to its specification
	Fields map[string]FieldSpec `yaml:"fields" json:"fields"`
}

// FieldSpec describes a single state field.
// A field cannot declare both required:true and a default value.
type FieldSpec struct {
	// Type is the field's declared type (str, int, float, bool, list[T], dict[str,V], object)
	Type string `yaml:"type" json:"type"`

	// Required marks the field as a mandatory run input
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default provides a fallback value seeded into state at run start
	Default interface{} `yaml:"default,omitempty" json:"default,omitempty"`

	// Description explains what this field holds
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// NodeConfig represents one execution unit: a single LLM call with declared
// inputs, a prompt template, and a typed output contract.
type NodeConfig struct {
	// ID is the unique node identifier within this workflow
	ID string `yaml:"id" json:"id"`

	// Description provides human-readable context about the node
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Inputs maps local placeholder names to state field references.
	// Optional; prompts may also reference state directly via {state.field}.
	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Prompt is the template rendered for the LLM call.
	// Placeholders use {identifier} or {state.field} syntax; {{ escapes a literal brace.
	Prompt string `yaml:"prompt" json:"prompt"`

	// OutputSchema declares the shape the LLM response must satisfy
	OutputSchema OutputSchema `yaml:"output_schema" json:"output_schema"`

	// Outputs lists the state fields written on success.
	// Must exactly equal the output_schema field names.
	Outputs []string `yaml:"outputs" json:"outputs"`

	// Tools lists tool registry entries this node may use
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`

	// LLM overrides the global LLM settings for this node
	LLM *LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Optimization is accepted as opaque per-node config and never executed
	Optimization map[string]interface{} `yaml:"optimization,omitempty" json:"optimization,omitempty"`
}

// OutputSchema declares the typed shape of an LLM response.
type OutputSchema struct {
	// Type is the top-level shape; only "object" is supported
	Type string `yaml:"type" json:"type"`

	// Fields are the declared response fields
	Fields []OutputField `yaml:"fields" json:"fields"`
}

// FieldNames returns the declared field names in declaration order.
func (s OutputSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field returns the declared field with the given name, if present.
func (s OutputSchema) Field(name string) (OutputField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return OutputField{}, false
}

// OutputField describes one field of an output schema.
type OutputField struct {
	// Name is the field identifier
	Name string `yaml:"name" json:"name"`

	// Type is the field's declared type (same vocabulary as state fields)
	Type string `yaml:"type" json:"type"`

	// Description guides the LLM on what to produce
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Required is accepted for schema compatibility. Every declared field
	// must be present in the response, since each one is written to state.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
}

// EdgeConfig is a directed control-flow link between two node identifiers
// or the START/END sentinels.
type EdgeConfig struct {
	// From is the source node id, or START
	From string `yaml:"from" json:"from"`

	// To is the target node id, or END
	To string `yaml:"to" json:"to"`

	// Condition is a boolean guard expression over state (schema-only;
	// compile-checked at validation time, not executed in this version)
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// MaxIterations bounds loop re-entry for cyclic routes (schema-only in this version)
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// GlobalConfig holds optional infrastructure defaults passed through to
// external collaborators.
type GlobalConfig struct {
	// LLM sets provider defaults for all nodes
	LLM *LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Execution sets timeout and retry limits
	Execution *ExecutionConfig `yaml:"execution,omitempty" json:"execution,omitempty"`

	// Observability configures the telemetry sink
	Observability *ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// LLMConfig selects and tunes an LLM provider.
type LLMConfig struct {
	// Provider is the LLM provider name (e.g. "anthropic", "openai", "mock")
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model is the provider-specific model identifier
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Temperature controls randomness (0.0-1.0)
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits response length
	MaxTokens *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// APIKeyEnv names the environment variable holding the provider API key
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
}

// Merge returns a copy of the receiver with unset fields filled from other.
// Used to layer a node-level override on top of the global defaults.
func (c *LLMConfig) Merge(other *LLMConfig) *LLMConfig {
	if c == nil && other == nil {
		return nil
	}
	merged := LLMConfig{}
	if c != nil {
		merged = *c
	}
	if other == nil {
		return &merged
	}
	if merged.Provider == "" {
		merged.Provider = other.Provider
	}
	if merged.Model == "" {
		merged.Model = other.Model
	}
	if merged.Temperature == nil {
		merged.Temperature = other.Temperature
	}
	if merged.MaxTokens == nil {
		merged.MaxTokens = other.MaxTokens
	}
	if merged.APIKeyEnv == "" {
		merged.APIKeyEnv = other.APIKeyEnv
	}
	return &merged
}

// ExecutionConfig sets run-level execution limits.
type ExecutionConfig struct {
	// NodeTimeout is the per-node timeout in seconds (0 = default)
	NodeTimeout int `yaml:"node_timeout,omitempty" json:"node_timeout,omitempty"`

	// RunTimeout is the aggregate run timeout in seconds (0 = default)
	RunTimeout int `yaml:"run_timeout,omitempty" json:"run_timeout,omitempty"`

	// MaxRetries bounds schema-mismatch and transient-error retries per node
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// ObservabilityConfig configures the telemetry sink.
type ObservabilityConfig struct {
	// Exporter selects the trace exporter: "otlp", "stdout", or "none"
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`

	// TrackingURI is the collector endpoint for the otlp exporter
	TrackingURI string `yaml:"tracking_uri,omitempty" json:"tracking_uri,omitempty"`

	// Experiment groups runs under a named experiment
	Experiment string `yaml:"experiment,omitempty" json:"experiment,omitempty"`

	// LogArtifacts enables persisting prompt/response bodies to the sink
	LogArtifacts bool `yaml:"log_artifacts,omitempty" json:"log_artifacts,omitempty"`
}

// identifierPattern matches identifier-safe names for state fields and node ids.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is an identifier-safe name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Scalar type names in the supported vocabulary.
var scalarTypes = map[string]bool{
	"str":    true,
	"int":    true,
	"float":  true,
	"bool":   true,
	"object": true,
}

// ValidFieldType reports whether t belongs to the supported type vocabulary:
// str, int, float, bool, object, list[T], dict[str,V] with T and V drawn
// recursively from the same vocabulary.
func ValidFieldType(t string) bool {
	t = strings.TrimSpace(t)
	if scalarTypes[t] {
		return true
	}
	if inner, ok := listElem(t); ok {
		return ValidFieldType(inner)
	}
	if val, ok := dictValue(t); ok {
		return ValidFieldType(val)
	}
	return false
}

// TypesCompatible reports whether an output-schema field type may be written
// into a state field of the declared type. The check is exact equality after
// whitespace normalization; no implicit widening is performed.
func TypesCompatible(stateType, outputType string) bool {
	return normalizeType(stateType) == normalizeType(outputType)
}

func normalizeType(t string) string {
	return strings.ReplaceAll(strings.TrimSpace(t), " ", "")
}

// listElem extracts T from "list[T]".
func listElem(t string) (string, bool) {
	if strings.HasPrefix(t, "list[") && strings.HasSuffix(t, "]") {
		return t[len("list[") : len(t)-1], true
	}
	return "", false
}

// dictValue extracts V from "dict[str,V]". Keys must be str.
func dictValue(t string) (string, bool) {
	if !strings.HasPrefix(t, "dict[") || !strings.HasSuffix(t, "]") {
		return "", false
	}
	inner := t[len("dict[") : len(t)-1]
	key, val, found := strings.Cut(inner, ",")
	if !found || strings.TrimSpace(key) != "str" {
		return "", false
	}
	return strings.TrimSpace(val), true
}
