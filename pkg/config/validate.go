package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ensemble-run/ensemble/pkg/errors"
)

// ToolChecker is the validator's view of an external tool registry.
// The validator only checks membership; it never loads a tool.
type ToolChecker interface {
	Has(name string) bool
}

// Result is the outcome of validating a workflow config: a full list of
// violations (all-or-nothing; a config with any violation is rejected as a
// whole) plus non-fatal feature-gate warnings.
type Result struct {
	Violations []*errors.ValidationError
	Warnings   []Warning
}

// Valid reports whether the config passed with no violations.
func (r *Result) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns a single error summarizing all violations, or nil if valid.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	if len(r.Violations) == 1 {
		return r.Violations[0]
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Errorf("config has %d validation errors:\n  %s", len(r.Violations), strings.Join(msgs, "\n  "))
}

// Validator checks a parsed WorkflowConfig for structural and referential
// integrity before any execution or external calls occur.
type Validator struct {
	tools     ToolChecker
	providers map[string]bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithTools supplies the tool registry used for membership checks.
// Without a registry, tool references are not checked.
func WithTools(t ToolChecker) ValidatorOption {
	return func(v *Validator) { v.tools = t }
}

// WithProviders overrides the set of LLM provider names accepted in
// global and node-level LLM config.
func WithProviders(names ...string) ValidatorOption {
	return func(v *Validator) {
		v.providers = make(map[string]bool, len(names))
		for _, n := range names {
			v.providers[n] = true
		}
	}
}

// defaultProviders are the provider names this runtime can execute.
var defaultProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
	"mock":      true,
}

// NewValidator creates a Validator with the given options.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{providers: defaultProviders}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs all checks against cfg and returns the complete list of
// violations and warnings. Checks run in dependency order but never stop
// early: a single pass reports everything a user must fix. Validation is
// deterministic and has no side effects.
func (v *Validator) Validate(cfg *WorkflowConfig) *Result {
	res := &Result{}

	v.checkTopLevel(cfg, res)
	v.checkState(cfg, res)
	nodeIDs := v.checkNodes(cfg, res)
	v.checkEdges(cfg, nodeIDs, res)
	v.checkGlobal(cfg, res)

	res.Warnings = append(res.Warnings, GateFeatures(cfg)...)

	return res
}

func (v *Validator) checkTopLevel(cfg *WorkflowConfig, res *Result) {
	switch {
	case cfg.SchemaVersion == "":
		res.fail("schema_version", "schema_version is required", `set schema_version: "1.0"`)
	case !SchemaVersionSupported(cfg.SchemaVersion):
		res.fail("schema_version",
			fmt.Sprintf("unrecognized schema_version %q", cfg.SchemaVersion),
			`this runtime supports schema_version "1.0"`)
	}

	if cfg.Flow.Name == "" {
		res.fail("flow.name", "workflow name is required", "add a descriptive name under flow")
	}
	if len(cfg.State.Fields) == 0 {
		res.fail("state.fields", "state must declare at least one field", "add the fields your nodes read and write")
	}
	if len(cfg.Nodes) == 0 {
		res.fail("nodes", "workflow must have at least one node", "add at least one node definition")
	}
	if len(cfg.Edges) == 0 {
		res.fail("edges", "workflow must have at least one edge", "connect START to your first node and the last node to END")
	}
}

func (v *Validator) checkState(cfg *WorkflowConfig, res *Result) {
	for _, name := range sortedKeys(cfg.State.Fields) {
		spec := cfg.State.Fields[name]
		path := "state.fields." + name

		if !ValidIdentifier(name) {
			res.fail(path, fmt.Sprintf("field name %q is not a valid identifier", name),
				"use letters, digits, and underscores, starting with a letter or underscore")
		}
		if strings.HasPrefix(name, ReservedStatePrefix) {
			res.fail(path, fmt.Sprintf("field name %q uses the reserved %s prefix", name, ReservedStatePrefix),
				"rename the field; this prefix is reserved for runtime loop counters")
		}
		if spec.Type == "" {
			res.fail(path+".type", "field type is required",
				"declare one of: str, int, float, bool, object, list[T], dict[str,V]")
		} else if !ValidFieldType(spec.Type) {
			res.fail(path+".type", fmt.Sprintf("unsupported type %q", spec.Type),
				"supported types: str, int, float, bool, object, list[T], dict[str,V]")
		}
		if spec.Required && spec.Default != nil {
			res.fail(path, "field cannot be both required and have a default value",
				"drop either required: true or the default")
		}
	}
}

// checkNodes validates node definitions and returns the set of declared
// node ids for the edge checks.
func (v *Validator) checkNodes(cfg *WorkflowConfig, res *Result) map[string]bool {
	nodeIDs := make(map[string]bool, len(cfg.Nodes))

	for i, node := range cfg.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		switch {
		case node.ID == "":
			res.fail(path+".id", "node id is required", "add an id to every node")
		case !ValidIdentifier(node.ID):
			res.fail(path+".id", fmt.Sprintf("node id %q is not a valid identifier", node.ID),
				"use letters, digits, and underscores, starting with a letter or underscore")
		case node.ID == StartNode || node.ID == EndNode:
			res.fail(path+".id", fmt.Sprintf("node id %q is reserved", node.ID),
				"START and END are graph sentinels, not node ids")
		case nodeIDs[node.ID]:
			res.fail(path+".id", fmt.Sprintf("duplicate node id %q", node.ID),
				"node ids must be unique within a workflow")
		default:
			nodeIDs[node.ID] = true
		}

		v.checkOutputs(cfg, &node, path, res)
		v.checkPrompt(cfg, &node, path, res)
		v.checkTools(&node, path, res)
		v.checkLLM(node.LLM, path+".llm", res)
	}

	return nodeIDs
}

// checkOutputs enforces the output contract: every node declares an object
// output_schema, the outputs list exactly equals the schema's field names,
// and every output maps to a state field of a compatible type.
func (v *Validator) checkOutputs(cfg *WorkflowConfig, node *NodeConfig, path string, res *Result) {
	schema := node.OutputSchema

	if schema.Type == "" && len(schema.Fields) == 0 {
		res.fail(path+".output_schema", fmt.Sprintf("node %q must declare an output_schema", node.ID),
			"declare type: object with at least one field")
		return
	}
	if schema.Type != "object" {
		res.fail(path+".output_schema.type",
			fmt.Sprintf("node %q output_schema type must be \"object\", got %q", node.ID, schema.Type),
			"only object output schemas are supported")
	}
	if len(schema.Fields) == 0 {
		res.fail(path+".output_schema.fields",
			fmt.Sprintf("node %q output_schema must declare at least one field", node.ID), "")
	}

	schemaFields := make(map[string]OutputField, len(schema.Fields))
	for j, f := range schema.Fields {
		fpath := fmt.Sprintf("%s.output_schema.fields[%d]", path, j)
		if f.Name == "" {
			res.fail(fpath+".name", "output field name is required", "")
			continue
		}
		if !ValidIdentifier(f.Name) {
			res.fail(fpath+".name", fmt.Sprintf("output field name %q is not a valid identifier", f.Name), "")
		}
		if _, dup := schemaFields[f.Name]; dup {
			res.fail(fpath+".name", fmt.Sprintf("output field %q declared more than once", f.Name),
				"each output_schema field must appear exactly once")
		}
		if f.Type == "" {
			res.fail(fpath+".type", fmt.Sprintf("output field %q must declare a type", f.Name), "")
		} else if !ValidFieldType(f.Type) {
			res.fail(fpath+".type", fmt.Sprintf("output field %q has unsupported type %q", f.Name, f.Type),
				"supported types: str, int, float, bool, object, list[T], dict[str,V]")
		}
		schemaFields[f.Name] = f
	}

	if len(node.Outputs) == 0 {
		res.fail(path+".outputs", fmt.Sprintf("node %q must declare its outputs", node.ID),
			"list the state fields this node writes")
	}

	// outputs must equal the schema field names: no extras, no omissions.
	// Comparison is set-based so field ordering never affects the result.
	outputSet := make(map[string]bool, len(node.Outputs))
	for _, name := range node.Outputs {
		if outputSet[name] {
			res.fail(path+".outputs", fmt.Sprintf("node %q lists output %q more than once", node.ID, name), "")
			continue
		}
		outputSet[name] = true

		if _, ok := schemaFields[name]; !ok {
			res.fail(path+".outputs",
				fmt.Sprintf("node %q output %q is not declared in output_schema", node.ID, name),
				"outputs must exactly match the output_schema field names")
		}
		spec, ok := cfg.State.Fields[name]
		if !ok {
			res.fail(path+".outputs",
				fmt.Sprintf("node %q output %q is not a declared state field", node.ID, name),
				"declare the field under state.fields")
			continue
		}
		if f, ok := schemaFields[name]; ok && f.Type != "" && spec.Type != "" && !TypesCompatible(spec.Type, f.Type) {
			res.fail(path+".outputs",
				fmt.Sprintf("node %q output %q has type %s in output_schema but state declares %s",
					node.ID, name, f.Type, spec.Type),
				"output_schema field types must match the state field types")
		}
	}
	for _, name := range sortedKeys(schemaFields) {
		if !outputSet[name] {
			res.fail(path+".outputs",
				fmt.Sprintf("node %q output_schema field %q is missing from outputs", node.ID, name),
				"outputs must exactly match the output_schema field names")
		}
	}
}

// checkPrompt enforces that every placeholder resolves at validation time:
// unqualified names to the node's input bindings, state references to
// declared state fields. Unresolved placeholders are a validation error,
// never a runtime error.
func (v *Validator) checkPrompt(cfg *WorkflowConfig, node *NodeConfig, path string, res *Result) {
	if node.Prompt == "" {
		res.fail(path+".prompt", fmt.Sprintf("node %q must declare a prompt", node.ID), "")
		return
	}

	for _, name := range sortedKeys(node.Inputs) {
		ref := node.Inputs[name]
		field := strings.TrimPrefix(ref, "state.")
		if _, ok := cfg.State.Fields[field]; !ok {
			res.fail(fmt.Sprintf("%s.inputs.%s", path, name),
				fmt.Sprintf("node %q input %q references undeclared state field %q", node.ID, name, field),
				"declare the field under state.fields")
		}
	}

	placeholders, err := Placeholders(node.Prompt)
	if err != nil {
		res.fail(path+".prompt", fmt.Sprintf("node %q prompt: %v", node.ID, err), "")
		return
	}
	for _, p := range placeholders {
		if p.IsStateRef() {
			if _, ok := cfg.State.Fields[p.StateField]; !ok {
				res.fail(path+".prompt",
					fmt.Sprintf("node %q prompt references undeclared state field %q", node.ID, p.StateField),
					"declare the field under state.fields or bind it via inputs")
			}
			continue
		}
		if _, ok := node.Inputs[p.Name]; !ok {
			res.fail(path+".prompt",
				fmt.Sprintf("node %q prompt placeholder {%s} has no input binding", node.ID, p.Name),
				fmt.Sprintf("add inputs.%s or use {state.%s}", p.Name, p.Name))
		}
	}
}

func (v *Validator) checkTools(node *NodeConfig, path string, res *Result) {
	if v.tools == nil {
		return
	}
	for _, tool := range node.Tools {
		if !v.tools.Has(tool) {
			res.fail(path+".tools",
				fmt.Sprintf("node %q references unknown tool %q", node.ID, tool),
				"register the tool or remove the reference")
		}
	}
}

// checkEdges validates the edge graph: endpoint integrity, exactly one
// START edge, at most one outgoing edge per node, no cycles, every node
// reachable from START, and every node with a path to END.
func (v *Validator) checkEdges(cfg *WorkflowConfig, nodeIDs map[string]bool, res *Result) {
	outgoing := make(map[string][]string)
	incoming := make(map[string][]string)
	startEdges := 0

	for i, edge := range cfg.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		endpoint := fmt.Sprintf("%s -> %s", edge.From, edge.To)

		valid := true
		if edge.From == EndNode {
			res.fail(path, fmt.Sprintf("edge %s: END cannot be an edge source", endpoint), "")
			valid = false
		} else if edge.From != StartNode && !nodeIDs[edge.From] {
			res.fail(path, fmt.Sprintf("edge %s references unknown node %q", endpoint, edge.From), "")
			valid = false
		}
		if edge.To == StartNode {
			res.fail(path, fmt.Sprintf("edge %s: START cannot be an edge target", endpoint), "")
			valid = false
		} else if edge.To != EndNode && !nodeIDs[edge.To] {
			res.fail(path, fmt.Sprintf("edge %s references unknown node %q", endpoint, edge.To), "")
			valid = false
		}

		if edge.Condition != "" {
			if _, err := expr.Compile(edge.Condition, expr.AllowUndefinedVariables(), expr.AsBool()); err != nil {
				res.fail(path+".condition",
					fmt.Sprintf("edge %s condition does not compile: %v", endpoint, err),
					"conditions must be boolean expressions over state fields")
			}
		}
		if edge.MaxIterations < 0 {
			res.fail(path+".max_iterations", fmt.Sprintf("edge %s max_iterations cannot be negative", endpoint), "")
		}

		if !valid {
			continue
		}
		if edge.From == StartNode {
			startEdges++
		}
		outgoing[edge.From] = append(outgoing[edge.From], edge.To)
		incoming[edge.To] = append(incoming[edge.To], edge.From)
	}

	if startEdges == 0 {
		res.fail("edges", "no edge originates at START", "add an edge from START to the first node")
	} else if startEdges > 1 {
		res.fail("edges", fmt.Sprintf("found %d START-originating edges, expected exactly one", startEdges),
			"the baseline flow is linear; START must have exactly one outgoing edge")
	}

	for _, id := range sortedKeys(nodeIDs) {
		if len(outgoing[id]) > 1 {
			res.fail("edges",
				fmt.Sprintf("node %q has %d outgoing edges (%s), at most one is allowed",
					id, len(outgoing[id]), strings.Join(outgoing[id], ", ")),
				"the baseline flow is linear; merge or remove the extra edges")
		}
	}

	if hasCycle(nodeIDs, outgoing) {
		res.fail("edges", "edge graph contains a cycle", "the baseline flow must be acyclic")
	}

	reachable := walk(StartNode, outgoing)
	terminating := walk(EndNode, incoming)
	for _, id := range sortedKeys(nodeIDs) {
		if !reachable[id] {
			res.fail("edges", fmt.Sprintf("node %q is not reachable from START", id),
				"connect the node into the flow or remove it")
		}
		if !terminating[id] {
			res.fail("edges", fmt.Sprintf("node %q has no path to END", id),
				"every node must eventually reach END")
		}
	}
}

func (v *Validator) checkGlobal(cfg *WorkflowConfig, res *Result) {
	if cfg.Global == nil {
		return
	}

	v.checkLLM(cfg.Global.LLM, "global.llm", res)

	if exec := cfg.Global.Execution; exec != nil {
		if exec.NodeTimeout < 0 {
			res.fail("global.execution.node_timeout", "node_timeout cannot be negative", "")
		}
		if exec.RunTimeout < 0 {
			res.fail("global.execution.run_timeout", "run_timeout cannot be negative", "")
		}
		if exec.MaxRetries < 0 {
			res.fail("global.execution.max_retries", "max_retries cannot be negative", "")
		}
	}

	if obs := cfg.Global.Observability; obs != nil {
		switch obs.Exporter {
		case "", "otlp", "stdout", "none":
		default:
			res.fail("global.observability.exporter",
				fmt.Sprintf("unsupported exporter %q", obs.Exporter),
				"supported exporters: otlp, stdout, none")
		}
		if obs.Exporter == "otlp" && obs.TrackingURI == "" {
			res.fail("global.observability.tracking_uri",
				"tracking_uri is required for the otlp exporter",
				"set the collector endpoint, e.g. http://localhost:4318")
		}
	}
}

func (v *Validator) checkLLM(llm *LLMConfig, path string, res *Result) {
	if llm == nil {
		return
	}
	if llm.Provider != "" && !v.providers[llm.Provider] {
		res.fail(path+".provider",
			fmt.Sprintf("unsupported provider %q", llm.Provider),
			"supported providers: "+strings.Join(sortedKeys(v.providers), ", "))
	}
	if llm.Temperature != nil && (*llm.Temperature < 0 || *llm.Temperature > 1) {
		res.fail(path+".temperature", "temperature must be between 0.0 and 1.0", "")
	}
	if llm.MaxTokens != nil && *llm.MaxTokens <= 0 {
		res.fail(path+".max_tokens", "max_tokens must be positive", "")
	}
}

func (r *Result) fail(path, message, suggestion string) {
	r.Violations = append(r.Violations, &errors.ValidationError{
		Path:       path,
		Message:    message,
		Suggestion: suggestion,
	})
}

// walk returns the set of graph vertices reachable from start following
// the given adjacency map.
func walk(start string, adjacent map[string][]string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// hasCycle reports whether the node-to-node edges contain a cycle.
// START/END sentinels cannot participate in cycles and are skipped.
func hasCycle(nodeIDs map[string]bool, outgoing map[string][]string) bool {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(nodeIDs))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		for _, next := range outgoing[id] {
			if !nodeIDs[next] {
				continue
			}
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for id := range nodeIDs {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
