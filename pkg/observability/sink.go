// Package observability provides the telemetry sink for workflow runs.
//
// Sinks receive run and node records keyed by run/node identifiers. All
// sink traffic is best-effort relative to execution correctness: a sink
// that is slow, failing, or unreachable must never block or abort a run.
// Wrap any sink in NewAsyncSink to take it off the critical path.
package observability

import (
	"context"
	"time"

	"github.com/ensemble-run/ensemble/pkg/llm"
)

// RunInfo identifies a workflow run starting.
type RunInfo struct {
	// RunID uniquely identifies this run
	RunID string

	// Workflow is the workflow name from the config
	Workflow string

	// Experiment optionally groups runs under a named experiment
	Experiment string

	// Start is the run start time
	Start time.Time
}

// NodeRecord captures the outcome of a single node execution.
type NodeRecord struct {
	// RunID is the owning run
	RunID string

	// NodeID is the executed node
	NodeID string

	// Status is the terminal node status (SUCCEEDED, FAILED_FATAL)
	Status string

	// Attempts is the number of LLM calls made, including retries
	Attempts int

	// Start and Duration bound the node execution
	Start    time.Time
	Duration time.Duration

	// Usage is the aggregate token consumption across attempts
	Usage llm.TokenUsage

	// CostUSD is the estimated cost across attempts
	CostUSD float64

	// Prompt and Response are artifact bodies, populated only when
	// artifact logging is enabled
	Prompt   string
	Response string

	// Error is the failure message for failed nodes
	Error string
}

// Sink receives telemetry for workflow runs and nodes.
type Sink interface {
	// StartRun records the beginning of a run.
	StartRun(ctx context.Context, info RunInfo)

	// EndRun records run completion. err is nil on success.
	EndRun(ctx context.Context, runID string, err error)

	// RecordNode records one node execution.
	RecordNode(ctx context.Context, rec NodeRecord)

	// Shutdown flushes buffered telemetry and releases resources.
	Shutdown(ctx context.Context) error
}

// NoopSink discards all telemetry.
type NoopSink struct{}

// NewNoopSink creates a sink that discards everything.
func NewNoopSink() *NoopSink { return &NoopSink{} }

func (*NoopSink) StartRun(context.Context, RunInfo) {}

func (*NoopSink) EndRun(context.Context, string, error) {}

func (*NoopSink) RecordNode(context.Context, NodeRecord) {}

func (*NoopSink) Shutdown(context.Context) error { return nil }
