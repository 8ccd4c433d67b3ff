// Package shared holds helpers common to all CLI commands: exit codes,
// global flags, JSON error codes, and interactivity detection.
package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/ensemble-run/ensemble/pkg/errors"
)

// Exit codes for the ensemble CLI
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidWorkflow = 2
	ExitMissingInput    = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for workflow execution failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewInvalidWorkflowError creates an error for invalid workflow configs
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidWorkflow, Message: msg, Cause: cause}
}

// NewMissingInputError creates an error for missing required inputs
func NewMissingInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitMissingInput, Message: msg, Cause: cause}
}

// HandleExitError prints the error with any suggestion from the error
// chain and exits with the appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	// An empty message means the command already reported the failure
	// (e.g. as a JSON envelope); only the exit code matters then.
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, "Error:", msg)
		if s := suggestionFor(err); s != "" {
			fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", s)
		}
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitExecutionFailed)
}

// suggestionFor extracts a user-facing suggestion from the error chain.
func suggestionFor(err error) string {
	var verr *pkgerrors.ValidationError
	if errors.As(err, &verr) {
		return verr.Suggestion
	}
	var perr *pkgerrors.ProviderError
	if errors.As(err, &perr) {
		return perr.Suggestion
	}
	return ""
}
