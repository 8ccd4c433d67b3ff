// Package output provides the machine-readable JSON envelope shared by
// CLI commands running with --json.
package output

import (
	"encoding/json"
	"io"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// EnvelopeVersion is the current JSON envelope version.
const EnvelopeVersion = "1.0"

// JSONError represents a structured error with code, message, path, and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
}

// JSONWarning reports a gated or advisory condition that did not fail
// the command.
type JSONWarning struct {
	Path    string `json:"path,omitempty"`
	Feature string `json:"feature,omitempty"`
	Message string `json:"message"`
}

// EmitJSON marshals a response to indented JSON on w.
func EmitJSON(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSONError emits a failure envelope carrying structured errors.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return EmitJSON(w, errorResponse{
		JSONResponse: JSONResponse{
			Version: EnvelopeVersion,
			Command: command,
			Success: false,
		},
		Errors: errs,
	})
}
