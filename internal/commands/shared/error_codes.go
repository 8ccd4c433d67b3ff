package shared

import (
	"errors"

	pkgerrors "github.com/ensemble-run/ensemble/pkg/errors"
)

// Error codes for structured JSON output
const (
	// Validation errors (E001-E099)
	ErrorCodeInvalidYAML     = "E002" // Config syntax error
	ErrorCodeSchemaViolation = "E003" // Schema constraint violation

	// Execution errors (E100-E199)
	ErrorCodeProviderNotFound = "E101" // Provider not found
	ErrorCodeProviderTimeout  = "E102" // Provider or node timeout
	ErrorCodeNodeFailed       = "E103" // Node execution failed

	// Configuration errors (E200-E299)
	ErrorCodeConfigNotFound = "E201" // Config file not found
	ErrorCodeInvalidConfig  = "E202" // Invalid infrastructure configuration

	// Input errors (E300-E399)
	ErrorCodeMissingInput = "E301" // Required input missing
	ErrorCodeInvalidInput = "E302" // Invalid input format

	// Resource errors (E400-E499)
	ErrorCodeNotFound = "E401" // Resource not found
	ErrorCodeInternal = "E402" // Internal error
)

// ErrorCode maps an error to its JSON output code.
func ErrorCode(err error) string {
	switch {
	case errors.As(err, new(*pkgerrors.ValidationError)):
		return ErrorCodeSchemaViolation
	case errors.As(err, new(*pkgerrors.TimeoutError)):
		return ErrorCodeProviderTimeout
	case errors.As(err, new(*pkgerrors.ProviderError)):
		return ErrorCodeProviderNotFound
	case errors.As(err, new(*pkgerrors.NotFoundError)):
		return ErrorCodeNotFound
	case errors.As(err, new(*pkgerrors.ConfigError)):
		return ErrorCodeInvalidConfig
	default:
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.Code {
		case ExitInvalidWorkflow:
			return ErrorCodeSchemaViolation
		case ExitMissingInput:
			return ErrorCodeMissingInput
		}
	}
	return ErrorCodeNodeFailed
}
