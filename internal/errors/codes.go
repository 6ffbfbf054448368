// Package errors provides structured error handling for kbpulse.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Content store and filesystem errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration errors.
	CategoryConfig Category = "CONFIG"
	// CategoryContent indicates content store and filesystem errors.
	CategoryContent Category = "CONTENT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the process cannot continue.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Content errors (200-299)
	ErrCodeContentNotFound    = "ERR_201_CONTENT_NOT_FOUND"
	ErrCodeContentRead        = "ERR_202_CONTENT_READ"
	ErrCodeFrontMatterInvalid = "ERR_203_FRONT_MATTER_INVALID"
	ErrCodeRenderFailed       = "ERR_204_RENDER_FAILED"
	ErrCodeInstanceLocked     = "ERR_205_INSTANCE_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidSlug  = "ERR_403_INVALID_SLUG"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeRebuildFailed     = "ERR_502_REBUILD_FAILED"
	ErrCodeStreamUnsupported = "ERR_503_STREAM_UNSUPPORTED"
	ErrCodeSearchFailed      = "ERR_504_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_203_..." -> '2'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryContent
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeInstanceLocked, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeFrontMatterInvalid, ErrCodeRenderFailed:
		// One bad article fails a rebuild, the service keeps running.
		return SeverityWarning
	default:
		return SeverityError
	}
}
