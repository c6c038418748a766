package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryContext       ErrorCategory = "context"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeEmptyInput       ErrorCode = "empty_input"
	CodeMissingColumn    ErrorCode = "missing_column"
	CodeInvalidAmount    ErrorCode = "invalid_amount"
	CodeInvalidDate      ErrorCode = "invalid_date"
	CodeInvalidRange     ErrorCode = "invalid_range"
	CodeSessionCompleted ErrorCode = "session_completed"
	CodeInvalidValue     ErrorCode = "invalid_value"

	// Context errors
	CodeMissingTenant   ErrorCode = "missing_tenant"
	CodeMissingIdentity ErrorCode = "missing_identity"

	// Persistence errors
	CodeWriteFailed  ErrorCode = "write_failed"
	CodeReadFailed   ErrorCode = "read_failed"
	CodeStoreOffline ErrorCode = "store_offline"

	// Not found errors
	CodeMissingEntity ErrorCode = "missing_entity"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 3
	case CategoryContext, CategoryConfiguration:
		return 4
	case CategoryNotFound:
		return 5
	case CategoryPersistence:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, cause error) *ReconcilerError {
	if cause != nil {
		return Wrap(cause, category, code, message)
	}
	return New(category, code, message)
}

// ValidationError reports malformed input: empty or unreadable CSV, bad
// tolerances, a date range that ends before it starts.
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeEmptyInput:
		message = fmt.Sprintf("%s must contain a header row and at least one data row", field)
		suggestion = "export the statement again including the column headers"
	case CodeMissingColumn:
		message = fmt.Sprintf("no column could be resolved for '%s'", field)
		suggestion = "make sure the header row names the column (e.g. 'monto', 'importe', 'amount')"
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in '%s': %v", field, value)
		suggestion = "amounts must be decimal numbers such as '1500.00' or '1.500,00'"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in '%s': %v", field, value)
		suggestion = "use YYYY-MM-DD or DD/MM/YYYY"
	case CodeInvalidRange:
		message = fmt.Sprintf("invalid range for '%s': %v", field, value)
		suggestion = "the start of a range must not be after its end"
	case CodeSessionCompleted:
		message = fmt.Sprintf("session %v is completed and cannot be modified", value)
		suggestion = "start a new reconciliation session"
	default:
		message = fmt.Sprintf("invalid value for '%s': %v", field, value)
		suggestion = "check the value and try again"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ContextError reports a missing tenant or user identity. It is always fatal
// for the call that raised it and is raised before any write.
func ContextError(field string) *ReconcilerError {
	code := CodeMissingIdentity
	if field == "tenant" {
		code = CodeMissingTenant
	}
	return New(CategoryContext, code, fmt.Sprintf("missing %s context", field)).
		WithSuggestion("configure tenant.id and user.id (or RECONCILER_TENANT_ID / RECONCILER_USER_ID)").
		WithContext("field", field)
}

// PersistenceError reports a store read or write failure. Draft saves are
// idempotent by session id, so these are safe to retry.
func PersistenceError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	switch code {
	case CodeReadFailed:
		message = fmt.Sprintf("failed to read during %s", operation)
	case CodeStoreOffline:
		message = fmt.Sprintf("store unavailable during %s", operation)
	default:
		message = fmt.Sprintf("failed to write during %s", operation)
	}

	result := build(CategoryPersistence, code, message, err).
		WithSuggestion("retry the operation; saving progress again will not create a duplicate session").
		WithContext("operation", operation)
	result.Retryable = true
	return result
}

// NotFoundError reports a reference to an entity that does not exist or is
// not in the state the caller expected.
func NotFoundError(resource, id string) *ReconcilerError {
	return New(CategoryNotFound, CodeMissingEntity, fmt.Sprintf("%s not found: %s", resource, id)).
		WithContext("resource", resource).
		WithContext("id", id)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting with a flag, a config file or an environment variable"
	default:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *ReconcilerError {
	return build(CategoryInternal, CodeUnexpectedError, fmt.Sprintf("unexpected error during %s", operation), err).
		WithSuggestion("this is likely a bug, please report it with the error details").
		WithContext("operation", operation)
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCategory reports whether any ReconcilerError in the chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	for err != nil {
		if re, ok := err.(*ReconcilerError); ok && re.Category == category {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func IsValidation(err error) bool  { return IsCategory(err, CategoryValidation) }
func IsContext(err error) bool     { return IsCategory(err, CategoryContext) }
func IsPersistence(err error) bool { return IsCategory(err, CategoryPersistence) }
func IsNotFound(err error) bool    { return IsCategory(err, CategoryNotFound) }

// IsRetryable reports whether the error chain carries a retryable failure.
func IsRetryable(err error) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Retryable
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}

// Describe renders the error with its context for CLI output.
func Describe(err *ReconcilerError) string {
	var b strings.Builder
	b.WriteString(err.Error())
	for key, value := range err.Context {
		fmt.Fprintf(&b, "\n  %s: %v", key, value)
	}
	if err.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s", err.Suggestion)
	}
	return b.String()
}
