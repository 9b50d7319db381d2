// Package errors provides structured error types for kiln.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnknownParameter ErrorCode = "UNKNOWN_USER_PARAMETER"
	ErrCodeMissingParameter ErrorCode = "USER_PARAMETER_MISSING"
	ErrCodeCircular         ErrorCode = "CIRCULAR_DEPENDENCY"
	ErrCodeInvalidAttribute ErrorCode = "INVALID_TEMPLATE_ATTRIBUTE"
	ErrCodeInvalidReference ErrorCode = "INVALID_TEMPLATE_REFERENCE"
	ErrCodeResourceFailure  ErrorCode = "RESOURCE_FAILURE"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
	ErrCodeRollbackFailure  ErrorCode = "ROLLBACK_FAILURE"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeLocked           ErrorCode = "STATE_LOCKED"
	ErrCodeBackend          ErrorCode = "BACKEND_ERROR"
	ErrCodeParse            ErrorCode = "PARSE_ERROR"
)

// Error is the base error type for kiln
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// UnknownUserParameter creates an error for supplied parameters the template
// does not declare.
func UnknownUserParameter(names []string) *Error {
	return &Error{
		Code:    ErrCodeUnknownParameter,
		Message: fmt.Sprintf("unknown parameter(s) supplied: %s", strings.Join(names, ", ")),
		Details: map[string]interface{}{
			"parameters": names,
		},
	}
}

// UserParameterMissing creates an error for a declared parameter with no
// bound value and no default.
func UserParameterMissing(name string) *Error {
	return &Error{
		Code:    ErrCodeMissingParameter,
		Message: fmt.Sprintf("parameter %q has no value and no default", name),
		Details: map[string]interface{}{
			"parameter": name,
		},
	}
}

// CircularDependency creates an error naming the resources involved in a
// dependency cycle.
func CircularDependency(members []string) *Error {
	return &Error{
		Code:    ErrCodeCircular,
		Message: fmt.Sprintf("circular dependency between resources: %s", strings.Join(members, " -> ")),
		Details: map[string]interface{}{
			"resources": members,
		},
	}
}

// InvalidTemplateAttribute creates an error for an attribute lookup against
// an unknown resource.
func InvalidTemplateAttribute(resource, attribute string) *Error {
	return &Error{
		Code:    ErrCodeInvalidAttribute,
		Message: fmt.Sprintf("unknown attribute %q of resource %q", attribute, resource),
		Details: map[string]interface{}{
			"resource":  resource,
			"attribute": attribute,
		},
	}
}

// InvalidTemplateReference creates an error for a reference to an unknown
// resource or mapping.
func InvalidTemplateReference(kind, name string) *Error {
	return &Error{
		Code:    ErrCodeInvalidReference,
		Message: fmt.Sprintf("template references unknown %s %q", kind, name),
		Details: map[string]interface{}{
			"kind": kind,
			"name": name,
		},
	}
}

// ResourceFailure creates an error for a failed resource lifecycle hook.
func ResourceFailure(resource, operation string, cause error) *Error {
	return &Error{
		Code:    ErrCodeResourceFailure,
		Message: fmt.Sprintf("resource %q failed during %s", resource, operation),
		Cause:   cause,
		Details: map[string]interface{}{
			"resource":  resource,
			"operation": operation,
		},
	}
}

// Timeout creates an error for an action that exceeded its deadline.
func Timeout(action string) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("%s timed out", action),
		Details: map[string]interface{}{
			"action": action,
		},
	}
}

// RollbackFailure creates an error for a failure while undoing a failed
// update.
func RollbackFailure(stack string, cause error) *Error {
	return &Error{
		Code:    ErrCodeRollbackFailure,
		Message: fmt.Sprintf("rollback of stack %q failed", stack),
		Cause:   cause,
		Details: map[string]interface{}{
			"stack": stack,
		},
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// LockInfo contains metadata about a lock
type LockInfo struct {
	ID        string
	Path      string
	Who       string
	Operation string
	Created   time.Time
}

// StateLocked creates a state locked error
func StateLocked(lockInfo LockInfo) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Message: "state is locked",
		Details: map[string]interface{}{
			"lock_id":   lockInfo.ID,
			"locked_by": lockInfo.Who,
			"operation": lockInfo.Operation,
			"created":   lockInfo.Created,
		},
	}
}

// ParseError creates a parse error
func ParseError(source string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", source),
		Cause:   err,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// CodeOf returns the error code carried by err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
