package annex

import (
	"errors"
	"fmt"
)

// Category classifies errors by failure site for handling and exit
// code selection.
type Category string

const (
	// CategoryArgument indicates invalid input caught before any side
	// effect.
	CategoryArgument Category = "argument"
	// CategoryInventory indicates a failed default-inventory lookup.
	CategoryInventory Category = "inventory"
	// CategoryStaging indicates a failure while staging secrets.
	CategoryStaging Category = "staging"
	// CategoryProvisioning indicates a stack create, update or resize
	// failure.
	CategoryProvisioning Category = "provisioning"
	// CategoryCleanup indicates a failed compensating delete; the
	// operator must clean up manually.
	CategoryCleanup Category = "cleanup"
	// CategoryNotFound indicates a remote resource was not found.
	CategoryNotFound Category = "not_found"
	// CategoryConflict indicates a remote resource already exists.
	CategoryConflict Category = "conflict"
	// CategoryRemote indicates any other remote service failure.
	CategoryRemote Category = "remote"
)

// Error is a structured error with category and context.
type Error struct {
	// Category classifies the failure site.
	Category Category

	// Message is a human-readable error message.
	Message string

	// Operation is the operation that failed.
	Operation string

	// ResourceType is the type of resource involved.
	ResourceType string

	// ResourceID is the ID of the resource involved.
	ResourceID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Message)
	if e.ResourceID != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.ResourceType, e.ResourceID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on category so callers can compare against sentinel
// categories with errors.Is.
func (e *Error) Is(target error) bool {
	var ae *Error
	if errors.As(target, &ae) {
		return e.Category == ae.Category
	}
	return false
}

// NewError creates a new Error.
func NewError(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

// WithOperation sets the operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithResource sets the resource type and ID.
func (e *Error) WithResource(resourceType, resourceID string) *Error {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// Convenience constructors for each failure site.

// ErrArgument creates an argument validation error.
func ErrArgument(message string) *Error {
	return NewError(CategoryArgument, message)
}

// ErrInventory creates an inventory lookup error.
func ErrInventory(message string) *Error {
	return NewError(CategoryInventory, message)
}

// ErrStaging creates a staging error.
func ErrStaging(message string) *Error {
	return NewError(CategoryStaging, message)
}

// ErrProvisioning creates a provisioning error.
func ErrProvisioning(message string) *Error {
	return NewError(CategoryProvisioning, message)
}

// ErrCleanup creates a cleanup error.
func ErrCleanup(message string) *Error {
	return NewError(CategoryCleanup, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, resourceID string) *Error {
	return NewError(CategoryNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceID)).
		WithResource(resourceType, resourceID)
}

// ErrConflict creates a conflict error.
func ErrConflict(resourceType, resourceID string) *Error {
	return NewError(CategoryConflict, fmt.Sprintf("%s already exists: %s", resourceType, resourceID)).
		WithResource(resourceType, resourceID)
}

// ErrRemote creates a generic remote service error.
func ErrRemote(message string) *Error {
	return NewError(CategoryRemote, message)
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category Category) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category == category
	}
	return false
}

// ErrorCategory extracts the category from an error, or empty.
func ErrorCategory(err error) Category {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// CleanupError reports a failed compensating cleanup. It is never
// retried: a persistent remote failure must surface to the operator
// rather than hide behind a retry loop.
type CleanupError struct {
	// OriginalError is the error that triggered the cleanup, if any.
	OriginalError error

	// StepErrors are the errors encountered by individual compensating
	// deletes.
	StepErrors []error

	// Orphaned lists resources the operator must now delete manually,
	// most-recently-staged first.
	Orphaned []string
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	msg := "cleanup failed"
	if e.OriginalError != nil {
		msg = fmt.Sprintf("cleanup failed after: %v", e.OriginalError)
	}
	if len(e.Orphaned) > 0 {
		msg = fmt.Sprintf("%s; manual cleanup required for: %v", msg, e.Orphaned)
	}
	return msg
}

// Unwrap returns the original error.
func (e *CleanupError) Unwrap() error {
	return e.OriginalError
}
