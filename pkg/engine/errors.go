// Package engine provides the core types for the OpenBerth application
// lifecycle engine: the data model, the provider adapter and registries,
// and the lifecycle controller.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// recovery logic. The controller never retries; classification exists for
// provider plug-ins and callers.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary backend unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict.
	// Examples: an application already running, concurrent instance attachment.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: unknown provider id, invalid configuration, record not found.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with lifecycle context.
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code identifies the failure for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// App is the application id involved, if applicable.
	App string `json:"app,omitempty"`

	// Provider is the provider id involved, if applicable.
	Provider string `json:"provider,omitempty"`

	// Operation is the lifecycle operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.App != "" {
		msg += fmt.Sprintf(" (app=%s)", e.App)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithApp adds application context to an error.
func (e *EngineError) WithApp(appID string) *EngineError {
	e.App = appID
	return e
}

// WithProvider adds provider context to an error.
func (e *EngineError) WithProvider(providerID string) *EngineError {
	e.Provider = providerID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// Error codes of the lifecycle taxonomy.
const (
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeAlreadyExists         = "ALREADY_EXISTS"
	ErrCodeAppRunning            = "APP_RUNNING"
	ErrCodeAppNotRunning         = "APP_NOT_RUNNING"
	ErrCodeInvalidProvider       = "INVALID_PROVIDER_ID"
	ErrCodeInvalidInstanceConfig = "INVALID_INSTANCE_CONFIG_TYPE"
	ErrCodeProviderFailed        = "PROVIDER_FAILED"
	ErrCodeStoreFailed           = "STORE_FAILED"
	ErrCodeValidation            = "VALIDATION_FAILED"
)

// NewValidationError reports a malformed argument to a lifecycle
// operation, such as a missing application id.
func NewValidationError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewNotFoundError reports that no application record exists for the id.
func NewNotFoundError(appID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeNotFound,
		Message: "application not found",
		App:     appID,
	}
}

// NewAlreadyExistsError reports that an application record with the id is
// already stored.
func NewAlreadyExistsError(appID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Code:    ErrCodeAlreadyExists,
		Message: "application already exists",
		App:     appID,
	}
}

// NewAppRunningError reports that an operation requiring a stopped
// application found a deployed instance attached.
func NewAppRunningError(appID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Code:    ErrCodeAppRunning,
		Message: "application is running",
		App:     appID,
	}
}

// NewAppNotRunningError reports that an operation requiring a running
// application found no deployed instance.
func NewAppNotRunningError(appID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Code:    ErrCodeAppNotRunning,
		Message: "application is not running",
		App:     appID,
	}
}

// NewInvalidProviderError reports that no provider adapter is registered
// under the id.
func NewInvalidProviderError(providerID string) *EngineError {
	return &EngineError{
		Class:    ErrorClassPermanent,
		Code:     ErrCodeInvalidProvider,
		Message:  fmt.Sprintf("no provider registered for id %q", providerID),
		Provider: providerID,
	}
}

// NewInvalidInstanceConfigError reports that no instance-config mapper is
// registered under the id.
func NewInvalidInstanceConfigError(configID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeInvalidInstanceConfig,
		Message: fmt.Sprintf("no instance-config mapper registered for id %q", configID),
	}
}

// NewProviderCallError wraps a backend failure of a deploy, getInfo, or
// destroy call. The underlying payload stays opaque.
func NewProviderCallError(operation, providerID string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassTransient,
		Code:      ErrCodeProviderFailed,
		Message:   fmt.Sprintf("provider %s failed", operation),
		Provider:  providerID,
		Operation: operation,
		Err:       err,
	}
}

// NewStoreError wraps a store failure.
func NewStoreError(operation string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassTransient,
		Code:      ErrCodeStoreFailed,
		Message:   fmt.Sprintf("store %s failed", operation),
		Operation: operation,
		Err:       err,
	}
}

// hasCode reports whether err carries the given engine error code.
func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if the error reports a missing application.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsAlreadyExists returns true if the error reports a duplicate
// application id.
func IsAlreadyExists(err error) bool {
	return hasCode(err, ErrCodeAlreadyExists)
}

// IsAppRunning returns true if the error reports an application with an
// instance already attached.
func IsAppRunning(err error) bool {
	return hasCode(err, ErrCodeAppRunning)
}

// IsAppNotRunning returns true if the error reports an application with no
// instance attached.
func IsAppNotRunning(err error) bool {
	return hasCode(err, ErrCodeAppNotRunning)
}

// IsInvalidProvider returns true if the error reports an unregistered
// provider id.
func IsInvalidProvider(err error) bool {
	return hasCode(err, ErrCodeInvalidProvider)
}

// IsInvalidInstanceConfig returns true if the error reports an
// unregistered instance-config id.
func IsInvalidInstanceConfig(err error) bool {
	return hasCode(err, ErrCodeInvalidInstanceConfig)
}

// IsProviderCall returns true if the error wraps a backend call failure.
func IsProviderCall(err error) bool {
	return hasCode(err, ErrCodeProviderFailed)
}

// IsValidation returns true if the error reports a malformed argument.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}
