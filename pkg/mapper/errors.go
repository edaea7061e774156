package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ValidationError indicates that a raw JSON document did not conform to a
// mapper's declared input schema, or that the typed input failed its
// struct-level validation rules.
type ValidationError struct {
	// Path is the JSON pointer to the offending value ("/" for the root).
	Path string

	// Message describes the violation.
	Message string

	// Cause is the underlying validator error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// TransformError indicates that a schema-conformant input violated a
// business rule inside a mapper's transform function.
type TransformError struct {
	// Message describes the violated rule.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *TransformError) Unwrap() error {
	return e.Cause
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsTransformError reports whether err is or wraps a *TransformError.
func IsTransformError(err error) bool {
	var terr *TransformError
	return errors.As(err, &terr)
}

var violationPrinter = message.NewPrinter(language.English)

// schemaViolation converts a jsonschema validation failure into a
// *ValidationError pointing at the deepest failing instance location.
func schemaViolation(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Path: "/", Message: err.Error(), Cause: err}
	}

	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	return &ValidationError{
		Path:    "/" + strings.Join(leaf.InstanceLocation, "/"),
		Message: leaf.ErrorKind.LocalizedString(violationPrinter),
		Cause:   err,
	}
}
