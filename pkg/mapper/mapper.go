package mapper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Mapper validates an untyped JSON document and maps it to a typed output
// value. Implementations must be safe for concurrent use.
type Mapper[Out any] interface {
	// ValidateAndMap validates raw against the mapper's input schema,
	// parses it into the typed input, and applies the transform.
	ValidateAndMap(ctx context.Context, raw json.RawMessage) (Out, error)

	// MapFrom serializes an already-typed value to JSON and re-enters
	// the same validate-then-map path as ValidateAndMap.
	MapFrom(ctx context.Context, v any) (Out, error)
}

// TransformFunc converts a schema-conformant typed input into the output
// value. It must be pure: no I/O, no retained references to the input.
// Business-rule violations are reported as a *TransformError.
type TransformFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// SchemaMapper is the standard Mapper implementation: a compiled JSON
// Schema, a typed parse with struct-tag validation, and a pure transform.
type SchemaMapper[In, Out any] struct {
	schema    *jsonschema.Schema
	transform TransformFunc[In, Out]
	validate  *validator.Validate
}

// schemaResource is the synthetic URL schemas are compiled under.
const schemaResource = "mapper://input-schema.json"

// New compiles schemaJSON and returns a mapper applying transform to every
// conformant input. The schema is compiled once; construction happens at
// wiring time, not per call.
func New[In, Out any](schemaJSON string, transform TransformFunc[In, Out]) (*SchemaMapper[In, Out], error) {
	if transform == nil {
		return nil, fmt.Errorf("transform function is required")
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &SchemaMapper[In, Out]{
		schema:    schema,
		transform: transform,
		validate:  validator.New(),
	}, nil
}

// MustNew is like New but panics on schema compilation failure. It is
// intended for wiring-time construction from constant schemas, in the
// manner of regexp.MustCompile.
func MustNew[In, Out any](schemaJSON string, transform TransformFunc[In, Out]) *SchemaMapper[In, Out] {
	m, err := New(schemaJSON, transform)
	if err != nil {
		panic(fmt.Sprintf("mapper: %v", err))
	}
	return m
}

// ValidateAndMap implements Mapper.
func (m *SchemaMapper[In, Out]) ValidateAndMap(ctx context.Context, raw json.RawMessage) (Out, error) {
	var zero Out

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return zero, &ValidationError{Path: "/", Message: "input is not valid JSON", Cause: err}
	}

	if err := m.schema.Validate(inst); err != nil {
		return zero, schemaViolation(err)
	}

	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return zero, &ValidationError{Path: "/", Message: "input does not match the expected structure", Cause: err}
	}

	if err := m.validateStruct(ctx, in); err != nil {
		return zero, err
	}

	out, err := m.transform(ctx, in)
	if err != nil {
		var terr *TransformError
		if errors.As(err, &terr) {
			return zero, err
		}
		return zero, &TransformError{Message: err.Error(), Cause: err}
	}

	return out, nil
}

// MapFrom implements Mapper.
func (m *SchemaMapper[In, Out]) MapFrom(ctx context.Context, v any) (Out, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		var zero Out
		return zero, fmt.Errorf("failed to serialize typed input: %w", err)
	}
	return m.ValidateAndMap(ctx, raw)
}

// validateStruct runs struct-tag validation when the typed input is a
// struct. Non-struct inputs (strings, maps) are covered by the schema
// alone.
func (m *SchemaMapper[In, Out]) validateStruct(ctx context.Context, in In) error {
	rv := reflect.ValueOf(in)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	if err := m.validate.StructCtx(ctx, rv.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &ValidationError{
				Path:    "/" + strings.ReplaceAll(first.Namespace(), ".", "/"),
				Message: fmt.Sprintf("failed on the %q rule", first.Tag()),
				Cause:   err,
			}
		}
		return &ValidationError{Path: "/", Message: err.Error(), Cause: err}
	}

	return nil
}
