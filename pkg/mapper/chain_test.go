package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

const addressSchema = `{
	"type": "object",
	"properties": {
		"address": {"type": "string", "minLength": 1}
	},
	"required": ["address"]
}`

const urlSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string"}
	},
	"required": ["url"]
}`

type endpointURL struct {
	URL string `json:"url"`
}

// countingMapper wraps a mapper and counts invocations of each entry point.
type countingMapper[Out any] struct {
	inner    Mapper[Out]
	validate int
	mapFrom  int
}

func (c *countingMapper[Out]) ValidateAndMap(ctx context.Context, raw json.RawMessage) (Out, error) {
	c.validate++
	return c.inner.ValidateAndMap(ctx, raw)
}

func (c *countingMapper[Out]) MapFrom(ctx context.Context, v any) (Out, error) {
	c.mapFrom++
	return c.inner.MapFrom(ctx, v)
}

func newURLMapper(t *testing.T) *SchemaMapper[endpointAddress, endpointURL] {
	t.Helper()

	m, err := New(addressSchema, func(_ context.Context, in endpointAddress) (endpointURL, error) {
		return endpointURL{URL: "tcp://" + in.Address}, nil
	})
	if err != nil {
		t.Fatalf("Failed to construct mapper: %v", err)
	}
	return m
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("EqualsManualComposition", func(t *testing.T) {
		first := newEndpointMapper(t)
		second := newURLMapper(t)
		composed := Chain[endpointAddress, endpointURL](first, second)

		inputs := []string{
			`{"host": "db", "port": 5432}`,
			`{"host": "cache", "port": 6379}`,
			`{"host": "local", "socket": "/run/app.sock"}`,
		}

		for _, input := range inputs {
			raw := json.RawMessage(input)

			chainOut, err := composed.ValidateAndMap(ctx, raw)
			if err != nil {
				t.Fatalf("Chained mapping failed for %s: %v", input, err)
			}

			mid, err := first.ValidateAndMap(ctx, raw)
			if err != nil {
				t.Fatalf("Manual first stage failed for %s: %v", input, err)
			}
			manualOut, err := second.MapFrom(ctx, mid)
			if err != nil {
				t.Fatalf("Manual second stage failed for %s: %v", input, err)
			}

			if chainOut != manualOut {
				t.Errorf("Chained result %+v differs from manual result %+v for %s", chainOut, manualOut, input)
			}
		}
	})

	t.Run("FirstStageFailureAbortsChain", func(t *testing.T) {
		first := newEndpointMapper(t)
		second := &countingMapper[endpointURL]{inner: newURLMapper(t)}
		composed := Chain[endpointAddress, endpointURL](first, second)

		_, err := composed.ValidateAndMap(ctx, json.RawMessage(`{"port": 1}`))
		if !IsValidationError(err) {
			t.Fatalf("Expected the first stage's validation error, got: %v", err)
		}
		if second.validate != 0 || second.mapFrom != 0 {
			t.Errorf("Second stage was invoked %d/%d times after a first-stage failure",
				second.validate, second.mapFrom)
		}
	})

	t.Run("SecondStageErrorSurfacesUnchanged", func(t *testing.T) {
		first := newEndpointMapper(t)
		rejecting, err := New(addressSchema, func(_ context.Context, in endpointAddress) (endpointURL, error) {
			return endpointURL{}, &TransformError{Message: "address not routable"}
		})
		if err != nil {
			t.Fatalf("Failed to construct mapper: %v", err)
		}
		composed := Chain[endpointAddress, endpointURL](first, rejecting)

		_, err = composed.ValidateAndMap(ctx, json.RawMessage(`{"host": "db", "port": 5432}`))
		if !IsTransformError(err) {
			t.Fatalf("Expected the second stage's transform error, got: %v", err)
		}
	})

	t.Run("Associativity", func(t *testing.T) {
		first := newEndpointMapper(t)
		second := newURLMapper(t)
		third, err := New(urlSchema, func(_ context.Context, in endpointURL) (string, error) {
			return fmt.Sprintf("dial %s", in.URL), nil
		})
		if err != nil {
			t.Fatalf("Failed to construct mapper: %v", err)
		}

		leftAssoc := Chain[endpointURL, string](Chain[endpointAddress, endpointURL](first, second), third)
		rightAssoc := Chain[endpointAddress, string](first, Chain[endpointURL, string](second, third))

		raw := json.RawMessage(`{"host": "db", "port": 5432}`)

		leftOut, err := leftAssoc.ValidateAndMap(ctx, raw)
		if err != nil {
			t.Fatalf("Left-associated chain failed: %v", err)
		}
		rightOut, err := rightAssoc.ValidateAndMap(ctx, raw)
		if err != nil {
			t.Fatalf("Right-associated chain failed: %v", err)
		}

		if leftOut != rightOut {
			t.Errorf("Association changed the result: %q vs %q", leftOut, rightOut)
		}
		if leftOut != "dial tcp://db:5432" {
			t.Errorf("Unexpected chained result: %q", leftOut)
		}
	})

	t.Run("MapFromEntry", func(t *testing.T) {
		composed := Chain[endpointAddress, endpointURL](newEndpointMapper(t), newURLMapper(t))

		out, err := composed.MapFrom(ctx, endpointInput{Host: "db", Port: 5432})
		if err != nil {
			t.Fatalf("MapFrom through the chain failed: %v", err)
		}
		if out.URL != "tcp://db:5432" {
			t.Errorf("Expected 'tcp://db:5432', got '%s'", out.URL)
		}
	})
}
