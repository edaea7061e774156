package mapper

import (
	"context"
	"encoding/json"
	"fmt"
)

// chained composes two mappers: the first produces an intermediate value
// that is serialized and fed through the second mapper's full
// validate-then-map path.
type chained[Mid, Out any] struct {
	first  Mapper[Mid]
	second Mapper[Out]
}

// Chain composes first (X -> Mid) and second (Mid -> Out) into a single
// mapper (X -> Out). The intermediate value round-trips through JSON, so
// second revalidates it against its own schema. Composition is
// associative and any stage's failure aborts the chain with that stage's
// error. Chains are meant to be built once at wiring time.
func Chain[Mid, Out any](first Mapper[Mid], second Mapper[Out]) Mapper[Out] {
	return &chained[Mid, Out]{first: first, second: second}
}

// ValidateAndMap implements Mapper.
func (c *chained[Mid, Out]) ValidateAndMap(ctx context.Context, raw json.RawMessage) (Out, error) {
	mid, err := c.first.ValidateAndMap(ctx, raw)
	if err != nil {
		var zero Out
		return zero, err
	}
	return c.second.MapFrom(ctx, mid)
}

// MapFrom implements Mapper.
func (c *chained[Mid, Out]) MapFrom(ctx context.Context, v any) (Out, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		var zero Out
		return zero, fmt.Errorf("failed to serialize typed input: %w", err)
	}
	return c.ValidateAndMap(ctx, raw)
}
