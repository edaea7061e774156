// Package mapper provides schema-validated configuration mapping.
//
// # Overview
//
// A Mapper turns an untyped JSON document into a typed output value in
// three steps:
//
//  1. Validate the raw JSON against a declared JSON Schema. A mismatch
//     fails with a *ValidationError carrying the offending instance path.
//  2. Unmarshal the now-conformant JSON into the mapper's typed input and
//     check its struct-level validation tags.
//  3. Apply a pure transform function producing the output value. A
//     business-rule failure (for example, missing required alternative
//     fields) fails with a *TransformError.
//
// Mappers are constructed once at wiring time with New or MustNew and are
// safe for concurrent use.
//
// # Typed Input
//
// MapFrom accepts an already-typed value by serializing it to JSON and
// re-entering the same validate-then-map path. This lets structurally
// compatible configs declared as different types be adapted without
// duplicating validation logic.
//
// # Chaining
//
// Chain composes two mappers into one: the first mapper's output is
// serialized and fed through the second mapper's full validation path.
// Chaining is associative, and any stage's failure aborts the chain
// immediately with no partial results.
//
//	payload := mapper.Chain(composeMapper, bootstrapMapper)
//	out, err := payload.ValidateAndMap(ctx, raw)
package mapper
