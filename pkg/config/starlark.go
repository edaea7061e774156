package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultStarlarkTimeout bounds manifest script evaluation.
const DefaultStarlarkTimeout = 30 * time.Second

// StarlarkEvaluator executes manifest scripts with a timeout and no access
// to the filesystem or network.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator. A non-positive timeout means
// DefaultStarlarkTimeout.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout <= 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate runs a script and returns its exported globals as plain Go
// values. Underscore-prefixed globals stay private to the script. The
// script is cancelled when ctx ends or the timeout elapses.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, src []byte, input map[string]any) (map[string]any, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "manifest",
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("script", filename).Msg(msg)
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return nil, err
	}

	output := make(map[string]any, len(globals))
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert global %s: %w", name, err)
		}
		output[name] = goVal
	}

	return output, nil
}

// ParseStarlark evaluates a Starlark manifest script. The script's global
// app (one document) or apps (a list of documents) becomes the result.
func (p *Parser) ParseStarlark(ctx context.Context, path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return p.parseStarlarkBytes(ctx, content, path), nil
}

func (p *Parser) parseStarlarkBytes(ctx context.Context, content []byte, filename string) *ParseResult {
	result := &ParseResult{Source: filename, ParsedAt: time.Now()}

	globals, err := p.evaluator.Evaluate(ctx, filename, content, nil)
	if err != nil {
		result.Errors = append(result.Errors, starlarkErrors(filename, err)...)
		return result
	}

	apps, hasApps := globals["apps"]
	app, hasApp := globals["app"]
	if !hasApps && !hasApp {
		result.Errors = append(result.Errors, ValidationError{
			File:     filename,
			Message:  "script defines neither app nor apps",
			Severity: "error",
		})
		return result
	}

	if hasApp {
		p.appendStarlarkValue(app, filename, "app", result)
	}

	if hasApps {
		list, ok := apps.([]any)
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				File:     filename,
				Path:     "apps",
				Message:  fmt.Sprintf("apps must be a list, got %T", apps),
				Severity: "error",
			})
			return result
		}
		for i, item := range list {
			p.appendStarlarkValue(item, filename, fmt.Sprintf("apps[%d]", i), result)
		}
	}

	return result
}

func (p *Parser) appendStarlarkValue(v any, filename, docPath string, result *ParseResult) {
	data, err := json.Marshal(v)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			File:     filename,
			Path:     docPath,
			Message:  fmt.Sprintf("failed to encode app: %v", err),
			Severity: "error",
		})
		return
	}
	p.appendJSON(data, filename, docPath, result)
}

// starlarkErrors extracts position information from evaluation failures.
func starlarkErrors(filename string, err error) []ValidationError {
	var evalErr *starlark.EvalError
	var resolveErrs resolve.ErrorList
	var syntaxErr syntax.Error
	switch {
	case errors.As(err, &evalErr):
		ve := ValidationError{File: filename, Message: evalErr.Msg, Severity: "error"}
		if len(evalErr.CallStack) > 0 {
			pos := evalErr.CallStack.At(len(evalErr.CallStack) - 1).Pos
			ve.Line = int(pos.Line)
			ve.Column = int(pos.Col)
		}
		return []ValidationError{ve}
	case errors.As(err, &resolveErrs):
		out := make([]ValidationError, 0, len(resolveErrs))
		for _, re := range resolveErrs {
			out = append(out, ValidationError{
				File:     filename,
				Line:     int(re.Pos.Line),
				Column:   int(re.Pos.Col),
				Message:  re.Msg,
				Severity: "error",
			})
		}
		return out
	case errors.As(err, &syntaxErr):
		return []ValidationError{{
			File:     filename,
			Line:     int(syntaxErr.Pos.Line),
			Column:   int(syntaxErr.Pos.Col),
			Message:  syntaxErr.Msg,
			Severity: "error",
		}}
	}

	return []ValidationError{{File: filename, Message: err.Error(), Severity: "error"}}
}

// toStarlarkValue converts a Go value into its Starlark form.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value into plain Go data.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			converted, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
