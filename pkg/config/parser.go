package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// manifestSchema constrains every manifest document. app and apps are both
// optional in the schema; the parser requires at least one after
// unification.
const manifestSchema = `
#VariableConfig: {
	id:     string & !=""
	config: {...}
}

#App: {
	id:       string & =~"^[a-zA-Z0-9][a-zA-Z0-9_.-]*$"
	instance: #VariableConfig
	provider: #VariableConfig
}

app?:  #App
apps?: [...#App]
`

// Parser parses application manifests in CUE, JSON, or Starlark form.
type Parser struct {
	ctx       *cue.Context
	schema    cue.Value
	evaluator *StarlarkEvaluator
	validator *validator.Validate
}

// NewParser creates a parser with the embedded manifest schema and the
// default Starlark timeout.
func NewParser() *Parser {
	ctx := cuecontext.New()
	return &Parser{
		ctx:       ctx,
		schema:    ctx.CompileString(manifestSchema),
		evaluator: NewStarlarkEvaluator(DefaultStarlarkTimeout),
		validator: validator.New(),
	}
}

// ParseFile parses one manifest file, dispatching on its extension.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return p.ParseCUE(ctx, path)
	case ".json":
		return p.ParseJSON(ctx, path)
	case ".star":
		return p.ParseStarlark(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q (want .cue, .json, or .star)", filepath.Ext(path))
	}
}

// ParseCUE parses a CUE manifest file.
func (p *Parser) ParseCUE(ctx context.Context, path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return p.parseCUEBytes(content, path), nil
}

// parseCUEBytes compiles the document, unifies it with the embedded schema
// so violations carry source positions, and extracts the manifests.
func (p *Parser) parseCUEBytes(content []byte, filename string) *ParseResult {
	result := &ParseResult{Source: filename, ParsedAt: time.Now()}

	val := p.ctx.CompileString(string(content), cue.Filename(filename))
	if err := val.Err(); err != nil {
		result.Errors = convertCUEErrors(err)
		return result
	}

	unified := p.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		result.Errors = convertCUEErrors(err)
		return result
	}

	appVal := unified.LookupPath(cue.ParsePath("app"))
	appsVal := unified.LookupPath(cue.ParsePath("apps"))

	if !appVal.Exists() && !appsVal.Exists() {
		result.Errors = append(result.Errors, ValidationError{
			File:     filename,
			Message:  "manifest defines neither app nor apps",
			Severity: "error",
		})
		return result
	}

	if appVal.Exists() {
		p.appendCUEValue(appVal, filename, "app", result)
	}

	if appsVal.Exists() {
		list, err := appsVal.List()
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				File:     filename,
				Path:     "apps",
				Message:  fmt.Sprintf("failed to iterate apps: %v", err),
				Severity: "error",
			})
			return result
		}
		for i := 0; list.Next(); i++ {
			p.appendCUEValue(list.Value(), filename, fmt.Sprintf("apps[%d]", i), result)
		}
	}

	return result
}

func (p *Parser) appendCUEValue(val cue.Value, filename, docPath string, result *ParseResult) {
	data, err := val.MarshalJSON()
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

// ParseJSON parses a JSON manifest file holding one manifest object or an
// array of them.
func (p *Parser) ParseJSON(ctx context.Context, path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return p.parseJSONBytes(content, path), nil
}

func (p *Parser) parseJSONBytes(content []byte, filename string) *ParseResult {
	result := &ParseResult{Source: filename, ParsedAt: time.Now()}

	trimmed := bytes.TrimLeftFunc(content, unicode.IsSpace)
	if len(trimmed) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			File:     filename,
			Message:  "manifest is empty",
			Severity: "error",
		})
		return result
	}

	if trimmed[0] == '[' {
		var manifests []AppManifest
		if err := json.Unmarshal(content, &manifests); err != nil {
			result.Errors = append(result.Errors, jsonError(content, filename, err))
			return result
		}
		for i, manifest := range manifests {
			p.appendManifest(manifest, filename, fmt.Sprintf("[%d]", i), result)
		}
		return result
	}

	var manifest AppManifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		result.Errors = append(result.Errors, jsonError(content, filename, err))
		return result
	}
	p.appendManifest(manifest, filename, "", result)

	return result
}

// appendJSON decodes one manifest document and appends it when valid.
func (p *Parser) appendJSON(data []byte, filename, docPath string, result *ParseResult) {
	var manifest AppManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			File:     filename,
			Path:     docPath,
			Message:  fmt.Sprintf("failed to decode app: %v", err),
			Severity: "error",
		})
		return
	}
	p.appendManifest(manifest, filename, docPath, result)
}

func (p *Parser) appendManifest(manifest AppManifest, filename, docPath string, result *ParseResult) {
	if verrs := p.validateManifest(manifest, filename, docPath); len(verrs) > 0 {
		result.Errors = append(result.Errors, verrs...)
		return
	}
	result.Manifests = append(result.Manifests, manifest)
}

// validateManifest runs struct-tag validation and converts failures into
// located ValidationErrors.
func (p *Parser) validateManifest(m AppManifest, filename, docPath string) []ValidationError {
	err := p.validator.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				File:     filename,
				Path:     joinPath(docPath, fieldPath(fe.Namespace())),
				Message:  fmt.Sprintf("failed on the %q rule", fe.Tag()),
				Severity: "error",
			})
		}
		return out
	}

	return []ValidationError{{
		File:     filename,
		Path:     docPath,
		Message:  err.Error(),
		Severity: "error",
	}}
}

// fieldPath lowers a validator namespace (AppManifest.Instance.ID) into
// document notation (instance.id).
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return ""
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts[1:], ".")
}

func joinPath(docPath, field string) string {
	switch {
	case docPath == "":
		return field
	case field == "":
		return docPath
	default:
		return docPath + "." + field
	}
}

// convertCUEErrors flattens a CUE error into located ValidationErrors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		var file string
		var line, column int
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()

		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}
	return out
}

// jsonError locates a JSON decoding failure inside the document when the
// error carries an offset.
func jsonError(content []byte, filename string, err error) ValidationError {
	ve := ValidationError{File: filename, Message: err.Error(), Severity: "error"}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		ve.Line, ve.Column = lineColAt(content, syntaxErr.Offset)
	case errors.As(err, &typeErr):
		ve.Line, ve.Column = lineColAt(content, typeErr.Offset)
		ve.Path = typeErr.Field
	}

	return ve
}

// lineColAt converts a byte offset into 1-indexed line and column.
func lineColAt(content []byte, offset int64) (int, int) {
	if offset < 1 || offset > int64(len(content)) {
		return 0, 0
	}

	line, column := 1, 1
	for _, b := range content[:offset-1] {
		if b == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
