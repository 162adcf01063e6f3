/**
 * @description
 * Prompt definitions loaded from YAML files.
 *
 * @dependencies
 * - gopkg.in/yaml.v3: prompt file parsing
 * - github.com/go-viper/mapstructure/v2: loose map -> typed definition
 * - github.com/santhosh-tekuri/jsonschema/v6: schema well-formedness check
 */

package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stockscope/backend/internal/analysis"
	"gopkg.in/yaml.v3"
)

// Definition is an immutable, versioned prompt template with an optional output schema.
type Definition struct {
	ID       string
	Name     string
	Version  int
	Template string
	Schema   *analysis.Schema
	// Source is the file the definition was read from.
	Source string
}

// Rendered is a definition's template with the run context substituted in.
type Rendered struct {
	DefinitionID string
	Version      int
	Text         string
}

// Render substitutes ctx into the definition's template.
func (d Definition) Render(ctx map[string]string) Rendered {
	return Rendered{DefinitionID: d.ID, Version: d.Version, Text: Render(d.Template, ctx)}
}

// DefinitionError reports a prompt file that could not be turned into a Definition.
type DefinitionError struct {
	File string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("prompt definition %s: %v", filepath.Base(e.File), e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidVersion  = errors.New("version must be a positive integer")
	ErrTemplateSource  = errors.New("exactly one of template or template_file is required")
	ErrTemplateMissing = errors.New("template file does not exist")
	ErrInvalidSchema   = errors.New("invalid schema")
	// ErrUnsupportedSchema marks schema keywords that are valid JSON Schema but that result
	// validation does not enforce; they are rejected so no rule is silently ignored.
	ErrUnsupportedSchema = errors.New("unsupported schema keyword")
)

// Keywords the result validator enforces, plus annotations that carry no rule.
var (
	schemaKeywords   = map[string]bool{"type": true, "properties": true, "required": true}
	propertyKeywords = map[string]bool{"type": true, "minimum": true, "maximum": true, "enum": true}
	annotationKeys   = map[string]bool{
		"$schema": true, "$id": true, "$comment": true,
		"title": true, "description": true, "examples": true, "default": true,
	}
	supportedKinds = map[analysis.Kind]bool{
		analysis.KindString: true, analysis.KindInteger: true,
		analysis.KindNumber: true, analysis.KindBoolean: true,
	}
)

// fileDefinition mirrors the on-disk format.
type fileDefinition struct {
	PromptID     string         `mapstructure:"prompt_id"`
	Name         string         `mapstructure:"name"`
	Version      any            `mapstructure:"version"`
	Template     string         `mapstructure:"template"`
	TemplateFile string         `mapstructure:"template_file"`
	Schema       map[string]any `mapstructure:"schema"`
}

// parseFile reads one prompt file. Relative template_file paths resolve against the file's directory.
func parseFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, &DefinitionError{File: path, Err: err}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Definition{}, &DefinitionError{File: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	if raw == nil {
		return Definition{}, &DefinitionError{File: path, Err: errors.New("file must contain a mapping at top level")}
	}

	var fd fileDefinition
	if err := mapstructure.Decode(raw, &fd); err != nil {
		return Definition{}, &DefinitionError{File: path, Err: err}
	}

	for field, value := range map[string]string{"prompt_id": fd.PromptID, "name": fd.Name} {
		if strings.TrimSpace(value) == "" {
			return Definition{}, &DefinitionError{File: path, Err: fmt.Errorf("%w: %s", ErrMissingField, field)}
		}
	}
	if fd.Version == nil {
		return Definition{}, &DefinitionError{File: path, Err: fmt.Errorf("%w: version", ErrMissingField)}
	}
	version, ok := positiveInt(fd.Version)
	if !ok {
		return Definition{}, &DefinitionError{File: path, Err: fmt.Errorf("%w, got %v", ErrInvalidVersion, fd.Version)}
	}

	hasInline := strings.TrimSpace(fd.Template) != ""
	hasFile := strings.TrimSpace(fd.TemplateFile) != ""
	if hasInline == hasFile {
		return Definition{}, &DefinitionError{File: path, Err: ErrTemplateSource}
	}

	template := fd.Template
	if hasFile {
		tplPath := fd.TemplateFile
		if !filepath.IsAbs(tplPath) {
			tplPath = filepath.Join(filepath.Dir(path), tplPath)
		}
		body, err := os.ReadFile(tplPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ErrTemplateMissing, fd.TemplateFile)
			}
			return Definition{}, &DefinitionError{File: path, Err: err}
		}
		template = string(body)
	}

	schema, err := decodeSchema(fd.Schema)
	if err != nil {
		return Definition{}, &DefinitionError{File: path, Err: err}
	}

	return Definition{
		ID:       strings.TrimSpace(fd.PromptID),
		Name:     strings.TrimSpace(fd.Name),
		Version:  version,
		Template: template,
		Schema:   schema,
		Source:   path,
	}, nil
}

// decodeSchema compiles the raw block as JSON Schema (rejecting malformed schemas up front)
// and then decodes it into the typed description the validator interprets.
func decodeSchema(raw map[string]any) (*analysis.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	// yaml.v3 decodes numbers as int/float; round-trip through JSON so the compiler sees JSON values.
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	var schemaValue any
	if err := json.Unmarshal(doc, &schemaValue); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaValue); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if _, err := compiler.Compile("schema.json"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	if err := checkSchemaKeywords(raw); err != nil {
		return nil, err
	}

	var schema analysis.Schema
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &schema,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if schema.Type != "" && schema.Type != "object" {
		return nil, fmt.Errorf("%w: top-level type must be object, got %q", ErrInvalidSchema, schema.Type)
	}
	for _, name := range sortedKeys(schema.Properties) {
		if kind := schema.Properties[name].Type; !supportedKinds[kind] {
			return nil, fmt.Errorf("%w: property %q has type %q (want string, integer, number or boolean)",
				ErrUnsupportedSchema, name, kind)
		}
	}
	return &schema, nil
}

// checkSchemaKeywords rejects keywords outside the flat type/range/enum subset.
func checkSchemaKeywords(raw map[string]any) error {
	for _, key := range sortedKeys(raw) {
		if !schemaKeywords[key] && !annotationKeys[key] {
			return fmt.Errorf("%w: %q", ErrUnsupportedSchema, key)
		}
	}
	props, _ := raw["properties"].(map[string]any)
	for _, name := range sortedKeys(props) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range sortedKeys(prop) {
			if !propertyKeywords[key] && !annotationKeys[key] {
				return fmt.Errorf("%w: property %q uses %q", ErrUnsupportedSchema, name, key)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case uint64:
		return int(n), n > 0
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), n > 0
	}
	return 0, false
}
