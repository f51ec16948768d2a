package services

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/scriptstudio/backend/internal/models"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

const schemaBaseID = "https://scriptstudio.dev/schemas/"

// Validator holds compiled input and output schemas per orchestrated operation.
type Validator struct {
	inputSchemas  map[string]*jsonschema.Schema
	outputSchemas map[string]*jsonschema.Schema
}

// NewValidator compiles the schemas bundled into the binary.
func NewValidator() (*Validator, error) {
	sub, err := fs.Sub(embeddedSchemas, "schemas")
	if err != nil {
		return nil, err
	}
	return NewValidatorFS(sub)
}

// NewValidatorFS loads every *.json file at the root of fsys. Each file wraps an
// input_schema and an output_schema under "properties"; the operation name is
// the file name without the ".v1.json" suffix.
func NewValidatorFS(fsys fs.FS) (*Validator, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	inputSchemas := make(map[string]*jsonschema.Schema)
	outputSchemas := make(map[string]*jsonschema.Schema)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		operation := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		operation = strings.TrimSuffix(operation, ".v1")
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		var file struct {
			Properties struct {
				InputSchema  json.RawMessage `json:"input_schema"`
				OutputSchema json.RawMessage `json:"output_schema"`
			} `json:"properties"`
		}
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %q: %w", e.Name(), err)
		}
		if len(file.Properties.InputSchema) == 0 || len(file.Properties.OutputSchema) == 0 {
			return nil, fmt.Errorf("%q: missing input_schema or output_schema", e.Name())
		}
		wrapper := file.Properties
		inputSchemas[operation], err = jsonschema.CompileString(schemaBaseID+operation+".input", string(wrapper.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema %q: %w", operation, err)
		}
		outputSchemas[operation], err = jsonschema.CompileString(schemaBaseID+operation+".output", string(wrapper.OutputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile output schema %q: %w", operation, err)
		}
	}

	return &Validator{
		inputSchemas:  inputSchemas,
		outputSchemas: outputSchemas,
	}, nil
}

// ValidateInput is a hard reject: the operation does not start on error.
func (v *Validator) ValidateInput(operation string, input json.RawMessage) error {
	schema, ok := v.inputSchemas[operation]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrValidation, operation)
	}
	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ValidateOutput checks an already-decoded result document.
func (v *Validator) ValidateOutput(operation string, doc any) error {
	schema, ok := v.outputSchemas[operation]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrValidation, operation)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ValidateTrends satisfies extract.TrendValidator.
func (v *Validator) ValidateTrends(doc any) error {
	return v.ValidateOutput(models.OperationDailyTrends, doc)
}

// ErrValidation can be used with errors.Is to detect validation failures.
var ErrValidation = errors.New("validation failed")
