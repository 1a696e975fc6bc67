// Package validate checks staged function.json files.
//
// Features:
//  1. JSON schema validation against the generated function.json schema
//  2. Binding data-shape validation of the decoded configuration
//  3. Drift detection between two staging directories
package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
	"github.com/flavioaiello/azure-functions-gen/pkg/loader"
	"github.com/flavioaiello/azure-functions-gen/pkg/schema"
)

// Errors.
var (
	ErrSchemaCompile   = errors.New("failed to compile function.json schema")
	ErrSchemaViolation = errors.New("schema violation")
	ErrInvalidFunction = errors.New("invalid function configuration")
)

// ValidationResult represents the outcome of validating one function.json.
type ValidationResult struct {
	Function string            `json:"function"`
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
	FilePath string            `json:"filePath,omitempty"`
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator validates staged function descriptors.
type Validator struct {
	logger *zap.Logger
	schema *jsonschema.Schema
}

// NewValidator creates a validator for the kinds in registry.
// A nil registry selects the built-in kinds.
func NewValidator(logger *zap.Logger, registry *binding.Registry) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = binding.DefaultRegistry()
	}

	compiled, err := compileSchema(registry)
	if err != nil {
		return nil, err
	}

	return &Validator{
		logger: logger,
		schema: compiled,
	}, nil
}

func compileSchema(registry *binding.Registry) (*jsonschema.Schema, error) {
	data, err := schema.Marshal(schema.Function(registry))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schema.FunctionSchemaID, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}

	compiled, err := compiler.Compile(schema.FunctionSchemaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}
	return compiled, nil
}

// ValidateFile validates one function.json. The function name is taken from
// the enclosing directory.
func (v *Validator) ValidateFile(_ context.Context, filePath string) (*ValidationResult, error) {
	name := filepath.Base(filepath.Dir(filePath))
	result := &ValidationResult{
		Function: name,
		Valid:    true,
		FilePath: filePath,
	}

	data, err := loader.ReadFile(filePath, loader.MaxDescriptorFileSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return v.validate(name, data, result), nil
}

// ValidateConfiguration validates an in-memory configuration the same way a
// staged file is validated.
func (v *Validator) ValidateConfiguration(cfg *function.Configuration) (*ValidationResult, error) {
	data, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	return v.validate(cfg.Name, data, &ValidationResult{Function: cfg.Name, Valid: true}), nil
}

func (v *Validator) validate(name string, data []byte, result *ValidationResult) *ValidationResult {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("JSON parse error: %v", err),
		})
		return result
	}

	if err := v.schema.Validate(instance); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, schemaErrors(err)...)
	}

	cfg, err := function.Unmarshal(name, data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Message: err.Error()})
		return result
	}

	if err := cfg.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, configurationErrors(err)...)
	}

	if cfg.ScriptFile == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "scriptFile",
			Message: "no scriptFile set; the host must resolve the handler",
		})
	}

	return result
}

// schemaErrors reports the direct causes of a schema failure.
func schemaErrors(err error) []ValidationError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []ValidationError{{Message: fmt.Sprintf("%v: %v", ErrSchemaViolation, err)}}
	}

	causes := ve.Causes
	if len(causes) == 0 {
		causes = []*jsonschema.ValidationError{ve}
	}

	out := make([]ValidationError, 0, len(causes))
	for _, c := range causes {
		out = append(out, ValidationError{
			Field: "/" + strings.Join(c.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v: violates %s", ErrSchemaViolation,
				strings.Join(c.ErrorKind.KeywordPath(), "/")),
		})
	}
	return out
}

func configurationErrors(err error) []ValidationError {
	var fieldErr binding.ValidationError
	if errors.As(err, &fieldErr) {
		return []ValidationError{{Field: fieldErr.Field, Message: err.Error()}}
	}
	return []ValidationError{{Message: err.Error()}}
}

// ValidateDirectory validates every function.json below dir.
func (v *Validator) ValidateDirectory(ctx context.Context, dir string) ([]*ValidationResult, error) {
	var results []*ValidationResult

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() || d.Name() != function.FileName {
			return nil
		}

		result, err := v.ValidateFile(ctx, path)
		if err != nil {
			v.logger.Warn("Failed to validate file",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}

		results = append(results, result)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return results, nil
}

// CompareDirectories reports the differences between the functions staged in
// two directories.
func (v *Validator) CompareDirectories(ctx context.Context, dir1, dir2 string) ([]Difference, error) {
	functions1, err := v.LoadDirectory(ctx, dir1)
	if err != nil {
		return nil, fmt.Errorf("failed to load functions from %s: %w", dir1, err)
	}

	functions2, err := v.LoadDirectory(ctx, dir2)
	if err != nil {
		return nil, fmt.Errorf("failed to load functions from %s: %w", dir2, err)
	}

	return Compare(functions1, functions2), nil
}

// Compare reports the differences between two sets of configurations keyed
// by function name. Results are ordered by function name.
func Compare(want, got map[string]*function.Configuration) []Difference {
	var differences []Difference

	for name := range want {
		if _, ok := got[name]; !ok {
			differences = append(differences, Difference{
				Function: name,
				Type:     DiffTypeMissing,
				Message:  "function is not staged",
			})
		}
	}

	for name := range got {
		if _, ok := want[name]; !ok {
			differences = append(differences, Difference{
				Function: name,
				Type:     DiffTypeExtra,
				Message:  "staged function is no longer generated",
			})
		}
	}

	for name, cfg1 := range want {
		if cfg2, ok := got[name]; ok {
			differences = append(differences, compareFunction(name, cfg1, cfg2)...)
		}
	}

	sort.SliceStable(differences, func(i, j int) bool {
		return differences[i].Function < differences[j].Function
	})
	return differences
}

// LoadDirectory reads every function.json below dir keyed by its directory name.
// Unreadable or malformed descriptors are skipped.
func (v *Validator) LoadDirectory(ctx context.Context, dir string) (map[string]*function.Configuration, error) {
	functions := make(map[string]*function.Configuration)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() || d.Name() != function.FileName {
			return nil
		}

		data, err := loader.ReadFile(path, loader.MaxDescriptorFileSizeBytes)
		if err != nil {
			v.logger.Debug("Skipping unreadable descriptor", zap.String("path", path), zap.Error(err))
			return nil
		}

		name := filepath.Base(filepath.Dir(path))
		cfg, err := function.Unmarshal(name, data)
		if err != nil {
			v.logger.Debug("Skipping invalid descriptor", zap.String("path", path), zap.Error(err))
			return nil
		}

		functions[name] = cfg
		return nil
	})

	if err != nil {
		return nil, err
	}

	return functions, nil
}

func compareFunction(name string, cfg1, cfg2 *function.Configuration) []Difference {
	var differences []Difference

	if cfg1.EntryPoint != cfg2.EntryPoint {
		differences = append(differences, Difference{
			Function: name,
			Type:     DiffTypeValueChange,
			Field:    "entryPoint",
			Message:  fmt.Sprintf("%s != %s", cfg1.EntryPoint, cfg2.EntryPoint),
		})
	}

	if cfg1.Disabled != cfg2.Disabled {
		differences = append(differences, Difference{
			Function: name,
			Type:     DiffTypeValueChange,
			Field:    "disabled",
			Message:  fmt.Sprintf("%t != %t", cfg1.Disabled, cfg2.Disabled),
		})
	}

	bindings1 := indexBindings(cfg1.Bindings)
	bindings2 := indexBindings(cfg2.Bindings)

	for key, b1 := range bindings1 {
		b2, ok := bindings2[key]
		switch {
		case !ok:
			differences = append(differences, Difference{
				Function: name,
				Type:     DiffTypeFieldMissing,
				Field:    "bindings." + key,
				Message:  fmt.Sprintf("binding %s missing in second set", key),
			})
		case !reflect.DeepEqual(b1, b2):
			differences = append(differences, Difference{
				Function: name,
				Type:     DiffTypeValueChange,
				Field:    "bindings." + key,
				Message:  fmt.Sprintf("binding %s differs", key),
			})
		}
	}

	for key := range bindings2 {
		if _, ok := bindings1[key]; !ok {
			differences = append(differences, Difference{
				Function: name,
				Type:     DiffTypeFieldExtra,
				Field:    "bindings." + key,
				Message:  fmt.Sprintf("binding %s missing in first set", key),
			})
		}
	}

	return differences
}

func indexBindings(bindings function.Bindings) map[string]binding.Binding {
	index := make(map[string]binding.Binding, len(bindings))
	for _, b := range bindings {
		index[b.GetName()] = b
	}
	return index
}

// Difference represents a difference between two sets of functions.
type Difference struct {
	Function string   `json:"function"`
	Type     DiffType `json:"type"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// DiffType categorizes the type of difference.
type DiffType string

const (
	DiffTypeMissing      DiffType = "missing"
	DiffTypeExtra        DiffType = "extra"
	DiffTypeFieldMissing DiffType = "field-missing"
	DiffTypeFieldExtra   DiffType = "field-extra"
	DiffTypeValueChange  DiffType = "value-change"
)
