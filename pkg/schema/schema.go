// Package schema generates JSON schema documents for function.json files.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/config"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
)

// FunctionSchemaID identifies the generated function.json schema.
const FunctionSchemaID = "https://github.com/flavioaiello/azure-functions-gen/schemas/function.json"

// ProjectSchemaID identifies the azfunc.yaml schema.
const ProjectSchemaID = "https://github.com/flavioaiello/azure-functions-gen/schemas/azfunc.json"

// bindingNamePattern mirrors the bindingname validator.
const bindingNamePattern = `^([A-Za-z][A-Za-z0-9_]*|\$return)$`

var directions = []any{string(binding.In), string(binding.Out), string(binding.InOut)}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
}

// Binding returns the schema of one binding kind. Extension kinds without a
// fixed type get the open custom binding schema.
func Binding(k binding.Kind) *jsonschema.Schema {
	if k.Type == "" {
		return customBinding(nil)
	}

	s := newReflector().Reflect(k.New())
	s.Version = ""
	s.Title = k.Annotation

	if p, ok := s.Properties.Get("type"); ok {
		p.Const = k.Type
	}
	if p, ok := s.Properties.Get("direction"); ok {
		p.Const = string(k.Direction)
	}
	if p, ok := s.Properties.Get("name"); ok {
		p.Pattern = bindingNamePattern
	}
	return s
}

// Bindings returns the schema of every registered kind keyed by annotation name.
func Bindings(registry *binding.Registry) map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema)
	for _, k := range registry.Kinds() {
		out[k.Annotation] = Binding(k)
	}
	return out
}

// Function returns the schema of a function.json document. A binding must
// match one of the registered kinds; any type and direction pair no kind
// claims is accepted as a custom binding.
func Function(registry *binding.Registry) *jsonschema.Schema {
	s := newReflector().Reflect(&function.Configuration{})
	s.ID = FunctionSchemaID
	s.Title = function.FileName

	var fixed []binding.Kind
	var items []*jsonschema.Schema
	for _, k := range registry.Kinds() {
		if k.Type == "" {
			continue
		}
		fixed = append(fixed, k)
		items = append(items, Binding(k))
	}
	items = append(items, customBinding(fixed))

	if p, ok := s.Properties.Get("bindings"); ok {
		p.Type = "array"
		p.Items = &jsonschema.Schema{AnyOf: items}
	}
	return s
}

// Project returns the schema of the azfunc.yaml project file.
func Project() *jsonschema.Schema {
	s := newReflector().Reflect(&config.File{})
	s.ID = ProjectSchemaID
	s.Title = config.ProjectFileName
	return s
}

// customBinding accepts any binding with the common fields set. Pairs of type
// and direction claimed by a built-in kind are excluded.
func customBinding(claimed []binding.Kind) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("type", &jsonschema.Schema{Type: "string", Pattern: `\S`})
	props.Set("direction", &jsonschema.Schema{Type: "string", Enum: directions})
	props.Set("name", &jsonschema.Schema{Type: "string", Pattern: bindingNamePattern})

	s := &jsonschema.Schema{
		Title:      binding.CustomAnnotation,
		Type:       "object",
		Properties: props,
		Required:   []string{"type", "direction", "name"},
	}

	if len(claimed) > 0 {
		var pairs []*jsonschema.Schema
		seen := make(map[string]bool)
		for _, k := range claimed {
			key := k.Type + "/" + string(k.Direction)
			if seen[key] {
				continue
			}
			seen[key] = true

			pair := jsonschema.NewProperties()
			pair.Set("type", &jsonschema.Schema{Const: k.Type})
			pair.Set("direction", &jsonschema.Schema{Const: string(k.Direction)})
			pairs = append(pairs, &jsonschema.Schema{
				Properties: pair,
				Required:   []string{"type", "direction"},
			})
		}
		s.Not = &jsonschema.Schema{AnyOf: pairs}
	}
	return s
}

// Marshal renders a schema as indented JSON.
func Marshal(s *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
