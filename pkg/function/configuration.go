// Package function provides the function.json configuration record.
package function

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
)

// FileName is the descriptor file written per function.
const FileName = "function.json"

// Errors.
var (
	ErrInvalidConfiguration = errors.New("invalid function configuration")
	ErrNoBindings           = errors.New("function has no bindings")
	ErrNoTrigger            = errors.New("function has no trigger binding")
	ErrMultipleTriggers     = errors.New("function has more than one trigger binding")
)

// Bindings is an ordered binding list that decodes by binding type.
type Bindings []binding.Binding

// UnmarshalJSON decodes each element with the default binding registry.
func (l *Bindings) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Bindings, 0, len(raw))
	for i, item := range raw {
		b, err := binding.DefaultRegistry().Decode(item)
		if err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	*l = out
	return nil
}

// Configuration is the content of one function.json file.
type Configuration struct {
	// Name is the function name; it names the output directory, not a JSON field.
	Name string `json:"-" validate:"required,functionname"`

	ScriptFile string   `json:"scriptFile,omitempty"`
	EntryPoint string   `json:"entryPoint" validate:"required"`
	Disabled   bool     `json:"disabled"`
	Bindings   Bindings `json:"bindings"`
}

// Validate checks the configuration and every binding in it.
func (c *Configuration) Validate() error {
	if err := binding.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, c.Name, err)
	}

	if len(c.Bindings) == 0 {
		return fmt.Errorf("%w: %s", ErrNoBindings, c.Name)
	}

	var errs []error
	triggers := 0
	for _, b := range c.Bindings {
		if binding.IsTrigger(b) {
			triggers++
		}
		if err := binding.Validate(b); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case triggers == 0:
		errs = append(errs, fmt.Errorf("%w: %s", ErrNoTrigger, c.Name))
	case triggers > 1:
		errs = append(errs, fmt.Errorf("%w: %s (%d)", ErrMultipleTriggers, c.Name, triggers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, c.Name, errors.Join(errs...))
	}
	return nil
}

// Triggers returns the trigger bindings.
func (c *Configuration) Triggers() []binding.Binding {
	var triggers []binding.Binding
	for _, b := range c.Bindings {
		if binding.IsTrigger(b) {
			triggers = append(triggers, b)
		}
	}
	return triggers
}

// Marshal returns the indented function.json document.
func (c *Configuration) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.Name, err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a function.json document. The name is not part of the
// document and must be supplied by the caller.
func Unmarshal(name string, data []byte) (*Configuration, error) {
	cfg := &Configuration{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s for %s: %w", FileName, name, err)
	}
	cfg.Name = name
	return cfg, nil
}
