// Package generator maps annotated function declarations to function.json
// configurations.
//
// Generation per function is linear:
//
//	ScanningParameters -> ScanningMethodAnnotations -> PatchingStorageConnections -> Finalizing
//
// Any error aborts the whole run; no partial result is returned.
package generator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/annotation"
	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
)

// Errors.
var (
	ErrInvalidFunctionName    = errors.New("function name must not be blank")
	ErrDuplicateFunctionName  = errors.New("duplicate function name")
	ErrDuplicateReturnBinding = errors.New("more than one binding targets $return")
	ErrDuplicateBindingName   = errors.New("duplicate binding name")
	ErrNotAFunction           = errors.New("method has no FunctionName annotation")
)

// NameSet records the function names seen in one generation run.
// Names compare case-insensitively.
type NameSet struct {
	seen map[string]string
}

// NewNameSet creates an empty name set.
func NewNameSet() *NameSet {
	return &NameSet{seen: make(map[string]string)}
}

// Add records name, failing if it is blank or was already added in any case.
func (s *NameSet) Add(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidFunctionName
	}
	key := strings.ToLower(name)
	if existing, ok := s.seen[key]; ok {
		return fmt.Errorf("%w: %s (conflicts with %s)", ErrDuplicateFunctionName, name, existing)
	}
	s.seen[key] = name
	return nil
}

// Len returns the number of recorded names.
func (s *NameSet) Len() int {
	return len(s.seen)
}

// Options configures generated configurations.
type Options struct {
	// ScriptFile is written to every configuration's scriptFile field.
	ScriptFile string
}

// Generator builds function configurations from method metadata.
type Generator struct {
	registry *binding.Registry
	logger   *zap.Logger
	opts     Options
}

// New creates a generator. A nil registry selects the built-in kinds.
func New(registry *binding.Registry, logger *zap.Logger, opts Options) *Generator {
	if registry == nil {
		registry = binding.DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// GenerateConfigurations validates every function name against seen and
// returns one configuration per function keyed by name.
func (g *Generator) GenerateConfigurations(
	methods []*annotation.Method,
	seen *NameSet,
) (map[string]*function.Configuration, error) {
	if seen == nil {
		seen = NewNameSet()
	}

	ordered := make([]*annotation.Method, len(methods))
	copy(ordered, methods)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EntryPoint() < ordered[j].EntryPoint()
	})

	configs := make(map[string]*function.Configuration, len(ordered))
	for _, m := range ordered {
		name, ok := m.FunctionName()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotAFunction, m.EntryPoint())
		}
		if err := seen.Add(name); err != nil {
			return nil, fmt.Errorf("%s: %w", m.EntryPoint(), err)
		}

		g.logger.Debug("Generating configuration",
			zap.String("function", name),
			zap.String("entry_point", m.EntryPoint()),
		)

		cfg, err := g.GenerateConfiguration(name, m)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		configs[name] = cfg
	}

	g.logger.Info("Generated function configurations",
		zap.Int("count", len(configs)),
	)

	return configs, nil
}

// GenerateConfiguration builds the configuration for a single method.
// Name uniqueness is the caller's concern; see GenerateConfigurations.
func (g *Generator) GenerateConfiguration(name string, m *annotation.Method) (*function.Configuration, error) {
	bindings, err := g.scanParameters(m)
	if err != nil {
		return nil, err
	}

	if m.ReturnsVoid {
		g.warnIgnoredReturnBindings(name, m)
	} else {
		bindings, err = g.scanMethodAnnotations(m, bindings)
		if err != nil {
			return nil, err
		}
	}

	patchStorageConnections(m.StorageConnection(), bindings)

	if err := checkBindingNames(bindings); err != nil {
		return nil, err
	}

	return &function.Configuration{
		Name:       name,
		ScriptFile: g.opts.ScriptFile,
		EntryPoint: m.EntryPoint(),
		Disabled:   m.IsDisabled(),
		Bindings:   bindings,
	}, nil
}

// warnIgnoredReturnBindings reports method-level bindings on a function
// without a return value. They have nothing to bind to and are not emitted.
func (g *Generator) warnIgnoredReturnBindings(name string, m *annotation.Method) {
	for _, a := range m.Annotations {
		if _, ok := g.registry.Lookup(a.Name); !ok {
			continue
		}
		g.logger.Warn("Ignoring return binding on a function without a return value",
			zap.String("function", name),
			zap.String("entry_point", m.EntryPoint()),
			zap.String("binding", a.Name),
		)
	}
}

// scanParameters collects parameter bindings in declaration order.
func (g *Generator) scanParameters(m *annotation.Method) (function.Bindings, error) {
	var bindings function.Bindings
	for _, p := range m.Parameters {
		for _, a := range p.Annotations {
			b, err := g.registry.CreateForParameter(a, p.Name)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			if b != nil {
				bindings = append(bindings, b)
			}
		}
	}
	return bindings, nil
}

// scanMethodAnnotations collects return-value bindings and adds the implicit
// HTTP response for HTTP-triggered functions without an explicit $return.
func (g *Generator) scanMethodAnnotations(m *annotation.Method, bindings function.Bindings) (function.Bindings, error) {
	for _, a := range m.Annotations {
		b, err := g.registry.CreateForReturn(a)
		if err != nil {
			return nil, fmt.Errorf("return value: %w", err)
		}
		if b != nil {
			bindings = append(bindings, b)
		}
	}

	if hasType(bindings, binding.TypeHTTPTrigger) && !hasName(bindings, binding.ReturnName) {
		bindings = append(bindings, &binding.HTTPOutput{
			Base: binding.Base{
				Type:      binding.TypeHTTP,
				Direction: binding.Out,
				Name:      binding.ReturnName,
			},
		})
	}
	return bindings, nil
}

// patchStorageConnections fills empty storage-family connections with the
// method's storage account. Explicit connections are kept.
func patchStorageConnections(connection string, bindings function.Bindings) {
	if connection == "" {
		return
	}
	for _, b := range bindings {
		sb, ok := b.(binding.StorageBinding)
		if !ok || sb.GetConnection() != "" {
			continue
		}
		sb.SetConnection(connection)
	}
}

// checkBindingNames rejects duplicate binding names, case-insensitively.
func checkBindingNames(bindings function.Bindings) error {
	seen := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		key := strings.ToLower(b.GetName())
		if !seen[key] {
			seen[key] = true
			continue
		}
		if b.GetName() == binding.ReturnName {
			return ErrDuplicateReturnBinding
		}
		return fmt.Errorf("%w: %s", ErrDuplicateBindingName, b.GetName())
	}
	return nil
}

func hasType(bindings function.Bindings, t string) bool {
	for _, b := range bindings {
		if b.GetType() == t {
			return true
		}
	}
	return false
}

func hasName(bindings function.Bindings, name string) bool {
	for _, b := range bindings {
		if b.GetName() == name {
			return true
		}
	}
	return false
}
