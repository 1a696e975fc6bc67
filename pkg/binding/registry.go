package binding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flavioaiello/azure-functions-gen/pkg/annotation"
)

// CustomAnnotation is the annotation name of extension bindings.
const CustomAnnotation = "CustomBinding"

// Kind describes one binding kind: the annotation that produces it, its
// function.json type tag and direction, and a constructor.
type Kind struct {
	// Annotation is the directive name, e.g. "BlobInput".
	Annotation string
	// Type is the function.json type tag.
	Type string
	// Direction is the fixed direction of the kind. Empty for CustomBinding.
	Direction Direction
	// New returns a zero binding with Type and Direction set.
	New func() Binding
	// Match disambiguates kinds sharing a type and direction when decoding JSON.
	Match func(fields map[string]json.RawMessage) bool
}

// Registry maps annotation names to binding kinds.
// Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	byAnnotation map[string]Kind
}

// NewRegistry creates a registry holding the given kinds.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{byAnnotation: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the registry of built-in kinds.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(BuiltinKinds()...)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Register adds a kind. Annotation names must be unique.
func (r *Registry) Register(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAnnotation[k.Annotation]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k.Annotation)
	}
	r.byAnnotation[k.Annotation] = k
	return nil
}

// Lookup returns the kind registered for an annotation name.
func (r *Registry) Lookup(annotationName string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byAnnotation[annotationName]
	return k, ok
}

// Kinds returns all registered kinds ordered by annotation name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.byAnnotation))
	for _, k := range r.byAnnotation {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Annotation < kinds[j].Annotation
	})
	return kinds
}

// Claims returns the kind with a fixed type and direction equal to t and d.
// Such a pair always decodes as that kind, never as a custom binding.
func (r *Registry) Claims(t string, d Direction) (Kind, bool) {
	for _, k := range r.Kinds() {
		if k.Type != "" && k.Type == t && k.Direction == d {
			return k, true
		}
	}
	return Kind{}, false
}

// CreateForParameter builds the binding for an annotation on a parameter.
// The parameter name is used when the annotation declares no name.
// Unrecognized annotations yield (nil, nil).
func (r *Registry) CreateForParameter(a annotation.Annotation, param string) (Binding, error) {
	b, err := r.create(a)
	if err != nil || b == nil {
		return nil, err
	}
	if b.GetName() == "" {
		b.SetName(param)
	}
	return b, nil
}

// CreateForReturn builds the binding for a method-level annotation bound to
// the return value. The name is always "$return".
// Unrecognized annotations yield (nil, nil).
func (r *Registry) CreateForReturn(a annotation.Annotation) (Binding, error) {
	b, err := r.create(a)
	if err != nil || b == nil {
		return nil, err
	}
	b.SetName(ReturnName)
	return b, nil
}

func (r *Registry) create(a annotation.Annotation) (Binding, error) {
	k, ok := r.Lookup(a.Name)
	if !ok {
		return nil, nil
	}

	if a.Value != "" {
		return nil, fmt.Errorf("%w: %s does not take a positional value (got %q)",
			ErrMalformedAttributes, a.Name, a.Value)
	}

	b := k.New()
	if custom, ok := b.(*CustomBinding); ok {
		if err := custom.setAttributes(a.Attributes); err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		if k.Type == "" {
			if owner, claimed := r.Claims(custom.Type, custom.Direction); claimed {
				return nil, fmt.Errorf("%w: %s/%s belongs to %s",
					ErrReservedBindingType, custom.Type, custom.Direction, owner.Annotation)
			}
		}
		return custom, nil
	}

	if err := decodeAttributes(a.Attributes, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedAttributes, a.Name, err)
	}
	return b, nil
}

// decodeAttributes copies annotation attributes into a binding struct.
// Attributes without a matching field are rejected.
func decodeAttributes(attrs map[string]any, out Binding) error {
	if len(attrs) == 0 {
		return nil
	}

	data, err := yaml.Marshal(attrs)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Decode rebuilds a binding from its function.json representation.
// Types that no kind claims decode as CustomBinding.
func (r *Registry) Decode(data []byte) (Binding, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAttributes, err)
	}

	var head struct {
		Type      string    `json:"type"`
		Direction Direction `json:"direction"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAttributes, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownBindingType)
	}

	var b Binding = &CustomBinding{}
	for _, k := range r.Kinds() {
		if k.Type != head.Type || k.Direction != head.Direction {
			continue
		}
		if k.Match != nil && !k.Match(fields) {
			continue
		}
		b = k.New()
		break
	}

	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedAttributes, head.Type, err)
	}
	return b, nil
}

func hasField(name string) func(map[string]json.RawMessage) bool {
	return func(fields map[string]json.RawMessage) bool {
		_, ok := fields[name]
		return ok
	}
}

func not(f func(map[string]json.RawMessage) bool) func(map[string]json.RawMessage) bool {
	return func(fields map[string]json.RawMessage) bool {
		return !f(fields)
	}
}

// BuiltinKinds returns the built-in binding vocabulary.
func BuiltinKinds() []Kind {
	base := func(t string, d Direction) Base {
		return Base{Type: t, Direction: d}
	}

	return []Kind{
		{Annotation: "HttpTrigger", Type: TypeHTTPTrigger, Direction: In,
			New: func() Binding { return &HTTPTrigger{Base: base(TypeHTTPTrigger, In)} }},
		{Annotation: "HttpOutput", Type: TypeHTTP, Direction: Out,
			New: func() Binding { return &HTTPOutput{Base: base(TypeHTTP, Out)} }},
		{Annotation: "QueueTrigger", Type: TypeQueueTrigger, Direction: In,
			New: func() Binding { return &QueueTrigger{Base: base(TypeQueueTrigger, In)} }},
		{Annotation: "QueueOutput", Type: TypeQueue, Direction: Out,
			New: func() Binding { return &QueueOutput{Base: base(TypeQueue, Out)} }},
		{Annotation: "BlobTrigger", Type: TypeBlobTrigger, Direction: In,
			New: func() Binding { return &BlobTrigger{Base: base(TypeBlobTrigger, In)} }},
		{Annotation: "BlobInput", Type: TypeBlob, Direction: In,
			New: func() Binding { return &BlobInput{Base: base(TypeBlob, In)} }},
		{Annotation: "BlobOutput", Type: TypeBlob, Direction: Out,
			New: func() Binding { return &BlobOutput{Base: base(TypeBlob, Out)} }},
		{Annotation: "TableInput", Type: TypeTable, Direction: In,
			New: func() Binding { return &TableInput{Base: base(TypeTable, In)} }},
		{Annotation: "TableOutput", Type: TypeTable, Direction: Out,
			New: func() Binding { return &TableOutput{Base: base(TypeTable, Out)} }},
		{Annotation: "TimerTrigger", Type: TypeTimerTrigger, Direction: In,
			New: func() Binding { return &TimerTrigger{Base: base(TypeTimerTrigger, In)} }},
		{Annotation: "EventHubTrigger", Type: TypeEventHubTrigger, Direction: In,
			New: func() Binding { return &EventHubTrigger{Base: base(TypeEventHubTrigger, In)} }},
		{Annotation: "EventHubOutput", Type: TypeEventHub, Direction: Out,
			New: func() Binding { return &EventHubOutput{Base: base(TypeEventHub, Out)} }},
		{Annotation: "ServiceBusQueueTrigger", Type: TypeServiceBusTrigger, Direction: In,
			New:   func() Binding { return &ServiceBusQueueTrigger{Base: base(TypeServiceBusTrigger, In)} },
			Match: not(hasField("topicName"))},
		{Annotation: "ServiceBusTopicTrigger", Type: TypeServiceBusTrigger, Direction: In,
			New:   func() Binding { return &ServiceBusTopicTrigger{Base: base(TypeServiceBusTrigger, In)} },
			Match: hasField("topicName")},
		{Annotation: "ServiceBusQueueOutput", Type: TypeServiceBus, Direction: Out,
			New:   func() Binding { return &ServiceBusQueueOutput{Base: base(TypeServiceBus, Out)} },
			Match: not(hasField("topicName"))},
		{Annotation: "ServiceBusTopicOutput", Type: TypeServiceBus, Direction: Out,
			New:   func() Binding { return &ServiceBusTopicOutput{Base: base(TypeServiceBus, Out)} },
			Match: hasField("topicName")},
		{Annotation: "CosmosDBTrigger", Type: TypeCosmosDBTrigger, Direction: In,
			New: func() Binding { return &CosmosDBTrigger{Base: base(TypeCosmosDBTrigger, In)} }},
		{Annotation: "CosmosDBInput", Type: TypeCosmosDB, Direction: In,
			New: func() Binding { return &CosmosDBInput{Base: base(TypeCosmosDB, In)} }},
		{Annotation: "CosmosDBOutput", Type: TypeCosmosDB, Direction: Out,
			New: func() Binding { return &CosmosDBOutput{Base: base(TypeCosmosDB, Out)} }},
		{Annotation: "EventGridTrigger", Type: TypeEventGridTrigger, Direction: In,
			New: func() Binding { return &EventGridTrigger{Base: base(TypeEventGridTrigger, In)} }},
		{Annotation: CustomAnnotation,
			New: func() Binding { return &CustomBinding{} }},
	}
}
