// Package binding provides the closed set of Azure Functions binding kinds.
//
// Each kind is a concrete struct whose JSON shape matches the function.json
// schema. A Registry maps annotation names to kinds and builds bindings from
// parsed annotations.
package binding

import (
	"errors"
)

// Direction is the data flow direction of a binding.
type Direction string

const (
	// In is an input or trigger binding.
	In Direction = "in"
	// Out is an output binding.
	Out Direction = "out"
	// InOut is a bidirectional binding.
	InOut Direction = "inout"
)

// ReturnName is the binding name bound to the function's return value.
const ReturnName = "$return"

// Binding type tags as they appear in function.json.
const (
	TypeHTTPTrigger       = "httpTrigger"
	TypeHTTP              = "http"
	TypeQueueTrigger      = "queueTrigger"
	TypeQueue             = "queue"
	TypeBlobTrigger       = "blobTrigger"
	TypeBlob              = "blob"
	TypeTable             = "table"
	TypeTimerTrigger      = "timerTrigger"
	TypeEventHubTrigger   = "eventHubTrigger"
	TypeEventHub          = "eventHub"
	TypeServiceBusTrigger = "serviceBusTrigger"
	TypeServiceBus        = "serviceBus"
	TypeCosmosDBTrigger   = "cosmosDBTrigger"
	TypeCosmosDB          = "cosmosDB"
	TypeEventGridTrigger  = "eventGridTrigger"
)

// Errors.
var (
	ErrMalformedAttributes = errors.New("malformed binding attributes")
	ErrUnknownBindingType  = errors.New("unknown binding type")
	ErrDuplicateKind       = errors.New("binding kind already registered")
	ErrInvalidBinding      = errors.New("invalid binding")
	ErrReservedBindingType = errors.New("custom binding uses the type and direction of a built-in kind")
)

// Binding is implemented by every binding kind.
type Binding interface {
	// GetType returns the canonical type tag.
	GetType() string
	// GetDirection returns the binding direction.
	GetDirection() Direction
	// GetName returns the binding name.
	GetName() string
	// SetName replaces the binding name.
	SetName(name string)
}

// StorageBinding is implemented by the storage family (blob, queue, table),
// whose connection can default to the function's storage account.
type StorageBinding interface {
	Binding
	GetConnection() string
	SetConnection(connection string)
}

// Base holds the fields shared by all bindings.
type Base struct {
	Type      string    `json:"type" yaml:"-" validate:"required"`
	Direction Direction `json:"direction" yaml:"-" validate:"required,oneof=in out inout"`
	Name      string    `json:"name" yaml:"name" validate:"required,bindingname"`
}

// GetType returns the canonical type tag.
func (b *Base) GetType() string { return b.Type }

// GetDirection returns the binding direction.
func (b *Base) GetDirection() Direction { return b.Direction }

// GetName returns the binding name.
func (b *Base) GetName() string { return b.Name }

// SetName replaces the binding name.
func (b *Base) SetName(name string) { b.Name = name }

// Storage holds the connection setting of storage-family bindings.
type Storage struct {
	Connection string `json:"connection,omitempty" yaml:"connection"`
}

// GetConnection returns the connection app setting name.
func (s *Storage) GetConnection() string { return s.Connection }

// SetConnection sets the connection app setting name.
func (s *Storage) SetConnection(connection string) { s.Connection = connection }

// IsTrigger reports whether the binding is a trigger.
func IsTrigger(b Binding) bool {
	t := b.GetType()
	return len(t) > len("Trigger") && t[len(t)-len("Trigger"):] == "Trigger"
}

// IsStorage reports whether the binding belongs to the storage family.
func IsStorage(b Binding) bool {
	_, ok := b.(StorageBinding)
	return ok
}
