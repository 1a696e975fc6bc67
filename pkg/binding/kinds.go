package binding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// HTTPTrigger is an httpTrigger binding.
type HTTPTrigger struct {
	Base      `yaml:",inline"`
	DataType  string   `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	Route     string   `json:"route,omitempty" yaml:"route"`
	Methods   []string `json:"methods,omitempty" yaml:"methods" validate:"dive,oneofci=GET POST PUT DELETE HEAD PATCH OPTIONS TRACE CONNECT"`
	AuthLevel string   `json:"authLevel,omitempty" yaml:"authLevel" validate:"omitempty,oneofci=anonymous function admin"`
}

// HTTPOutput is an http output binding.
type HTTPOutput struct {
	Base     `yaml:",inline"`
	DataType string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
}

// QueueTrigger is a queueTrigger binding.
type QueueTrigger struct {
	Base      `yaml:",inline"`
	DataType  string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	QueueName string `json:"queueName" yaml:"queueName" validate:"required"`
	Storage   `yaml:",inline"`
}

// QueueOutput is a queue output binding.
type QueueOutput struct {
	Base      `yaml:",inline"`
	DataType  string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	QueueName string `json:"queueName" yaml:"queueName" validate:"required"`
	Storage   `yaml:",inline"`
}

// BlobTrigger is a blobTrigger binding.
type BlobTrigger struct {
	Base     `yaml:",inline"`
	DataType string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	Path     string `json:"path" yaml:"path" validate:"required"`
	Storage  `yaml:",inline"`
}

// BlobInput is a blob input binding.
type BlobInput struct {
	Base     `yaml:",inline"`
	DataType string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	Path     string `json:"path" yaml:"path" validate:"required"`
	Storage  `yaml:",inline"`
}

// BlobOutput is a blob output binding.
type BlobOutput struct {
	Base     `yaml:",inline"`
	DataType string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	Path     string `json:"path" yaml:"path" validate:"required"`
	Storage  `yaml:",inline"`
}

// TableInput is a table input binding.
type TableInput struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	TableName    string `json:"tableName" yaml:"tableName" validate:"required"`
	PartitionKey string `json:"partitionKey,omitempty" yaml:"partitionKey"`
	RowKey       string `json:"rowKey,omitempty" yaml:"rowKey"`
	Filter       string `json:"filter,omitempty" yaml:"filter"`
	Take         string `json:"take,omitempty" yaml:"take" validate:"omitempty,numeric"`
	Storage      `yaml:",inline"`
}

// TableOutput is a table output binding.
type TableOutput struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	TableName    string `json:"tableName" yaml:"tableName" validate:"required"`
	PartitionKey string `json:"partitionKey,omitempty" yaml:"partitionKey"`
	RowKey       string `json:"rowKey,omitempty" yaml:"rowKey"`
	Storage      `yaml:",inline"`
}

// TimerTrigger is a timerTrigger binding.
type TimerTrigger struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	Schedule     string `json:"schedule" yaml:"schedule" validate:"required,schedule"`
	RunOnStartup bool   `json:"runOnStartup,omitempty" yaml:"runOnStartup"`
	UseMonitor   *bool  `json:"useMonitor,omitempty" yaml:"useMonitor"`
}

// EventHubTrigger is an eventHubTrigger binding.
type EventHubTrigger struct {
	Base          `yaml:",inline"`
	DataType      string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	EventHubName  string `json:"eventHubName" yaml:"eventHubName" validate:"required"`
	Cardinality   string `json:"cardinality,omitempty" yaml:"cardinality" validate:"omitempty,oneofci=one many"`
	ConsumerGroup string `json:"consumerGroup,omitempty" yaml:"consumerGroup"`
	Connection    string `json:"connection,omitempty" yaml:"connection"`
}

// EventHubOutput is an eventHub output binding.
type EventHubOutput struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	EventHubName string `json:"eventHubName" yaml:"eventHubName" validate:"required"`
	Connection   string `json:"connection,omitempty" yaml:"connection"`
}

// ServiceBusQueueTrigger is a serviceBusTrigger binding on a queue.
type ServiceBusQueueTrigger struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	QueueName    string `json:"queueName" yaml:"queueName" validate:"required"`
	Connection   string `json:"connection,omitempty" yaml:"connection"`
	AccessRights string `json:"accessRights,omitempty" yaml:"accessRights" validate:"omitempty,oneofci=manage listen"`
}

// ServiceBusTopicTrigger is a serviceBusTrigger binding on a topic subscription.
type ServiceBusTopicTrigger struct {
	Base             `yaml:",inline"`
	DataType         string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	TopicName        string `json:"topicName" yaml:"topicName" validate:"required"`
	SubscriptionName string `json:"subscriptionName" yaml:"subscriptionName" validate:"required"`
	Connection       string `json:"connection,omitempty" yaml:"connection"`
	AccessRights     string `json:"accessRights,omitempty" yaml:"accessRights" validate:"omitempty,oneofci=manage listen"`
}

// ServiceBusQueueOutput is a serviceBus output binding to a queue.
type ServiceBusQueueOutput struct {
	Base         `yaml:",inline"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	QueueName    string `json:"queueName" yaml:"queueName" validate:"required"`
	Connection   string `json:"connection,omitempty" yaml:"connection"`
	AccessRights string `json:"accessRights,omitempty" yaml:"accessRights" validate:"omitempty,oneofci=manage listen"`
}

// ServiceBusTopicOutput is a serviceBus output binding to a topic.
type ServiceBusTopicOutput struct {
	Base             `yaml:",inline"`
	DataType         string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
	TopicName        string `json:"topicName" yaml:"topicName" validate:"required"`
	SubscriptionName string `json:"subscriptionName,omitempty" yaml:"subscriptionName"`
	Connection       string `json:"connection,omitempty" yaml:"connection"`
	AccessRights     string `json:"accessRights,omitempty" yaml:"accessRights" validate:"omitempty,oneofci=manage listen"`
}

// CosmosDBTrigger is a cosmosDBTrigger binding.
type CosmosDBTrigger struct {
	Base                            `yaml:",inline"`
	DatabaseName                    string `json:"databaseName" yaml:"databaseName" validate:"required"`
	ContainerName                   string `json:"containerName" yaml:"containerName" validate:"required"`
	Connection                      string `json:"connection" yaml:"connection" validate:"required"`
	LeaseContainerName              string `json:"leaseContainerName,omitempty" yaml:"leaseContainerName"`
	CreateLeaseContainerIfNotExists bool   `json:"createLeaseContainerIfNotExists,omitempty" yaml:"createLeaseContainerIfNotExists"`
}

// CosmosDBInput is a cosmosDB input binding.
type CosmosDBInput struct {
	Base          `yaml:",inline"`
	DatabaseName  string `json:"databaseName" yaml:"databaseName" validate:"required"`
	ContainerName string `json:"containerName" yaml:"containerName" validate:"required"`
	Connection    string `json:"connection" yaml:"connection" validate:"required"`
	ID            string `json:"id,omitempty" yaml:"id"`
	PartitionKey  string `json:"partitionKey,omitempty" yaml:"partitionKey"`
	SQLQuery      string `json:"sqlQuery,omitempty" yaml:"sqlQuery"`
}

// CosmosDBOutput is a cosmosDB output binding.
type CosmosDBOutput struct {
	Base              `yaml:",inline"`
	DatabaseName      string `json:"databaseName" yaml:"databaseName" validate:"required"`
	ContainerName     string `json:"containerName" yaml:"containerName" validate:"required"`
	Connection        string `json:"connection" yaml:"connection" validate:"required"`
	CreateIfNotExists bool   `json:"createIfNotExists,omitempty" yaml:"createIfNotExists"`
	PartitionKey      string `json:"partitionKey,omitempty" yaml:"partitionKey"`
}

// EventGridTrigger is an eventGridTrigger binding.
type EventGridTrigger struct {
	Base     `yaml:",inline"`
	DataType string `json:"dataType,omitempty" yaml:"dataType" validate:"omitempty,oneofci=string binary stream"`
}

// CustomBinding is an extension binding whose type and direction are declared
// by the author. Every other attribute is emitted as-is.
type CustomBinding struct {
	Base
	Properties map[string]any `json:"-"`
}

// reserved keys are carried by Base, not Properties.
var reservedKeys = map[string]bool{"type": true, "direction": true, "name": true}

func (c *CustomBinding) setAttributes(attrs map[string]any) error {
	c.Properties = map[string]any{}
	for k, v := range attrs {
		if !reservedKeys[k] {
			c.Properties[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: attribute %q must be a string", ErrMalformedAttributes, k)
		}
		switch k {
		case "type":
			c.Type = s
		case "direction":
			c.Direction = Direction(s)
		case "name":
			c.Name = s
		}
	}
	return nil
}

// MarshalJSON emits the common fields first, then properties in key order.
func (c CustomBinding) MarshalJSON() ([]byte, error) {
	head, err := json.Marshal(c.Base)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(c.Properties))
	for k := range c.Properties {
		if !reservedKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(head[:len(head)-1])
	for _, k := range keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(c.Properties[k])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON splits the common fields from the extension properties.
func (c *CustomBinding) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.Base); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	c.Properties = map[string]any{}
	for k, v := range all {
		if !reservedKeys[k] {
			c.Properties[k] = v
		}
	}
	return nil
}
