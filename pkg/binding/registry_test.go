package binding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavioaiello/azure-functions-gen/pkg/annotation"
)

func TestCreateForParameter(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name          string
		directive     string
		param         string
		wantType      string
		wantDirection Direction
		wantName      string
	}{
		{"http trigger", "HttpTrigger {name: req}", "request", TypeHTTPTrigger, In, "req"},
		{"name defaults to parameter", "HttpTrigger", "request", TypeHTTPTrigger, In, "request"},
		{"queue trigger", "QueueTrigger {queueName: orders}", "msg", TypeQueueTrigger, In, "msg"},
		{"blob input", "BlobInput {name: in2, path: path}", "p", TypeBlob, In, "in2"},
		{"blob output", "BlobOutput {path: 'out/{name}'}", "p", TypeBlob, Out, "p"},
		{"table input", "TableInput {tableName: people, take: 50}", "rows", TypeTable, In, "rows"},
		{"timer", "TimerTrigger {schedule: '0 */5 * * * *'}", "timer", TypeTimerTrigger, In, "timer"},
		{"event hub", "EventHubTrigger {eventHubName: hub}", "ev", TypeEventHubTrigger, In, "ev"},
		{"service bus topic", "ServiceBusTopicTrigger {topicName: t, subscriptionName: s}", "m", TypeServiceBusTrigger, In, "m"},
		{"custom", "CustomBinding {type: kafkaTrigger, direction: in, topic: t}", "k", "kafkaTrigger", In, "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := r.CreateForParameter(annotation.MustParse(tt.directive), tt.param)
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.Equal(t, tt.wantType, b.GetType())
			assert.Equal(t, tt.wantDirection, b.GetDirection())
			assert.Equal(t, tt.wantName, b.GetName())
		})
	}
}

func TestCreateCopiesAttributesVerbatim(t *testing.T) {
	b, err := DefaultRegistry().CreateForParameter(
		annotation.MustParse("HttpTrigger {name: req, route: 'items/{id}', methods: [GET, POST], authLevel: anonymous}"),
		"req",
	)
	require.NoError(t, err)

	trigger, ok := b.(*HTTPTrigger)
	require.True(t, ok)
	assert.Equal(t, "items/{id}", trigger.Route)
	assert.Equal(t, []string{"GET", "POST"}, trigger.Methods)
	assert.Equal(t, "anonymous", trigger.AuthLevel)
}

func TestCreateForReturnForcesReturnName(t *testing.T) {
	b, err := DefaultRegistry().CreateForReturn(annotation.MustParse("QueueOutput {name: ignored, queueName: out}"))
	require.NoError(t, err)
	assert.Equal(t, ReturnName, b.GetName())
	assert.Equal(t, Out, b.GetDirection())
}

func TestCreateUnrecognizedAnnotation(t *testing.T) {
	r := DefaultRegistry()

	for _, directive := range []string{"FunctionName fn", "StorageAccount conn", "Deprecated"} {
		b, err := r.CreateForReturn(annotation.MustParse(directive))
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestCreateMalformedAttributes(t *testing.T) {
	r := DefaultRegistry()

	tests := []string{
		"QueueTrigger {queueName: q, bogus: 1}",
		"QueueTrigger positional",
		"HttpTrigger {type: queue}",
		"CustomBinding {type: [a, b]}",
	}

	for _, directive := range tests {
		t.Run(directive, func(t *testing.T) {
			_, err := r.CreateForParameter(annotation.MustParse(directive), "p")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedAttributes)
		})
	}
}

func TestStorageFamily(t *testing.T) {
	r := DefaultRegistry()

	storage := []string{"QueueTrigger", "QueueOutput", "BlobTrigger", "BlobInput", "BlobOutput", "TableInput", "TableOutput"}
	for _, name := range storage {
		b, err := r.CreateForParameter(annotation.Annotation{Name: name}, "p")
		require.NoError(t, err)
		assert.True(t, IsStorage(b), name)
	}

	other := []string{"HttpTrigger", "EventHubTrigger", "ServiceBusQueueTrigger", "CosmosDBInput", "TimerTrigger"}
	for _, name := range other {
		b, err := r.CreateForParameter(annotation.Annotation{Name: name}, "p")
		require.NoError(t, err)
		assert.False(t, IsStorage(b), name)
	}
}

func TestIsTrigger(t *testing.T) {
	assert.True(t, IsTrigger(&HTTPTrigger{Base: Base{Type: TypeHTTPTrigger}}))
	assert.True(t, IsTrigger(&CustomBinding{Base: Base{Type: "kafkaTrigger"}}))
	assert.False(t, IsTrigger(&HTTPOutput{Base: Base{Type: TypeHTTP}}))
	assert.False(t, IsTrigger(&CustomBinding{Base: Base{Type: "Trigger"}}))
}

func TestRegisterDuplicateKind(t *testing.T) {
	r, err := NewRegistry(BuiltinKinds()...)
	require.NoError(t, err)

	err = r.Register(Kind{Annotation: "HttpTrigger"})
	assert.ErrorIs(t, err, ErrDuplicateKind)
}

func TestRegisterExtensionKind(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.Register(Kind{
		Annotation: "SignalROutput",
		Type:       "signalR",
		Direction:  Out,
		New: func() Binding {
			return &CustomBinding{Base: Base{Type: "signalR", Direction: Out}}
		},
	}))

	b, err := r.CreateForReturn(annotation.MustParse("SignalROutput {hubName: chat}"))
	require.NoError(t, err)
	assert.Equal(t, "signalR", b.GetType())
	assert.Equal(t, "chat", b.(*CustomBinding).Properties["hubName"])
}

func TestDecode(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		json string
		want interface{}
	}{
		{"http trigger", `{"type":"httpTrigger","direction":"in","name":"req"}`, &HTTPTrigger{}},
		{"blob input", `{"type":"blob","direction":"in","name":"b","path":"p"}`, &BlobInput{}},
		{"blob output", `{"type":"blob","direction":"out","name":"b","path":"p"}`, &BlobOutput{}},
		{"service bus queue", `{"type":"serviceBusTrigger","direction":"in","name":"m","queueName":"q"}`, &ServiceBusQueueTrigger{}},
		{"service bus topic", `{"type":"serviceBusTrigger","direction":"in","name":"m","topicName":"t","subscriptionName":"s"}`, &ServiceBusTopicTrigger{}},
		{"unknown type", `{"type":"kafkaTrigger","direction":"in","name":"k","topic":"t"}`, &CustomBinding{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := r.Decode([]byte(tt.json))
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}

	_, err := r.Decode([]byte(`{"direction":"in"}`))
	assert.ErrorIs(t, err, ErrUnknownBindingType)

	_, err = r.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedAttributes)
}

func TestCustomBindingJSON(t *testing.T) {
	b := &CustomBinding{
		Base:       Base{Type: "kafkaTrigger", Direction: In, Name: "k"},
		Properties: map[string]any{"topic": "orders", "brokerList": "%Brokers%"},
	}

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"kafkaTrigger","direction":"in","name":"k","topic":"orders","brokerList":"%Brokers%"}`, string(data))
	assert.Contains(t, string(data), `{"type":"kafkaTrigger","direction":"in","name":"k",`)

	decoded, err := DefaultRegistry().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}

func TestCreateCustomBindingWithBuiltinPair(t *testing.T) {
	r := DefaultRegistry()

	tests := []string{
		"CustomBinding {type: http, direction: out, name: res, headers: x}",
		"CustomBinding {type: blob, direction: in, path: p}",
		"CustomBinding {type: serviceBusTrigger, direction: in, queueName: q}",
	}

	for _, directive := range tests {
		t.Run(directive, func(t *testing.T) {
			_, err := r.CreateForParameter(annotation.MustParse(directive), "p")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrReservedBindingType)
		})
	}

	b, err := r.CreateForParameter(annotation.MustParse("CustomBinding {type: http, direction: in}"), "p")
	require.NoError(t, err, "a pair no kind claims stays custom")
	assert.Equal(t, "http", b.GetType())
}

func TestClaims(t *testing.T) {
	r := DefaultRegistry()

	k, ok := r.Claims(TypeHTTP, Out)
	require.True(t, ok)
	assert.Equal(t, "HttpOutput", k.Annotation)

	_, ok = r.Claims("kafkaTrigger", In)
	assert.False(t, ok)

	_, ok = r.Claims("", "")
	assert.False(t, ok, "the custom kind claims nothing")
}
