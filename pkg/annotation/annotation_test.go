package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantName  string
		wantValue string
		wantAttrs map[string]any
	}{
		{
			name:     "bare marker",
			text:     "Disabled",
			wantName: "Disabled",
		},
		{
			name:      "positional value",
			text:      "FunctionName HttpTriggerFunction",
			wantName:  "FunctionName",
			wantValue: "HttpTriggerFunction",
		},
		{
			name:      "quoted value",
			text:      `StorageAccount "conn str"`,
			wantName:  "StorageAccount",
			wantValue: "conn str",
		},
		{
			name:     "attributes only",
			text:     "HttpTrigger {name: req, methods: [GET, POST]}",
			wantName: "HttpTrigger",
			wantAttrs: map[string]any{
				"name":    "req",
				"methods": []any{"GET", "POST"},
			},
		},
		{
			name:      "value and attributes",
			text:      "FunctionName fn {extra: true}",
			wantName:  "FunctionName",
			wantValue: "fn",
			wantAttrs: map[string]any{"extra": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, a.Name)
			assert.Equal(t, tt.wantValue, a.Value)
			assert.Equal(t, tt.wantAttrs, a.Attributes)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []string{
		"",
		"HttpTrigger {name: [unterminated}",
		`FunctionName "unterminated`,
		"HttpTrigger name req",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedAnnotation)
		})
	}
}

func TestParseParam(t *testing.T) {
	param, a, err := ParseParam("req HttpTrigger {authLevel: anonymous}")
	require.NoError(t, err)
	assert.Equal(t, "req", param)
	assert.Equal(t, "HttpTrigger", a.Name)
	assert.Equal(t, "anonymous", a.Attribute("authLevel"))

	_, _, err = ParseParam("req")
	assert.ErrorIs(t, err, ErrMalformedAnnotation)
}

func TestMethodMarkers(t *testing.T) {
	m := &Method{
		Package:  "example.com/app/handlers",
		Receiver: "Handler",
		Name:     "Run",
		Annotations: []Annotation{
			MustParse("FunctionName Hello"),
			MustParse("StorageAccount connStr"),
			MustParse("Disabled"),
		},
	}

	name, ok := m.FunctionName()
	assert.True(t, ok)
	assert.Equal(t, "Hello", name)
	assert.Equal(t, "connStr", m.StorageConnection())
	assert.True(t, m.IsDisabled())
	assert.Equal(t, "example.com/app/handlers.Handler.Run", m.EntryPoint())

	plain := &Method{Package: "example.com/app", Name: "Run"}
	_, ok = plain.FunctionName()
	assert.False(t, ok)
	assert.Equal(t, "", plain.StorageConnection())
	assert.Equal(t, "example.com/app.Run", plain.EntryPoint())
}

func TestFunctionNameFromValueAttribute(t *testing.T) {
	m := &Method{Annotations: []Annotation{MustParse("FunctionName {value: FromAttr}")}}
	name, ok := m.FunctionName()
	assert.True(t, ok)
	assert.Equal(t, "FromAttr", name)
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		comment   string
		wantParam string
		wantName  string
		wantValue string
	}{
		{"//azfunc:function HttpTriggerFunction", "", FunctionName, "HttpTriggerFunction"},
		{`//azfunc:function "Quoted Name"`, "", FunctionName, "Quoted Name"},
		{"//azfunc:storage connStr", "", StorageAccount, "connStr"},
		{"//azfunc:disabled", "", Disabled, ""},
		{"//azfunc:binding QueueOutput {queueName: out}", "", "QueueOutput", ""},
		{"//azfunc:param req HttpTrigger {authLevel: anonymous}", "req", "HttpTrigger", ""},
	}

	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			d, err := ParseDirective(tt.comment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantParam, d.Param)
			assert.Equal(t, tt.wantName, d.Annotation.Name)
			assert.Equal(t, tt.wantValue, d.Annotation.Value)
		})
	}
}

func TestParseDirectiveErrors(t *testing.T) {
	tests := []struct {
		comment string
		wantErr error
	}{
		{"//azfunc:FunctionName Fn", ErrUnknownDirective},
		{"//azfunc:queueOutput {queueName: out}", ErrUnknownDirective},
		{"//azfunc:binding", ErrMalformedAnnotation},
		{"//azfunc:param req", ErrMalformedAnnotation},
		{"//azfunc:binding HttpTrigger {authLevel: [", ErrMalformedAnnotation},
		{"// azfunc:function Fn", ErrMalformedAnnotation},
	}

	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			_, err := ParseDirective(tt.comment)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDirectiveLines(t *testing.T) {
	assert.True(t, IsDirective("//azfunc:function Fn"))
	assert.False(t, IsDirective("// azfunc:function Fn"))

	assert.True(t, IsMangledDirective("// azfunc:FunctionName Fn"))
	assert.True(t, IsMangledDirective("//\tazfunc:param req HttpTrigger"))
	assert.False(t, IsMangledDirective("//azfunc:function Fn"))
	assert.False(t, IsMangledDirective("// Hello greets azfunc: users"))
}
