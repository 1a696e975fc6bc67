package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
)

// Test constants to avoid literal duplication.
const (
	testGitRepo   = "github.com/org/repo"
	testOutputDir = "dist"
)

var testRoots = []string{"./handlers"}

func testConfigurations() map[string]*function.Configuration {
	return map[string]*function.Configuration{
		"Hello": {
			Name:       "Hello",
			EntryPoint: "example.com/app.Hello",
			Bindings: function.Bindings{
				&binding.HTTPTrigger{Base: binding.Base{Type: binding.TypeHTTPTrigger, Direction: binding.In, Name: "req"}},
				&binding.HTTPOutput{Base: binding.Base{Type: binding.TypeHTTP, Direction: binding.Out, Name: binding.ReturnName}},
			},
		},
		"Nightly": {
			Name:       "Nightly",
			EntryPoint: "example.com/app.Jobs.Nightly",
			Disabled:   true,
			Bindings: function.Bindings{
				&binding.TimerTrigger{Base: binding.Base{Type: binding.TypeTimerTrigger, Direction: binding.In, Name: "timer"}},
			},
		},
	}
}

func TestNewLogger(t *testing.T) {
	zapLogger, _ := zap.NewDevelopment() //nolint:errcheck // Test setup
	logger := NewLogger(zapLogger)

	assert.NotNil(t, logger)
	assert.NotNil(t, logger.log)
}

func TestCreateRecord(t *testing.T) {
	logger := NewLogger(zap.NewNop())

	t.Setenv("GIT_COMMIT_SHA", "abc123")
	t.Setenv("GIT_BRANCH", "main")
	t.Setenv("GIT_REPO", testGitRepo)
	t.Setenv("USER", "testuser")

	record := logger.CreateRecord(GenerateAction, testOutputDir, testRoots)

	assert.Equal(t, "abc123", record.GitSHA)
	assert.Equal(t, "main", record.GitBranch)
	assert.Equal(t, testGitRepo, record.GitRepo)
	assert.Equal(t, GenerateAction, record.Action)
	assert.Equal(t, testOutputDir, record.OutputDir)
	assert.Equal(t, testRoots, record.Roots)
	assert.Contains(t, record.Operator, "testuser")
	assert.NotNil(t, record.Summary)
	assert.Equal(t, time.UTC, record.Timestamp.Location())
}

func TestRecordToJSON(t *testing.T) {
	record := Record{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Action:    PackageAction,
		Roots:     testRoots,
		OutputDir: testOutputDir,
		GitSHA:    "abc123",
		Operator:  "testuser@testhost",
		Summary:   Summarize(testConfigurations()),
	}

	jsonStr, err := record.ToJSON()
	require.NoError(t, err)

	assert.Contains(t, jsonStr, `"action":"package"`)
	assert.Contains(t, jsonStr, `"output_dir":"dist"`)
	assert.Contains(t, jsonStr, `"git_sha":"abc123"`)
	assert.Contains(t, jsonStr, `"functions":2`)
}

func TestRecordEmptySummary(t *testing.T) {
	record := Record{
		Timestamp: time.Now(),
		Action:    ValidateAction,
	}

	jsonStr, err := record.ToJSON()
	require.NoError(t, err)

	// Summary is nil and omitempty, so it should NOT appear in JSON
	assert.NotContains(t, jsonStr, `"summary"`)
}

func TestSummarize(t *testing.T) {
	s := Summarize(testConfigurations())

	assert.Equal(t, 2, s.Functions)
	assert.Equal(t, 1, s.Disabled)
	assert.Equal(t, 3, s.Bindings)
	assert.Equal(t, map[string]int{"httpTrigger": 1, "timerTrigger": 1}, s.Triggers)
	assert.False(t, s.IsEmpty())
	assert.True(t, Summarize(nil).IsEmpty())
	assert.False(t, Summary{Removed: 1}.IsEmpty())
}

func TestLogProvenance(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewLogger(zap.New(core))

	record := logger.CreateRecord(GenerateAction, testOutputDir, testRoots)
	record.Summary = Summarize(testConfigurations())
	logger.LogProvenance(record)

	entries := logs.FilterMessage("provenance").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "generate", fields["action"])
	assert.Equal(t, testOutputDir, fields["output_dir"])
}

func TestLogFunctionDetail(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewLogger(zap.New(core))

	record := Record{Action: GenerateAction, GitSHA: "abc123"}
	logger.LogFunctionDetail(record, testConfigurations()["Hello"])

	entries := logs.FilterMessage("function_detail").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Hello", fields["function"])
	assert.Equal(t, "example.com/app.Hello", fields["entry_point"])
	assert.Equal(t, []interface{}{"http/out", "httpTrigger/in"}, fields["bindings"])
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "generate", string(GenerateAction))
	assert.Equal(t, "package", string(PackageAction))
	assert.Equal(t, "validate", string(ValidateAction))
}
