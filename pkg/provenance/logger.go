// Package provenance provides an audit trail for generation runs.
//
// Records who generated which function descriptors, when, and from which git
// commit, so a deployed function app can be traced back to its source.
package provenance

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
)

// Action represents the type of operation performed.
type Action string

const (
	GenerateAction Action = "generate"
	PackageAction  Action = "package"
	ValidateAction Action = "validate"
)

// Record captures the provenance of a generation run.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Roots     []string  `json:"roots"`
	OutputDir string    `json:"output_dir"`
	GitSHA    string    `json:"git_sha,omitempty"`
	GitBranch string    `json:"git_branch,omitempty"`
	GitRepo   string    `json:"git_repo,omitempty"`
	Operator  string    `json:"operator"` // user@host
	Summary   *Summary  `json:"summary,omitempty"`
}

// ToJSON serializes the record to JSON.
func (r Record) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Summary counts what a run produced.
type Summary struct {
	Functions int            `json:"functions"`
	Disabled  int            `json:"disabled"`
	Bindings  int            `json:"bindings"`
	Triggers  map[string]int `json:"triggers,omitempty"`
	Removed   int            `json:"removed"`
}

// IsEmpty returns true if the run produced no functions and removed none.
func (s Summary) IsEmpty() bool {
	return s.Functions == 0 && s.Removed == 0
}

// Summarize counts functions, bindings and triggers by type.
func Summarize(configs map[string]*function.Configuration) *Summary {
	s := &Summary{Triggers: make(map[string]int)}
	for _, cfg := range configs {
		s.Functions++
		if cfg.Disabled {
			s.Disabled++
		}
		s.Bindings += len(cfg.Bindings)
		for _, b := range cfg.Bindings {
			if binding.IsTrigger(b) {
				s.Triggers[b.GetType()]++
			}
		}
	}
	return s
}

// Logger provides structured provenance logging.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a provenance logger.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log}
}

// CreateRecord creates a new provenance record with environment context.
func (l *Logger) CreateRecord(action Action, outputDir string, roots []string) Record {
	hostname, _ := os.Hostname() //nolint:errcheck // Empty hostname fallback is handled below
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	operator := user
	if hostname != "" {
		operator = user + "@" + hostname
	}

	return Record{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Roots:     roots,
		OutputDir: outputDir,
		GitSHA:    os.Getenv("GIT_COMMIT_SHA"),
		GitBranch: os.Getenv("GIT_BRANCH"),
		GitRepo:   os.Getenv("GIT_REPO"),
		Operator:  operator,
		Summary:   &Summary{},
	}
}

// LogProvenance logs a provenance record as structured JSON.
func (l *Logger) LogProvenance(record Record) {
	l.log.Info("provenance",
		zap.String("action", string(record.Action)),
		zap.Strings("roots", record.Roots),
		zap.String("output_dir", record.OutputDir),
		zap.String("git_sha", record.GitSHA),
		zap.String("git_branch", record.GitBranch),
		zap.String("git_repo", record.GitRepo),
		zap.String("operator", record.Operator),
		zap.Time("timestamp", record.Timestamp),
		zap.Any("summary", record.Summary),
	)
}

// LogFunctionDetail logs one generated function for audit purposes.
func (l *Logger) LogFunctionDetail(record Record, cfg *function.Configuration) {
	types := make([]string, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		types = append(types, b.GetType()+"/"+string(b.GetDirection()))
	}
	sort.Strings(types)

	l.log.Info("function_detail",
		zap.String("git_sha", record.GitSHA),
		zap.String("function", cfg.Name),
		zap.String("entry_point", cfg.EntryPoint),
		zap.Bool("disabled", cfg.Disabled),
		zap.Strings("bindings", types),
	)
}
