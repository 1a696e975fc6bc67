// Package config provides configuration management with validation.
//
// Settings are layered: built-in defaults, then the project file
// (azfunc.yaml), then AZFUNC_* environment variables. A .env file in the
// project directory is loaded into the environment first and never overrides
// variables that are already set.
//
// SECURITY: All inputs are validated at the boundary (fail-fast).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/flavioaiello/azure-functions-gen/pkg/loader"
)

// LogFormat selects the log encoder.
type LogFormat string

const (
	// LogFormatConsole is the human-readable development encoder.
	LogFormatConsole LogFormat = "console"
	// LogFormatJSON is the structured production encoder.
	LogFormatJSON LogFormat = "json"
)

// File names looked up in the project directory.
const (
	ProjectFileName = "azfunc.yaml"
	EnvFileName     = ".env"
)

// Configuration constants with documented bounds.
const (
	DefaultOutputDir    = "dist"
	DefaultExecutable   = "handler"
	DefaultBuildPackage = "."
	DefaultGOOS         = "linux"
	DefaultGOARCH       = "amd64"
	DefaultLogLevel     = "info"
	DefaultBuildTimeout = 300 * time.Second
	MinBuildTimeout     = 10 * time.Second
	MaxBuildTimeout     = 3600 * time.Second
	MaxRoots            = 64
)

// Input validation patterns.
var (
	// ValidExecutablePattern matches a plain file name without path separators.
	ValidExecutablePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	// ValidPlatformPattern matches GOOS and GOARCH values.
	ValidPlatformPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)
)

// Configuration errors.
var (
	ErrNoRoots             = errors.New("AZFUNC_ROOTS must name at least one source root")
	ErrTooManyRoots        = errors.New("AZFUNC_ROOTS names too many source roots")
	ErrMissingOutputDir    = errors.New("AZFUNC_OUTPUT_DIR is required")
	ErrInvalidExecutable   = errors.New("AZFUNC_EXECUTABLE must be a plain file name")
	ErrInvalidPlatform     = errors.New("AZFUNC_GOOS and AZFUNC_GOARCH must be lowercase identifiers")
	ErrInvalidBuildTimeout = errors.New("AZFUNC_BUILD_TIMEOUT_SECONDS out of valid range")
	ErrInvalidLogLevel     = errors.New("AZFUNC_LOG_LEVEL must be debug, info, warn or error")
	ErrInvalidLogFormat    = errors.New("AZFUNC_LOG_FORMAT must be console or json")
	ErrInvalidProjectFile  = errors.New("invalid project file")
	ErrInvalidEnvFile      = errors.New("invalid .env file")
)

// wrapErrWithValue wraps an error with an invalid value for context.
func wrapErrWithValue(err error, value string) error {
	return fmt.Errorf("%w: %s", err, value)
}

// Config holds generator configuration.
type Config struct {
	// Roots are the source directories scanned for annotated functions.
	Roots []string
	// Exclude holds doublestar patterns of paths skipped while scanning.
	Exclude []string
	// OutputDir is the function app staging directory.
	OutputDir string
	// ScriptFile is written to every function.json; empty for custom handlers.
	ScriptFile string

	// Executable is the custom handler binary name inside OutputDir.
	Executable string
	// BuildPackage is the Go package built into Executable.
	BuildPackage string
	// GOOS and GOARCH select the handler build target.
	GOOS   string
	GOARCH string
	// BuildTimeout bounds the handler build.
	BuildTimeout time.Duration

	// Clean removes function directories no longer generated.
	Clean bool
	// EnableProvenance logs a provenance record per run.
	EnableProvenance bool

	// LogLevel is the minimum log level.
	LogLevel string
	// LogFormat selects the log encoder.
	LogFormat LogFormat
}

// File is the on-disk shape of azfunc.yaml. Unset fields keep their defaults.
type File struct {
	Roots        []string `yaml:"roots" json:"roots,omitempty"`
	Exclude      []string `yaml:"exclude" json:"exclude,omitempty"`
	OutputDir    string   `yaml:"outputDir" json:"outputDir,omitempty"`
	ScriptFile   string   `yaml:"scriptFile" json:"scriptFile,omitempty"`
	Executable   string   `yaml:"executable" json:"executable,omitempty"`
	BuildPackage string   `yaml:"buildPackage" json:"buildPackage,omitempty"`
	GOOS         string   `yaml:"goos" json:"goos,omitempty"`
	GOARCH       string   `yaml:"goarch" json:"goarch,omitempty"`
	BuildTimeout int      `yaml:"buildTimeoutSeconds" json:"buildTimeoutSeconds,omitempty"`
	Clean        *bool    `yaml:"clean" json:"clean,omitempty"`
	Provenance   *bool    `yaml:"provenance" json:"provenance,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Roots:            []string{"."},
		OutputDir:        DefaultOutputDir,
		Executable:       DefaultExecutable,
		BuildPackage:     DefaultBuildPackage,
		GOOS:             DefaultGOOS,
		GOARCH:           DefaultGOARCH,
		BuildTimeout:     DefaultBuildTimeout,
		Clean:            true,
		EnableProvenance: true,
		LogLevel:         DefaultLogLevel,
		LogFormat:        LogFormatConsole,
	}
}

// Load loads configuration for the project in dir: .env, azfunc.yaml and
// the environment, in that order of increasing precedence.
func Load(dir string) (*Config, error) {
	envPath := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEnvFile, envPath, err)
		}
	}

	cfg := Default()

	projectPath := filepath.Join(dir, ProjectFileName)
	if _, err := os.Stat(projectPath); err == nil {
		var f File
		if err := loader.LoadYAML(projectPath, loader.MaxProjectFileSizeBytes, &f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProjectFile, err)
		}
		cfg.apply(f)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables over the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(f File) {
	if len(f.Roots) > 0 {
		c.Roots = f.Roots
	}
	if len(f.Exclude) > 0 {
		c.Exclude = f.Exclude
	}
	c.OutputDir = orDefault(f.OutputDir, c.OutputDir)
	c.ScriptFile = orDefault(f.ScriptFile, c.ScriptFile)
	c.Executable = orDefault(f.Executable, c.Executable)
	c.BuildPackage = orDefault(f.BuildPackage, c.BuildPackage)
	c.GOOS = orDefault(f.GOOS, c.GOOS)
	c.GOARCH = orDefault(f.GOARCH, c.GOARCH)
	if f.BuildTimeout != 0 {
		c.BuildTimeout = time.Duration(f.BuildTimeout) * time.Second
	}
	if f.Clean != nil {
		c.Clean = *f.Clean
	}
	if f.Provenance != nil {
		c.EnableProvenance = *f.Provenance
	}
}

func (c *Config) applyEnv() {
	if roots := getEnvList("AZFUNC_ROOTS"); len(roots) > 0 {
		c.Roots = roots
	}
	if exclude := getEnvList("AZFUNC_EXCLUDE"); len(exclude) > 0 {
		c.Exclude = exclude
	}
	c.OutputDir = getEnvOrDefault("AZFUNC_OUTPUT_DIR", c.OutputDir)
	c.ScriptFile = getEnvOrDefault("AZFUNC_SCRIPT_FILE", c.ScriptFile)
	c.Executable = getEnvOrDefault("AZFUNC_EXECUTABLE", c.Executable)
	c.BuildPackage = getEnvOrDefault("AZFUNC_BUILD_PACKAGE", c.BuildPackage)
	c.GOOS = getEnvOrDefault("AZFUNC_GOOS", c.GOOS)
	c.GOARCH = getEnvOrDefault("AZFUNC_GOARCH", c.GOARCH)
	c.BuildTimeout = getEnvDuration("AZFUNC_BUILD_TIMEOUT_SECONDS", c.BuildTimeout)
	c.Clean = getEnvBool("AZFUNC_CLEAN", c.Clean)
	c.EnableProvenance = getEnvBool("AZFUNC_PROVENANCE", c.EnableProvenance)
	c.LogLevel = strings.ToLower(getEnvOrDefault("AZFUNC_LOG_LEVEL", c.LogLevel))
	c.LogFormat = LogFormat(strings.ToLower(getEnvOrDefault("AZFUNC_LOG_FORMAT", string(c.LogFormat))))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case len(c.Roots) == 0:
		errs = append(errs, ErrNoRoots)
	case len(c.Roots) > MaxRoots:
		errs = append(errs, fmt.Errorf("%w: %d (max %d)", ErrTooManyRoots, len(c.Roots), MaxRoots))
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, ErrMissingOutputDir)
	}

	if !ValidExecutablePattern.MatchString(c.Executable) {
		errs = append(errs, wrapErrWithValue(ErrInvalidExecutable, c.Executable))
	}

	if !ValidPlatformPattern.MatchString(c.GOOS) {
		errs = append(errs, wrapErrWithValue(ErrInvalidPlatform, c.GOOS))
	}
	if !ValidPlatformPattern.MatchString(c.GOARCH) {
		errs = append(errs, wrapErrWithValue(ErrInvalidPlatform, c.GOARCH))
	}

	if c.BuildTimeout < MinBuildTimeout || c.BuildTimeout > MaxBuildTimeout {
		errs = append(errs, fmt.Errorf("%w: must be between %v and %v",
			ErrInvalidBuildTimeout, MinBuildTimeout, MaxBuildTimeout))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, wrapErrWithValue(ErrInvalidLogLevel, c.LogLevel))
	}

	switch c.LogFormat {
	case LogFormatConsole, LogFormatJSON:
	default:
		errs = append(errs, wrapErrWithValue(ErrInvalidLogFormat, string(c.LogFormat)))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ExecutablePath returns the handler binary path inside the staging directory.
func (c *Config) ExecutablePath() string {
	name := c.Executable
	if c.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	return filepath.Join(c.OutputDir, name)
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvList parses a comma-separated environment variable.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool parses a boolean environment variable.
func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration parses a duration from seconds environment variable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
