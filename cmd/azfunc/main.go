// Package main implements the azfunc CLI tool.
//
// azfunc turns annotated Go functions into an Azure Functions app layout:
//
//	azfunc generate       # Write function.json files to the staging directory
//	azfunc list           # Show discovered functions and their bindings
//	azfunc package        # Build the custom handler and stage the function app
//	azfunc validate       # Validate staged function.json files
//	azfunc schema         # Print the function.json JSON schema
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flavioaiello/azure-functions-gen/pkg/config"
)

var (
	// Version is set at build time.
	version = "dev"

	// Logger for CLI.
	logger *zap.Logger
)

// CLI constants for flag names and defaults.
const (
	flagProjectDir = "project-dir"
	flagLogLevel   = "log-level"
	flagLogFormat  = "log-format"
	flagOutput     = "output"
	flagOutputDir  = "output-dir"

	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// globalOptions holds the persistent flags and the configuration resolved
// from them before any subcommand runs.
type globalOptions struct {
	projectDir string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func main() {
	// Replaced once the configuration is loaded.
	logger, _ = zap.NewDevelopment()
	defer func() {
		_ = logger.Sync()
	}()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "azfunc",
		Short: "Azure Functions generator for Go",
		Long: `azfunc generates Azure Functions function.json descriptors from
//azfunc: directives on Go functions and stages a custom handler function app.

Configuration is read from azfunc.yaml and AZFUNC_* environment variables
in the project directory.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.projectDir, flagProjectDir, ".", "Project directory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, flagLogLevel, "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, flagLogFormat, "", "Log format (console|json)")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newListCmd(opts),
		newPackageCmd(opts),
		newValidateCmd(opts),
		newSchemaCmd(),
		newVersionCmd(),
	)

	return cmd
}

// load resolves the configuration for the project directory, applies the
// persistent flag overrides and installs the configured logger.
func (o *globalOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.projectDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed(flagLogLevel) {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed(flagLogFormat) {
		cfg.LogFormat = config.LogFormat(o.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	for i, root := range cfg.Roots {
		cfg.Roots[i] = resolvePath(o.projectDir, root)
	}
	cfg.OutputDir = resolvePath(o.projectDir, cfg.OutputDir)

	o.cfg = cfg
	logger = initLogger(cfg)
	return nil
}

// resolvePath interprets configured paths relative to the project directory.
func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// initLogger builds the CLI logger. Logs go to stderr so command output on
// stdout stays machine readable.
func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.LogFormat == config.LogFormatJSON {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

		zapConfig = zap.Config{
			Level:            zap.NewAtomicLevelAt(level),
			Development:      false,
			Encoding:         "json",
			EncoderConfig:    encoderConfig,
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	built, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return built
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Needs no project configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
