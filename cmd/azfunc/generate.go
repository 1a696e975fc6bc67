package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/config"
	"github.com/flavioaiello/azure-functions-gen/pkg/function"
	"github.com/flavioaiello/azure-functions-gen/pkg/generator"
	"github.com/flavioaiello/azure-functions-gen/pkg/provenance"
	"github.com/flavioaiello/azure-functions-gen/pkg/scanner"
	"github.com/flavioaiello/azure-functions-gen/pkg/staging"
	"github.com/flavioaiello/azure-functions-gen/pkg/validate"
)

// ErrStagingDrift is returned by generate --check when the staged function
// app differs from what the sources describe.
var ErrStagingDrift = errors.New("staged functions are out of date")

// discover scans the configured roots and generates one configuration per
// annotated function.
func discover(ctx context.Context, cfg *config.Config) (map[string]*function.Configuration, error) {
	s, err := scanner.New(logger, scanner.Options{Exclude: cfg.Exclude})
	if err != nil {
		return nil, err
	}

	methods, err := s.Scan(ctx, cfg.Roots...)
	if err != nil {
		return nil, err
	}

	gen := generator.New(binding.DefaultRegistry(), logger, generator.Options{ScriptFile: cfg.ScriptFile})
	configs, err := gen.GenerateConfigurations(methods, generator.NewNameSet())
	if err != nil {
		return nil, err
	}

	logger.Debug("Discovered functions", zap.Int("count", len(configs)))
	return configs, nil
}

// stage writes configs to the staging directory and removes stale function
// directories when cleaning is enabled.
func stage(cfg *config.Config, configs map[string]*function.Configuration) (*staging.Writer, *provenance.Summary, error) {
	writer, err := staging.NewWriter(cfg.OutputDir, logger)
	if err != nil {
		return nil, nil, err
	}

	if _, err := writer.WriteConfigurations(configs); err != nil {
		return nil, nil, err
	}

	summary := provenance.Summarize(configs)
	if cfg.Clean {
		removed, err := writer.CleanStale(configs)
		if err != nil {
			return nil, nil, err
		}
		summary.Removed = len(removed)
	}
	return writer, summary, nil
}

// recordProvenance logs the run when provenance is enabled.
func recordProvenance(cfg *config.Config, action provenance.Action, configs map[string]*function.Configuration, summary *provenance.Summary) {
	if !cfg.EnableProvenance {
		return
	}

	plog := provenance.NewLogger(logger)
	record := plog.CreateRecord(action, cfg.OutputDir, cfg.Roots)
	if summary != nil {
		record.Summary = summary
	}
	for _, name := range sortedNames(configs) {
		plog.LogFunctionDetail(record, configs[name])
	}
	plog.LogProvenance(record)
}

// checkStaging compares generated configurations with the staged ones and
// prints every difference.
func checkStaging(ctx context.Context, w io.Writer, cfg *config.Config, configs map[string]*function.Configuration) error {
	v, err := validate.NewValidator(logger, binding.DefaultRegistry())
	if err != nil {
		return err
	}

	staged := map[string]*function.Configuration{}
	if _, err := os.Stat(cfg.OutputDir); err == nil {
		staged, err = v.LoadDirectory(ctx, cfg.OutputDir)
		if err != nil {
			return err
		}
	}

	diffs := validate.Compare(configs, staged)
	if len(diffs) == 0 {
		_, err := fmt.Fprintf(w, "%d function(s) up to date in %s\n", len(configs), cfg.OutputDir)
		return err
	}
	if err := renderDifferences(w, outputTable, diffs); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d difference(s)", ErrStagingDrift, len(diffs))
}

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	var (
		outputDir string
		check     bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate function.json files",
		Long: `Scan the configured source roots for annotated functions and write one
<outputDir>/<FunctionName>/function.json per function.

Nothing is written when any function fails to generate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed(flagOutputDir) {
				cfg.OutputDir = resolvePath(opts.projectDir, outputDir)
			}

			configs, err := discover(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if check {
				return checkStaging(cmd.Context(), cmd.OutOrStdout(), cfg, configs)
			}

			logger.Info("Generating functions",
				zap.Strings("roots", cfg.Roots),
				zap.String("output_dir", cfg.OutputDir),
			)

			_, summary, err := stage(cfg, configs)
			if err != nil {
				return err
			}
			recordProvenance(cfg, provenance.GenerateAction, configs, summary)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Generated %d function(s) in %s\n", len(configs), cfg.OutputDir)
			return err
		},
	}
	cmd.Flags().StringVar(&outputDir, flagOutputDir, config.DefaultOutputDir, "Staging directory, relative to the project directory")
	cmd.Flags().BoolVar(&check, "check", false, "Report differences with the staged functions without writing")

	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List annotated functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := discover(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			return renderFunctions(cmd.OutOrStdout(), output, configs)
		},
	}
	cmd.Flags().StringVarP(&output, flagOutput, "o", outputTable, "Output format (table|json|yaml)")

	return cmd
}

func newPackageCmd(opts *globalOptions) *cobra.Command {
	var skipBuild bool

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build the custom handler and stage the function app",
		Long: `Build the custom handler executable into the staging directory, write
every function.json and copy host.json and local.settings.json from the
project directory. A default host.json is written when the project has none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			configs, err := discover(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			writer, summary, err := stage(cfg, configs)
			if err != nil {
				return err
			}

			if !skipBuild {
				if _, err := buildHandler(cmd.Context(), cfg, opts.projectDir); err != nil {
					return err
				}
			}

			if err := writer.CopyHostFiles(opts.projectDir, filepath.Base(cfg.ExecutablePath())); err != nil {
				return err
			}
			recordProvenance(cfg, provenance.PackageAction, configs, summary)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Packaged %d function(s) in %s\n", len(configs), cfg.OutputDir)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Stage the function app without building the handler")

	return cmd
}
