package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/binding"
	"github.com/flavioaiello/azure-functions-gen/pkg/provenance"
	"github.com/flavioaiello/azure-functions-gen/pkg/schema"
	"github.com/flavioaiello/azure-functions-gen/pkg/validate"
)

// Command errors.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrDirectoriesDiffer = errors.New("staged directories differ")
	ErrUnknownBinding    = errors.New("unknown binding annotation")
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		output  string
		compare string
	)

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate staged function.json files",
		Long: `Validate every function.json below dir (the staging directory by default)
against the function.json schema.

With --compare, report the differences between the functions staged in dir
and those staged in another directory instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}

			v, err := validate.NewValidator(logger, binding.DefaultRegistry())
			if err != nil {
				return err
			}

			if compare != "" {
				diffs, err := v.CompareDirectories(cmd.Context(), compare, dir)
				if err != nil {
					return err
				}
				if err := renderDifferences(cmd.OutOrStdout(), output, diffs); err != nil {
					return err
				}
				if len(diffs) > 0 {
					return fmt.Errorf("%w: %d difference(s)", ErrDirectoriesDiffer, len(diffs))
				}
				return nil
			}

			logger.Info("Validating functions", zap.String("dir", dir))

			results, err := v.ValidateDirectory(cmd.Context(), dir)
			if err != nil {
				return err
			}

			if opts.cfg.EnableProvenance {
				plog := provenance.NewLogger(logger)
				plog.LogProvenance(plog.CreateRecord(provenance.ValidateAction, dir, opts.cfg.Roots))
			}

			if err := renderResults(cmd.OutOrStdout(), output, results); err != nil {
				return err
			}

			invalid := 0
			for _, r := range results {
				if !r.Valid {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d function(s) invalid", ErrValidationFailed, invalid, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, flagOutput, "o", outputTable, "Output format (table|json|yaml)")
	cmd.Flags().StringVar(&compare, "compare", "", "Directory holding the expected functions")

	return cmd
}

func newSchemaCmd() *cobra.Command {
	var (
		bindingName string
		project     bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the function.json JSON schema",
		// Needs no project configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := binding.DefaultRegistry()

			s := schema.Function(registry)
			switch {
			case project:
				s = schema.Project()
			case bindingName != "":
				k, ok := registry.Lookup(bindingName)
				if !ok {
					return fmt.Errorf("%w: %s", ErrUnknownBinding, bindingName)
				}
				s = schema.Binding(k)
			}

			data, err := schema.Marshal(s)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&bindingName, "binding", "", "Print the schema of one binding annotation")
	cmd.Flags().BoolVar(&project, "project", false, "Print the azfunc.yaml schema")

	return cmd
}
