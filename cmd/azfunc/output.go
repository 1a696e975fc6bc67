package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/flavioaiello/azure-functions-gen/pkg/function"
	"github.com/flavioaiello/azure-functions-gen/pkg/validate"
)

// ErrUnknownOutput is returned for an unsupported --output value.
var ErrUnknownOutput = errors.New("output format must be table, json or yaml")

// functionSummary is one row of azfunc list.
type functionSummary struct {
	Name       string   `json:"name" yaml:"name"`
	EntryPoint string   `json:"entryPoint" yaml:"entryPoint"`
	Trigger    string   `json:"trigger" yaml:"trigger"`
	Bindings   []string `json:"bindings" yaml:"bindings"`
	Disabled   bool     `json:"disabled" yaml:"disabled"`
}

func sortedNames(configs map[string]*function.Configuration) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func summarize(configs map[string]*function.Configuration) []functionSummary {
	out := make([]functionSummary, 0, len(configs))
	for _, name := range sortedNames(configs) {
		cfg := configs[name]
		row := functionSummary{
			Name:       cfg.Name,
			EntryPoint: cfg.EntryPoint,
			Disabled:   cfg.Disabled,
			Bindings:   make([]string, 0, len(cfg.Bindings)),
		}
		if triggers := cfg.Triggers(); len(triggers) > 0 {
			row.Trigger = triggers[0].GetType()
		}
		for _, b := range cfg.Bindings {
			row.Bindings = append(row.Bindings, fmt.Sprintf("%s:%s/%s", b.GetName(), b.GetType(), b.GetDirection()))
		}
		out = append(out, row)
	}
	return out
}

// encode writes v as indented JSON or YAML. It reports false for the table
// format, which each caller renders itself.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case outputTable:
		return false, nil
	default:
		return true, fmt.Errorf("%w: %s", ErrUnknownOutput, format)
	}
}

func renderFunctions(w io.Writer, format string, configs map[string]*function.Configuration) error {
	rows := summarize(configs)
	if done, err := encode(w, format, rows); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTRIGGER\tBINDINGS\tDISABLED\tENTRY POINT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", r.Name, orDash(r.Trigger), len(r.Bindings), r.Disabled, r.EntryPoint)
	}
	return tw.Flush()
}

func renderResults(w io.Writer, format string, results []*validate.ValidationResult) error {
	if done, err := encode(w, format, results); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tVALID\tDETAILS")
	for _, r := range results {
		var details []string
		for _, e := range r.Errors {
			details = append(details, e.Field+": "+e.Message)
		}
		for _, e := range r.Warnings {
			details = append(details, "warning: "+e.Field+": "+e.Message)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", r.Function, r.Valid, orDash(strings.Join(details, "; ")))
	}
	return tw.Flush()
}

func renderDifferences(w io.Writer, format string, diffs []validate.Difference) error {
	if done, err := encode(w, format, diffs); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tTYPE\tFIELD\tMESSAGE")
	for _, d := range diffs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Function, d.Type, orDash(d.Field), d.Message)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
