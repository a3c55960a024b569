package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/kongstore/internal/harness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Golden string // directory of golden traces to compare against
	Update bool   // rewrite golden traces instead of comparing
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// SimulateResult holds the overall result.
type SimulateResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Run store scenarios",
		Long: `Run scenario files against a real store and a recording web API.

Each scenario's steps and notification deliveries run as loop turns; the
resulting trace is checked against the scenario's assertions and,
with --golden, against a golden trace file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  kongstore simulate scenarios/purchase.yaml
  kongstore simulate scenarios/*.yaml --golden scenarios/golden
  kongstore simulate scenarios/*.yaml --golden scenarios/golden --update
  kongstore simulate scenarios/purchase.yaml -v --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden traces")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden traces")

	return cmd
}

func runSimulate(opts *SimulateOptions, paths []string, cmd *cobra.Command) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario file not found: %s", path))
		}
	}

	result := SimulateResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}
	for _, path := range paths {
		sr := runScenarioFile(opts, path)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if cfg.Format == "json" {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
			return err
		}
	} else {
		outputSimulateText(opts, cmd, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func runScenarioFile(opts *SimulateOptions, path string) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(path),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.RunWithLogger(scenario, opts.logger())
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	sr := ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
	}
	if opts.Verbose {
		sr.Trace = result.Trace
	}

	if opts.Golden != "" {
		if err := checkGolden(opts, scenario.Name, result); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
	}

	return sr
}

// checkGolden compares (or with --update, writes) the golden trace.
func checkGolden(opts *SimulateOptions, name string, result *harness.Result) error {
	data, err := harness.MarshalSnapshot(name, result)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	path := filepath.Join(opts.Golden, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0755); err != nil {
			return fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace differs from golden file %s", path)
	}
	return nil
}

func outputSimulateText(opts *SimulateOptions, cmd *cobra.Command, result SimulateResult) {
	w := cmd.OutOrStdout()

	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		} else {
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		for _, e := range sr.Trace {
			fmt.Fprintf(w, "    [%d] %s %s%s\n", e.Seq, e.Type, e.Name, traceDetail(e))
		}
	}

	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

func traceDetail(e harness.TraceEvent) string {
	var buf bytes.Buffer
	if e.ProductID != "" {
		fmt.Fprintf(&buf, " product=%s", e.ProductID)
	}
	if len(e.Identifiers) > 0 {
		fmt.Fprintf(&buf, " %v", e.Identifiers)
	}
	if e.TransactionID != "" {
		fmt.Fprintf(&buf, " transaction=%s", e.TransactionID)
	}
	if e.Reason != "" {
		fmt.Fprintf(&buf, " reason=%s", e.Reason)
	}
	if e.Error != "" {
		fmt.Fprintf(&buf, " error=%s", e.Error)
	}
	for _, p := range e.Products {
		fmt.Fprintf(&buf, " %s(%s)", p.ID, p.Price)
	}
	return buf.String()
}
