package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // glob on scenario file names
}

// DefaultScenarios is where test looks when given no paths.
const DefaultScenarios = "testdata/scenarios"

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [scenario-file-or-dir...]",
		Short: "Run YAML derivation scenarios",
		Long: `Run scenario files through a live session and check every expectation:
values, provenance, statuses, rendered templates and changed paths. Each
scenario names its own rule table, so --rules is not used. Every scenario
is also replayed from its event log and must reach the same hash.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (no scenarios found, etc.)

Examples:
  formsync test
  formsync test ./scenarios --filter "convention*"
  formsync test ./scenarios/transfer.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{DefaultScenarios}
			}
			return runTests(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, roots []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, cmd)

	var paths []string
	for _, root := range roots {
		found, err := harness.FindScenarios(root)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios not found: %v", err), nil)
		}
		for _, p := range found {
			ok, err := matchFilter(opts.Filter, p)
			if err != nil {
				return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
			}
			if ok {
				paths = append(paths, p)
			}
		}
	}
	if len(paths) == 0 {
		return f.fail(ExitCommandError, ErrCodeScenarios, "no scenario files found", nil)
	}
	for _, p := range paths {
		f.VerboseLog("scenario %s", p)
	}

	res, err := harness.RunSuite(ctx, paths)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if f.JSON() {
		if err := f.Success(res); err != nil {
			return err
		}
	} else {
		printSuite(f, res)
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", res.Failed, res.Total))
	}
	return nil
}

func matchFilter(pattern, path string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	ok, err := filepath.Match(pattern, filepath.Base(path))
	if err != nil {
		return false, fmt.Errorf("invalid --filter %q: %w", pattern, err)
	}
	return ok, nil
}

func printSuite(f *OutputFormatter, res *harness.SuiteResult) {
	for _, fail := range res.Failures {
		name := fail.Path
		if fail.Name != "" {
			name = fmt.Sprintf("%s (%s)", fail.Name, fail.Path)
		}
		f.Printf("✗ %s\n", name)
		for _, e := range fail.Errors {
			f.Printf("    %s\n", e)
		}
	}
	if res.Failed == 0 {
		f.Printf("✓ %d scenario(s) passed\n", res.Passed)
		return
	}
	f.Printf("\n%d passed, %d failed, %d total\n", res.Passed, res.Failed, res.Total)
}
