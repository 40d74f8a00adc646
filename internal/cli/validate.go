package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Name   string      `json:"name,omitempty"`
	Errors []RuleError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules]",
		Short: "Check a rule table without printing it",
		Long: `Check a CUE rule table: unknown transforms, malformed paths, duplicate or
overlapping targets, unknown sections, template token bindings and
dependency cycles. Every problem is reported, not just the first.

Exit codes:
  0 - rule table is valid
  1 - rule table has errors
  2 - rule table could not be read`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Rules
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	loaded, err := LoadRules(path)
	if err != nil {
		exitCode := ExitFailure
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			exitCode = ExitCommandError
		}
		return outputRuleErrors(f, "Validation failed", RuleErrors(err), exitCode)
	}

	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Name: loaded.RuleSet.Name})
	}
	f.Printf("✓ Rule table %q is valid\n", loaded.RuleSet.Name)
	return nil
}
