package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompileSummary describes a compiled rule table.
type CompileSummary struct {
	Name      string   `json:"name"`
	Hash      string   `json:"hash"`
	Order     []string `json:"order"` // rule targets in evaluation order
	Sections  []string `json:"sections"`
	Templates []string `json:"templates"`
	Files     []string `json:"files,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [rules]",
		Short: "Compile a rule table and print its evaluation order",
		Long: `Compile a CUE rule table, validate it, and order its rules so that every
rule runs after the rules whose targets it reads.

The rule table is the argument if given, else --rules. --output writes the
compiled table as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Rules = args[0]
			}
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled rule table to this file")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadRules(opts.Rules)
	if err != nil {
		return outputRuleErrors(f, "Compilation failed", RuleErrors(err), ExitCommandError)
	}
	for _, file := range loaded.Files {
		f.VerboseLog("read %s", file)
	}

	summary := summarize(loaded)
	if opts.Output != "" {
		if err := writeRuleSet(loaded.RuleSet, opts.Output); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
		summary.Output = opts.Output
	}

	if f.JSON() {
		return f.Success(summary)
	}
	printCompile(f, loaded.RuleSet, summary)
	return nil
}

func summarize(loaded *LoadResult) *CompileSummary {
	rs := loaded.RuleSet
	s := &CompileSummary{
		Name:      rs.Name,
		Hash:      loaded.Hash,
		Order:     make([]string, len(rs.Rules)),
		Sections:  make([]string, len(rs.Sections)),
		Templates: make([]string, len(rs.Templates)),
		Files:     loaded.Files,
	}
	for i, r := range rs.Rules {
		s.Order[i] = r.Target
	}
	for i, sec := range rs.Sections {
		s.Sections[i] = sec.ID
	}
	for i, t := range rs.Templates {
		s.Templates[i] = t.ID
	}
	return s
}

func printCompile(f *OutputFormatter, rs *ir.RuleSet, s *CompileSummary) {
	f.Printf("✓ Compiled rule set %q: %d rule(s), %d section(s), %d template(s)\n\n",
		s.Name, len(rs.Rules), len(rs.Sections), len(rs.Templates))

	if len(rs.Sections) > 0 {
		f.Printf("Sections:\n")
		for _, sec := range rs.Sections {
			values := make([]string, len(sec.Values))
			for i, v := range sec.Values {
				values[i] = ir.Text(v)
			}
			f.Printf("  %s: %s in [%s]\n", sec.ID, sec.Discriminator, strings.Join(values, ", "))
		}
		f.Printf("\n")
	}

	if len(rs.Rules) > 0 {
		f.Printf("Evaluation order:\n")
		for i, r := range rs.Rules {
			f.Printf("  %2d. %s <- %s\n", i+1, r.Target, describeCandidates(r))
		}
		f.Printf("\n")
	}

	if len(rs.Templates) > 0 {
		f.Printf("Templates:\n")
		for _, t := range rs.Templates {
			line := "  " + t.ID
			if t.Output != "" {
				line += " -> " + t.Output
			}
			if t.Section != "" {
				line += " (section " + t.Section + ")"
			}
			f.Printf("%s\n", line)
		}
		f.Printf("\n")
	}

	f.Printf("Hash: %s\n", s.Hash)
	if s.Output != "" {
		f.Printf("Wrote compiled rule table to %s\n", s.Output)
	}
}

// describeCandidates lists a rule's source tags in priority order, then
// its default.
func describeCandidates(r ir.Rule) string {
	parts := make([]string, 0, len(r.Candidates)+1)
	for _, c := range r.Candidates {
		parts = append(parts, c.Tag)
	}
	if r.Default != nil {
		parts = append(parts, "default("+r.Default.Transform+")")
	}
	if r.Refresh {
		parts = append(parts, "refresh")
	}
	return strings.Join(parts, ", ")
}

// outputRuleErrors writes every rule table problem and returns an
// ExitError carrying exitCode.
func outputRuleErrors(f *OutputFormatter, title string, errs []RuleError, exitCode int) error {
	msg := fmt.Sprintf("%s with %d error(s)", strings.ToLower(title), len(errs))
	if f.JSON() {
		first := errs[0]
		if err := f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: first.Code, Message: first.Message, Details: errs},
		}); err != nil {
			return err
		}
		return NewExitError(exitCode, msg)
	}

	fmt.Fprintf(f.Writer, "✗ %s\n\n", title)
	for _, e := range errs {
		loc := e.Field
		if e.Line > 0 {
			loc = fmt.Sprintf("%s (line %d)", loc, e.Line)
		}
		if loc != "" {
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n", e.Code, loc, e.Message)
		} else {
			fmt.Fprintf(f.Writer, "  %s: %s\n", e.Code, e.Message)
		}
	}
	return NewExitError(exitCode, msg)
}

// writeRuleSet writes rs as indented JSON. Hashing uses the canonical form;
// the file is for reading.
func writeRuleSet(rs *ir.RuleSet, filename string) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rule set: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}
