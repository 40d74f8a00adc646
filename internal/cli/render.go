package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/template"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Now string
}

// RenderResult is one rendered statement.
type RenderResult struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Variant    string   `json:"variant,omitempty"`
	Applicable bool     `json:"applicable"`
	Manual     bool     `json:"manual,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <draft-file> <template>",
		Short: "Render one statement template against a draft",
		Long: `Load a draft, derive its fields, and print the named template.

Tokens whose field is still empty keep their bracketed placeholder and are
listed as missing. A template in an inactive section exits 1.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Now, "now", "", "clock for date defaults (YYYY-MM-DD or RFC 3339)")

	return cmd
}

func runRender(opts *RenderOptions, path, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	loaded, err := loadRules(f, opts.RootOptions)
	if err != nil {
		return err
	}
	now, err := parseNow(opts.Now)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	snapshot, err := ReadDraft(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDraftRead, err.Error(), nil)
	}
	eng, err := newEngine(loaded.RuleSet, now, opts.Logger(f.GetErrWriter()))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	t, err := eng.Apply(engine.NewState(), engine.EventLoad{Snapshot: snapshot})
	if err != nil {
		return f.fail(ExitFailure, ErrCodeDerive, err.Error(), nil)
	}
	r, err := eng.Render(id, t.State)
	if err != nil {
		if errors.Is(err, template.ErrUnknownTemplate) {
			return f.fail(ExitCommandError, ErrCodeTemplate, fmt.Sprintf("unknown template %q", id), nil)
		}
		return f.fail(ExitFailure, ErrCodeTemplate, err.Error(), nil)
	}

	res := RenderResult{
		ID:         r.ID,
		Text:       r.Text,
		Variant:    r.Variant,
		Applicable: r.Applicable,
		Manual:     r.Manual,
		Missing:    r.Missing,
	}
	if !r.Applicable {
		if f.JSON() {
			if err := f.Success(res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(f.Writer, "Template %s is not applicable: its section is inactive\n", id)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("template %s is not applicable", id))
	}

	if f.JSON() {
		return f.Success(res)
	}
	if r.Manual {
		f.Printf("(variant %s is written by hand)\n", r.Variant)
	}
	f.Printf("%s\n", r.Text)
	for _, p := range r.Missing {
		fmt.Fprintf(f.GetErrWriter(), "missing: %s\n", p)
	}
	return nil
}
