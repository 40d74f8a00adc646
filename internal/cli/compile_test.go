package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
)

func TestCompileBuiltin(t *testing.T) {
	out, _, err := run(t, "compile")
	require.NoError(t, err)

	assert.Contains(t, out, `✓ Compiled rule set "patent": 22 rule(s), 3 section(s), 6 template(s)`)
	assert.Contains(t, out, "small_entity: applicants[0].category in [small_entity, startup]")
	assert.Contains(t, out, "form6_transfer -> form6_statement")
	assert.Contains(t, out, "Hash: ")
}

func TestCompileFileJSON(t *testing.T) {
	out, _, err := run(t, "compile", miniRules, "--format", "json")
	require.NoError(t, err)

	status, summary, _ := decode[CompileSummary](t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, "mini", summary.Name)
	assert.Equal(t, []string{"form3_applicant_name", "form3_date"}, summary.Order)
	assert.Empty(t, summary.Sections)
	assert.Equal(t, []string{"greeting"}, summary.Templates)
	assert.Equal(t, []string{miniRules}, summary.Files)
	assert.NotEmpty(t, summary.Hash)
}

func TestCompileTextShowsCandidates(t *testing.T) {
	out, _, err := run(t, "compile", "--rules", miniRules)
	require.NoError(t, err)

	assert.Contains(t, out, " 1. form3_applicant_name <- form2, form1")
	assert.Contains(t, out, " 2. form3_date <- default(today)")
	assert.Contains(t, out, "greeting -> form3_statement")
}

func TestCompileOutputToFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "mini.json")

	out, _, err := run(t, "compile", miniRules, "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compiled rule table to "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	obj, err := ir.UnmarshalObject(data)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("mini"), obj["name"])
	rules, ok := obj["rules"].(ir.IRArray)
	require.True(t, ok)
	assert.Len(t, rules, 2)
}

func TestCompileSameHashAsLoader(t *testing.T) {
	out, _, err := run(t, "compile", miniRules, "--format", "json")
	require.NoError(t, err)
	_, summary, _ := decode[CompileSummary](t, out)

	loaded, err := LoadRules(miniRules)
	require.NoError(t, err)
	want, err := ir.RuleSetHash(loaded.RuleSet)
	require.NoError(t, err)
	assert.Equal(t, want, summary.Hash)
}

func TestCompileInvalidRules(t *testing.T) {
	out, _, err := run(t, "compile", brokenRules)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, "E101")
	assert.Contains(t, out, "E104")
}

func TestCompileMissingRules(t *testing.T) {
	out, _, err := run(t, "compile", filepath.Join(t.TempDir(), "nope.cue"), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	status, _, cliErr := decode[any](t, out)
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, ErrCodeNotFound, cliErr.Code)
}
