package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceField(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1", "--set", "form3_applicant_name=Asha Rao")

	out, _, err := run(t, "trace", "filing-1", "form3_applicant_name", "--db", db)
	require.NoError(t, err)

	want := "Draft filing-1, field form3_applicant_name\n\n" +
		"    1  2026-03-09T00:00:00Z  load\n" +
		"         form3_applicant_name <- form1\n" +
		"    2  2026-03-09T00:00:00Z  field_change form3_applicant_name\n" +
		"         form3_applicant_name <- user\n"
	assert.Equal(t, want, out)
}

func TestTraceWholeDraftJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1", "--set", "form3_applicant_name=Asha Rao")

	out, _, err := run(t, "trace", "filing-1", "--db", db, "--format", "json")
	require.NoError(t, err)

	status, res, _ := decode[TraceResult](t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, "filing-1", res.DraftID)
	require.Len(t, res.Timeline, 2)

	load := res.Timeline[0]
	assert.Equal(t, "load", load.Kind)
	assert.Empty(t, load.Subject)
	assert.Equal(t, []SourceChange{
		{Path: "form3_applicant_name", Tag: "form1"},
		{Path: "form3_date", Tag: "default"},
		{Path: "form3_statement", Tag: "template:greeting"},
	}, load.Changes)

	edit := res.Timeline[1]
	assert.Equal(t, "field_change", edit.Kind)
	assert.Equal(t, "form3_applicant_name", edit.Subject)
	assert.Equal(t, []SourceChange{{Path: "form3_applicant_name", Tag: "user"}}, edit.Changes)
}

func TestTraceFieldWithoutHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1")

	out, _, err := run(t, "trace", "filing-1", "form1_title", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Draft filing-1, field form1_title\n\n  (no events)\n", out)
}

func TestTraceUnknownDraft(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	out, _, err := run(t, "trace", "nope", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	status, _, cliErr := decode[any](t, out)
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, ErrCodeNotFound, cliErr.Code)
}
