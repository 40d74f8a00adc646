package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/store"
)

func TestReplayDeterministic(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1", "--set", "form3_applicant_name=Asha Rao")
	saveDraft(t, db, "filing-2")

	out, _, err := run(t, "replay", "--rules", miniRules, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ filing-1: 2 event(s) replayed to ")
	assert.Contains(t, out, "✓ filing-2: 1 event(s) replayed to ")
	assert.Contains(t, out, "2 draft(s), deterministic: true")
}

func TestReplayJSONSingleDraft(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1")
	saveDraft(t, db, "filing-2")

	out, _, err := run(t, "replay", "filing-2", "--rules", miniRules, "--db", db, "--format", "json")
	require.NoError(t, err)

	status, res, _ := decode[ReplayResult](t, out)
	assert.Equal(t, "ok", status)
	assert.True(t, res.AllDeterministic)
	require.Len(t, res.Drafts, 1)
	r := res.Drafts[0]
	assert.Equal(t, "filing-2", r.DraftID)
	assert.Equal(t, 1, r.Events)
	assert.Equal(t, r.SavedHash, r.ReplayedHash)
}

func TestReplayAfterReset(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1", "--set", "form3_applicant_name=Asha Rao")
	saveDraft(t, db, "filing-1")

	_, _, err := run(t, "replay", "--rules", miniRules, "--db", db)
	require.NoError(t, err)
}

func TestReplayDetectsTampering(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1")

	st, err := store.Open(db)
	require.NoError(t, err)
	ctx := context.Background()
	d, err := st.LoadDraft(ctx, "filing-1")
	require.NoError(t, err)
	d.Fields["form3_applicant_name"] = ir.IRString("Someone Else")
	_, err = st.SaveDraft(ctx, d)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := run(t, "replay", "--rules", miniRules, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ filing-1: fields differ")
}

func TestReplayOtherRules(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	saveDraft(t, db, "filing-1")

	out, _, err := run(t, "replay", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, res, _ := decode[ReplayResult](t, out)
	require.Len(t, res.Drafts, 1)
	assert.False(t, res.Drafts[0].Deterministic)
	assert.Contains(t, res.Drafts[0].Problem, "saved with rule table mini")
}

func TestReplayEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	out, _, err := run(t, "replay", "--rules", miniRules, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No drafts found in database.")
}

func TestReplayUnknownDraft(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	_, _, err := run(t, "replay", "nope", "--rules", miniRules, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayUnopenableDatabase(t *testing.T) {
	_, _, err := run(t, "replay", "--rules", miniRules, "--db", filepath.Join(t.TempDir(), "missing", "dir", "drafts.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
