package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"applicant_chain.yaml", "convention.yaml", "inventors.yaml", "mini.yaml", "transfer.yaml"}, names)

	single, err := FindScenarios(paths[0])
	require.NoError(t, err)
	assert.Equal(t, paths[:1], single)

	_, err = FindScenarios(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [unclosed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: d
now: "2026-03-09"
expect:
  values: { signature_date: "1999-01-01" }
`), 0o644))

	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	extra, err := FindScenarios(dir)
	require.NoError(t, err)

	res, err := RunSuite(context.Background(), append(paths, extra...))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 5, res.Passed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, filepath.Join(dir, "bad.yaml"), res.Failures[0].Path)
	assert.Equal(t, "wrong", res.Failures[1].Name)
}

func TestRunSuiteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunSuite(ctx, []string{"testdata/scenarios/mini.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
}
