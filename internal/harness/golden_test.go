package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/engine"
)

func TestGolden_Mini(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "mini.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Deterministic(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "transfer.yaml"))
	require.NoError(t, err)
	rs, err := LoadRules(sc.Rules)
	require.NoError(t, err)
	eng, err := engine.New(rs)
	require.NoError(t, err)

	first, err := Run(sc)
	require.NoError(t, err)
	second, err := Run(sc)
	require.NoError(t, err)

	assert.Equal(t, string(Snapshot(sc.Name, eng, first)), string(Snapshot(sc.Name, eng, second)))
	assert.Equal(t, first.Hash, second.Hash)
}
