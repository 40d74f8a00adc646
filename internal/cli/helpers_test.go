package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	miniRules   = filepath.Join("testdata", "rules", "mini.cue")
	brokenRules = filepath.Join("testdata", "rules", "broken.cue")
	acmeDraft   = filepath.Join("testdata", "drafts", "acme.yaml")
)

// run executes the root command with args and returns stdout, stderr and
// the command's error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runContext(context.Background(), t, &bytes.Buffer{}, &bytes.Buffer{}, args...)
}

func runContext(ctx context.Context, t *testing.T, out, errOut interface {
	Write([]byte) (int, error)
	String() string
}, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// decode parses a JSON CLIResponse whose data is a T.
func decode[T any](t *testing.T, out string) (string, T, *CLIError) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data, resp.Error
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of watch.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// saveDraft derives the acme draft with mini rules into db as draftID.
func saveDraft(t *testing.T, db, draftID string, extra ...string) {
	t.Helper()
	args := append([]string{"derive", acmeDraft, "--rules", miniRules, "--db", db,
		"--save", "--draft", draftID, "--now", "2026-03-09"}, extra...)
	_, stderr, err := run(t, args...)
	require.NoError(t, err, stderr)
}
