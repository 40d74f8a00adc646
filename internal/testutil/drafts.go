package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// WriteDraft writes fields as a YAML draft file in dir and returns its path.
func WriteDraft(t testing.TB, dir, name string, fields map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal draft: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write draft: %v", err)
	}
	return path
}
