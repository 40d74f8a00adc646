package harness

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarises a run over many scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario file.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files under root, sorted. A file
// root is returned as is.
func FindScenarios(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in paths. A file that fails to
// load or run counts as a failure; RunSuite itself only fails when ctx is
// cancelled.
func RunSuite(ctx context.Context, paths []string) (*SuiteResult, error) {
	res := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Total++

		sc, err := LoadScenario(path)
		if err != nil {
			res.fail(ScenarioFailure{Path: path, Errors: []string{err.Error()}})
			continue
		}
		result, err := RunContext(ctx, sc)
		if err != nil {
			res.fail(ScenarioFailure{Path: path, Name: sc.Name, Errors: []string{err.Error()}})
			continue
		}
		if !result.Pass {
			res.fail(ScenarioFailure{Path: path, Name: sc.Name, Errors: result.Errors})
			continue
		}
		res.Passed++
	}
	return res, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
