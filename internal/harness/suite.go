package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ScenarioNotFoundError is returned when a named scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. A file is taken as is; a
// directory contributes every .yaml and .yml file below it. The result is
// sorted and free of duplicates.
func FindScenarios(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []*Result         `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that could not be loaded, could not
// run, or failed its expectations.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// RunAll loads and runs every scenario file, at most limit at a time
// (limit <= 0 means no limit). Results are reported in path order.
//
// A scenario that fails to load or run is recorded as a failure; it does not
// stop the others. The returned error is only the context's.
func RunAll(ctx context.Context, paths []string, limit int, opts ...Option) (*SuiteResult, error) {
	results := make([]*Result, len(paths))
	failures := make([]*ScenarioFailure, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scenario, err := LoadScenario(path)
			if err != nil {
				failures[i] = &ScenarioFailure{Path: path, Errors: []string{err.Error()}}
				return nil
			}
			res, err := Run(gctx, scenario, opts...)
			if err != nil {
				failures[i] = &ScenarioFailure{Path: path, Name: scenario.Name, Errors: []string{err.Error()}}
				return nil
			}
			results[i] = res
			if !res.Pass {
				failures[i] = &ScenarioFailure{Path: path, Name: scenario.Name, Errors: res.Errors}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	suite := &SuiteResult{Total: len(paths), Results: []*Result{}}
	for i := range paths {
		if results[i] != nil {
			suite.Results = append(suite.Results, results[i])
		}
		if failures[i] != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, *failures[i])
			continue
		}
		suite.Passed++
	}
	return suite, nil
}
