// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"
)

// Corpus loading defaults.
const (
	// DefaultMaxFileSize is the largest file read into the corpus.
	DefaultMaxFileSize int64 = 2 * 1024 * 1024

	// DefaultReadConcurrency bounds concurrent file reads.
	DefaultReadConcurrency = 8
)

// SourceUnit is one source file of the corpus.
type SourceUnit struct {
	// Path is the slash-separated path relative to the corpus root.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Content is the file content.
	Content []byte
}

// CorpusOptions configures LoadCorpus.
type CorpusOptions struct {
	// IncludeTests includes _test.go files.
	IncludeTests bool

	// Exclude holds additional gitignore-style patterns to skip.
	Exclude []string

	// MaxFileSize skips files larger than this many bytes.
	// Zero uses DefaultMaxFileSize.
	MaxFileSize int64

	// Concurrency bounds concurrent reads. Zero uses DefaultReadConcurrency.
	Concurrency int

	// Logger receives skipped-file diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Corpus is the set of source units under one root.
type Corpus struct {
	Root       string
	ModulePath string
	Units      []SourceUnit
}

// Paths returns the unit paths in corpus order.
func (c *Corpus) Paths() []string {
	paths := make([]string, len(c.Units))
	for i, u := range c.Units {
		paths[i] = u.Path
	}
	return paths
}

// LoadCorpus reads every Go source file under root.
//
// Description:
//
//	Walks root, skipping hidden directories, vendor and testdata trees,
//	anything matched by the root .gitignore or opts.Exclude, and (unless
//	IncludeTests is set) _test.go files. Files are read concurrently.
//	Oversized or non-UTF-8 files are skipped with a warning.
//
// Inputs:
//
//	ctx - Cancels the walk and the reads.
//	root - Corpus root directory.
//	opts - Loading options.
//
// Outputs:
//
//	*Corpus - Units sorted by path, plus the detected module path.
//	error - ErrRootNotDirectory, a walk/read error, or ctx.Err().
func LoadCorpus(ctx context.Context, root string, opts CorpusOptions) (*Corpus, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, absRoot)
	}

	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultReadConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	matcher, err := compileIgnore(absRoot, opts.Exclude)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata" {
				return filepath.SkipDir
			}
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !strings.HasSuffix(rel, ".go") {
			return nil
		}
		if !opts.IncludeTests && isTestFile(rel) {
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	sort.Strings(paths)

	units := make([]*SourceUnit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			abs := filepath.Join(absRoot, filepath.FromSlash(rel))
			content, err := readUnit(abs, opts.MaxFileSize)
			if err != nil {
				logger.Warn("skipping source file",
					slog.String("file", rel),
					slog.String("error", err.Error()),
				)
				return nil
			}
			units[i] = &SourceUnit{Path: rel, AbsPath: abs, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	corpus := &Corpus{
		Root:       absRoot,
		ModulePath: DetectModulePath(absRoot),
		Units:      make([]SourceUnit, 0, len(units)),
	}
	for _, u := range units {
		if u != nil {
			corpus.Units = append(corpus.Units, *u)
		}
	}

	logger.Debug("corpus loaded",
		slog.String("root", absRoot),
		slog.String("module", corpus.ModulePath),
		slog.Int("units", len(corpus.Units)),
	)
	return corpus, nil
}

// readUnit reads a file and checks size and encoding.
func readUnit(abs string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidContent
	}
	return content, nil
}

// compileIgnore merges the root .gitignore with extra patterns.
func compileIgnore(root string, extra []string) (*ignore.GitIgnore, error) {
	var lines []string
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	switch {
	case err == nil:
		lines = strings.Split(string(data), "\n")
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read .gitignore: %w", err)
	}
	lines = append(lines, extra...)
	return ignore.CompileIgnoreLines(lines...), nil
}

// DetectModulePath returns the module path declared in root/go.mod, or the
// root directory name when there is no readable go.mod.
func DetectModulePath(root string) string {
	fallback := filepath.Base(root)
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return fallback
	}
	mf, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil || mf.Module == nil || mf.Module.Mod.Path == "" {
		return fallback
	}
	return mf.Module.Mod.Path
}

// packagePath returns the import path of the directory holding unitPath.
func packagePath(modulePath, unitPath string) string {
	dir := path.Dir(unitPath)
	if dir == "." {
		return modulePath
	}
	return modulePath + "/" + dir
}

// isTestFile checks if a file path looks like a Go test file.
func isTestFile(p string) bool {
	return strings.HasSuffix(path.Base(p), "_test.go")
}
