// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resolve turns user-supplied source/target strings into concrete,
// validated path sets.
package resolve

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrEmptySource    = errors.New("no matching source files")
	ErrInvalidTarget  = errors.New("target is not a directory")
)

// 🗂️ allowedExtensions is the fixed filter applied when the source is a
// directory. A single-file source bypasses it.
var allowedExtensions = map[string]struct{}{
	".gif":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".svg":  {},
	".webp": {},
}

// 📦 SourceSet is the resolved source side of a run. Immutable once created.
type SourceSet struct {
	// Root is the directory all relative keys are computed against. For a
	// single-file source it is the file's parent directory.
	Root string
	// Files is the ordered (lexical) list of files to process.
	Files []string
	// Input is the original user-supplied string, kept for reporting.
	Input string
}

// 📦 TargetSet is the resolved target side of a run.
type TargetSet struct {
	Dir         string
	Preexisting bool
	WasCreated  bool
}

// Source resolves the source argument into a SourceSet. A directory is
// enumerated recursively, filtered to the image extension allow-list and any
// ignore globs; a single file is taken as-is regardless of extension.
func Source(ctx context.Context, input string, ignoreGlobs []string) (*SourceSet, error) {
	logger := zerolog.Ctx(ctx)

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, errors.Errorf("resolving source path %q: %w", input, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("%w: %s", ErrSourceNotFound, input)
		}
		return nil, errors.Errorf("checking source %q: %w", input, err)
	}

	if !info.IsDir() {
		return &SourceSet{
			Root:  filepath.Dir(abs),
			Files: []string{abs},
			Input: input,
		}, nil
	}

	var files []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		if ignored(ctx, filepath.ToSlash(rel), ignoreGlobs) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("enumerating source %q: %w", input, err)
	}

	if len(files) == 0 {
		return nil, errors.Errorf("%w: %s", ErrEmptySource, input)
	}

	logger.Debug().Str("root", abs).Int("files", len(files)).Msg("resolved source")

	return &SourceSet{
		Root:  abs,
		Files: files,
		Input: input,
	}, nil
}

// Target resolves the target argument, creating the directory (including
// intermediate segments) when it does not exist yet.
func Target(ctx context.Context, input string) (*TargetSet, error) {
	logger := zerolog.Ctx(ctx)

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, errors.Errorf("resolving target path %q: %w", input, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, errors.Errorf("%w: %s", ErrInvalidTarget, input)
		}
		return &TargetSet{Dir: abs, Preexisting: true}, nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, errors.Errorf("creating target directory %q: %w", input, err)
		}
		logger.Debug().Str("dir", abs).Msg("created target directory")
		return &TargetSet{Dir: abs, WasCreated: true}, nil
	default:
		return nil, errors.Errorf("checking target %q: %w", input, err)
	}
}

// RelDir returns the relative directory of a source file under the source
// root, "" when the file sits directly in the root.
func (s *SourceSet) RelDir(file string) string {
	rel, err := filepath.Rel(s.Root, filepath.Dir(file))
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

// Filtered returns a copy of the set with files matching any of the globs
// removed. Used for ignore patterns that only become known after source
// resolution (the config document can live under the source root).
func (s *SourceSet) Filtered(ctx context.Context, globs []string) *SourceSet {
	if len(globs) == 0 {
		return s
	}
	files := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		rel, err := filepath.Rel(s.Root, f)
		if err != nil {
			files = append(files, f)
			continue
		}
		if !ignored(ctx, filepath.ToSlash(rel), globs) {
			files = append(files, f)
		}
	}
	return &SourceSet{Root: s.Root, Files: files, Input: s.Input}
}

// ignored checks a relative path against the configured ignore globs
func ignored(ctx context.Context, relPath string, globs []string) bool {
	for _, pattern := range globs {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Err(err).Msg("error matching ignore pattern")
			continue
		}
		if matched {
			zerolog.Ctx(ctx).Debug().Str("file", relPath).Str("pattern", pattern).Msg("file ignored by pattern")
			return true
		}
	}
	return false
}
