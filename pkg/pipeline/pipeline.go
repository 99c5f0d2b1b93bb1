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

// Package pipeline drives the per-file optimization sequence and composes
// path resolution, the fingerprint cache, the backend dispatcher and the
// stats aggregator into a run.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optirc/pkg/fingerprint"
	"github.com/walteh/optirc/pkg/optimize"
	"github.com/walteh/optirc/pkg/resolve"
	"github.com/walteh/optirc/pkg/stats"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrRead      = errors.New("reading source file")
	ErrTransform = errors.New("transforming file")
	ErrDirCreate = errors.New("creating target directory")
	ErrWrite     = errors.New("writing output file")
)

// 🔧 Options configures an Orchestrator
type Options struct {
	// Cache is the fingerprint cache; nil gets a default enabled cache
	Cache *fingerprint.Cache
	// Hooks is the write-decision/completion extension point; nil is no-op
	Hooks Hooks
	// Strict makes every error, including per-file ones, abort the run
	Strict bool
	// Concurrent fans out one unit of work per file instead of processing
	// in source order
	Concurrent bool
	// ConfigPath is an explicitly supplied transform-config document path
	ConfigPath string
	// ConfigDisabled skips transform-config resolution entirely
	ConfigDisabled bool
	// IgnoreGlobs are caller-supplied source ignore patterns, applied on
	// top of any patterns from the config document
	IgnoreGlobs []string
}

// 🎮 Orchestrator runs the per-file pipeline over a resolved source set
type Orchestrator struct {
	opts  Options
	cache *fingerprint.Cache
	hooks Hooks
	mat   Materializer
}

// 🏭 New creates an orchestrator
func New(opts Options) *Orchestrator {
	cache := opts.Cache
	if cache == nil {
		cache = fingerprint.New(fingerprint.Options{})
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Orchestrator{
		opts:  opts,
		cache: cache,
		hooks: hooks,
	}
}

// processFile runs one file through the stage sequence:
// read → fingerprint → skip decision → transform → retype → decide hook →
// directory materialization → write. The returned error is non-nil only in
// strict mode; in lenient mode failures are recorded on the job and the
// run moves on.
func (o *Orchestrator) processFile(ctx context.Context, set *resolve.SourceSet, target *resolve.TargetSet, dispatcher *optimize.Dispatcher, st *stats.RunStats, sourcePath string) error {
	start := time.Now()

	relDir := set.RelDir(sourcePath)
	base := filepath.Base(sourcePath)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")

	job := &FileJob{
		Source:    sourcePath,
		RelDir:    relDir,
		SourceExt: ext,
		Target:    filepath.Join(target.Dir, relDir, base),
	}

	defer func() {
		job.Timings.Total = time.Since(start)
		o.hooks.OnComplete(ctx, job, st)
		st.AddFile(job.Result())
	}()

	// Read
	readStart := time.Now()
	raw, err := os.ReadFile(sourcePath)
	job.Timings.Read = time.Since(readStart)
	if err != nil {
		return o.fileError(ctx, job, errors.Errorf("%w %s: %w", ErrRead, sourcePath, err))
	}
	job.RawSize = int64(len(raw))
	job.SourceType = optimize.MimeForExt(ext)

	// Fingerprint and skip decision
	if o.cache.Enabled() {
		job.Hash = fingerprint.Hash(raw)
		if !o.cache.ShouldProcess(fingerprint.Key(relDir, base), job.Hash) {
			zerolog.Ctx(ctx).Debug().Str("file", base).Msg("unchanged, skipping")
			job.Skipped = true
			st.RecordSkipped()
			return nil
		}
	}

	// Transform
	procStart := time.Now()
	out, err := dispatcher.Transform(ctx, raw)
	job.Timings.Process = time.Since(procStart)
	if err != nil {
		return o.fileError(ctx, job, errors.Errorf("%w %s: %w", ErrTransform, sourcePath, err))
	}
	job.output = out
	job.OutputSize = int64(len(out))
	job.PercentSaved = stats.Percent(job.RawSize, job.OutputSize)
	st.RecordProcessed(job.RawSize, job.OutputSize)

	// Retype: the one point where the target path may change
	detected := optimize.DetectType(out, ext)
	job.OutputType = detected.Mime
	if detected.Mime != job.SourceType {
		renamed := strings.TrimSuffix(base, filepath.Ext(base)) + "." + detected.Ext
		job.Target = filepath.Join(target.Dir, relDir, renamed)
		zerolog.Ctx(ctx).Debug().
			Str("file", base).
			Str("from", job.SourceType).
			Str("to", detected.Mime).
			Msg("output retyped")
	}

	// Write decision
	if !o.hooks.Decide(ctx, job, st) {
		zerolog.Ctx(ctx).Debug().Str("file", base).Msg("write vetoed by hook")
		job.output = nil
		return nil
	}

	// Directory materialization, only when the file leaves the run root
	if relDir != "" {
		dir := filepath.Dir(job.Target)
		if st.DirFailed(dir) {
			return o.fileError(ctx, job, errors.Errorf("%w %s: previously failed", ErrDirCreate, dir))
		}
		if !o.mat.Ensure(ctx, dir, st) {
			return o.fileError(ctx, job, errors.Errorf("%w %s", ErrDirCreate, dir))
		}
	}

	// Write
	writeStart := time.Now()
	err = os.WriteFile(job.Target, job.output, 0644)
	job.Timings.Write = time.Since(writeStart)
	if err != nil {
		return o.fileError(ctx, job, errors.Errorf("%w %s: %w", ErrWrite, job.Target, err))
	}
	job.Written = true
	st.RecordWritten()

	// Drop the output buffer to bound peak memory
	job.output = nil
	return nil
}

// fileError records a per-file error; only strict mode propagates it
func (o *Orchestrator) fileError(ctx context.Context, job *FileJob, err error) error {
	job.Errors = append(job.Errors, err)
	if o.opts.Strict {
		return err
	}
	zerolog.Ctx(ctx).Warn().Str("file", job.Source).Err(err).Msg("file failed, continuing")
	return nil
}
