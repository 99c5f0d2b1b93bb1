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

package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optirc/pkg/config"
	"github.com/walteh/optirc/pkg/optimize"
	"github.com/walteh/optirc/pkg/resolve"
	"github.com/walteh/optirc/pkg/stats"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Run executes a whole run: resolve source and target, load the transform
// configuration and the fingerprint map, process every file under the
// selected execution mode, persist the map, and return the aggregate stats.
//
// Source resolution failures, an invalid target and (in strict mode) any
// per-file error abort the run; in lenient mode per-file failures are
// recorded on the stats and the run always completes.
func (o *Orchestrator) Run(ctx context.Context, sourceArg, targetArg string) (*stats.RunStats, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx)

	set, err := resolve.Source(ctx, sourceArg, o.opts.IgnoreGlobs)
	if err != nil {
		return nil, err
	}

	target, err := resolve.Target(ctx, targetArg)
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, errors.Errorf("getting working directory: %w", err)
	}

	cfg, err := config.Resolve(ctx, config.ResolveOptions{
		Disabled:     o.opts.ConfigDisabled,
		ExplicitPath: o.opts.ConfigPath,
		WorkDir:      workDir,
		SourceRoot:   set.Root,
	})
	if err != nil {
		return nil, errors.Errorf("resolving transform configuration: %w", err)
	}

	if len(cfg.IgnorePatterns) > 0 {
		set = set.Filtered(ctx, cfg.IgnorePatterns)
	}

	backends, backendErrs := optimize.Active(ctx, cfg.Backends)
	for _, berr := range backendErrs {
		if o.opts.Strict {
			return nil, berr
		}
		logger.Warn().Err(berr).Msg("backend excluded")
	}
	dispatcher := optimize.NewDispatcher(backends...)

	if err := o.cache.Load(ctx, set.Root); err != nil {
		if o.opts.Strict {
			return nil, err
		}
		logger.Warn().Err(err).Msg("fingerprint map unreadable, continuing without cache")
	}

	st := stats.New(len(set.Files))

	if err := o.execute(ctx, set, target, dispatcher, st); err != nil {
		return nil, err
	}

	if err := o.cache.Persist(ctx); err != nil {
		if o.opts.Strict {
			return nil, err
		}
		logger.Warn().Err(err).Msg("persisting fingerprint map failed")
	}

	st.Finish(time.Since(start))

	logger.Info().
		Int("sources", st.Sources).
		Int("processed", st.Processed).
		Int("written", st.Written).
		Int("skipped", st.Skipped).
		Float64("percent_saved", st.PercentSaved).
		Dur("elapsed", st.Elapsed).
		Msg("run complete")

	return st, nil
}

// execute runs the per-file pipeline for every file in the source set,
// either strictly in enumeration order or fanned out one goroutine per
// file. Fan-out is deliberately unbounded: in-flight work is proportional
// to the source-set size.
func (o *Orchestrator) execute(ctx context.Context, set *resolve.SourceSet, target *resolve.TargetSet, dispatcher *optimize.Dispatcher, st *stats.RunStats) error {
	if !o.opts.Concurrent {
		for _, file := range set.Files {
			if err := o.processFile(ctx, set, target, dispatcher, st, file); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, file := range set.Files {
		file := file
		g.Go(func() error {
			return o.processFile(gctx, set, target, dispatcher, st, file)
		})
	}
	return g.Wait()
}
