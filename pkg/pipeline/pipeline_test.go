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

package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optirc/pkg/fingerprint"
	"github.com/walteh/optirc/pkg/optimize"
	"github.com/walteh/optirc/pkg/pipeline"
	"github.com/walteh/optirc/pkg/resolve"
	"github.com/walteh/optirc/pkg/stats"
	"gitlab.com/tozd/go/errors"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

func init() {
	// halves the payload, keeping the magic header intact
	optimize.Register("t-shrink", func(ctx context.Context, options map[string]any) (optimize.Backend, error) {
		return backendFunc("t-shrink", func(data []byte) ([]byte, error) {
			if len(data) < 2 {
				return data, nil
			}
			return data[:len(data)/2], nil
		}), nil
	})

	// always fails
	optimize.Register("t-fail", func(ctx context.Context, options map[string]any) (optimize.Backend, error) {
		return backendFunc("t-fail", func(data []byte) ([]byte, error) {
			return nil, errors.New("codec exploded")
		}), nil
	})

	// replaces the payload with a PNG, whatever came in
	optimize.Register("t-pngify", func(ctx context.Context, options map[string]any) (optimize.Backend, error) {
		return backendFunc("t-pngify", func(data []byte) ([]byte, error) {
			return payload(pngHeader, 64), nil
		}), nil
	})
}

type fnBackend struct {
	name string
	fn   func([]byte) ([]byte, error)
}

func (b *fnBackend) Name() string { return b.name }

func (b *fnBackend) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	return b.fn(data)
}

func backendFunc(name string, fn func([]byte) ([]byte, error)) optimize.Backend {
	return &fnBackend{name: name, fn: fn}
}

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

// payload builds a byte blob of the given size starting with header
func payload(header []byte, size int) []byte {
	data := make([]byte, size)
	copy(data, header)
	for i := len(header); i < size; i++ {
		data[i] = 'x'
	}
	return data
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

// makeSourceTree builds the canonical scenario tree: three matching images
// (1000, 2000, 4000 bytes) and one non-matching text file.
func makeSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), payload(pngHeader, 1000))
	writeFile(t, filepath.Join(dir, "b.jpg"), payload(jpegHeader, 2000))
	writeFile(t, filepath.Join(dir, "sub", "c.png"), payload(pngHeader, 4000))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not an image"))
	return dir
}

// writeConfig drops a transform-config document into the source root
func writeConfig(t *testing.T, sourceRoot string, backends ...string) {
	t.Helper()
	doc := map[string]map[string]map[string]any{"backends": {}}
	for _, name := range backends {
		doc["backends"][name] = map[string]any{}
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	writeFile(t, filepath.Join(sourceRoot, ".optirc.json"), data)
}

// 🧪 TestRunNoCache covers the fingerprint-disabled baseline
func TestRunNoCache(t *testing.T) {
	ctx := testContext(t)
	source := makeSourceTree(t)
	target := filepath.Join(t.TempDir(), "out")
	writeConfig(t, source, "t-shrink")

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Sources)
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 3, st.Written)
	assert.Equal(t, 0, st.Skipped)
	assert.Equal(t, int64(7000), st.SourceBytes)
	assert.Equal(t, int64(3500), st.TargetBytes)
	assert.InDelta(t, 50, st.PercentSaved, 0.0001)

	// mirrored tree, non-matching file absent
	assert.FileExists(t, filepath.Join(target, "a.png"))
	assert.FileExists(t, filepath.Join(target, "b.jpg"))
	assert.FileExists(t, filepath.Join(target, "sub", "c.png"))
	assert.NoFileExists(t, filepath.Join(target, "notes.txt"))

	// no map persisted when fingerprinting is disabled
	assert.NoFileExists(t, filepath.Join(source, fingerprint.DefaultMapName))
}

// 🧪 TestRunIdempotence: second run over unchanged sources skips everything
func TestRunIdempotence(t *testing.T) {
	ctx := testContext(t)
	source := makeSourceTree(t)
	target := filepath.Join(t.TempDir(), "out")
	writeConfig(t, source, "t-shrink")

	newOrch := func() *pipeline.Orchestrator {
		return pipeline.New(pipeline.Options{
			Cache: fingerprint.New(fingerprint.Options{}),
		})
	}

	first, err := newOrch().Run(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Written)
	assert.Equal(t, 0, first.Skipped)
	assert.FileExists(t, filepath.Join(source, fingerprint.DefaultMapName))

	second, err := newOrch().Run(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Sources)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Written)
	assert.InDelta(t, 0, second.PercentSaved, 0.0001)
}

// 🧪 TestRunStaleHash: only the entry with a stale hash is reprocessed
func TestRunStaleHash(t *testing.T) {
	ctx := testContext(t)
	source := t.TempDir()
	target := filepath.Join(t.TempDir(), "out")

	aContent := payload(pngHeader, 1000)
	bContent := payload(jpegHeader, 2000)
	writeFile(t, filepath.Join(source, "a.png"), aContent)
	writeFile(t, filepath.Join(source, "b.jpg"), bContent)

	seeded := map[string]string{
		"a.png": "0000000000000000000000000000000000000000000000000000000000000000",
		"b.jpg": fingerprint.Hash(bContent),
	}
	data, err := json.Marshal(seeded)
	require.NoError(t, err)
	writeFile(t, filepath.Join(source, fingerprint.DefaultMapName), data)

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{}),
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 2, st.Sources)
	assert.Equal(t, 1, st.Processed)
	assert.Equal(t, 1, st.Written)
	assert.Equal(t, 1, st.Skipped)
	assert.FileExists(t, filepath.Join(target, "a.png"))
	assert.NoFileExists(t, filepath.Join(target, "b.jpg"))
}

// 🧪 TestRunRetype: output written under the sniffed extension, fingerprint
// key still derived from the source name
func TestRunRetype(t *testing.T) {
	ctx := testContext(t)
	source := t.TempDir()
	target := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(source, "photo.jpg"), payload(jpegHeader, 500))
	writeConfig(t, source, "t-pngify")

	newOrch := func() *pipeline.Orchestrator {
		return pipeline.New(pipeline.Options{
			Cache: fingerprint.New(fingerprint.Options{}),
		})
	}

	st, err := newOrch().Run(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Written)
	assert.FileExists(t, filepath.Join(target, "photo.png"))
	assert.NoFileExists(t, filepath.Join(target, "photo.jpg"))

	// the key is the source name, so the unchanged source still matches
	data, err := os.ReadFile(filepath.Join(source, fingerprint.DefaultMapName))
	require.NoError(t, err)
	var entries map[string]string
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Contains(t, entries, "photo.jpg")
	assert.NotContains(t, entries, "photo.png")

	second, err := newOrch().Run(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Written)

	// changing the source content with the same name is detected
	writeFile(t, filepath.Join(source, "photo.jpg"), payload(jpegHeader, 700))
	third, err := newOrch().Run(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Processed)
	assert.Equal(t, 0, third.Skipped)
}

// 🧪 TestRunDirectoryFailureIsolation: a directory that cannot be created
// sinks only its own files, and creation is attempted once
func TestRunDirectoryFailureIsolation(t *testing.T) {
	ctx := testContext(t)
	source := t.TempDir()
	target := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(source, "a.png"), payload(pngHeader, 100))
	writeFile(t, filepath.Join(source, "sub", "b.png"), payload(pngHeader, 100))
	writeFile(t, filepath.Join(source, "sub", "c.png"), payload(pngHeader, 100))
	writeFile(t, filepath.Join(source, "other", "d.png"), payload(pngHeader, 100))

	// occupy the "sub" slot with a file so MkdirAll fails
	require.NoError(t, os.MkdirAll(target, 0755))
	writeFile(t, filepath.Join(target, "sub"), []byte("roadblock"))

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 4, st.Sources)
	assert.Equal(t, 2, st.Written)
	assert.Equal(t, 2, st.ErrorCount())
	assert.FileExists(t, filepath.Join(target, "a.png"))
	assert.FileExists(t, filepath.Join(target, "other", "d.png"))
	assert.Len(t, st.DirsFailed, 1)

	for _, f := range st.Files {
		if f.RelDir == "sub" {
			assert.False(t, f.Written)
			require.NotEmpty(t, f.Errors)
			assert.True(t, errors.Is(f.Errors[0], pipeline.ErrDirCreate))
		}
	}
}

// 🧪 TestRunLenientRecordsFailures: transform failures never abort the run
func TestRunLenientRecordsFailures(t *testing.T) {
	ctx := testContext(t)
	source := makeSourceTree(t)
	target := filepath.Join(t.TempDir(), "out")
	writeConfig(t, source, "t-fail")

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Sources)
	assert.Equal(t, 0, st.Processed)
	assert.Equal(t, 0, st.Written)
	assert.Equal(t, 3, st.ErrorCount())
	for _, f := range st.Files {
		require.NotEmpty(t, f.Errors)
		assert.True(t, errors.Is(f.Errors[0], pipeline.ErrTransform))
	}
}

// 🧪 TestRunStrict aborts on the first error
func TestRunStrict(t *testing.T) {
	ctx := testContext(t)

	t.Run("transform_failure", func(t *testing.T) {
		source := makeSourceTree(t)
		target := filepath.Join(t.TempDir(), "out")
		writeConfig(t, source, "t-fail")

		orch := pipeline.New(pipeline.Options{
			Cache:  fingerprint.New(fingerprint.Options{Disabled: true}),
			Strict: true,
		})

		_, err := orch.Run(ctx, source, target)
		require.Error(t, err)
		assert.True(t, errors.Is(err, pipeline.ErrTransform))
	})

	t.Run("backend_unavailable", func(t *testing.T) {
		source := makeSourceTree(t)
		target := filepath.Join(t.TempDir(), "out")
		writeConfig(t, source, "t-no-such-backend")

		orch := pipeline.New(pipeline.Options{
			Cache:  fingerprint.New(fingerprint.Options{Disabled: true}),
			Strict: true,
		})

		_, err := orch.Run(ctx, source, target)
		require.Error(t, err)
		assert.True(t, errors.Is(err, optimize.ErrBackendUnavailable))
	})
}

// 🧪 TestRunSourceAndTargetErrors: run-level failures abort in any mode
func TestRunSourceAndTargetErrors(t *testing.T) {
	ctx := testContext(t)
	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
	})

	t.Run("source_not_found", func(t *testing.T) {
		_, err := orch.Run(ctx, filepath.Join(t.TempDir(), "missing"), t.TempDir())
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolve.ErrSourceNotFound))
	})

	t.Run("invalid_target", func(t *testing.T) {
		source := makeSourceTree(t)
		blocked := filepath.Join(t.TempDir(), "blocked")
		writeFile(t, blocked, []byte("x"))

		_, err := orch.Run(ctx, source, blocked)
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolve.ErrInvalidTarget))
	})
}

// 🧪 TestRunMalformedMap: unreadable map degrades to no cache in lenient
// mode and aborts in strict mode
func TestRunMalformedMap(t *testing.T) {
	ctx := testContext(t)

	t.Run("lenient_degrades", func(t *testing.T) {
		source := makeSourceTree(t)
		target := filepath.Join(t.TempDir(), "out")
		writeFile(t, filepath.Join(source, fingerprint.DefaultMapName), []byte("{broken"))

		orch := pipeline.New(pipeline.Options{
			Cache: fingerprint.New(fingerprint.Options{}),
		})

		st, err := orch.Run(ctx, source, target)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Processed)
		assert.Equal(t, 0, st.Skipped)
	})

	t.Run("strict_aborts", func(t *testing.T) {
		source := makeSourceTree(t)
		target := filepath.Join(t.TempDir(), "out")
		writeFile(t, filepath.Join(source, fingerprint.DefaultMapName), []byte("{broken"))

		orch := pipeline.New(pipeline.Options{
			Cache:  fingerprint.New(fingerprint.Options{}),
			Strict: true,
		})

		_, err := orch.Run(ctx, source, target)
		require.Error(t, err)
		assert.True(t, errors.Is(err, fingerprint.ErrMapRead))
	})
}

// 🧪 vetoHooks vetoes every write and counts completions
type vetoHooks struct {
	completed atomic.Int64
}

func (h *vetoHooks) Decide(ctx context.Context, job *pipeline.FileJob, st *stats.RunStats) bool {
	return false
}

func (h *vetoHooks) OnComplete(ctx context.Context, job *pipeline.FileJob, st *stats.RunStats) {
	h.completed.Add(1)
}

// 🧪 TestRunHookVeto: a veto prevents the write but not the completion hook
func TestRunHookVeto(t *testing.T) {
	ctx := testContext(t)
	source := makeSourceTree(t)
	target := filepath.Join(t.TempDir(), "out")

	hooks := &vetoHooks{}
	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
		Hooks: hooks,
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 0, st.Written)
	assert.Equal(t, int64(3), hooks.completed.Load())
	assert.NoFileExists(t, filepath.Join(target, "a.png"))
}

// 🧪 TestRunConcurrent: fan-out mode yields the same counters as sequential
func TestRunConcurrent(t *testing.T) {
	ctx := testContext(t)
	source := t.TempDir()
	for i := 0; i < 8; i++ {
		writeFile(t, filepath.Join(source, fmt.Sprintf("dir%d", i%3), fmt.Sprintf("img%d.png", i)), payload(pngHeader, 256))
	}
	writeConfig(t, source, "t-shrink")
	target := filepath.Join(t.TempDir(), "out")

	orch := pipeline.New(pipeline.Options{
		Cache:      fingerprint.New(fingerprint.Options{Disabled: true}),
		Concurrent: true,
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 8, st.Sources)
	assert.Equal(t, 8, st.Processed)
	assert.Equal(t, 8, st.Written)
	assert.Equal(t, 0, st.ErrorCount())
	assert.Len(t, st.DirsCreated, 3)
	for i := 0; i < 8; i++ {
		assert.FileExists(t, filepath.Join(target, fmt.Sprintf("dir%d", i%3), fmt.Sprintf("img%d.png", i)))
	}
}

// 🧪 TestRunConfigIgnorePatterns: patterns from the document shrink the set
func TestRunConfigIgnorePatterns(t *testing.T) {
	ctx := testContext(t)
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "keep.png"), payload(pngHeader, 100))
	writeFile(t, filepath.Join(source, "thumbs", "skip.png"), payload(pngHeader, 100))
	writeFile(t, filepath.Join(source, ".optirc.json"), []byte(`{"ignore_patterns":["thumbs/**"]}`))
	target := filepath.Join(t.TempDir(), "out")

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{Disabled: true}),
	})

	st, err := orch.Run(ctx, source, target)
	require.NoError(t, err)

	assert.Equal(t, 1, st.Sources)
	assert.FileExists(t, filepath.Join(target, "keep.png"))
	assert.NoFileExists(t, filepath.Join(target, "thumbs", "skip.png"))
}
