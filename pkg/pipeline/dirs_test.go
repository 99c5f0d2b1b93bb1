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
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optirc/pkg/stats"
)

// 🧪 TestEnsureMemoizesSuccess: one creation, then cheap lookups
func TestEnsureMemoizesSuccess(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := logger.WithContext(context.Background())

	var m Materializer
	st := stats.New(2)
	dir := filepath.Join(t.TempDir(), "nested", "deep")

	require.True(t, m.Ensure(ctx, dir, st))
	assert.DirExists(t, dir)
	assert.True(t, st.DirCreated(dir))

	// second call never touches storage; removing the dir proves it
	require.NoError(t, os.RemoveAll(dir))
	assert.True(t, m.Ensure(ctx, dir, st))
}

// 🧪 TestEnsureMemoizesFailure: a failed directory is never retried
func TestEnsureMemoizesFailure(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := logger.WithContext(context.Background())

	var m Materializer
	st := stats.New(2)

	root := t.TempDir()
	blocked := filepath.Join(root, "sub")
	require.NoError(t, os.WriteFile(blocked, []byte("roadblock"), 0644))

	require.False(t, m.Ensure(ctx, blocked, st))
	assert.True(t, st.DirFailed(blocked))

	// unblocking does not help: the failure is memoized for the run
	require.NoError(t, os.Remove(blocked))
	assert.False(t, m.Ensure(ctx, blocked, st))
	assert.NoDirExists(t, blocked)
}

// 🧪 TestEnsureConcurrentRace: one winner per directory under contention
func TestEnsureConcurrentRace(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := logger.WithContext(context.Background())

	var m Materializer
	st := stats.New(32)
	dir := filepath.Join(t.TempDir(), "shared")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.Ensure(ctx, dir, st))
		}()
	}
	wg.Wait()

	assert.DirExists(t, dir)
	assert.Len(t, st.DirsCreated, 1)
	assert.Empty(t, st.DirsFailed)
}
