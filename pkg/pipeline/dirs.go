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
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/optirc/pkg/stats"
)

// 📁 Materializer ensures target directories exist, memoizing successes and
// failures in the run stats so files sharing a directory touch storage once.
// The check-then-act sequence is atomic under the mutex: two concurrent
// files racing on the same missing directory cannot both attempt creation.
type Materializer struct {
	mu sync.Mutex
}

// Ensure returns true when dir exists (or was just created) and records the
// outcome exactly once. A directory that already failed this run is never
// retried.
func (m *Materializer) Ensure(ctx context.Context, dir string, st *stats.RunStats) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.DirCreated(dir) {
		return true
	}
	if st.DirFailed(dir) {
		return false
	}

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		st.RecordDirCreated(dir)
		return true
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		zerolog.Ctx(ctx).Warn().Str("dir", dir).Err(err).Msg("creating target directory failed")
		st.RecordDirFailed(dir)
		return false
	}

	zerolog.Ctx(ctx).Debug().Str("dir", dir).Msg("created target directory")
	st.RecordDirCreated(dir)
	return true
}
