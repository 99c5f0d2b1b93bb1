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

	"github.com/walteh/optirc/pkg/stats"
)

// 🪝 Hooks is the caller-supplied extension point around the write stage.
// Implementations must be safe for concurrent use: in fan-out mode every
// file pipeline calls them.
type Hooks interface {
	// Decide may veto the write for this job (return false). A veto is not
	// an error; the file simply completes without output.
	Decide(ctx context.Context, job *FileJob, st *stats.RunStats) bool

	// OnComplete is invoked once per file after its pipeline finishes,
	// whatever the outcome (written, skipped, vetoed or errored).
	OnComplete(ctx context.Context, job *FileJob, st *stats.RunStats)
}

// 🔇 NopHooks writes unconditionally and observes nothing
type NopHooks struct{}

func (NopHooks) Decide(ctx context.Context, job *FileJob, st *stats.RunStats) bool { return true }

func (NopHooks) OnComplete(ctx context.Context, job *FileJob, st *stats.RunStats) {}
