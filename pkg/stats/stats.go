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

// Package stats accumulates counts, byte totals and timing across a run.
package stats

import (
	"math"
	"sync"
	"time"
)

// ⏱️ Timings holds per-stage durations for a single file
type Timings struct {
	Read    time.Duration `json:"read"`
	Process time.Duration `json:"process"`
	Write   time.Duration `json:"write"`
	Total   time.Duration `json:"total"`
}

// 📄 FileResult is the per-file record folded into the run result
type FileResult struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	RelDir       string  `json:"rel_dir"`
	SourceExt    string  `json:"source_ext"`
	SourceType   string  `json:"source_type"`
	OutputType   string  `json:"output_type"`
	RawSize      int64   `json:"raw_size"`
	OutputSize   int64   `json:"output_size"`
	PercentSaved float64 `json:"percent_saved"`
	Skipped      bool    `json:"skipped"`
	Written      bool    `json:"written"`
	Timings      Timings `json:"timings"`
	Errors       []error `json:"-"`
}

// 📊 RunStats is the aggregate result of a run. All mutation goes through
// methods so concurrent file pipelines can share one instance.
type RunStats struct {
	mu sync.Mutex

	Sources   int `json:"sources"`
	Processed int `json:"processed"`
	Written   int `json:"written"`
	Skipped   int `json:"skipped"`

	SourceBytes  int64   `json:"source_bytes"`
	TargetBytes  int64   `json:"target_bytes"`
	PercentSaved float64 `json:"percent_saved"`

	DirsCreated map[string]struct{} `json:"dirs_created"`
	DirsFailed  map[string]struct{} `json:"dirs_failed"`

	Files []FileResult `json:"files"`

	Elapsed time.Duration `json:"elapsed"`
}

// 🏭 New creates a zeroed RunStats for a run over the given source count
func New(sources int) *RunStats {
	return &RunStats{
		Sources:     sources,
		DirsCreated: make(map[string]struct{}),
		DirsFailed:  make(map[string]struct{}),
	}
}

// RecordProcessed accumulates size totals for a file whose transform succeeded
func (s *RunStats) RecordProcessed(rawSize, outputSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed++
	s.SourceBytes += rawSize
	s.TargetBytes += outputSize
}

// RecordWritten counts a successfully persisted output file
func (s *RunStats) RecordWritten() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Written++
}

// RecordSkipped counts a fingerprint cache hit
func (s *RunStats) RecordSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
}

// AddFile folds a completed file record into the run result
func (s *RunStats) AddFile(res FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files = append(s.Files, res)
}

// DirCreated reports whether dir was already materialized this run
func (s *RunStats) DirCreated(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.DirsCreated[dir]
	return ok
}

// DirFailed reports whether creating dir already failed this run
func (s *RunStats) DirFailed(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.DirsFailed[dir]
	return ok
}

// RecordDirCreated memoizes a successful directory materialization
func (s *RunStats) RecordDirCreated(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DirsCreated[dir] = struct{}{}
}

// RecordDirFailed memoizes a failed directory materialization
func (s *RunStats) RecordDirFailed(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DirsFailed[dir] = struct{}{}
}

// ErrorCount returns the number of files that recorded at least one error
func (s *RunStats) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.Files {
		if len(f.Errors) > 0 {
			n++
		}
	}
	return n
}

// Finish seals the run: records elapsed time and computes the aggregate
// compression percentage from the accumulated byte totals.
func (s *RunStats) Finish(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Elapsed = elapsed
	s.PercentSaved = Percent(s.SourceBytes, s.TargetBytes)
}

// Percent computes 100 - (target/source * 100) rounded to two decimal
// places. Zero on either side yields 0, never NaN.
func Percent(sourceBytes, targetBytes int64) float64 {
	if sourceBytes == 0 || targetBytes == 0 {
		return 0
	}
	return math.Round((100-float64(targetBytes)/float64(sourceBytes)*100)*100) / 100
}
