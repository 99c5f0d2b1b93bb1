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
	"github.com/walteh/optirc/pkg/stats"
)

// 📄 FileJob is the transient per-file record threaded through the stages.
// It lives for one file's pipeline only; the output buffer is dropped right
// after a successful write and the rest is folded into the run stats.
type FileJob struct {
	Source    string
	RelDir    string
	SourceExt string

	// Target may change extension after the retype stage; that is the only
	// point where it mutates.
	Target string

	Hash string

	RawSize    int64
	OutputSize int64

	SourceType   string
	OutputType   string
	PercentSaved float64

	Skipped bool
	Written bool

	Timings stats.Timings
	Errors  []error

	output []byte
}

// Result converts the job into the record folded into RunStats
func (j *FileJob) Result() stats.FileResult {
	return stats.FileResult{
		Source:       j.Source,
		Target:       j.Target,
		RelDir:       j.RelDir,
		SourceExt:    j.SourceExt,
		SourceType:   j.SourceType,
		OutputType:   j.OutputType,
		RawSize:      j.RawSize,
		OutputSize:   j.OutputSize,
		PercentSaved: j.PercentSaved,
		Skipped:      j.Skipped,
		Written:      j.Written,
		Timings:      j.Timings,
		Errors:       j.Errors,
	}
}
