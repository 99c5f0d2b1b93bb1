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

// Package log renders per-file console output for a run. The core pipeline
// never writes to the console itself; the Reporter plugs in as its
// completion hook.
package log

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/walteh/optirc/pkg/pipeline"
	"github.com/walteh/optirc/pkg/stats"
)

// 🎨 Display configuration
const (
	fileIndent = 4  // spaces to indent file entries
	nameWidth  = 35 // base width for filename
	sizeWidth  = 22 // width for the size transition column
)

// 🎯 Reporter prints one line per completed file. It implements
// pipeline.Hooks: writes are never vetoed, completion renders the line.
type Reporter struct {
	console io.Writer
	mu      sync.Mutex
}

// 🏭 NewReporter creates a reporter writing to console
func NewReporter(console io.Writer) *Reporter {
	return &Reporter{console: console}
}

// Decide never vetoes a write
func (r *Reporter) Decide(ctx context.Context, job *pipeline.FileJob, st *stats.RunStats) bool {
	return true
}

// OnComplete renders the file's outcome line
func (r *Reporter) OnComplete(ctx context.Context, job *pipeline.FileJob, st *stats.RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.console, formatFileLine(job))

	zerolog.Ctx(ctx).Debug().
		Str("file", job.Source).
		Bool("skipped", job.Skipped).
		Bool("written", job.Written).
		Int64("raw_size", job.RawSize).
		Int64("output_size", job.OutputSize).
		Float64("percent_saved", job.PercentSaved).
		Msg("file complete")
}

// formatFileLine builds the console line for one finished job
func formatFileLine(job *pipeline.FileJob) string {
	var symbol string
	var detail string
	switch {
	case len(job.Errors) > 0:
		symbol = color.New(color.FgRed).Sprint("✗")
		detail = color.New(color.FgRed).Sprint(job.Errors[0].Error())
	case job.Skipped:
		symbol = color.New(color.FgYellow).Sprint("-")
		detail = color.New(color.Faint).Sprint("unchanged")
	case job.Written:
		symbol = color.New(color.FgGreen).Sprint("✓")
		detail = color.New(color.FgGreen).Sprintf("%.2f%%", job.PercentSaved)
	default:
		symbol = color.New(color.FgCyan).Sprint("•")
		detail = color.New(color.Faint).Sprint("not written")
	}

	sizes := ""
	if !job.Skipped && job.OutputSize > 0 {
		sizes = fmt.Sprintf("%s → %s",
			humanize.Bytes(uint64(job.RawSize)),
			humanize.Bytes(uint64(job.OutputSize)))
	}

	name := filepath.Base(job.Source)
	if job.RelDir != "" {
		name = filepath.Join(job.RelDir, name)
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		symbol,
		fmt.Sprintf("%-*s", nameWidth, name),
		fmt.Sprintf("%-*s", sizeWidth, sizes),
		detail)
}

// 📝 Header prints the run banner
func Header(console io.Writer, msg string) {
	name := color.New(color.Bold, color.FgCyan).Sprint("optirc")
	fmt.Fprintf(console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
}

// 📝 Success prints a closing success message
func Success(console io.Writer, msg string) {
	fmt.Fprintf(console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
}

// 📝 Warning prints a closing warning message
func Warning(console io.Writer, msg string) {
	fmt.Fprintf(console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
}
