package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/walteh/optirc/pkg/stats"
)

const elapsedPrecision = time.Millisecond

// renderSummary builds the closing run-summary table
func renderSummary(st *stats.RunStats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	tw.AppendHeader(table.Row{"", "count"})
	tw.AppendRows([]table.Row{
		{"sources", st.Sources},
		{"processed", st.Processed},
		{"written", st.Written},
		{"skipped", st.Skipped},
		{"errors", st.ErrorCount()},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"source bytes", humanize.Bytes(uint64(st.SourceBytes))},
		{"target bytes", humanize.Bytes(uint64(st.TargetBytes))},
		{"saved", fmt.Sprintf("%.2f%%", st.PercentSaved)},
		{"elapsed", st.Elapsed.Round(elapsedPrecision).String()},
	})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
