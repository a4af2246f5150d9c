package main

import (
	"fmt"
	"strings"

	"github.com/LJTian/GitCodeNews/internal/collector"
	"github.com/LJTian/GitCodeNews/internal/runner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

// 终端里标题按显示宽度截断，中文占两列
const titleWidth = 60

func renderReport(report runner.Report) string {
	var b strings.Builder

	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.AppendHeader(table.Row{"Source", "Mode", "Attempts", "Records", "Error"})
	for _, o := range report.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = runewidth.Truncate(o.Err.Error(), titleWidth, "...")
		}
		summary.AppendRow(table.Row{o.Label, string(o.Mode), o.Attempts, len(o.Records), errText})
	}
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	b.WriteString(summary.Render())

	for _, o := range report.Outcomes {
		if len(o.Records) == 0 {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(renderRecords(o.Label, o.Records))
	}
	return b.String()
}

func renderRecords(label string, rs collector.ResultSet) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(label)
	tw.AppendHeader(table.Row{"#", "Time", "Title", "URL"})
	for i, r := range rs {
		tw.AppendRow(table.Row{fmt.Sprintf("%d", i+1), r.Time, runewidth.Truncate(r.Title, titleWidth, "..."), r.URL})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
	})
	return tw.Render()
}
