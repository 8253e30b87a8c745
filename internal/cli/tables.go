// Package cli renders check results and stored history for the terminal.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/banprobe-project/banprobe/internal/checker"
	"github.com/banprobe-project/banprobe/internal/db"
)

// maxReasonWidth bounds the reason column; longer reasons are cut with "...".
const maxReasonWidth = 48

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// RenderResult prints one check result as a two-column table.
func RenderResult(w io.Writer, r *checker.Result) {
	tw := newTable(w, []string{"Field", "Value"})
	tw.AppendBulk([][]string{
		{"Name", r.MCName},
		{"UUID", r.MCUUID},
		{"Status", strings.ToUpper(r.Status)},
		{"Reason", r.Reason},
		{"Time left", r.TimeLeft},
		{"Ban ID", r.BanID},
	})
	tw.Render()
}

// RenderHistory prints stored results, newest first as given. Times are
// shown in loc.
func RenderHistory(w io.Writer, entries []db.HistoryEntry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No stored results.")
		return
	}
	if loc == nil {
		loc = time.Local
	}

	tw := newTable(w, []string{"Checked", "Name", "Status", "Reason", "Time left", "Ban ID", "Took"})
	for _, e := range entries {
		tw.Append([]string{
			e.CheckedAt.In(loc).Format("2006-01-02 15:04:05"),
			e.MCName,
			strings.ToUpper(e.Status),
			truncate(e.Reason, maxReasonWidth),
			e.TimeLeft,
			e.BanID,
			formatDuration(e.Duration),
		})
	}
	tw.SetFooter([]string{"", "", "", "", "", "Total", fmt.Sprintf("%d", len(entries))})
	tw.Render()
}

// RenderStats prints the number of stored results per status.
func RenderStats(w io.Writer, counts []db.StatusCount) {
	var total int64
	tw := newTable(w, []string{"Status", "Results"})
	for _, c := range counts {
		tw.Append([]string{strings.ToUpper(c.Status), fmt.Sprintf("%d", c.Count)})
		total += c.Count
	}
	tw.SetFooter([]string{"Total", fmt.Sprintf("%d", total)})
	tw.Render()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
