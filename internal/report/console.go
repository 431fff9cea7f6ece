package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/restswarm/internal/stats"
)

var (
	colorGreen  = lipgloss.Color("10")
	colorYellow = lipgloss.Color("11")
	colorRed    = lipgloss.Color("9")
	colorGray   = lipgloss.Color("8")
	colorCyan   = lipgloss.Color("14")

	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleTotal  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleMuted  = lipgloss.NewStyle().Foreground(colorGray)
)

// ConsoleSink renders snapshots as tables
type ConsoleSink struct {
	out   io.Writer
	users func() int
}

// NewConsoleSink writes to out (stdout when nil). users reports the live
// population for the header and may be nil.
func NewConsoleSink(out io.Writer, users func() int) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out, users: users}
}

// Report prints one interval
func (c *ConsoleSink) Report(ctx context.Context, snap *stats.Snapshot) error {
	title := fmt.Sprintf("%s  interval %s", snap.GeneratedAt.Format("15:04:05"), windowLength(snap))
	if c.users != nil {
		title += fmt.Sprintf("  users %d", c.users())
	}
	_, err := fmt.Fprintln(c.out, Render(title, snap))
	return err
}

// Close prints the final summary
func (c *ConsoleSink) Close(ctx context.Context, final *stats.Snapshot) error {
	_, err := fmt.Fprintln(c.out, Render("Final summary  "+windowLength(final), final))
	return err
}

func windowLength(snap *stats.Snapshot) string {
	from := snap.Window.From
	if from.IsZero() {
		from = snap.Total.FirstAt
	}
	to := snap.Window.To
	if to.IsZero() {
		to = snap.GeneratedAt
	}
	if from.IsZero() || !to.After(from) {
		return "0s"
	}
	return to.Sub(from).Round(time.Millisecond).String()
}

// Render formats a snapshot as a titled table
func Render(title string, snap *stats.Snapshot) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(title))
	b.WriteString("\n")

	if snap.Requests() == 0 {
		b.WriteString(styleMuted.Render("no requests in this window"))
		return b.String()
	}

	entries := snap.Sorted()
	rows := make([][]string, 0, len(entries)+1)
	for _, e := range entries {
		rows = append(rows, entryRow(e, e.Task, e.Name))
	}
	rows = append(rows, entryRow(snap.Total, "", stats.TotalName))
	totalRow := len(rows) - 1

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		Headers("Task", "Name", "Method", "Reqs", "Fails", "Fail%", "Avg", "Min", "Max", "P50", "P95", "P99", "RPS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case row == totalRow:
				return styleTotal
			case col == 5:
				return styleCell.Foreground(failureColor(entryAt(entries, snap.Total, row).FailureRatio()))
			default:
				return styleCell
			}
		})

	b.WriteString(t.Render())

	if len(snap.Total.ErrorKinds) > 0 {
		b.WriteString("\n")
		b.WriteString(styleMuted.Render("errors: " + formatErrorKinds(snap.Total.ErrorKinds)))
	}
	return b.String()
}

func entryAt(entries []*stats.EntryStats, total *stats.EntryStats, row int) *stats.EntryStats {
	if row >= 0 && row < len(entries) {
		return entries[row]
	}
	return total
}

func entryRow(e *stats.EntryStats, task, name string) []string {
	return []string{
		task,
		name,
		e.Method,
		fmt.Sprintf("%d", e.Requests),
		fmt.Sprintf("%d", e.Failures),
		fmt.Sprintf("%.1f", e.FailureRatio()*100),
		formatLatency(e.MeanLatency),
		formatLatency(e.MinLatency),
		formatLatency(e.MaxLatency),
		formatLatency(e.P50Latency),
		formatLatency(e.P95Latency),
		formatLatency(e.P99Latency),
		fmt.Sprintf("%.1f", e.RequestsPerSecond),
	}
}

// formatLatency prints milliseconds with one decimal
func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

func failureColor(ratio float64) lipgloss.Color {
	switch {
	case ratio == 0:
		return colorGreen
	case ratio < 0.05:
		return colorYellow
	default:
		return colorRed
	}
}

func formatErrorKinds(kinds map[stats.ErrorKind]int) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range sortedKinds(kinds) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[k]))
	}
	return strings.Join(parts, " ")
}
