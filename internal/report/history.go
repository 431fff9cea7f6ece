package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/restswarm/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderRuns formats stored runs as a table, newest first as given
func RenderRuns(runs []*store.Run) string {
	if len(runs) == 0 {
		return styleMuted.Render("no runs recorded")
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			r.Name,
			r.StartedAt.Local().Format(timeLayout),
			formatRunDuration(r),
			r.Status,
			fmt.Sprintf("%d", r.Users),
			fmt.Sprintf("%d", r.TotalRequests),
			fmt.Sprintf("%.1f", r.FailureRatio()*100),
			fmt.Sprintf("%.1fms", r.P95Ms),
			fmt.Sprintf("%.1f", r.RPS),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		Headers("ID", "Name", "Started", "Duration", "Status", "Users", "Reqs", "Fail%", "P95", "RPS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == 4:
				return styleCell.Foreground(statusColor(runs[row].Status))
			case col == 7:
				return styleCell.Foreground(failureColor(runs[row].FailureRatio()))
			default:
				return styleCell
			}
		})
	return t.Render()
}

// RenderRun formats the totals of one stored run
func RenderRun(run *store.Run) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("Run %d  %s", run.ID, run.Name)))
	b.WriteString("\n")

	fields := [][2]string{
		{"Host", run.Host},
		{"Scenario", orDash(run.Scenario)},
		{"Started", run.StartedAt.Local().Format(timeLayout)},
		{"Duration", formatRunDuration(run)},
		{"Status", lipgloss.NewStyle().Foreground(statusColor(run.Status)).Render(run.Status)},
		{"Users", fmt.Sprintf("%d (ramp %g/s)", run.Users, run.RampRate)},
		{"Requests", fmt.Sprintf("%d", run.TotalRequests)},
		{"Failures", fmt.Sprintf("%d (%.1f%%)", run.TotalFailures, run.FailureRatio()*100)},
		{"Latency", fmt.Sprintf("avg %.1fms  min %.1fms  max %.1fms", run.AvgMs, run.MinMs, run.MaxMs)},
		{"Percentiles", fmt.Sprintf("p50 %.1fms  p95 %.1fms  p99 %.1fms", run.P50Ms, run.P95Ms, run.P99Ms)},
		{"Throughput", fmt.Sprintf("%.1f req/s", run.RPS)},
	}
	if run.ForcedShutdowns > 0 {
		fields = append(fields, [2]string{"Forced shutdowns", fmt.Sprintf("%d", run.ForcedShutdowns)})
	}

	label := lipgloss.NewStyle().Bold(true).Width(18)
	for _, f := range fields {
		b.WriteString(label.Render(f[0]))
		b.WriteString(f[1])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderIntervals formats the stored interval rows of a run
func RenderIntervals(intervals []*store.Interval) string {
	if len(intervals) == 0 {
		return styleMuted.Render("no intervals recorded")
	}

	rows := make([][]string, 0, len(intervals))
	for _, iv := range intervals {
		rows = append(rows, []string{
			iv.WindowStart.Local().Format("15:04:05"),
			iv.Task,
			iv.Name,
			iv.Method,
			fmt.Sprintf("%d", iv.Requests),
			fmt.Sprintf("%d", iv.Failures),
			fmt.Sprintf("%.1fms", iv.AvgMs),
			fmt.Sprintf("%.1fms", iv.P95Ms),
			fmt.Sprintf("%.1f", iv.RPS),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		Headers("Window", "Task", "Name", "Method", "Reqs", "Fails", "Avg", "P95", "RPS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	return t.Render()
}

func formatRunDuration(run *store.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Duration().Round(100 * time.Millisecond).String()
}

func statusColor(status string) lipgloss.Color {
	switch status {
	case store.StatusCompleted:
		return colorGreen
	case store.StatusRunning, store.StatusCancelled:
		return colorYellow
	default:
		return colorRed
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
