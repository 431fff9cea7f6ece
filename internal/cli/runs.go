package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/studiowebux/restswarm/internal/config"
	"github.com/studiowebux/restswarm/internal/report"
	"github.com/studiowebux/restswarm/internal/store"
	"gopkg.in/yaml.v3"
)

// ErrDeleteCancelled is returned when the delete prompt is declined
var ErrDeleteCancelled = errors.New("delete cancelled")

// HistoryOptions selects the run history database and the output format
type HistoryOptions struct {
	DBPath string
	Output string    // table, json, yaml
	Stdout io.Writer
}

func (o HistoryOptions) open() (*store.Manager, error) {
	path := o.DBPath
	if path == "" {
		path = config.DatabasePath
	}
	manager, err := store.NewManager(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return manager, nil
}

// ListRuns prints the most recent runs
func ListRuns(opts HistoryOptions, limit int) error {
	manager, err := opts.open()
	if err != nil {
		return err
	}
	defer manager.Close()

	runs, err := manager.ListRuns(limit)
	if err != nil {
		return err
	}
	return write(opts, runs, func() string { return report.RenderRuns(runs) })
}

// runDetail is the structured form of `runs show`
type runDetail struct {
	Run       *store.Run        `json:"run" yaml:"run"`
	Intervals []*store.Interval `json:"intervals,omitempty" yaml:"intervals,omitempty"`
}

// ShowRun prints one run with its interval rows
func ShowRun(opts HistoryOptions, id int64) error {
	manager, err := opts.open()
	if err != nil {
		return err
	}
	defer manager.Close()

	run, err := manager.GetRun(id)
	if err != nil {
		return err
	}
	intervals, err := manager.GetIntervals(id)
	if err != nil {
		return err
	}

	detail := runDetail{Run: run, Intervals: intervals}
	return write(opts, detail, func() string {
		return report.RenderRun(run) + "\n\n" + report.RenderIntervals(intervals)
	})
}

// DeleteRun removes a run. Without force, confirm is read from in.
func DeleteRun(opts HistoryOptions, id int64, force bool, in io.Reader) error {
	manager, err := opts.open()
	if err != nil {
		return err
	}
	defer manager.Close()

	run, err := manager.GetRun(id)
	if err != nil {
		return err
	}

	if !force {
		fmt.Fprintf(opts.Stdout, "Delete run %d (%s, %s)? [y/N]: ", run.ID, run.Name, run.StartedAt.Local().Format("2006-01-02 15:04"))
		answer, _ := bufio.NewReader(in).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return ErrDeleteCancelled
		}
	}

	if err := manager.DeleteRun(id); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "Deleted run %d\n", id)
	return nil
}

func write(opts HistoryOptions, v any, table func() string) error {
	switch opts.Output {
	case "", OutputTable:
		_, err := fmt.Fprintln(opts.Stdout, table())
		return err
	case OutputJSON:
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		return yaml.NewEncoder(opts.Stdout).Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", opts.Output)
	}
}
