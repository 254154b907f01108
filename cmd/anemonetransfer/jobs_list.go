package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/juste-un-gars/anemone_transfer/internal/app"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

var (
	listOutput string

	jobsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the registered jobs",
		Long: `List the registered jobs with their last outcome.

The yaml output has the layout read by "jobs import".`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflineApp(cmd, func(env *environment, a *app.App) error {
				return printJobs(cmd.OutOrStdout(), a, listOutput)
			})
		},
	}
)

func init() {
	jobsListCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table, yaml or json")
	jobsCmd.AddCommand(jobsListCmd)
}

// jobsFile is the document written by "jobs list -o yaml" and read by "jobs import"
type jobsFile struct {
	Jobs []job.Definition `yaml:"jobs"`
}

func printJobs(w io.Writer, a *app.App, format string) error {
	defs := a.Jobs()
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(jobsFile{Jobs: defs}); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		states := make([]job.RuntimeState, 0, len(defs))
		for _, d := range defs {
			if st, ok := a.State(d.ID); ok {
				states = append(states, st)
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"jobs": defs, "states": states})
	case "table", "":
		printJobsTable(w, a, defs)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printJobsTable(w io.Writer, a *app.App, defs []job.Definition) {
	if len(defs) == 0 {
		fmt.Fprintln(w, "No jobs registered.")
		return
	}
	fmt.Fprintf(w, "%-4s %-20s %-9s %-12s %-14s %-8s %-20s %s\n",
		"ID", "NAME", "DIRECTION", "EVERY", "CONNECTION", "ENABLED", "LAST RUN", "STATUS")
	for _, d := range defs {
		st, _ := a.State(d.ID)
		conn := d.Connection
		if conn == "" {
			conn = "local"
		}
		fmt.Fprintf(w, "%-4d %-20s %-9s %-12s %-14s %-8t %-20s %s\n",
			d.ID,
			truncate(d.Name, 20),
			d.Direction,
			fmt.Sprintf("%d %s", d.IntervalValue, d.IntervalUnit),
			truncate(conn, 14),
			d.Enabled,
			formatTime(st.LastRunAt),
			st.LastStatus)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
