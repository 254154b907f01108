package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the persisted transfer jobs",
	Long: `Edit the job store directly. These commands never arm timers; a running
"serve" process does not see the changes until it is restarted.`,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func jobNames(defs []job.Definition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}
