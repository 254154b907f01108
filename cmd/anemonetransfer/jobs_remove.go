package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juste-un-gars/anemone_transfer/internal/app"
)

var jobsRemoveCmd = &cobra.Command{
	Use:          "remove <id>",
	Aliases:      []string{"rm"},
	Short:        "Delete a job",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withOfflineApp(cmd, func(env *environment, a *app.App) error {
			def, ok := a.Job(id)
			if !ok || !a.RemoveTimerJob(id) {
				return fmt.Errorf("job %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d (%s)\n", id, def.Name)
			return nil
		})
	},
}

func init() {
	jobsCmd.AddCommand(jobsRemoveCmd)
}
