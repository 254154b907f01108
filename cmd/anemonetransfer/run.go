package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/juste-un-gars/anemone_transfer/internal/app"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

var (
	runVerbose bool

	runCmd = &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job once and record the outcome",
		Long: `Run executes one job synchronously, outside its timer, and records the
outcome like a scheduled run. Ctrl-C aborts the run.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runJob,
	}
)

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print every file")
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}
	return withOfflineApp(cmd, func(env *environment, a *app.App) error {
		summary, err := a.RunSync(cmd.Context(), id)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary, runVerbose)
		if summary.Status == job.StatusFailed {
			return fmt.Errorf("run of job %d failed", id)
		}
		return nil
	})
}

func printSummary(w io.Writer, s *job.RunSummary, verbose bool) {
	fmt.Fprintf(w, "Job:       %s (#%d, %s)\n", s.JobName, s.JobID, s.Direction)
	fmt.Fprintf(w, "Run:       %s\n", s.RunID)
	fmt.Fprintf(w, "Status:    %s\n", s.Status)
	fmt.Fprintf(w, "Files:     %d matched, %d completed, %d failed, %d skipped\n",
		s.FilesMatched, s.FilesCompleted, s.FilesFailed, s.FilesSkipped)
	fmt.Fprintf(w, "Bytes:     %d (%.0f B/s)\n", s.TotalBytes, s.AverageSpeed)
	fmt.Fprintf(w, "Duration:  %s\n", s.Duration)
	if s.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", s.Error)
	}

	for _, r := range s.Results {
		if r.Success && !verbose && r.DeleteError == "" {
			continue
		}
		switch {
		case !r.Success:
			fmt.Fprintf(w, "  FAILED  %s: %s\n", r.Path, r.Error)
		case r.DeleteError != "":
			fmt.Fprintf(w, "  KEPT    %s: %s\n", r.Path, r.DeleteError)
		default:
			fmt.Fprintf(w, "  OK      %s -> %s (%d bytes)\n", r.Path, r.DestinationPath, r.BytesTransferred)
		}
	}
}
