package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/juste-un-gars/anemone_transfer/internal/app"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

var (
	importDryRun bool

	jobsImportCmd = &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register the jobs described in a YAML file",
		Long: `Register every job of a YAML file. The file has a top-level "jobs" list
using the keys of "jobs list -o yaml". Ids in the file are ignored.

max_retries and retry_delay_seconds default to transfer.default_max_retries
and transfer.default_retry_delay_seconds; enabled defaults to true.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runJobsImport,
	}
)

func init() {
	jobsImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the file without registering anything")
	jobsCmd.AddCommand(jobsImportCmd)
}

// importDefaults fills the keys a job entry leaves out
type importDefaults struct {
	MaxRetries        int
	RetryDelaySeconds int
}

func runJobsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return withOfflineApp(cmd, func(env *environment, a *app.App) error {
		defs, err := parseJobsFile(f, importDefaults{
			MaxRetries:        env.cfg.Transfer.DefaultMaxRetries,
			RetryDelaySeconds: env.cfg.Transfer.DefaultRetryDelaySeconds,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return importJobs(cmd.OutOrStdout(), a, defs, importDryRun)
	})
}

// parseJobsFile decodes a jobs document. Keys are checked on the YAML node
// so an explicit 0 or false is kept while a missing key gets its default.
func parseJobsFile(r io.Reader, defaults importDefaults) ([]job.Definition, error) {
	var doc struct {
		Jobs []yaml.Node `yaml:"jobs"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty jobs file")
		}
		return nil, err
	}
	if len(doc.Jobs) == 0 {
		return nil, fmt.Errorf("no jobs in file")
	}

	defs := make([]job.Definition, 0, len(doc.Jobs))
	for i := range doc.Jobs {
		node := &doc.Jobs[i]
		var def job.Definition
		if err := node.Decode(&def); err != nil {
			return nil, fmt.Errorf("job #%d (line %d): %w", i+1, node.Line, err)
		}
		if !hasKey(node, "max_retries") {
			def.MaxRetries = defaults.MaxRetries
		}
		if !hasKey(node, "retry_delay_seconds") {
			def.RetryDelaySeconds = defaults.RetryDelaySeconds
		}
		if !hasKey(node, "enabled") {
			def.Enabled = true
		}
		def.ID = 0
		defs = append(defs, def)
	}
	return defs, nil
}

func hasKey(node *yaml.Node, key string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// importJobs registers defs one by one. Invalid entries are reported and
// skipped; the error lists how many failed.
func importJobs(w io.Writer, a *app.App, defs []job.Definition, dryRun bool) error {
	failed := 0
	for i := range defs {
		def := defs[i]
		if dryRun {
			if err := def.Check(); err != nil {
				failed++
				fmt.Fprintf(w, "invalid  %-20s %v\n", def.Name, err)
				continue
			}
			fmt.Fprintf(w, "ok       %s\n", def.String())
			continue
		}

		id, err := a.RegisterTimerJob(def)
		if err != nil {
			failed++
			fmt.Fprintf(w, "rejected %-20s %v\n", def.Name, err)
			continue
		}
		fmt.Fprintf(w, "added    %-20s id=%d\n", def.Name, id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs rejected", failed, len(defs))
	}
	return nil
}
