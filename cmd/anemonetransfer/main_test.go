package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

func TestParseJobsFile(t *testing.T) {
	doc := `
jobs:
  - id: 12
    name: photos
    direction: upload
    source_path: /data/photos
    destination_path: /backup/photos
    interval_value: 30
    interval_unit: minutes
  - name: reports
    direction: download
    connection: nas
    source_path: /reports
    destination_path: /tmp/reports
    interval_value: 1
    interval_unit: hours
    max_retries: 0
    retry_delay_seconds: 2
    enabled: false
    filter:
      enabled: true
      include_extensions: [pdf]
`
	defs, err := parseJobsFile(strings.NewReader(doc), importDefaults{MaxRetries: 3, RetryDelaySeconds: 10})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	photos := defs[0]
	assert.Equal(t, int64(0), photos.ID)
	assert.Equal(t, job.DirectionUpload, photos.Direction)
	assert.Equal(t, 3, photos.MaxRetries)
	assert.Equal(t, 10, photos.RetryDelaySeconds)
	assert.True(t, photos.Enabled)

	reports := defs[1]
	assert.Equal(t, "nas", reports.Connection)
	assert.Equal(t, 0, reports.MaxRetries)
	assert.Equal(t, 2, reports.RetryDelaySeconds)
	assert.False(t, reports.Enabled)
	assert.True(t, reports.Filter.Enabled)
	assert.Equal(t, []string{"pdf"}, reports.Filter.IncludeExtensions)
}

func TestParseJobsFileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no jobs", "jobs: []\n"},
		{"unknown top-level key", "tasks:\n  - name: x\n"},
		{"wrong type", "jobs:\n  - name: x\n    interval_value: often\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJobsFile(strings.NewReader(tt.doc), importDefaults{})
			assert.Error(t, err)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	s := &job.RunSummary{
		RunID:          uuid.New(),
		JobID:          3,
		JobName:        "photos",
		Direction:      job.DirectionUpload,
		FilesMatched:   2,
		FilesCompleted: 1,
		FilesFailed:    1,
		TotalBytes:     5,
		Status:         job.StatusPartial,
		Results: []job.TransferResult{
			{Path: "/src/a.txt", DestinationPath: "/dst/a.txt", Success: true, BytesTransferred: 5},
			{Path: "/src/b.txt", DestinationPath: "/dst/b.txt", Error: "permission denied"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, s, false)
	out := buf.String()
	assert.Contains(t, out, "photos (#3, upload)")
	assert.Contains(t, out, "Status:    partial")
	assert.Contains(t, out, "FAILED  /src/b.txt: permission denied")
	assert.NotContains(t, out, "/src/a.txt")

	buf.Reset()
	printSummary(&buf, s, true)
	assert.Contains(t, buf.String(), "OK      /src/a.txt -> /dst/a.txt (5 bytes)")
}

// execute runs the root command with args against the config at cfgPath
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestJobsCommands(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "paths:\n" +
		"  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"  log_dir: " + filepath.Join(dir, "logs") + "\n" +
		"store:\n" +
		"  backend: file\n" +
		"  path: " + filepath.Join(dir, "data", "jobs.json") + "\n" +
		"transfer:\n" +
		"  default_max_retries: 1\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	jobsPath := filepath.Join(dir, "jobs.yaml")
	jobsDoc := "jobs:\n" +
		"  - name: copy\n" +
		"    direction: upload\n" +
		"    source_path: " + src + "\n" +
		"    destination_path: " + dst + "\n" +
		"    interval_value: 1\n" +
		"    interval_unit: hours\n" +
		"  - name: broken\n" +
		"    direction: sideways\n" +
		"    source_path: " + src + "\n" +
		"    destination_path: " + dst + "\n" +
		"    interval_value: 1\n" +
		"    interval_unit: hours\n"
	require.NoError(t, os.WriteFile(jobsPath, []byte(jobsDoc), 0644))

	out, err := execute(t, cfgPath, "jobs", "import", jobsPath)
	assert.Error(t, err)
	assert.Contains(t, out, "added    copy")
	assert.Contains(t, out, "rejected broken")

	out, err = execute(t, cfgPath, "jobs", "list", "-o", "yaml")
	require.NoError(t, err)
	var listed jobsFile
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Jobs, 1)
	assert.Equal(t, int64(1), listed.Jobs[0].ID)
	assert.Equal(t, 1, listed.Jobs[0].MaxRetries)

	out, err = execute(t, cfgPath, "run", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    success")
	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	out, err = execute(t, cfgPath, "jobs", "list", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "copy")
	assert.Contains(t, out, "success")

	_, err = execute(t, cfgPath, "jobs", "remove", "7")
	assert.Error(t, err)

	out, err = execute(t, cfgPath, "jobs", "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed job 1 (copy)")

	out, err = execute(t, cfgPath, "jobs", "list", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs registered.")
}
