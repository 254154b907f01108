package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juste-un-gars/anemone_transfer/internal/store"
	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Name != "test" {
		t.Errorf("App.Name = %q, want test", cfg.App.Name)
	}
	if cfg.Store.Backend != store.BackendFile {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, store.BackendFile)
	}
	if filepath.Base(cfg.Store.Path) != "jobs.json" {
		t.Errorf("Store.Path = %q, want jobs.json in data dir", cfg.Store.Path)
	}
	if cfg.Scheduler.MaxConcurrentRuns != 4 {
		t.Errorf("MaxConcurrentRuns = %d, want 4", cfg.Scheduler.MaxConcurrentRuns)
	}
	if cfg.ShutdownTimeout() != 30*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 30s", cfg.ShutdownTimeout())
	}
	if cfg.Security.KeystoreServiceName != transfer.DefaultServiceName {
		t.Errorf("KeystoreServiceName = %q", cfg.Security.KeystoreServiceName)
	}
	if filepath.Base(cfg.Logging.File) != "anemone_transfer.log" {
		t.Errorf("Logging.File = %q", cfg.Logging.File)
	}
}

func TestLoadConnections(t *testing.T) {
	path := writeConfig(t, `
transfer:
  timeout_seconds: 12
connections:
  nas:
    protocol: SMB
    host: nas.local
    share: backup
    username: alice
    credential_id: nas-creds
  ftp-box:
    protocol: ftp
    host: ftp.example.com
    port: 2121
    timeout_seconds: 5
    max_bytes_per_second: 1048576
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	settings, err := cfg.ConnectionSettings()
	if err != nil {
		t.Fatalf("ConnectionSettings() error = %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("got %d profiles, want 2", len(settings))
	}

	nas := settings["nas"]
	if nas.Protocol != transfer.ProtocolSMB || nas.Share != "backup" || nas.CredentialID != "nas-creds" {
		t.Errorf("unexpected nas settings: %+v", nas)
	}
	if nas.Timeout != 12*time.Second {
		t.Errorf("nas timeout = %v, want global default 12s", nas.Timeout)
	}

	ftp := settings["ftp-box"]
	if ftp.Address() != "ftp.example.com:2121" {
		t.Errorf("ftp address = %q", ftp.Address())
	}
	if ftp.Timeout != 5*time.Second || ftp.MaxBytesPerSecond != 1048576 {
		t.Errorf("unexpected ftp settings: %+v", ftp)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ANEMONE_TRANSFER_API_LISTEN", "0.0.0.0:9999")
	t.Setenv("ANEMONE_TRANSFER_SCHEDULER_MAX_CONCURRENT_RUNS", "8")

	cfg, err := Load(writeConfig(t, "api:\n  listen: 127.0.0.1:1\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Listen != "0.0.0.0:9999" {
		t.Errorf("API.Listen = %q, want env value", cfg.API.Listen)
	}
	if cfg.Scheduler.MaxConcurrentRuns != 8 {
		t.Errorf("MaxConcurrentRuns = %d, want 8", cfg.Scheduler.MaxConcurrentRuns)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"unknown backend", "store:\n  backend: redis\n", store.ErrUnknownBackend},
		{"unknown protocol", "connections:\n  x:\n    protocol: gopher\n    host: h\n", transfer.ErrUnknownProtocol},
		{"bad level", "app:\n  log_level: loud\n", nil},
		{"zero workers", "scheduler:\n  max_concurrent_runs: 0\n", nil},
		{"smb without share", "connections:\n  nas:\n    protocol: smb\n    host: nas\n    username: u\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestStoreOptionsSQLCipherPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store:\n  backend: sqlcipher\npaths:\n  data_dir: /var/lib/anemone\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	opts := cfg.StoreOptions()
	if opts.Path != filepath.Join("/var/lib/anemone", "anemone_transfer.db") {
		t.Errorf("store path = %q", opts.Path)
	}
	if opts.KeyCredentialID != store.DefaultKeyID {
		t.Errorf("key id = %q", opts.KeyCredentialID)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("ANEMONE_TEST_DIR", "/srv/data")
	if got := expandPath("${ANEMONE_TEST_DIR}/jobs.json"); got != "/srv/data/jobs.json" {
		t.Errorf("expandPath() = %q", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q", got)
	}
}
