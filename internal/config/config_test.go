package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docregistry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/docregistry/catalog.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/docregistry/catalog.db", cfg.Store.Path)
	require.Equal(t, time.Hour, cfg.Scheduler.ScanInterval)
	require.Equal(t, 100, cfg.Scheduler.BatchLimit)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.False(t, cfg.Queue.Enabled)
	require.False(t, cfg.Scheduler.Enabled)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
store:
  path: catalog.db
queue:
  enabled: true
  url: nats://localhost:4222
scheduler:
  enabled: true
  scan_interval: 30m
  cutoff: "2024-06-01"
  batch_limit: 25
metrics:
  enabled: true
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "REBUILD_JOBS", cfg.Queue.Stream, "stream name defaulted")
	require.Equal(t, "rebuild.jobs", cfg.Queue.Subject)
	require.Equal(t, 30*time.Minute, cfg.Scheduler.ScanInterval)
	require.Equal(t, 25, cfg.Scheduler.BatchLimit)
	require.Equal(t, ":9090", cfg.Metrics.ListenAddr)

	cutoff, err := cfg.Scheduler.CutoffDate()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), cutoff)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCREGISTRY_NATS_URL", "nats://queue.internal:4222")
	path := writeConfig(t, `
store:
  path: catalog.db
queue:
  enabled: true
  url: ${DOCREGISTRY_NATS_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "nats://queue.internal:4222", cfg.Queue.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "queue enabled without url",
			yaml: "queue:\n  enabled: true\n",
		},
		{
			name: "scheduler without cutoff",
			yaml: "queue:\n  enabled: true\n  url: nats://localhost:4222\nscheduler:\n  enabled: true\n",
		},
		{
			name: "scheduler with malformed cutoff",
			yaml: "queue:\n  enabled: true\n  url: nats://localhost:4222\nscheduler:\n  enabled: true\n  cutoff: \"June 1st\"\n",
		},
		{
			name: "scheduler without queue",
			yaml: "scheduler:\n  enabled: true\n  cutoff: \"2024-06-01\"\n",
		},
		{
			name: "scan interval too short",
			yaml: "queue:\n  enabled: true\n  url: nats://localhost:4222\nscheduler:\n  enabled: true\n  cutoff: \"2024-06-01\"\n  scan_interval: 5s\n",
		},
		{
			name: "unknown log level",
			yaml: "logging:\n  level: verbose\n",
		},
		{
			name: "unknown log format",
			yaml: "logging:\n  format: logfmt\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			require.True(t, errors.HasCategory(err, errors.CategoryConfig))
		})
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docregistry.yaml")

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "refuses to overwrite without force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Queue.Enabled)
	require.True(t, cfg.Scheduler.Enabled)
	require.True(t, cfg.Metrics.Enabled)
}
