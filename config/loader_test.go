package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Controller.MaxConcurrentAgents)
	assert.Equal(t, 10*time.Second, cfg.Controller.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.Controller.ExportTimeout)
	assert.Equal(t, "roles.json", cfg.Roles.Path)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9999
controller:
  max_concurrent_agents: 25
  call_timeout: 5s
workspace:
  dir: /tmp/cadws
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 25, cfg.Controller.MaxConcurrentAgents)
	assert.Equal(t, 5*time.Second, cfg.Controller.CallTimeout)
	assert.Equal(t, "/tmp/cadws", cfg.Workspace.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9999\n"), 0o644))

	t.Setenv("CAD_SERVER_HTTP_PORT", "7777")
	t.Setenv("CAD_CONTROLLER_MAX_CONCURRENT_AGENTS", "3")
	t.Setenv("CAD_LOG_OUTPUT_PATHS", "stdout, /var/log/cad.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Controller.MaxConcurrentAgents)
	assert.Equal(t, []string{"stdout", "/var/log/cad.log"}, cfg.Log.OutputPaths)
}

func TestWorkspaceDirEnvWins(t *testing.T) {
	t.Setenv(WorkspaceDirEnv, "/srv/agents")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/agents", cfg.Workspace.Dir)

	// The sqlite store materializes at a stable relative path inside it.
	assert.Equal(t, filepath.Join("/srv/agents", StoreFileName), cfg.Database.Name)
	assert.Equal(t, filepath.Join("/srv/agents", StoreFileName), cfg.Database.DSN())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.MaxConcurrentAgents = 51
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Controller.MaxConcurrentAgents = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.HTTPPort = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workspace.Dir = ""
	assert.Error(t, cfg.Validate())
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "cad", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cad sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "cad"}
	assert.Equal(t, "u:p@tcp(db:3306)/cad?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "/data/store.db"}
	assert.Equal(t, "/data/store.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Equal(t, "", unknown.DSN())
}
