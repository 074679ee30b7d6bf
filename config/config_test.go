package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "/api/public/get", cfg.Remote.FetchPath)
	assert.Equal(t, "/api/public/add", cfg.Remote.CreatePath)
	assert.Equal(t, time.Duration(0), cfg.Remote.Timeout)
	assert.Equal(t, "type 1", cfg.Catalog.DefaultType)
	assert.Len(t, cfg.Catalog.TypeOptions, 4)
	assert.Equal(t, 3*time.Second, cfg.Feedback.ListClearAfter)
	assert.Equal(t, 2*time.Second, cfg.Feedback.FormClearAfter)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfile := filepath.Join(dir, "catalog.yml")
	content := `
system:
  workdir: ` + dir + `
remote:
  base_url: http://127.0.0.1:9000
  timeout: 15s
database:
  type: bolt
  name: catalog.bolt
catalog:
  refresh_schedule: "@every 10m"
`
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0o600))

	cfg, err := LoadConfig(cfile)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.System.Workdir)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Remote.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "bolt", cfg.Database.Type)
	assert.Equal(t, "@every 10m", cfg.Catalog.RefreshSchedule)
	// untouched sections keep their defaults
	assert.Equal(t, "/api/public/add", cfg.Remote.CreatePath)

	require.NoError(t, cfg.InitDirs())
	assert.DirExists(t, cfg.GetDataDir())
	assert.DirExists(t, cfg.GetLogDir())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CATALOG_DB_TYPE":                    "postgres",
		"CATALOG_DB_PORT":                    "5433",
		"CATALOG_REMOTE_TIMEOUT":             "20s",
		"CATALOG_CONNECTIVITY_FORCE_OFFLINE": "true",
		"CATALOG_WEB_PORT":                   "not-a-number",
	}
	cfg := DefaultAppConfig()
	applyEnv(cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 20*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Connectivity.ForceOffline)
	// invalid values are ignored
	assert.Equal(t, 1816, cfg.Web.Port)
}
