package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
)

var envVars = []string{
	"FLATKV_DB", "FLATKV_LOG_DIR", "FLATKV_VERBOSE",
	"FLATKV_S3_ENDPOINT", "FLATKV_S3_BUCKET", "FLATKV_S3_ACCESS",
	"FLATKV_S3_SECRET", "FLATKV_S3_REGION", "FLATKV_S3_PREFIX",
}

func clearEnv(t *testing.T) {
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, "", cfg.LogDir)
	assert.False(t, cfg.Verbose)
	assert.Error(t, cfg.Backup.Validate())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "flatkv.yaml")
	yml := `db: data/store.db
log_dir: logs
verbose: true
backup:
  endpoint: s3.example.com
  bucket: kv-backups
  access: AK
  secret: SK
  prefix: prod/
`
	assert.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "data/store.db", cfg.DBPath)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "kv-backups", cfg.Backup.Bucket)
	assert.Equal(t, "prod/", cfg.Backup.Prefix)
	assert.NoError(t, cfg.Backup.Validate())

	t.Setenv("FLATKV_DB", "other.db")
	t.Setenv("FLATKV_VERBOSE", "false")
	t.Setenv("FLATKV_S3_BUCKET", "override")
	cfg, err = Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "other.db", cfg.DBPath)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "override", cfg.Backup.Bucket)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	assert.NoError(t, os.WriteFile(bad, []byte("db: [unclosed"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("FLATKV_VERBOSE", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}
