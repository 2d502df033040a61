package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, "media", cfg.Blog.UploadPrefix)
	assert.Equal(t, 10*time.Second, cfg.Ping.Timeout)
	assert.Equal(t, uint64(3), cfg.Upload.MaxRetries)
	assert.True(t, cfg.Blog.SupportsSync)
	assert.Equal(t, "./data/files", cfg.Files.Dir)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
blog:
  id: main
  name: My Blog
  api_url: https://blog.example/api
ping:
  urls:
    - http://rpc.pingomatic.example/
    - ftp://ignored.example/
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("BLOG_NAME", "Env Blog")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Blog.ID)
	assert.Equal(t, "Env Blog", cfg.Blog.Name)
	assert.Equal(t, []string{"http://rpc.pingomatic.example/", "ftp://ignored.example/"}, cfg.Ping.URLs)
}

func TestValidateListsAllMissingKeys(t *testing.T) {
	err := Config{Log: LogConfig{Format: "xml"}}.Validate()
	require.Error(t, err)
	for _, key := range []string{"database.uri", "s3.bucket_name", "jwt.secret", "blog.id", "blog.api_url", "blog.api_token_secret", "files.dir", "log.format"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "nonsense"}.SlogLevel())
}
