package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 600, cfg.CacheTTLSeconds)
	require.Equal(t, int64(170*1024*1024), cfg.MaxUploadBytes)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPKREPO_CACHE_TTL_SECONDS", "42")
	t.Setenv("SPKREPO_DATA_PATH", "/srv/spkrepo")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 42, cfg.CacheTTLSeconds)
	require.Equal(t, "/srv/spkrepo", cfg.DataPath)
}

func TestLoadFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString("data_path = \"/data\"\ncache_ttl_seconds = 10\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, "/data", cfg.DataPath)
	require.Equal(t, 10, cfg.CacheTTLSeconds)
}
