package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(write(t, "chain_id: 1\nstream_url: ws://localhost:8546\ntwap_window: 10m\n"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.TWAPWindow)
	assert.Equal(t, uint32(600), cfg.WindowSeconds())
	assert.Equal(t, uint(DefaultBufferSize), cfg.BufferSize)

	cfg, err = LoadConfig(write(t, "chain_id: 1\nstream_url: ws://x\nbuffer_size: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTWAPWindow, cfg.TWAPWindow)
	assert.Equal(t, uint(5), cfg.BufferSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"missing chain":  "stream_url: ws://x\n",
		"missing url":    "chain_id: 1\n",
		"sub-second":     "chain_id: 1\nstream_url: ws://x\ntwap_window: 10ms\n",
		"malformed yaml": "chain_id: [\n",
	} {
		_, err := LoadConfig(write(t, body))
		assert.Error(t, err, name)
	}
}
