package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidConfig(t *testing.T) {
	doc := []byte(`
server_url: https://backup.example.com
roots:
  - /home/user/live
chunk_size: 1048576
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)
	require.Equal(t, "https://backup.example.com", cfg.ServerURL)
	require.Equal(t, []string{"/home/user/live"}, cfg.Roots)
	require.Equal(t, int64(1048576), cfg.ChunkSize)
	require.True(t, cfg.VerifyTLSCert)
	require.True(t, cfg.ExcludeCacheTags())
}

func TestParseRejectsHTTPServerURL(t *testing.T) {
	doc := []byte(`
server_url: http://backup.example.com
roots: [/home/user/live]
`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParseRejectsMissingRoots(t *testing.T) {
	doc := []byte(`
server_url: https://backup.example.com
`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	doc := []byte(`
server_url: https://backup.example.com
roots: [/home/user/live]
bogus_option: true
`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParseFillsDefaultChunkSize(t *testing.T) {
	doc := []byte(`
server_url: https://backup.example.com
roots: [/home/user/live]
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)
	require.Equal(t, int64(defaultChunkSize), cfg.ChunkSize)
}

func TestParseExcludeCacheTagDirectoriesCanBeDisabled(t *testing.T) {
	doc := []byte(`
server_url: https://backup.example.com
roots: [/home/user/live]
exclude_cache_tag_directories: false
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)
	require.False(t, cfg.ExcludeCacheTags())
}
