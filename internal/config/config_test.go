package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"database": {"host": "localhost", "port": 5432, "user": "u", "password": "p", "db_name": "d"},
		"index": {"path": "/tmp/paper.idx"},
		"ai": {"provider": "gemini", "model": "gemini-embedding-001", "data": {"api_key": "k"}}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 768, cfg.Index.Dimension)
	require.Equal(t, 2000, cfg.Index.BruteForceMax)
	require.Equal(t, "template", cfg.AI.Compression)
	require.Equal(t, 10000, cfg.AI.CacheSize)
	require.Equal(t, 2, cfg.AI.CacheTTLHours)
	require.Equal(t, "logs", cfg.Audit.Dir)
	require.Equal(t, 32, cfg.Jobs.BackfillBatchSize)
	require.InDelta(t, 0.2, cfg.Jobs.RebuildTombstoneRatio, 1e-9)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoadRejectsMissingPort(t *testing.T) {
	path := writeConfig(t, `{"database": {"host": "h"}, "index": {"path": "x"}, "ai": {"provider": "gemini", "model": "m"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingIndexPath(t *testing.T) {
	path := writeConfig(t, `{"port": 1, "database": {"host": "h"}, "ai": {"provider": "gemini", "model": "m"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadCompression(t *testing.T) {
	path := writeConfig(t, `{"port": 1, "database": {"host": "h"}, "index": {"path": "x"},
		"ai": {"provider": "gemini", "model": "m", "compression": "magic"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadLLMCompressionNeedsGenModel(t *testing.T) {
	path := writeConfig(t, `{"port": 1, "database": {"host": "h"}, "index": {"path": "x"},
		"ai": {"provider": "gemini", "model": "m", "compression": "llm"}}`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `{"port": 1, "database": {"host": "h"}, "index": {"path": "x"},
		"ai": {"provider": "gemini", "model": "m", "compression": "llm", "gen_model": "g"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "g", cfg.AI.GenModel)
}

func TestLoadRejectsBadSnapshotType(t *testing.T) {
	path := writeConfig(t, `{"port": 1, "database": {"host": "h"}, "index": {"path": "x"},
		"ai": {"provider": "gemini", "model": "m"},
		"snapshot": {"enable": true, "type": "ftp"}}`)
	_, err := Load(path)
	require.Error(t, err)
}
