package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "gridctl.yaml")
	content := `
runtime:
  num_procs: 3
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.Runtime.Dim)
	assert.Equal(t, "sqlite", cfg.Diagnostics.Type)
	assert.True(t, cfg.Xfer.CplMgrUseFreelist)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "gridctl.yaml")
	content := `
runtime:
  num_procs: 4
  rank: 1
  dim: 2
xfer:
  prune_delete: true
  cplmgr_use_freelist: false
diagnostics:
  type: postgres
  host: db.example.com
  port: 5432
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Runtime.NumProcs)
	assert.Equal(t, 1, cfg.Runtime.Rank)
	assert.Equal(t, 2, cfg.Runtime.Dim)
	assert.True(t, cfg.Xfer.PruneDelete)
	assert.False(t, cfg.Xfer.CplMgrUseFreelist)
	assert.Equal(t, "postgres", cfg.Diagnostics.Type)
	assert.Equal(t, "db.example.com", cfg.Diagnostics.Host)
}

func TestLoad_InvalidDiagnosticsType(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "gridctl.yaml")
	content := `
diagnostics:
  type: oracle
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported diagnostics backend")
}

func TestLoad_RankOutOfRange(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "gridctl.yaml")
	content := `
runtime:
  num_procs: 2
  rank: 5
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestValidate_BadDim(t *testing.T) {
	cfg := &Config{
		Runtime:     RuntimeConfig{NumProcs: 1, Dim: 4},
		Diagnostics: DiagnosticsConfig{Type: "sqlite"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be 2 or 3")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/gridctl.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
runtime:
  num_procs: 2
diagnostics:
  type: mysql
  host: mysql.local
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Diagnostics.Type)
	assert.Equal(t, "mysql.local", cfg.Diagnostics.Host)
}
