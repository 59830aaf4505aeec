package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/pkg/config"
	"github.com/griddist/core/pkg/xlog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Runtime: config.RuntimeConfig{NumProcs: 1, Rank: 0, Dim: 3},
		Xfer:    config.XferConfig{CplMgrUseFreelist: true},
		Diagnostics: config.DiagnosticsConfig{
			Type: "sqlite",
			Path: ":memory:",
		},
		Snapshot: config.SnapshotConfig{
			Type:      "local",
			LocalPath: t.TempDir(),
		},
	}
}

func TestService_New(t *testing.T) {
	cfg := testConfig(t)

	t.Run("WithLogger", func(t *testing.T) {
		logger := xlog.NewDefaultLogger(xlog.LevelInfo, nil)
		svc, err := New(cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.False(t, svc.IsRunning())
	})

	t.Run("WithoutLogger", func(t *testing.T) {
		svc, err := New(cfg, nil)
		require.NoError(t, err)
		require.NotNil(t, svc)
	})
}

func TestService_InitializeWiresCore(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Initialize(context.Background()))
	defer svc.Stop(context.Background())

	assert.NotNil(t, svc.Multigrid())
	assert.NotNil(t, svc.ObjManager())
	assert.NotNil(t, svc.RefineEngine())
	assert.NotNil(t, svc.TransferEngine())
	assert.NotNil(t, svc.Diagnostics())
}

func TestService_StartStop(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, svc.IsRunning())

	require.NoError(t, svc.Stop(context.Background()))
	assert.False(t, svc.IsRunning())
}

func TestService_AdaptStep_EmptyGridIsNoop(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	defer svc.Stop(context.Background())

	refineStats, xferStats, err := svc.AdaptStep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, refineStats.SonsCreated)
	assert.Equal(t, 0, xferStats.Sent)
}

func TestService_TakeCensus(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	defer svc.Stop(context.Background())

	require.NoError(t, svc.TakeCensus(context.Background(), time.Now()))
}

func TestService_Stats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime.Rank = 0

	svc, err := New(cfg, nil)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 0, stats.Rank)
}

func TestService_HealthCheck_NoComponents(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	// HealthCheck should not fail when components are not initialized.
	assert.NoError(t, svc.HealthCheck(context.Background()))
}

func TestService_HealthCheck_AfterInitialize(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	defer svc.Stop(context.Background())

	assert.NoError(t, svc.HealthCheck(context.Background()))
}
