package diagnostics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/pkg/config"
)

func TestNewStore(t *testing.T) {
	t.Run("SQLite", func(t *testing.T) {
		store, err := NewStore(&config.DiagnosticsConfig{Type: "sqlite", Path: ":memory:"})
		require.NoError(t, err)
		require.NotNil(t, store)
		defer store.Close()

		assert.NoError(t, store.RecordAdaptStep(context.Background(), AdaptStepSummary{Level: 0, MarkCount: 1}))
	})

	t.Run("DefaultIsSQLite", func(t *testing.T) {
		store, err := NewStore(&config.DiagnosticsConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.NotNil(t, store)
		defer store.Close()
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := NewStore(&config.DiagnosticsConfig{Type: "oracle"})
		assert.Error(t, err)
	})
}

func TestStore_HealthCheckAndDB(t *testing.T) {
	store, err := NewStore(&config.DiagnosticsConfig{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.NotNil(t, store.DB())
	assert.NotNil(t, store.GormDB())
}
