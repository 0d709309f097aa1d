// ABOUTME: Tests for the SQLite bot-config store.
// ABOUTME: Covers CRUD round-trips, validation, and the active flag.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConfig() *BotConfig {
	return &BotConfig{
		Username:             "Steve",
		Host:                 "mc.example.com",
		Port:                 25565,
		AutoReconnect:        true,
		ReconnectIntervalSec: 5,
		MaxReconnectAttempts: 3,
		WanderEnabled:        true,
		ChatEnabled:          false,
	}
}

func TestCreateAndGetConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := sampleConfig()
	require.NoError(t, s.CreateConfig(ctx, cfg))
	require.NotEmpty(t, cfg.ID, "create must assign an ID")
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)

	got, err := s.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Steve", got.Username)
	assert.Equal(t, "mc.example.com", got.Host)
	assert.Equal(t, 25565, got.Port)
	assert.True(t, got.AutoReconnect)
	assert.True(t, got.WanderEnabled)
	assert.False(t, got.ChatEnabled)
	assert.Equal(t, 5*time.Second, got.ReconnectInterval)
	assert.False(t, got.IsActive)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetConfigNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestCreateConfigValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing host", func(t *testing.T) {
		cfg := sampleConfig()
		cfg.Host = "  "
		require.Error(t, s.CreateConfig(ctx, cfg))
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := sampleConfig()
		cfg.Port = 0
		require.Error(t, s.CreateConfig(ctx, cfg))
	})

	t.Run("missing username without random names", func(t *testing.T) {
		cfg := sampleConfig()
		cfg.Username = ""
		require.Error(t, s.CreateConfig(ctx, cfg))
	})

	t.Run("missing username with random names", func(t *testing.T) {
		cfg := sampleConfig()
		cfg.Username = ""
		cfg.UseRandomNames = true
		require.NoError(t, s.CreateConfig(ctx, cfg))
	})
}

func TestListConfigsOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"First", "Second", "Third"} {
		cfg := sampleConfig()
		cfg.Username = name
		require.NoError(t, s.CreateConfig(ctx, cfg))
	}

	configs, err := s.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 3)
}

func TestUpdateConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := sampleConfig()
	require.NoError(t, s.CreateConfig(ctx, cfg))

	cfg.Username = "Alex"
	cfg.MaxReconnectAttempts = 9
	require.NoError(t, s.UpdateConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alex", got.Username)
	assert.Equal(t, 9, got.MaxReconnectAttempts)

	t.Run("unknown id", func(t *testing.T) {
		missing := sampleConfig()
		missing.ID = "missing"
		assert.ErrorIs(t, s.UpdateConfig(ctx, missing), ErrConfigNotFound)
	})
}

func TestDeleteConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := sampleConfig()
	require.NoError(t, s.CreateConfig(ctx, cfg))
	require.NoError(t, s.DeleteConfig(ctx, cfg.ID))

	_, err := s.GetConfig(ctx, cfg.ID)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	assert.ErrorIs(t, s.DeleteConfig(ctx, cfg.ID), ErrConfigNotFound)
}

func TestSetActiveFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := sampleConfig()
	require.NoError(t, s.CreateConfig(ctx, cfg))

	require.NoError(t, s.SetActiveFlag(ctx, cfg.ID, true))
	got, err := s.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	require.NoError(t, s.SetActiveFlag(ctx, cfg.ID, false))
	got, err = s.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.SetActiveFlag(ctx, "missing", true), ErrConfigNotFound)
}
