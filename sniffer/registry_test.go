package sniffer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/database/dbtest"
	"github.com/kbukum/dirtytables/logger"
)

func TestRegistry_GetInitializesOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(logger.Nop())
	conn := dbtest.New(database.Config{Name: "test"}, "countries")
	provider := &fakeProvider{}

	first, err := reg.Get(ctx, conn, provider)
	require.NoError(t, err)
	second, err := reg.Get(ctx, conn, provider)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, provider.count("create_triggers"))
	assert.Equal(t, []string{"test"}, reg.Names())

	got, ok := reg.Lookup("test")
	assert.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistry_OneTrackerPerConnection(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	_, err := reg.Get(ctx, dbtest.New(database.Config{Name: "test_reporting"}), &fakeProvider{})
	require.NoError(t, err)
	_, err = reg.Get(ctx, dbtest.New(database.Config{Name: "test"}), &fakeProvider{})
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "test_reporting"}, reg.Names())

	reg.Forget("test")
	_, ok := reg.Lookup("test")
	assert.False(t, ok)

	reg.Reset()
	assert.Empty(t, reg.Names())
}

func TestRegistry_FailedInitIsNotKept(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(logger.Nop())
	conn := dbtest.New(database.Config{Name: "test"}, "countries")

	_, err := reg.Get(ctx, conn, &fakeProvider{createErr: errors.New("boom")})
	require.Error(t, err)
	_, ok := reg.Lookup("test")
	assert.False(t, ok)
}

func TestRegistry_InvalidModeIsNotKept(t *testing.T) {
	reg := NewRegistry(logger.Nop())
	conn := dbtest.New(database.Config{Name: "test", CollectorMode: "bogus"})

	_, err := reg.Get(context.Background(), conn, &fakeProvider{})
	require.Error(t, err)
	assert.Zero(t, conn.Len())
	assert.Empty(t, reg.Names())
}

func TestRegistry_GetRetriesFailedInit(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(database.Config{Name: "test"}, schema...)
	provider := &fakeProvider{createErr: errors.New("permission denied")}
	registry := NewRegistry(logger.Nop())

	_, err := registry.Get(ctx, conn, provider)
	require.Error(t, err)

	provider.createErr = nil
	tracker, err := registry.Get(ctx, conn, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.count("create_triggers"))
	triggers, err := tracker.Triggers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, triggers)
}
