package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))

	s, err = Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))
	assert.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
