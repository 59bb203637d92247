package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/store/storetest"
)

// These tests need a running PostgreSQL; they are skipped unless
// PARLEY_TEST_POSTGRES_DSN points at a disposable database.
func openTestStore(t *testing.T) *Store {
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Open(ctx, Config{DSN: dsn, MaxConns: 4, AutoMigrate: true})
	if err != nil {
		t.Skipf("cannot connect to postgres: %v", err)
	}
	_, err = s.db.Exec(ctx, `TRUNCATE users, groups, group_members, messages, archived_messages RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return openTestStore(t) })
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
