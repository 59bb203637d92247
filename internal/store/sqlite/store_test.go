package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return openTestStore(t) })
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	ctx := context.Background()

	s, err := Open("file:"+path, true)
	require.NoError(t, err)
	g, err := s.CreateGroup(ctx, "ops", 1)
	require.NoError(t, err)
	_, err = s.Append(ctx, domain.Message{GroupID: g.ID, AuthorID: 1, Content: "persisted"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open("file:"+path, true)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.History(ctx, g.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Content)

	ok, err := s.IsMember(ctx, 1, g.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
