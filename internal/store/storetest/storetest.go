// Package storetest holds the behavioural contract every core.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) core.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("AppendAndHistory", func(t *testing.T) { testAppendAndHistory(t, newStore(t)) })
	t.Run("HistoryTieBreak", func(t *testing.T) { testHistoryTieBreak(t, newStore(t)) })
	t.Run("HistoryCursorArchived", func(t *testing.T) { testHistoryCursorArchived(t, newStore(t)) })
	t.Run("Membership", func(t *testing.T) { testMembership(t, newStore(t)) })
	t.Run("ArchiveMovesOnlyAged", func(t *testing.T) { testArchiveMovesOnlyAged(t, newStore(t)) })
	t.Run("ArchiveBatches", func(t *testing.T) { testArchiveBatches(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func appendN(t *testing.T, s core.Store, gid domain.GroupID, uid domain.UserID, n int, start time.Time) []domain.Message {
	t.Helper()
	out := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.Append(context.Background(), domain.Message{
			GroupID:    gid,
			AuthorID:   uid,
			AuthorName: "alice",
			Content:    fmt.Sprintf("msg-%d", i),
			CreatedAt:  start.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func newGroup(t *testing.T, s core.Store, creator domain.UserID) domain.GroupID {
	t.Helper()
	g, err := s.CreateGroup(context.Background(), "general", creator)
	require.NoError(t, err)
	require.NotZero(t, g.ID)
	return g.ID
}

func assertSameMessage(t *testing.T, want, got domain.Message) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.GroupID, got.GroupID)
	assert.Equal(t, want.AuthorID, got.AuthorID)
	assert.Equal(t, want.AuthorName, got.AuthorName)
	assert.Equal(t, want.Content, got.Content)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %s != %s", want.CreatedAt, got.CreatedAt)
}

func testAppendAndHistory(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 1)
	other := newGroup(t, s, 1)

	sent := appendN(t, s, gid, 1, 5, base)
	appendN(t, s, other, 1, 2, base)

	for i := 1; i < len(sent); i++ {
		assert.Greater(t, sent[i].ID, sent[i-1].ID)
	}

	all, err := s.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := range sent {
		assertSameMessage(t, sent[i], all[i])
	}

	page, err := s.History(ctx, gid, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, sent[1].ID, page[1].ID)

	rest, err := s.History(ctx, gid, page[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, sent[2].ID, rest[0].ID)

	empty, err := s.History(ctx, domain.GroupID(999999), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testHistoryTieBreak(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 1)

	var ids []domain.MessageID
	for i := 0; i < 3; i++ {
		m, err := s.Append(ctx, domain.Message{GroupID: gid, AuthorID: 1, Content: "same instant", CreatedAt: base})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	got, err := s.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range ids {
		assert.Equal(t, ids[i], got[i].ID)
	}
}

func testHistoryCursorArchived(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 1)

	old := appendN(t, s, gid, 1, 3, base)
	fresh := appendN(t, s, gid, 1, 2, base.Add(48*time.Hour))

	n, err := s.ArchiveBefore(ctx, base.Add(24*time.Hour), 100, base.Add(72*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, err := s.History(ctx, gid, old[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fresh[0].ID, got[0].ID)
}

func testMembership(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 10)

	admin, err := s.IsAdmin(ctx, 10, gid)
	require.NoError(t, err)
	assert.True(t, admin, "creator becomes admin")

	ok, err := s.IsMember(ctx, 11, gid)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddMember(ctx, gid, 11))
	require.NoError(t, s.AddMember(ctx, gid, 11), "adding twice keeps one membership")

	ok, err = s.IsMember(ctx, 11, gid)
	require.NoError(t, err)
	assert.True(t, ok)
	admin, err = s.IsAdmin(ctx, 11, gid)
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, s.SetAdmin(ctx, gid, 11, true))
	members, err := s.MembersOf(ctx, gid)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Member{{UserID: 10, IsAdmin: true}, {UserID: 11, IsAdmin: true}}, members)

	require.NoError(t, s.RemoveMember(ctx, gid, 11))
	ok, err = s.IsMember(ctx, 11, gid)
	require.NoError(t, err)
	assert.False(t, ok)
	admin, err = s.IsAdmin(ctx, 11, gid)
	require.NoError(t, err)
	assert.False(t, admin)

	assert.ErrorIs(t, s.RemoveMember(ctx, gid, 11), domain.ErrNotFound)
	assert.ErrorIs(t, s.SetAdmin(ctx, gid, 12, true), domain.ErrNotFound)
	assert.ErrorIs(t, s.AddMember(ctx, domain.GroupID(999999), 11), domain.ErrNotFound)
}

func testArchiveMovesOnlyAged(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 1)
	other := newGroup(t, s, 1)

	now := base.Add(48 * time.Hour)
	cutoff := now.Add(-24 * time.Hour)
	aged := appendN(t, s, gid, 1, 60, now.Add(-25*time.Hour))
	agedOther := appendN(t, s, other, 1, 3, now.Add(-30*time.Hour))
	fresh := appendN(t, s, other, 1, 2, now.Add(-time.Hour))
	atCutoff, err := s.Append(ctx, domain.Message{GroupID: other, AuthorID: 1, Content: "edge", CreatedAt: cutoff})
	require.NoError(t, err)

	n, err := s.ArchiveBefore(ctx, cutoff, 1000, now)
	require.NoError(t, err)
	assert.Equal(t, 63, n)

	hot, err := s.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hot)

	cold, err := s.Archived(ctx, gid)
	require.NoError(t, err)
	require.Len(t, cold, 60)
	for i := range aged {
		assertSameMessage(t, aged[i], cold[i].Message)
		assert.True(t, now.Equal(cold[i].ArchivedAt))
	}

	coldOther, err := s.Archived(ctx, other)
	require.NoError(t, err)
	assert.Len(t, coldOther, len(agedOther))

	hotOther, err := s.History(ctx, other, 0, 0)
	require.NoError(t, err)
	require.Len(t, hotOther, 3)
	assert.Equal(t, atCutoff.ID, hotOther[0].ID, "a message exactly at the cutoff stays")
	assert.Equal(t, fresh[0].ID, hotOther[1].ID)

	n, err = s.ArchiveBefore(ctx, cutoff, 1000, now)
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")

	cold, err = s.Archived(ctx, gid)
	require.NoError(t, err)
	assert.Len(t, cold, 60)
}

func testArchiveBatches(t *testing.T, s core.Store) {
	ctx := context.Background()
	gid := newGroup(t, s, 1)
	sent := appendN(t, s, gid, 1, 60, base)
	cutoff := base.Add(time.Hour)

	var sizes []int
	for {
		n, err := s.ArchiveBefore(ctx, cutoff, 25, cutoff)
		require.NoError(t, err)
		sizes = append(sizes, n)
		if n == 0 {
			break
		}
	}
	assert.Equal(t, []int{25, 25, 10, 0}, sizes)

	cold, err := s.Archived(ctx, gid)
	require.NoError(t, err)
	require.Len(t, cold, 60)
	assert.Equal(t, sent[0].ID, cold[0].ID, "oldest first")
	assert.Equal(t, sent[59].ID, cold[59].ID)
}

func testUsers(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.DisplayName(ctx, 77)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.PutUser(ctx, domain.User{ID: 77, Username: "bob"}))
	name, err := s.DisplayName(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	require.NoError(t, s.PutUser(ctx, domain.User{ID: 77, Username: "robert"}))
	name, err = s.DisplayName(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "robert", name)
}
