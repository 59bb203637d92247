package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/memory"
)

var archiveNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, st *memory.Store, gid domain.GroupID, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := st.Append(context.Background(), domain.Message{
			GroupID:   gid,
			AuthorID:  alice.UserID,
			Content:   "m",
			CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}
}

func TestArchiveRunOnceMovesAgedMessages(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	seed(t, st, gid, 60, archiveNow.Add(-25*time.Hour))
	seed(t, st, gid, 5, archiveNow.Add(-time.Hour))

	a := NewArchiver(st, 24*time.Hour, 25, WithArchiveClock(func() time.Time { return archiveNow }))
	ctx := context.Background()

	n, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	hot, err := st.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	assert.Len(t, hot, 5)
	cold, err := st.Archived(ctx, gid)
	require.NoError(t, err)
	assert.Len(t, cold, 60)
	for _, m := range cold {
		assert.True(t, m.ArchivedAt.Equal(archiveNow))
	}

	n, err = a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
}

func TestArchiveCutoffIsExclusive(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	cutoff := archiveNow.Add(-24 * time.Hour)
	seed(t, st, gid, 1, cutoff)

	n, err := NewArchiver(st, 24*time.Hour, 10).Archive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveEmptyStore(t *testing.T) {
	n, err := NewArchiver(memory.New(), time.Hour, 10).Archive(context.Background(), archiveNow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type brokenArchive struct {
	*memory.Store
	calls int
}

func (b *brokenArchive) ArchiveBefore(ctx context.Context, cutoff time.Time, batchSize int, archivedAt time.Time) (int, error) {
	b.calls++
	if b.calls > 1 {
		return 0, errors.New("connection reset")
	}
	return b.Store.ArchiveBefore(ctx, cutoff, batchSize, archivedAt)
}

func TestArchiveFailureKeepsCompletedBatches(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	seed(t, st, gid, 30, archiveNow.Add(-48*time.Hour))

	a := NewArchiver(&brokenArchive{Store: st}, 24*time.Hour, 10, WithArchiveClock(func() time.Time { return archiveNow }))
	n, err := a.RunOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrArchivalFailure)
	assert.Equal(t, 10, n)

	ctx := context.Background()
	hot, err := st.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	cold, err := st.Archived(ctx, gid)
	require.NoError(t, err)
	assert.Len(t, hot, 20)
	assert.Len(t, cold, 10)
}

func TestArchiveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewArchiver(memory.New(), time.Hour, 10).Archive(ctx, archiveNow)
	assert.ErrorIs(t, err, domain.ErrArchivalFailure)
}

func TestArchiverStartRejectsBadSchedule(t *testing.T) {
	a := NewArchiver(memory.New(), time.Hour, 10)
	assert.Error(t, a.Start("not a schedule"))
	a.Stop(context.Background())
}

func TestArchiverStartStop(t *testing.T) {
	a := NewArchiver(memory.New(), time.Hour, 10)
	require.NoError(t, a.Start("0 3 * * *"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Stop(ctx)
}

func TestCeilMicro(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base, ceilMicro(base))
	assert.Equal(t, base.Add(time.Microsecond), ceilMicro(base.Add(time.Nanosecond)))
}

type hungArchive struct {
	*memory.Store
}

func (hungArchive) ArchiveBefore(ctx context.Context, _ time.Time, _ int, _ time.Time) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestRunDetachedIsBoundedByRunTimeout(t *testing.T) {
	a := NewArchiver(hungArchive{memory.New()}, time.Hour, 10, WithRunTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := a.RunDetached(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrArchivalFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("archival run did not honour its timeout")
	}

	// The run lock was released.
	a.store = memory.New()
	_, err := a.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunDetachedIgnoresCallerCancellation(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	seed(t, st, gid, 3, archiveNow.Add(-48*time.Hour))
	a := NewArchiver(st, 24*time.Hour, 10, WithArchiveClock(func() time.Time { return archiveNow }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := a.RunDetached(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
