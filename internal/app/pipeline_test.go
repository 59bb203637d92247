package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/memory"
)

type failingMessages struct {
	*memory.Store
}

func (failingMessages) Append(context.Context, domain.Message) (domain.Message, error) {
	return domain.Message{}, errors.New("disk full")
}

func newPipeline(st *memory.Store, reg *Registry, opts ...PipelineOption) *Pipeline {
	return NewPipeline(st, st, reg, NewBroadcaster(reg, KickPolicy{}), opts...)
}

func TestSendDeliversToMembersIncludingSender(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	b := bindAndJoin(t, reg, "b", bob, gid)
	c := bindAndJoin(t, reg, "c", carol, 0)
	assert.ErrorIs(t, reg.Subscribe(context.Background(), "c", gid), domain.ErrNotAMember)

	msg, err := newPipeline(st, reg).Send(context.Background(), alice, gid, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "alice", msg.AuthorName)
	assert.NotZero(t, msg.ID)

	for _, fc := range []*fakeConn{a, b} {
		got := fc.messages(t)
		require.Len(t, got, 1)
		assert.Equal(t, msg.ID, got[0].ID)
		assert.Equal(t, "hi", got[0].Content)
		assert.Equal(t, alice.UserID, got[0].AuthorID)
	}
	assert.Empty(t, c.messages(t))

	hist, err := st.History(context.Background(), gid, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, msg.ID, hist[0].ID)
}

func TestSendByNonMemberIsForbidden(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	bindAndJoin(t, reg, "d", dave, 0)

	_, err := newPipeline(st, reg).Send(context.Background(), dave, gid, "x")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	hist, err := st.History(context.Background(), gid, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Empty(t, a.types(t))
}

func TestSendRejectsInvalidInput(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	p := newPipeline(st, reg)
	ctx := context.Background()

	_, err := p.Send(ctx, alice, gid, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = p.Send(ctx, alice, 0, "hi")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	long := make([]byte, domain.MaxMessageLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = p.Send(ctx, alice, gid, string(long))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSendInvalidBeforeAuthorization(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	p := newPipeline(st, NewRegistry(st))

	_, err := p.Send(context.Background(), dave, gid, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSendPersistenceFailureIsNotBroadcast(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	b := bindAndJoin(t, reg, "b", bob, gid)

	p := NewPipeline(st, failingMessages{st}, reg, NewBroadcaster(reg, nil))
	_, err := p.Send(context.Background(), alice, gid, "lost")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, a.types(t))
	assert.Empty(t, b.types(t))
}

func TestSendDropsRevokedSubscribers(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	b := bindAndJoin(t, reg, "b", bob, gid)

	require.NoError(t, st.RemoveMember(context.Background(), gid, bob.UserID))
	_, err := newPipeline(st, reg).Send(context.Background(), alice, gid, "after revoke")
	require.NoError(t, err)

	assert.Len(t, a.messages(t), 1)
	assert.Equal(t, []string{EventLeft}, b.types(t))
	assert.Empty(t, reg.Subscriptions("b"))
}

func TestSendRateLimited(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	p := newPipeline(st, NewRegistry(st), WithLimiter(NewSendLimiter(1, time.Minute)))
	ctx := context.Background()

	_, err := p.Send(ctx, alice, gid, "one")
	require.NoError(t, err)
	_, err = p.Send(ctx, alice, gid, "two")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSendTimestampsNeverGoBackwards(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}
	i := 0
	clock := func() time.Time { ts := times[i%len(times)]; i++; return ts }
	p := newPipeline(st, NewRegistry(st), WithClock(clock))
	ctx := context.Background()

	first, err := p.Send(ctx, alice, gid, "first")
	require.NoError(t, err)
	second, err := p.Send(ctx, alice, gid, "second")
	require.NoError(t, err)

	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
	hist, err := st.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Content)
	assert.Equal(t, "second", hist[1].Content)
}

func TestConcurrentSendsDeliverInStoreOrder(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	b := bindAndJoin(t, reg, "b", bob, gid)
	p := newPipeline(st, reg)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice
			if i%2 == 1 {
				sender = bob
			}
			_, err := p.Send(ctx, sender, gid, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p.mu.Lock()
	assert.Empty(t, p.groups, "sequencers released once all senders finish")
	p.mu.Unlock()

	hist, err := st.History(ctx, gid, 0, 0)
	require.NoError(t, err)
	got := b.messages(t)
	require.Len(t, got, n)
	require.Len(t, hist, n)
	for i := range hist {
		assert.Equal(t, hist[i].ID, got[i].ID, "position %d", i)
	}
}

func TestSendReleasesGroupSequencers(t *testing.T) {
	st := memory.New()
	g1 := newGroup(t, st, alice.UserID)
	g2 := newGroup(t, st, alice.UserID)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPipeline(st, NewRegistry(st), WithClock(func() time.Time { return at }))
	ctx := context.Background()

	_, err := p.Send(ctx, alice, g1, "one")
	require.NoError(t, err)
	_, err = p.Send(ctx, alice, g2, "two")
	require.NoError(t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.groups)
	assert.True(t, p.floor.Equal(at))
}
