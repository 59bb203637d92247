package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/memory"
)

func TestRegistryBindRejectsDuplicateConnection(t *testing.T) {
	reg := NewRegistry(memory.New())
	_, err := reg.Bind("c1", alice, &fakeConn{})
	require.NoError(t, err)

	_, err = reg.Bind("c1", bob, &fakeConn{})
	assert.ErrorIs(t, err, domain.ErrDuplicateConnection)

	sess, ok := reg.Session("c1")
	require.True(t, ok)
	assert.Equal(t, alice, sess.Identity)
}

func TestRegistrySubscribeChecksMembership(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	ctx := context.Background()

	bindAndJoin(t, reg, "a", alice, gid)
	bindAndJoin(t, reg, "b", bob, gid)
	bindAndJoin(t, reg, "c", carol, 0)

	err := reg.Subscribe(ctx, "c", gid)
	assert.ErrorIs(t, err, domain.ErrNotAMember)
	assert.Empty(t, reg.Subscriptions("c"))

	assert.Len(t, reg.SubscribersOf(gid), 2)
	assert.Equal(t, []domain.GroupID{gid}, reg.Subscriptions("a"))
}

func TestRegistrySubscribeUnknownConnection(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)

	err := reg.Subscribe(context.Background(), "ghost", gid)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistrySubscribeTwiceIsSingleRegistration(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	bindAndJoin(t, reg, "a", alice, gid)

	require.NoError(t, reg.Subscribe(context.Background(), "a", gid))
	assert.Len(t, reg.SubscribersOf(gid), 1)
}

func TestRegistryUnsubscribe(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	bindAndJoin(t, reg, "a", alice, gid)

	assert.True(t, reg.Unsubscribe("a", gid))
	assert.False(t, reg.Unsubscribe("a", gid))
	assert.Empty(t, reg.SubscribersOf(gid))
	_, ok := reg.Session("a")
	assert.True(t, ok, "session stays bound")
}

func TestRegistryUnbindIsIdempotent(t *testing.T) {
	st := memory.New()
	g1 := newGroup(t, st, alice.UserID)
	g2 := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	bindAndJoin(t, reg, "a", alice, g1)
	require.NoError(t, reg.Subscribe(context.Background(), "a", g2))

	sess, ok := reg.Unbind("a")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("a"), sess.ConnID)
	assert.Empty(t, reg.SubscribersOf(g1))
	assert.Empty(t, reg.SubscribersOf(g2))
	assert.Zero(t, reg.Count())

	_, ok = reg.Unbind("a")
	assert.False(t, ok)
}

func TestRegistryRetain(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	bindAndJoin(t, reg, "a", alice, gid)
	bindAndJoin(t, reg, "b", bob, gid)

	dropped := reg.Retain(gid, func(uid domain.UserID) bool { return uid == alice.UserID })
	require.Len(t, dropped, 1)
	assert.Equal(t, core.ConnID("b"), dropped[0].ConnID)
	assert.Empty(t, reg.Subscriptions("b"))
	assert.Len(t, reg.SubscribersOf(gid), 1)
}
