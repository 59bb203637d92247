package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/memory"
)

func sampleMessage(gid domain.GroupID) domain.Message {
	return domain.Message{
		ID:         1,
		GroupID:    gid,
		AuthorID:   alice.UserID,
		AuthorName: alice.DisplayName,
		Content:    "hi",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishReachesOnlyRoomSubscribers(t *testing.T) {
	st := memory.New()
	g1 := newGroup(t, st, alice.UserID, bob.UserID)
	g2 := newGroup(t, st, carol.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, g1)
	b := bindAndJoin(t, reg, "b", bob, g1)
	c := bindAndJoin(t, reg, "c", carol, g2)

	res := NewBroadcaster(reg, nil).Publish(g1, sampleMessage(g1))

	assert.Equal(t, 2, res.SentTo)
	assert.Empty(t, res.Dropped)
	assert.Len(t, a.messages(t), 1)
	assert.Len(t, b.messages(t), 1)
	assert.Empty(t, c.messages(t))
	assert.Equal(t, "hi", b.messages(t)[0].Content)
}

func TestPublishKicksSlowConsumer(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	b := bindAndJoin(t, reg, "b", bob, gid)
	b.limit = 1

	br := NewBroadcaster(reg, KickPolicy{})
	br.Publish(gid, sampleMessage(gid))
	res := br.Publish(gid, sampleMessage(gid))

	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 1, res.SentTo)
	assert.True(t, b.isClosed())
	_, ok := reg.Session("b")
	assert.False(t, ok)
	assert.Len(t, a.messages(t), 2, "healthy subscriber unaffected")
}

func TestPublishDropPolicyKeepsConnection(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID, bob.UserID)
	reg := NewRegistry(st)
	bindAndJoin(t, reg, "a", alice, gid)
	b := bindAndJoin(t, reg, "b", bob, gid)
	b.limit = 1

	br := NewBroadcaster(reg, DropPolicy{})
	br.Publish(gid, sampleMessage(gid))
	res := br.Publish(gid, sampleMessage(gid))

	assert.Len(t, res.Dropped, 1)
	assert.False(t, b.isClosed())
	assert.Len(t, reg.SubscribersOf(gid), 2)
}

func TestPublishSkipsClosedConnection(t *testing.T) {
	st := memory.New()
	gid := newGroup(t, st, alice.UserID)
	reg := NewRegistry(st)
	a := bindAndJoin(t, reg, "a", alice, gid)
	a.Close()

	res := NewBroadcaster(reg, KickPolicy{}).Publish(gid, sampleMessage(gid))
	assert.Zero(t, res.SentTo)
	assert.Len(t, res.Dropped, 1)
}

func TestPolicyByName(t *testing.T) {
	assert.IsType(t, DropPolicy{}, PolicyByName("drop"))
	assert.IsType(t, KickPolicy{}, PolicyByName("kick"))
	assert.IsType(t, KickPolicy{}, PolicyByName(""))
}
