package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store/memory"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	limit  int
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.limit > 0 && len(c.frames) >= c.limit {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) messages(t *testing.T) []domain.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Message
	for _, f := range c.frames {
		var ev MessageEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		if ev.Type == EventMessage {
			out = append(out, ev.Message)
		}
	}
	return out
}

var (
	alice = domain.Identity{UserID: 1, DisplayName: "alice"}
	bob   = domain.Identity{UserID: 2, DisplayName: "bob"}
	carol = domain.Identity{UserID: 3, DisplayName: "carol"}
	dave  = domain.Identity{UserID: 4, DisplayName: "dave"}
)

// newGroup creates a group owned by creator with the given extra members.
func newGroup(t *testing.T, st *memory.Store, creator domain.UserID, members ...domain.UserID) domain.GroupID {
	t.Helper()
	ctx := context.Background()
	g, err := st.CreateGroup(ctx, "team", creator)
	require.NoError(t, err)
	for _, uid := range members {
		require.NoError(t, st.AddMember(ctx, g.ID, uid))
	}
	return g.ID
}

func bindAndJoin(t *testing.T, reg *Registry, conn core.ConnID, id domain.Identity, gid domain.GroupID) *fakeConn {
	t.Helper()
	fc := &fakeConn{}
	_, err := reg.Bind(conn, id, fc)
	require.NoError(t, err)
	if gid != 0 {
		require.NoError(t, reg.Subscribe(context.Background(), conn, gid))
	}
	return fc
}
