package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type sessionEntry struct {
	Session core.Session
	Groups  map[domain.GroupID]struct{}
}

// Registry tracks live sessions and their room subscriptions. It is
// process-local and never persisted.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[core.ConnID]*sessionEntry
	rooms     map[domain.GroupID]map[core.ConnID]*sessionEntry
	authority core.MembershipAuthority
}

func NewRegistry(authority core.MembershipAuthority) *Registry {
	return &Registry{
		sessions:  make(map[core.ConnID]*sessionEntry),
		rooms:     make(map[domain.GroupID]map[core.ConnID]*sessionEntry),
		authority: authority,
	}
}

func (r *Registry) Bind(connID core.ConnID, identity domain.Identity, signal core.SignalConnection) (core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[connID]; ok {
		return core.Session{}, domain.ErrDuplicateConnection
	}
	sess := core.Session{ConnID: connID, Identity: identity, Signal: signal}
	r.sessions[connID] = &sessionEntry{Session: sess, Groups: make(map[domain.GroupID]struct{})}
	log.Info().
		Str("module", "app.registry").
		Str("conn", string(connID)).
		Int64("user", int64(identity.UserID)).
		Msg("bound session")
	return sess, nil
}

// Subscribe checks membership with the authority at call time and only
// then registers the connection as a delivery target for the room.
func (r *Registry) Subscribe(ctx context.Context, connID core.ConnID, groupID domain.GroupID) error {
	r.mu.RLock()
	entry, ok := r.sessions[connID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound.WithMessage("unknown connection")
	}

	member, err := r.authority.IsMember(ctx, entry.Session.Identity.UserID, groupID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("conn", string(connID)).Msg("membership check failed")
		return domain.ErrPersistence.Wrap(err)
	}
	if !member {
		return domain.ErrNotAMember
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// The connection may have closed while the authority was consulted.
	if cur, ok := r.sessions[connID]; !ok || cur != entry {
		return domain.ErrNotFound.WithMessage("unknown connection")
	}
	entry.Groups[groupID] = struct{}{}
	room, ok := r.rooms[groupID]
	if !ok {
		room = make(map[core.ConnID]*sessionEntry)
		r.rooms[groupID] = room
	}
	room[connID] = entry
	log.Info().
		Str("module", "app.registry").
		Str("conn", string(connID)).
		Int64("group", int64(groupID)).
		Msg("subscribed")
	return nil
}

// Unsubscribe drops one room subscription. Reports whether it existed.
func (r *Registry) Unsubscribe(connID core.ConnID, groupID domain.GroupID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[connID]
	if !ok {
		return false
	}
	if _, ok := entry.Groups[groupID]; !ok {
		return false
	}
	r.removeLocked(entry, groupID)
	log.Info().
		Str("module", "app.registry").
		Str("conn", string(connID)).
		Int64("group", int64(groupID)).
		Msg("unsubscribed")
	return true
}

// Unbind removes the session and all its room registrations. Calling it
// again for the same connection is a no-op.
func (r *Registry) Unbind(connID core.ConnID) (core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[connID]
	if !ok {
		return core.Session{}, false
	}
	for gid := range entry.Groups {
		r.removeLocked(entry, gid)
	}
	delete(r.sessions, connID)
	log.Info().Str("module", "app.registry").Str("conn", string(connID)).Msg("unbind session")
	return entry.Session, true
}

// Retain drops every subscription to groupID whose user does not satisfy
// keep, returning the affected sessions.
func (r *Registry) Retain(groupID domain.GroupID, keep func(domain.UserID) bool) []core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []core.Session
	for _, entry := range r.rooms[groupID] {
		if keep(entry.Session.Identity.UserID) {
			continue
		}
		r.removeLocked(entry, groupID)
		dropped = append(dropped, entry.Session)
		log.Info().
			Str("module", "app.registry").
			Str("conn", string(entry.Session.ConnID)).
			Int64("group", int64(groupID)).
			Msg("dropped subscription of non-member")
	}
	return dropped
}

func (r *Registry) removeLocked(entry *sessionEntry, groupID domain.GroupID) {
	delete(entry.Groups, groupID)
	if room, ok := r.rooms[groupID]; ok {
		delete(room, entry.Session.ConnID)
		if len(room) == 0 {
			delete(r.rooms, groupID)
		}
	}
}

func (r *Registry) Session(connID core.ConnID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[connID]; ok {
		return e.Session, true
	}
	return core.Session{}, false
}

func (r *Registry) Subscriptions(connID core.ConnID) []domain.GroupID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	out := make([]domain.GroupID, 0, len(entry.Groups))
	for gid := range entry.Groups {
		out = append(out, gid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubscribersOf returns a snapshot of the sessions subscribed to groupID.
func (r *Registry) SubscribersOf(groupID domain.GroupID) []core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[groupID]
	out := make([]core.Session, 0, len(room))
	for _, e := range room {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
