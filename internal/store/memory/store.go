// Package memory is a process-local store used for development and tests.
// All operations are atomic under a single lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	nextMessageID int64
	nextGroupID   int64

	messages map[domain.GroupID][]domain.Message
	archived map[domain.GroupID][]domain.ArchivedMessage
	groups   map[domain.GroupID]domain.Group
	members  map[domain.GroupID]map[domain.UserID]bool
	users    map[domain.UserID]string
}

func New() *Store {
	return &Store{
		messages: make(map[domain.GroupID][]domain.Message),
		archived: make(map[domain.GroupID][]domain.ArchivedMessage),
		groups:   make(map[domain.GroupID]domain.Group),
		members:  make(map[domain.GroupID]map[domain.UserID]bool),
		users:    make(map[domain.UserID]string),
	}
}

func (s *Store) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	msg.ID = domain.MessageID(s.nextMessageID)

	log := s.messages[msg.GroupID]
	i := sort.Search(len(log), func(i int) bool { return msg.Before(log[i]) })
	log = append(log, domain.Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	s.messages[msg.GroupID] = log
	return msg, nil
}

func (s *Store) History(ctx context.Context, groupID domain.GroupID, after domain.MessageID, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[groupID]
	start := 0
	if after > 0 {
		for i, m := range log {
			if m.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := len(log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]domain.Message, end-start)
	copy(out, log[start:end])
	return out, nil
}

func (s *Store) ArchiveBefore(ctx context.Context, cutoff time.Time, batchSize int, archivedAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []domain.Message
	for _, log := range s.messages {
		for _, m := range log {
			if !m.CreatedAt.Before(cutoff) {
				break
			}
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return 0, nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Before(eligible[j]) })
	if batchSize > 0 && len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}

	moved := make(map[domain.MessageID]struct{}, len(eligible))
	for _, m := range eligible {
		moved[m.ID] = struct{}{}
		s.archived[m.GroupID] = append(s.archived[m.GroupID], domain.ArchivedMessage{Message: m, ArchivedAt: archivedAt})
	}
	for gid, log := range s.messages {
		kept := log[:0]
		for _, m := range log {
			if _, ok := moved[m.ID]; !ok {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(s.messages, gid)
			continue
		}
		s.messages[gid] = kept
	}
	return len(eligible), nil
}

func (s *Store) Archived(ctx context.Context, groupID domain.GroupID) ([]domain.ArchivedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ArchivedMessage, len(s.archived[groupID]))
	copy(out, s.archived[groupID])
	sort.Slice(out, func(i, j int) bool { return out[i].Message.Before(out[j].Message) })
	return out, nil
}

func (s *Store) IsMember(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

func (s *Store) IsAdmin(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[groupID][userID], nil
}

func (s *Store) MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Member, 0, len(s.members[groupID]))
	for uid, admin := range s.members[groupID] {
		out = append(out, domain.Member{UserID: uid, IsAdmin: admin})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return domain.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGroupID++
	g := domain.Group{
		ID:        domain.GroupID(s.nextGroupID),
		Name:      name,
		CreatorID: creator,
		CreatedAt: time.Now().UTC(),
	}
	s.groups[g.ID] = g
	s.members[g.ID] = map[domain.UserID]bool{creator: true}
	return g, nil
}

func (s *Store) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.members[groupID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, exists := ms[userID]; !exists {
		ms[userID] = false
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[groupID][userID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.members[groupID], userID)
	return nil
}

func (s *Store) SetAdmin(ctx context.Context, groupID domain.GroupID, userID domain.UserID, isAdmin bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[groupID][userID]; !ok {
		return domain.ErrNotFound
	}
	s.members[groupID][userID] = isAdmin
	return nil
}

func (s *Store) DisplayName(ctx context.Context, userID domain.UserID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.users[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return name, nil
}

func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user.Username
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }
