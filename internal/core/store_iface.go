package core

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// MessageStore is the hot, append-only message log.
type MessageStore interface {
	// Append assigns an id to msg and persists it. CreatedAt is kept as given.
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	// History returns up to limit messages of a group in (CreatedAt, ID)
	// order, strictly after the message with id after (0 = from the start).
	// When after is not in the hot store any more, reading starts from the
	// oldest remaining message.
	History(ctx context.Context, groupID domain.GroupID, after domain.MessageID, limit int) ([]domain.Message, error)
}

// ArchiveStore relocates aged messages into cold storage.
type ArchiveStore interface {
	// ArchiveBefore moves at most batchSize of the oldest messages created
	// strictly before cutoff. The move is atomic: a message ends up in
	// exactly one of the stores. Returns the number moved.
	ArchiveBefore(ctx context.Context, cutoff time.Time, batchSize int, archivedAt time.Time) (int, error)
	Archived(ctx context.Context, groupID domain.GroupID) ([]domain.ArchivedMessage, error)
}

// MembershipAuthority is the single source of truth for group roles.
// Reads must reflect the latest committed state.
type MembershipAuthority interface {
	IsMember(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error)
	IsAdmin(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error)
	MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error)
}

// GroupAdmin holds the mutations owned by group administration. The
// realtime core never calls these; they exist for collaborators and tests.
type GroupAdmin interface {
	CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error)
	AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error
	SetAdmin(ctx context.Context, groupID domain.GroupID, userID domain.UserID, isAdmin bool) error
}

type UserDirectory interface {
	// DisplayName returns domain.ErrNotFound for an unknown user.
	DisplayName(ctx context.Context, userID domain.UserID) (string, error)
	PutUser(ctx context.Context, user domain.User) error
}

// Store is a complete backend.
type Store interface {
	MessageStore
	ArchiveStore
	MembershipAuthority
	GroupAdmin
	UserDirectory
	Ping(ctx context.Context) error
	Close() error
}
