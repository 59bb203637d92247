package sqlite

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Timestamps are stored as unix microseconds so that ordering and range
// predicates are plain integer comparisons.

type userRow struct {
	ID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type groupRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"not null"`
	CreatorID   int64  `gorm:"not null"`
	CreatedAtUs int64  `gorm:"column:created_at_us;not null"`
}

func (groupRow) TableName() string { return "groups" }

type memberRow struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	GroupID int64 `gorm:"primaryKey;autoIncrement:false;index"`
	IsAdmin bool  `gorm:"not null;default:false"`
}

func (memberRow) TableName() string { return "group_members" }

type messageRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	GroupID     int64  `gorm:"not null;index:idx_messages_group_order,priority:1"`
	UserID      int64  `gorm:"not null"`
	AuthorName  string `gorm:"not null;default:''"`
	Content     string `gorm:"type:text;not null"`
	CreatedAtUs int64  `gorm:"column:created_at_us;not null;index:idx_messages_group_order,priority:2;index:idx_messages_created"`
}

func (messageRow) TableName() string { return "messages" }

type archivedRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement:false"`
	GroupID      int64  `gorm:"not null;index:idx_archived_group_order,priority:1"`
	UserID       int64  `gorm:"not null"`
	AuthorName   string `gorm:"not null;default:''"`
	Content      string `gorm:"type:text;not null"`
	CreatedAtUs  int64  `gorm:"column:created_at_us;not null;index:idx_archived_group_order,priority:2"`
	ArchivedAtUs int64  `gorm:"column:archived_at_us;not null"`
}

func (archivedRow) TableName() string { return "archived_messages" }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:         domain.MessageID(r.ID),
		GroupID:    domain.GroupID(r.GroupID),
		AuthorID:   domain.UserID(r.UserID),
		AuthorName: r.AuthorName,
		Content:    r.Content,
		CreatedAt:  fromMicros(r.CreatedAtUs),
	}
}

func (r archivedRow) toDomain() domain.ArchivedMessage {
	return domain.ArchivedMessage{
		Message: domain.Message{
			ID:         domain.MessageID(r.ID),
			GroupID:    domain.GroupID(r.GroupID),
			AuthorID:   domain.UserID(r.UserID),
			AuthorName: r.AuthorName,
			Content:    r.Content,
			CreatedAt:  fromMicros(r.CreatedAtUs),
		},
		ArchivedAt: fromMicros(r.ArchivedAtUs),
	}
}
