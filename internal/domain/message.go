package domain

import (
	"strings"
	"time"
)

const MaxMessageLen = 4000

type MessageID int64

// Message is immutable once appended. Order within a group is (CreatedAt, ID).
type Message struct {
	ID         MessageID `json:"id"`
	GroupID    GroupID   `json:"groupId"`
	AuthorID   UserID    `json:"userId"`
	AuthorName string    `json:"username"`
	Content    string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Before reports whether m sorts strictly before o in group order.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

type ArchivedMessage struct {
	Message
	ArchivedAt time.Time `json:"archivedAt"`
}

// NormalizeText trims the text and rejects empty or oversized content.
func NormalizeText(text string) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", ErrInvalidRequest.WithMessage("text is empty")
	}
	if len(t) > MaxMessageLen {
		return "", ErrInvalidRequest.WithMessage("text too long")
	}
	return t, nil
}
