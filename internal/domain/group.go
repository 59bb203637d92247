package domain

import (
	"strconv"
	"strings"
	"time"
)

type GroupID int64

func (id GroupID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseGroupID accepts the decimal form used for room names on the wire.
func ParseGroupID(s string) (GroupID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidRequest
	}
	return GroupID(n), nil
}

// GroupRef decodes a group id sent either as a JSON number or a string.
// Missing or null decodes to 0.
type GroupRef GroupID

func (g *GroupRef) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*g = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ErrInvalidRequest.WithMessage("groupId must be numeric")
	}
	*g = GroupRef(n)
	return nil
}

type Group struct {
	ID        GroupID   `json:"id"`
	Name      string    `json:"name"`
	CreatorID UserID    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Membership is unique per (UserID, GroupID).
type Membership struct {
	UserID  UserID  `json:"userId"`
	GroupID GroupID `json:"groupId"`
	IsAdmin bool    `json:"isAdmin"`
}

// Member is the read view returned by membersOf.
type Member struct {
	UserID  UserID `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
}
