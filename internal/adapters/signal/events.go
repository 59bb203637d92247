package signal

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

type envelope struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

type authPayload struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Token string `json:"token"`
}

type roomPayload struct {
	Ref     string          `json:"ref,omitempty"`
	GroupID domain.GroupRef `json:"groupId"`
}

type sendPayload struct {
	Ref     string          `json:"ref,omitempty"`
	GroupID domain.GroupRef `json:"groupId"`
	Text    string          `json:"text"`
}

type authenticatedEvent struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type roomEvent struct {
	Type    string         `json:"type"`
	Ref     string         `json:"ref,omitempty"`
	GroupID domain.GroupID `json:"groupId"`
	Reason  string         `json:"reason,omitempty"`
}

type sentEvent struct {
	Type      string           `json:"type"`
	Ref       string           `json:"ref,omitempty"`
	ID        domain.MessageID `json:"id"`
	GroupID   domain.GroupID   `json:"groupId"`
	CreatedAt time.Time        `json:"createdAt"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorEvent(ref string, err error) errorEvent {
	return errorEvent{
		Type:    "error",
		Ref:     ref,
		Code:    domain.CodeOf(err),
		Message: domain.PublicMessage(err),
	}
}
