package app

import (
	"encoding/json"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const (
	EventMessage = "message"
	EventLeft    = "left"
)

// Reasons carried by a "left" event.
const (
	LeftByRequest      = "requested"
	LeftMembershipGone = "membership_revoked"
)

type MessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

type LeftEvent struct {
	Type    string         `json:"type"`
	GroupID domain.GroupID `json:"groupId"`
	Reason  string         `json:"reason"`
}

func EncodeMessage(msg domain.Message) (core.Frame, error) {
	return json.Marshal(MessageEvent{Type: EventMessage, Message: msg})
}

func EncodeLeft(groupID domain.GroupID, reason string) (core.Frame, error) {
	return json.Marshal(LeftEvent{Type: EventLeft, GroupID: groupID, Reason: reason})
}
