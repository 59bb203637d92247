package app

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type BackpressureAction int

const (
	KickMember BackpressureAction = iota + 1
	DropFrame
)

// Policy decides what happens to a subscriber whose outbound queue is full.
type Policy interface {
	OnBackPressure(groupID domain.GroupID, sess core.Session) BackpressureAction
}

// KickPolicy disconnects slow consumers. The client reconnects and fills
// the gap from history.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.GroupID, core.Session) BackpressureAction {
	return KickMember
}

// DropPolicy keeps the connection and loses the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.GroupID, core.Session) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the config value to a policy. Unknown names kick.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return KickPolicy{}
}
