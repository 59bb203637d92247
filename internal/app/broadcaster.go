package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type PublishResult struct {
	SentTo  int
	Dropped []core.Session
}

// Broadcaster fans a stored message out to the subscribers of its room.
// Delivery only enqueues: each connection drains its own queue, so a slow
// subscriber never holds up the others.
type Broadcaster struct {
	registry *Registry
	policy   Policy
}

func NewBroadcaster(registry *Registry, policy Policy) *Broadcaster {
	if policy == nil {
		policy = KickPolicy{}
	}
	return &Broadcaster{registry: registry, policy: policy}
}

func (b *Broadcaster) Publish(groupID domain.GroupID, msg domain.Message) PublishResult {
	frame, err := EncodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("encode message")
		return PublishResult{}
	}

	var res PublishResult
	for _, s := range b.registry.SubscribersOf(groupID) {
		err := s.Signal.TrySend(frame)
		if err == nil {
			res.SentTo++
			continue
		}
		res.Dropped = append(res.Dropped, s)
		if errors.Is(err, core.ErrConnClosed) {
			// Already going away; its reader will unbind it.
			continue
		}
		b.onBackPressure(groupID, s)
	}
	if len(res.Dropped) > 0 {
		log.Warn().
			Str("module", "app.broadcast").
			Int64("group", int64(groupID)).
			Int("sent", res.SentTo).
			Int("dropped", len(res.Dropped)).
			Msg("publish with drops")
	}
	return res
}

// Notify sends a frame to the given sessions without any policy handling.
func (b *Broadcaster) Notify(sessions []core.Session, frame core.Frame) {
	for _, s := range sessions {
		_ = s.Signal.TrySend(frame)
	}
}

func (b *Broadcaster) onBackPressure(groupID domain.GroupID, s core.Session) {
	switch b.policy.OnBackPressure(groupID, s) {
	case KickMember:
		if _, ok := b.registry.Unbind(s.ConnID); ok {
			log.Warn().
				Str("module", "app.broadcast").
				Str("conn", string(s.ConnID)).
				Int64("user", int64(s.Identity.UserID)).
				Msg("kicked slow consumer")
		}
		s.Signal.Close()
	case DropFrame:
		log.Debug().Str("module", "app.broadcast").Str("conn", string(s.ConnID)).Msg("frame dropped")
	}
}
