package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Pipeline validates, authorizes, persists and then broadcasts messages.
// A message is published only after the store accepted it.
type Pipeline struct {
	authority   core.MembershipAuthority
	messages    core.MessageStore
	registry    *Registry
	broadcaster *Broadcaster
	limiter     *SendLimiter
	now         func() time.Time

	mu     sync.Mutex
	groups map[domain.GroupID]*groupSeq
	// floor is the newest CreatedAt of any released sequencer, so a group
	// whose sequencer was dropped still never goes back in time.
	floor time.Time
}

// groupSeq serializes persist and publish for one group so that delivery
// order matches store order. last is the newest CreatedAt handed out; refs
// counts senders holding or waiting for it.
type groupSeq struct {
	mu   sync.Mutex
	last time.Time
	refs int
}

type PipelineOption func(*Pipeline)

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func WithLimiter(l *SendLimiter) PipelineOption {
	return func(p *Pipeline) { p.limiter = l }
}

func NewPipeline(
	authority core.MembershipAuthority,
	messages core.MessageStore,
	registry *Registry,
	broadcaster *Broadcaster,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		authority:   authority,
		messages:    messages,
		registry:    registry,
		broadcaster: broadcaster,
		now:         time.Now,
		groups:      make(map[domain.GroupID]*groupSeq),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send stores a message from sender in groupID and fans it out to the
// room. The sender's own subscriptions receive it like everyone else's.
func (p *Pipeline) Send(ctx context.Context, sender domain.Identity, groupID domain.GroupID, text string) (domain.Message, error) {
	if groupID <= 0 {
		return domain.Message{}, domain.ErrInvalidRequest.WithMessage("groupId is required")
	}
	content, err := domain.NormalizeText(text)
	if err != nil {
		return domain.Message{}, err
	}
	if !p.limiter.Allow(sender.UserID) {
		return domain.Message{}, domain.ErrRateLimited
	}

	member, err := p.authority.IsMember(ctx, sender.UserID, groupID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.pipeline").Int64("group", int64(groupID)).Msg("membership check failed")
		return domain.Message{}, domain.ErrPersistence.Wrap(err)
	}
	if !member {
		return domain.Message{}, domain.ErrForbidden.WithMessage("not a member of this group")
	}

	// Held across Append and MembersOf: a slow store stalls this group's
	// senders up to their op timeout, other groups are unaffected.
	seq := p.lock(groupID)
	defer p.unlock(groupID, seq)

	createdAt := p.now().UTC().Truncate(time.Microsecond)
	if createdAt.Before(seq.last) {
		createdAt = seq.last
	}
	stored, err := p.messages.Append(ctx, domain.Message{
		GroupID:    groupID,
		AuthorID:   sender.UserID,
		AuthorName: sender.DisplayName,
		Content:    content,
		CreatedAt:  createdAt,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("module", "app.pipeline").
			Int64("group", int64(groupID)).
			Int64("user", int64(sender.UserID)).
			Msg("persist failed, message not broadcast")
		return domain.Message{}, domain.ErrPersistence.Wrap(err)
	}
	seq.last = createdAt

	p.dropRevoked(ctx, groupID)
	res := p.broadcaster.Publish(groupID, stored)
	log.Debug().
		Str("module", "app.pipeline").
		Int64("group", int64(groupID)).
		Int64("message", int64(stored.ID)).
		Int("sent", res.SentTo).
		Msg("message delivered")
	return stored, nil
}

func (p *Pipeline) lock(groupID domain.GroupID) *groupSeq {
	p.mu.Lock()
	seq, ok := p.groups[groupID]
	if !ok {
		seq = &groupSeq{last: p.floor}
		p.groups[groupID] = seq
	}
	seq.refs++
	p.mu.Unlock()
	seq.mu.Lock()
	return seq
}

// unlock releases seq and drops it once no sender references it.
func (p *Pipeline) unlock(groupID domain.GroupID, seq *groupSeq) {
	last := seq.last
	seq.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	seq.refs--
	if seq.refs > 0 {
		return
	}
	delete(p.groups, groupID)
	if last.After(p.floor) {
		p.floor = last
	}
}

// dropRevoked unsubscribes sessions whose user lost membership since they
// subscribed. On lookup failure the current subscriber set is used as is.
func (p *Pipeline) dropRevoked(ctx context.Context, groupID domain.GroupID) {
	members, err := p.authority.MembersOf(ctx, groupID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.pipeline").Int64("group", int64(groupID)).Msg("members lookup failed")
		return
	}
	current := make(map[domain.UserID]struct{}, len(members))
	for _, m := range members {
		current[m.UserID] = struct{}{}
	}
	dropped := p.registry.Retain(groupID, func(uid domain.UserID) bool {
		_, ok := current[uid]
		return ok
	})
	if len(dropped) == 0 {
		return
	}
	frame, err := EncodeLeft(groupID, LeftMembershipGone)
	if err != nil {
		return
	}
	p.broadcaster.Notify(dropped, frame)
}
