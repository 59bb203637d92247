package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Backend is the part of the store the HTTP surface reads directly.
type Backend interface {
	core.MessageStore
	core.MembershipAuthority
	Ping(ctx context.Context) error
}

type handlers struct {
	store      Backend
	pipeline   *app.Pipeline
	archiver   *app.Archiver
	historyCfg config.HistoryConfig
	opTimeout  time.Duration
}

type sendRequest struct {
	GroupID domain.GroupRef `json:"groupId"`
	Text    string          `json:"text"`
}

// opContext detaches from the client: an accepted request runs to
// completion even if the caller hangs up.
func (h *handlers) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.opTimeout)
}

func (h *handlers) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) history(c *gin.Context) {
	gid, err := domain.ParseGroupID(c.Param("groupId"))
	if err != nil {
		abortWithError(c, domain.ErrInvalidRequest.WithMessage("invalid groupId"))
		return
	}
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		abortWithError(c, domain.ErrInvalidRequest.WithMessage("invalid after"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		abortWithError(c, domain.ErrInvalidRequest.WithMessage("invalid limit"))
		return
	}
	if limit == 0 {
		limit = h.historyCfg.DefaultLimit
	}
	limit = min(limit, h.historyCfg.MaxLimit)

	ctx, cancel := h.opContext(c)
	defer cancel()
	if !h.requireMember(ctx, c, gid) {
		return
	}
	msgs, err := h.store.History(ctx, gid, domain.MessageID(after), limit)
	if err != nil {
		abortWithError(c, domain.ErrPersistence.Wrap(err))
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if domain.CodeOf(err) != domain.CodeInvalidRequest {
			err = domain.ErrInvalidRequest.WithMessage("malformed payload")
		}
		abortWithError(c, err)
		return
	}
	ctx, cancel := h.opContext(c)
	defer cancel()
	msg, err := h.pipeline.Send(ctx, identityOf(c), domain.GroupID(req.GroupID), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handlers) members(c *gin.Context) {
	gid, err := domain.ParseGroupID(c.Param("groupId"))
	if err != nil {
		abortWithError(c, domain.ErrInvalidRequest.WithMessage("invalid groupId"))
		return
	}
	ctx, cancel := h.opContext(c)
	defer cancel()
	if !h.requireMember(ctx, c, gid) {
		return
	}
	members, err := h.store.MembersOf(ctx, gid)
	if err != nil {
		abortWithError(c, domain.ErrPersistence.Wrap(err))
		return
	}
	if members == nil {
		members = []domain.Member{}
	}
	c.JSON(http.StatusOK, members)
}

func (h *handlers) isAdmin(c *gin.Context) {
	gid, err := domain.ParseGroupID(c.Param("groupId"))
	if err != nil {
		abortWithError(c, domain.ErrInvalidRequest.WithMessage("invalid groupId"))
		return
	}
	ctx, cancel := h.opContext(c)
	defer cancel()
	admin, err := h.store.IsAdmin(ctx, identityOf(c).UserID, gid)
	if err != nil {
		abortWithError(c, domain.ErrPersistence.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": gid, "isAdmin": admin})
}

func (h *handlers) archive(c *gin.Context) {
	n, err := h.archiver.RunDetached(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	log.Info().
		Str("module", "adapters.http").
		Int64("user", int64(identityOf(c).UserID)).
		Int("archived", n).
		Msg("archive triggered")
	c.JSON(http.StatusOK, gin.H{"archived": n})
}

func (h *handlers) requireMember(ctx context.Context, c *gin.Context, gid domain.GroupID) bool {
	ok, err := h.store.IsMember(ctx, identityOf(c).UserID, gid)
	if err != nil {
		abortWithError(c, domain.ErrPersistence.Wrap(err))
		return false
	}
	if !ok {
		abortWithError(c, domain.ErrForbidden.WithMessage("not a member of this group"))
		return false
	}
	return true
}
