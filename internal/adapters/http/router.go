package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
)

type Deps struct {
	Config   *config.Config
	Store    Backend
	Verifier core.CredentialVerifier
	Pipeline *app.Pipeline
	Archiver *app.Archiver
	Signal   *signal.SignalWSController
}

func SetupRouter(ctx context.Context, d Deps) *gin.Engine {
	if d.Config.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if d.Config.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{
		store:      d.Store,
		pipeline:   d.Pipeline,
		archiver:   d.Archiver,
		historyCfg: d.Config.History,
		opTimeout:  d.Config.WS.OpTimeout,
	}

	r.GET("/healthz", h.healthz)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		d.Signal.HandleSignal(ctx, c)
	})

	authed := api.Group("", JWTAuth(d.Verifier))
	authed.GET("/messages/:groupId", h.history)
	authed.POST("/messages", h.send)
	authed.GET("/groups/:groupId/members", h.members)
	authed.GET("/groups/:groupId/is-admin", h.isAdmin)
	authed.POST("/archive", h.archive)

	log.Info().Str("module", "adapters.http").Str("mode", d.Config.Mode).Msg("router setup")
	return r
}
