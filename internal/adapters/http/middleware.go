package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const identityKey = "identity"

// JWTAuth rejects requests without a valid bearer token and stores the
// verified identity on the context.
func JWTAuth(verifier core.CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := signal.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, domain.ErrUnauthenticated)
			return
		}
		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, domain.ErrUnauthenticated)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityOf(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(domain.Identity)
	return id
}
