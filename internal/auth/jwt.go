// Package auth verifies bearer credentials presented by clients.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const unknownName = "Unknown"

// Claims carried by a Parley access token. Name is optional.
type Claims struct {
	UserID int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed tokens. Tokens are minted elsewhere with the
// same shared secret.
type Verifier struct {
	secret []byte
	users  core.UserDirectory
	parser *jwt.Parser
}

// NewVerifier returns a verifier. users may be nil, in which case a token
// without a name yields "Unknown".
func NewVerifier(secret string, users core.UserDirectory) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verify never exposes why a token was rejected; the reason is logged.
func (v *Verifier) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	var claims Claims
	token, err := v.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		reason := "invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		log.Debug().Err(err).Str("module", "auth").Str("reason", reason).Msg("token rejected")
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if claims.UserID <= 0 {
		log.Debug().Str("module", "auth").Msg("token missing user id")
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	uid := domain.UserID(claims.UserID)
	return domain.Identity{UserID: uid, DisplayName: v.displayName(ctx, uid, claims.Name)}, nil
}

func (v *Verifier) displayName(ctx context.Context, uid domain.UserID, fromToken string) string {
	if name := clip(strings.TrimSpace(fromToken)); name != "" {
		return name
	}
	if v.users == nil {
		return unknownName
	}
	name, err := v.users.DisplayName(ctx, uid)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("module", "auth").Int64("user", int64(uid)).Msg("display name lookup failed")
		}
		return unknownName
	}
	if name = clip(strings.TrimSpace(name)); name == "" {
		return unknownName
	}
	return name
}

func clip(name string) string {
	r := []rune(name)
	if len(r) > domain.MaxUsernameLen {
		return string(r[:domain.MaxUsernameLen])
	}
	return name
}

// Sign mints an HS256 token for the given user. Used by tooling and tests;
// production tokens come from the login service.
func Sign(secret string, userID domain.UserID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: int64(userID),
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
