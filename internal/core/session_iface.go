package core

import "github.com/dkeye/Parley/internal/domain"

// ConnID identifies one live connection for its whole lifetime.
type ConnID string

// Session binds an authenticated identity to its transport endpoint.
// Subscriptions are owned by the registry, not by the session value.
type Session struct {
	ConnID   ConnID
	Identity domain.Identity
	Signal   SignalConnection
}
