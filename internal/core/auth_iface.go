package core

import (
	"context"

	"github.com/dkeye/Parley/internal/domain"
)

// CredentialVerifier validates a presented credential. Any failure is
// reported as domain.ErrUnauthenticated.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}
