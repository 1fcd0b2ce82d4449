// Package revocation tracks invalidated access-token sessions. Tokens are
// stateless; revoking one means remembering its session id until the token
// would have expired anyway, so entries always carry a TTL.
package revocation

import (
	"context"
	"time"
)

// List records revoked sessions and answers the auth middleware's check.
type List interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
