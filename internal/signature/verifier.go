// Package signature re-validates a user's credential for transitions that
// require secondary authentication. A signature is not a session: the caller
// is already authenticated, and this check proves presence at the moment of
// approval.
package signature

import (
	"context"

	id "cratekeeper/pkg/domain"
)

// Proof is the credential a user supplies alongside a signature-gated
// transition.
type Proof struct {
	Password string
}

// Verifier confirms that a proof belongs to the acting user.
type Verifier interface {
	Verify(ctx context.Context, userID id.UserID, proof Proof) error
}

// CredentialStore resolves the stored password hash for a user. Returns
// sentinel.ErrNotFound for unknown users.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID id.UserID) (string, error)
}
