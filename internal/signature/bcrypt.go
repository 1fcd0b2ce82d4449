package signature

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/sentinel"
)

// BcryptVerifier checks a password proof against the stored bcrypt hash.
type BcryptVerifier struct {
	store CredentialStore
}

func NewBcryptVerifier(store CredentialStore) *BcryptVerifier {
	return &BcryptVerifier{store: store}
}

// Verify confirms the proof belongs to the acting user. A missing proof, an
// unknown user, and a wrong password all surface as the same signature error
// so the response does not reveal which part failed.
func (v *BcryptVerifier) Verify(ctx context.Context, userID id.UserID, proof Proof) error {
	if proof.Password == "" {
		return dErrors.New(dErrors.CodeSignature, "signature proof required")
	}

	hash, err := v.store.PasswordHash(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeSignature, "signature verification failed")
		}
		return fmt.Errorf("loading credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(proof.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeSignature, "signature verification failed")
		}
		return fmt.Errorf("comparing credential: %w", err)
	}
	return nil
}

// HashPassword produces the bcrypt hash stored for later verification.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}
