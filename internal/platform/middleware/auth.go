package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/httputil"
	"cratekeeper/pkg/requestcontext"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims carries the identity a verified token asserts.
type TokenClaims struct {
	UserID    id.UserID
	UnitID    id.UnitID
	Role      id.Role
	SessionID string
}

// RevocationChecker reports whether a token session has been revoked. A nil
// checker disables the check.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// RequireAuth validates the Authorization bearer token, rejects revoked
// sessions, and injects actor identity into the request context.
func RequireAuth(validator TokenValidator, revoked RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if revoked != nil && claims.SessionID != "" {
				isRevoked, err := revoked.IsRevoked(ctx, claims.SessionID)
				if err != nil {
					logger.ErrorContext(ctx, "revocation check failed",
						"error", err,
						"request_id", requestID,
					)
					httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "revocation check failed"))
					return
				}
				if isRevoked {
					logger.InfoContext(ctx, "rejected revoked session",
						"request_id", requestID,
						"session_id", claims.SessionID,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session revoked"))
					return
				}
			}

			ctx = requestcontext.WithActor(ctx, claims.UserID, claims.UnitID, claims.Role)
			ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
