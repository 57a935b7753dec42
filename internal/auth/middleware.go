package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aiox-platform/gloser/internal/api"
)

type contextKey string

const ClaimsKey contextKey = "caller_claims"

// Middleware rejects requests without a valid bearer token.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				// Browsers cannot set headers on a websocket upgrade.
				token = r.URL.Query().Get("access_token")
				ok = token != ""
			}
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := v.Validate(token)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

// SessionKey scopes a caller-supplied session id to the authenticated
// subject. Without claims the id is used as is.
func SessionKey(ctx context.Context, sessionID string) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject + ":" + sessionID
	}
	return sessionID
}
