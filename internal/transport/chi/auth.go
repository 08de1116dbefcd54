package chi

import (
	"context"
	"net/http"
	"strings"

	"github.com/scrapfeed/scrapfeed/internal/domain"
)

type contextKey int

const userContextKey contextKey = iota

// exemptPaths are routes that bypass authentication.
var exemptPaths = map[string]struct{}{
	"/health":         {},
	"/metrics":        {},
	"/api/users":      {},
	"/api/auth/token": {},
}

// UserResolver resolves an API token to its account.
type UserResolver interface {
	GetByToken(ctx context.Context, token string) (*domain.User, error)
}

// UserFromContext returns the authenticated user placed by the auth middleware.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(*domain.User)
	return u, ok
}

// ContextWithUser injects a user, for tests and internal calls.
func ContextWithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// TokenAuthMiddleware validates the Bearer token on every request and puts
// the resolved user into the request context. Registration, token issuing,
// health, and metrics stay open.
func TokenAuthMiddleware(users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, "unauthorized",
					"authorization header must use Bearer scheme")
				return
			}

			user, err := users.GetByToken(r.Context(), auth[len(bearerPrefix):])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
