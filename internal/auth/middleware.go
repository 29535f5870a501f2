package auth

import (
	"context"
	"net/http"
	"strings"

	"interview-prep-api/internal/observability"
)

type contextKey struct{}

var userContextKey contextKey

// UserFromContext returns the authenticated account stashed by the
// middleware, or nil for anonymous requests under Optional.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// RequestWithUser returns a copy of r carrying user, the same way the
// middleware does. Intended for handlers mounted without the middleware and
// for tests.
func RequestWithUser(r *http.Request, user *User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

// Authenticator gates requests on a valid, non-revoked access token and
// resolves the caller's live account.
type Authenticator struct {
	service *Service
	logger  *observability.Logger
}

func NewAuthenticator(service *Service, logger *observability.Logger) *Authenticator {
	return &Authenticator{service: service, logger: logger}
}

// Require rejects requests without a valid bearer access token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		user, err := a.service.VerifyAccessToken(r.Context(), raw)
		if err != nil {
			code := CodeOf(err)
			// Expired vs malformed is a log-level distinction only; the
			// response stays a uniform 401.
			a.logger.Info("access_token_rejected", map[string]any{
				"code": string(code),
				"path": r.URL.Path,
			})
			writeError(w, httpStatus(code), "could not validate credentials")
			return
		}

		next.ServeHTTP(w, RequestWithUser(r, user))
	})
}

// Optional resolves an identity when a valid token is presented and passes
// the request through anonymously otherwise.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.service.VerifyAccessToken(r.Context(), raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, RequestWithUser(r, user))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", false
	}

	return raw, true
}
