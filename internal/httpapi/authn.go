package httpapi

import (
	"net/http"
	"strings"

	"github.com/forgeerp/forgeerp/internal/auth"
)

// Authenticate resolves the bearer token and puts the acting user on the
// request context. Requests without a valid token never reach the handler.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		user, _, err := a.auth.Resolve(r.Context(), raw)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireUser loads the acting user from context; the authn middleware
// guarantees it on protected routes.
func requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, false
	}
	return user, true
}

// authorize runs the permission evaluator and writes 403 on deny.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, action auth.Action, scope auth.Scope) bool {
	user, ok := requireUser(w, r)
	if !ok {
		return false
	}
	allowed, err := a.auth.Authorize(r.Context(), user, action, scope)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !allowed {
		forbidden(w)
		return false
	}
	return true
}
