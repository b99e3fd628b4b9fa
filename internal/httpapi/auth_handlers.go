package httpapi

import (
	"net/http"
	"time"

	"github.com/forgeerp/forgeerp/internal/audit"
	"github.com/forgeerp/forgeerp/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	token, expiresAt, user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.LoginFailures.Inc()
		_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{
			"username": req.Username,
		})
		writeError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      string(user.Role),
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}
