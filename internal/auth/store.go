package auth

import (
	"context"
	"time"
)

// UserStore persists operator accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// RecordLoginSuccess stamps last_login_at and resets the failure counter.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	// RecordLoginFailure stores the new failure count and, when the lockout
	// threshold was reached, the lockout expiry.
	RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
}

// GrantStore persists fine-grained permission grants.
type GrantStore interface {
	// Grant inserts the entry after deactivating any active grant with the
	// same (user, action, client, environment) tuple.
	Grant(ctx context.Context, g *Grant) error
	Revoke(ctx context.Context, id string) error
	// ListForUser returns the user's active grants.
	ListForUser(ctx context.Context, userID string) ([]Grant, error)
}
