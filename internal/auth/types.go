package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the coarse permission tier of a user. Tiers are ordered
// viewer < user < admin < superuser.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleViewer:
		return RoleViewer, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperuser:
		return RoleSuperuser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// User is an operator account. Accounts are deactivated, never hard-deleted.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FullName     string `json:"full_name,omitempty"`
	Role         Role   `json:"role"`
	IsActive     bool   `json:"is_active"`
	IsSuperuser  bool   `json:"is_superuser"`

	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LockedAt reports whether a temporary login lockout is in effect.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Action identifies a mutating operation subject to permission checks.
type Action string

const (
	ActionClientCreate     Action = "client_create"
	ActionClientModify     Action = "client_modify"
	ActionClientDelete     Action = "client_delete"
	ActionModuleCreate     Action = "module_create"
	ActionModuleInstall    Action = "module_install"
	ActionModuleUninstall  Action = "module_uninstall"
	ActionConfigChange     Action = "config_change"
	ActionWorkflowGenerate Action = "workflow_generate"
	ActionChangeFile       Action = "change_file"
	ActionDeploy           Action = "deploy"
	ActionDisasterRecovery Action = "disaster_recovery"
)

// Scope narrows an action to a client and optionally one of its
// environments. Zero values mean "any".
type Scope struct {
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Grant is a fine-grained permission entry layered on top of role tiers.
// At most one active grant may exist per (user, action, client, environment)
// tuple; stores deactivate duplicates instead of stacking them.
type Grant struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Action      Action    `json:"action"`
	ClientID    string    `json:"client_id,omitempty"`
	Environment string    `json:"environment,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matches reports whether the grant covers the given action and scope. An
// empty grant field covers every value of that field.
func (g Grant) Matches(action Action, scope Scope) bool {
	if !g.IsActive || g.Action != action {
		return false
	}
	if g.ClientID != "" && g.ClientID != scope.ClientID {
		return false
	}
	if g.Environment != "" && g.Environment != scope.Environment {
		return false
	}
	return true
}
