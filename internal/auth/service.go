package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultTokenTTL         = 30 * time.Minute
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// Service verifies credentials, issues and resolves access tokens, and
// answers permission questions for resolved users.
type Service struct {
	users  UserStore
	grants GrantStore

	secret           []byte
	tokenTTL         time.Duration
	lockoutThreshold int
	lockoutDuration  time.Duration
	now              func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenTTL configures access token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithLockoutPolicy sets the failure threshold and lockout duration applied
// on repeated bad logins.
func WithLockoutPolicy(threshold int, duration time.Duration) ServiceOption {
	return func(s *Service) error {
		if threshold < 1 {
			return errors.New("auth: lockout threshold must be at least 1")
		}
		if duration <= 0 {
			return errors.New("auth: lockout duration must be positive")
		}
		s.lockoutThreshold = threshold
		s.lockoutDuration = duration
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth service. The signing secret is injected at
// construction; there are no process-wide lookups.
func NewService(users UserStore, grants GrantStore, secret []byte, opts ...ServiceOption) (*Service, error) {
	if users == nil || grants == nil {
		return nil, errors.New("auth: stores are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		users:            users,
		grants:           grants,
		secret:           secret,
		tokenTTL:         defaultTokenTTL,
		lockoutThreshold: defaultLockoutThreshold,
		lockoutDuration:  defaultLockoutDuration,
		now:              time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login authenticates the credentials and returns a signed access token with
// its expiry. Unknown user, bad password, inactive account and active
// lockout all collapse into ErrUnauthorized so callers leak nothing.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", time.Time{}, nil, ErrUnauthorized
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, ErrUnauthorized
		}
		return "", time.Time{}, nil, err
	}
	now := s.now().UTC()
	if !user.IsActive || user.LockedAt(now) {
		return "", time.Time{}, nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= s.lockoutThreshold {
			until := now.Add(s.lockoutDuration)
			lockedUntil = &until
		}
		if recErr := s.users.RecordLoginFailure(ctx, user.ID, attempts, lockedUntil); recErr != nil {
			return "", time.Time{}, nil, recErr
		}
		return "", time.Time{}, nil, ErrUnauthorized
	}
	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return "", time.Time{}, nil, err
	}
	user.LastLoginAt = &now
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	token, exp, err := signToken(s.secret, user, s.tokenTTL, now)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, exp, user, nil
}

// Resolve validates the token and loads the user it identifies. A valid
// signature never outweighs an inactive account.
func (s *Service) Resolve(ctx context.Context, token string) (*User, *Claims, error) {
	claims, err := parseToken(s.secret, token, s.now)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUnauthorized
	}
	return user, claims, nil
}

// Authorize runs the permission evaluator for the user, loading grants only
// when the rule table can be influenced by them.
func (s *Service) Authorize(ctx context.Context, user *User, action Action, scope Scope) (bool, error) {
	if user == nil {
		return false, nil
	}
	var grants []Grant
	if user.Role == RoleUser {
		var err error
		grants, err = s.grants.ListForUser(ctx, user.ID)
		if err != nil {
			return false, err
		}
	}
	return Authorize(user, action, scope, grants), nil
}

// AddGrant records a fine-grained permission for a user.
func (s *Service) AddGrant(ctx context.Context, g *Grant) error {
	if g == nil || strings.TrimSpace(g.UserID) == "" || g.Action == "" {
		return ErrInvalidInput
	}
	if _, err := s.users.Find(ctx, g.UserID); err != nil {
		return err
	}
	return s.grants.Grant(ctx, g)
}

// CreateUser provisions an account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, email, password, fullName string, role Role) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, ErrInvalidInput
	}
	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		IsActive:     true,
		IsSuperuser:  role == RoleSuperuser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
