package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/token"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	msgInvalidCredentials = "Invalid username or password!"
	msgLockedOut          = "Your account has been temporarily locked due to multiple unsuccessful login attempts."
	msgSessionExpired     = "Your session is expired!"
)

// Lockout defaults.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 5 * time.Minute
)

type LockoutPolicy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.MaxFailedAttempts <= 0 {
		p.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

type AuthenticateResult struct {
	AccessToken                 string
	ExpireInSeconds             int
	RefreshToken                string
	RefreshTokenExpireInSeconds int
}

type RefreshTokenResult struct {
	AccessToken     string
	ExpireInSeconds int
}

// CurrentSession describes the caller. User is nil for anonymous callers.
type CurrentSession struct {
	User               *domain.User
	AllPermissions     []string
	GrantedPermissions []string
}

// IdentityService signs users in and out.
type IdentityService struct {
	Store       store.Store
	Issuer      *token.Issuer
	Gate        *token.Gate
	Permissions *permission.Manager
	Catalog     *permission.Catalog
	Metrics     *metrics.Metrics
	Lockout     LockoutPolicy

	// Now defaults to time.Now.
	Now func() time.Time
}

// Authenticate checks the credentials and issues a refresh token followed
// by an access token linked to it.
func (s *IdentityService) Authenticate(ctx context.Context, usernameOrEmail, password string) (AuthenticateResult, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(usernameOrEmail) == "" {
		return AuthenticateResult{}, domain.BadRequest("Please enter the username or email address")
	}
	if password == "" {
		return AuthenticateResult{}, domain.BadRequest("Please enter the password")
	}

	user, err := s.findUser(ctx, usernameOrEmail)
	if errors.Is(err, store.ErrNotFound) {
		s.Metrics.LoginAttempt("unknown_user")
		return AuthenticateResult{}, domain.BadRequest(msgInvalidCredentials)
	}
	if err != nil {
		return AuthenticateResult{}, err
	}

	now := nowFunc(s.Now)
	if user.IsLockedOut(now) {
		s.Metrics.LoginAttempt("locked")
		l.Warn("sign-in refused, account locked", slog.String("user_id", user.ID))
		return AuthenticateResult{}, domain.BadRequest(msgLockedOut)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash is unusable", slog.String("user_id", user.ID), slogx.Err(err))
		}
		locked, ferr := s.recordFailure(ctx, user, now)
		if ferr != nil {
			return AuthenticateResult{}, ferr
		}
		if locked {
			s.Metrics.LoginAttempt("locked")
			l.Warn("account locked after repeated failures", slog.String("user_id", user.ID))
			return AuthenticateResult{}, domain.BadRequest(msgLockedOut)
		}
		s.Metrics.LoginAttempt("bad_password")
		return AuthenticateResult{}, domain.BadRequest(msgInvalidCredentials)
	}

	if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
		if err := s.Store.Users().UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			return AuthenticateResult{}, fmt.Errorf("service: reset lockout: %w", err)
		}
	}

	refresh, refreshKey, err := s.Issuer.CreateRefreshToken(ctx, user, 0)
	if err != nil {
		return AuthenticateResult{}, err
	}
	access, err := s.Issuer.CreateAccessToken(ctx, user, refreshKey, 0)
	if err != nil {
		return AuthenticateResult{}, err
	}

	s.Metrics.LoginAttempt("success")
	l.Info("user signed in", slog.String("user_id", user.ID))

	return AuthenticateResult{
		AccessToken:                 access,
		ExpireInSeconds:             int(s.Issuer.AccessTTL().Seconds()),
		RefreshToken:                refresh,
		RefreshTokenExpireInSeconds: int(s.Issuer.RefreshTTL().Seconds()),
	}, nil
}

func (s *IdentityService) findUser(ctx context.Context, usernameOrEmail string) (domain.User, error) {
	normalized := domain.Normalize(usernameOrEmail)
	user, err := s.Store.Users().GetByNormalizedUserName(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.Store.Users().GetByNormalizedEmail(ctx, normalized)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("service: find user: %w", err)
	}
	return user, err
}

// recordFailure bumps the failure counter and locks the account once the
// policy threshold is reached. It reports whether this attempt locked it.
func (s *IdentityService) recordFailure(ctx context.Context, user domain.User, now time.Time) (bool, error) {
	policy := s.Lockout.withDefaults()

	count := user.AccessFailedCount + 1
	var lockoutEnd *time.Time
	if count >= policy.MaxFailedAttempts {
		end := now.Add(policy.Duration)
		lockoutEnd = &end
		count = 0
	}

	if err := s.Store.Users().UpdateLockout(ctx, user.ID, count, lockoutEnd); err != nil {
		return false, fmt.Errorf("service: record failed sign-in: %w", err)
	}
	return lockoutEnd != nil, nil
}

// RefreshToken trades a live refresh token for a new access token bound to
// the same refresh key.
func (s *IdentityService) RefreshToken(ctx context.Context, raw string) (RefreshTokenResult, error) {
	if strings.TrimSpace(raw) == "" {
		return RefreshTokenResult{}, domain.BadRequest("Refresh token cannot be empty!")
	}

	claims, err := s.Gate.ValidateRefresh(ctx, raw)
	if err != nil {
		slogx.FromContext(ctx).Debug("refresh token rejected", slogx.Err(err))
		return RefreshTokenResult{}, domain.BadRequest(msgSessionExpired)
	}

	user, err := s.Store.Users().GetByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return RefreshTokenResult{}, domain.BadRequest("Unknown user or user identifier")
	}
	if err != nil {
		return RefreshTokenResult{}, fmt.Errorf("service: load user: %w", err)
	}

	access, err := s.Issuer.CreateAccessToken(ctx, user, claims.TokenValidityKey, 0)
	if err != nil {
		return RefreshTokenResult{}, err
	}

	return RefreshTokenResult{
		AccessToken:     access,
		ExpireInSeconds: int(s.Issuer.AccessTTL().Seconds()),
	}, nil
}

// SignOut revokes the access token of the caller and the refresh token it
// was issued with. Calling it twice, or anonymously, is harmless.
func (s *IdentityService) SignOut(ctx context.Context, p *httpx.Principal) error {
	if p == nil || p.Claims == nil {
		return nil
	}

	for _, key := range []string{p.Claims.TokenValidityKey, p.Claims.RefreshTokenValidityKey} {
		revoked, err := s.Issuer.Revoke(ctx, p.UserID, key)
		if err != nil {
			return err
		}
		if revoked {
			slogx.FromContext(ctx).Debug("validity key revoked", slog.String("user_id", p.UserID))
		}
	}
	return nil
}

// CurrentSession returns the caller and the permissions granted to it. A
// principal whose user has since disappeared is treated as anonymous.
func (s *IdentityService) CurrentSession(ctx context.Context, p *httpx.Principal) (CurrentSession, error) {
	session := CurrentSession{
		AllPermissions:     s.Catalog.Names(),
		GrantedPermissions: []string{},
	}
	if p == nil {
		return session, nil
	}

	user, err := s.Store.Users().GetByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return session, nil
	}
	if err != nil {
		return CurrentSession{}, fmt.Errorf("service: load user: %w", err)
	}

	granted, err := s.Permissions.GetGrantedPermissions(ctx, user.ID)
	if err != nil {
		return CurrentSession{}, err
	}

	session.User = &user
	session.GrantedPermissions = granted.Names()
	return session, nil
}
