package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mwestergaard/hearth/internal/models"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
	pkglogger "github.com/mwestergaard/hearth/pkg/logger"
)

// ProfileStore is the accounts collaborator injected into the auth service
type ProfileStore interface {
	GetByName(name string) (*models.Profile, error)
	Update(p *models.Profile) error
}

// PolicyValidationError carries every violated rule at once
type PolicyValidationError struct {
	Violations []string
}

func (e *PolicyValidationError) Error() string {
	return "secret does not satisfy policy: " + strings.Join(e.Violations, ", ")
}

// RateLimitError carries the machine-usable retry delay of a lockout
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return models.ErrRateLimitExceeded.Error()
}

func (e *RateLimitError) Unwrap() error {
	return models.ErrRateLimitExceeded
}

// LoginResult is returned on successful authentication
type LoginResult struct {
	Token           string
	ExpiresAt       time.Time
	Identifier      string
	Role            models.Role
	PasswordExpired bool
}

// AuthService orchestrates the login surface: rate limiting, credential
// verification, policy expiry, session issuance and audit emission.
type AuthService struct {
	profiles       ProfileStore
	sessions       *SessionService
	limiter        *RateLimitService
	audit          *AuditService
	policy         pkgauth.PasswordPolicy
	passwordMaxAge int
	logger         *slog.Logger
	now            func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(profiles ProfileStore, sessions *SessionService, limiter *RateLimitService, audit *AuditService, policy pkgauth.PasswordPolicy, passwordMaxAgeDays int, logger *slog.Logger) *AuthService {
	return &AuthService{
		profiles:       profiles,
		sessions:       sessions,
		limiter:        limiter,
		audit:          audit,
		policy:         policy,
		passwordMaxAge: passwordMaxAgeDays,
		logger:         logger,
		now:            time.Now,
	}
}

// Login authenticates a profile and mints a session. Every failure mode that
// could disclose which factor failed (unknown name, disabled account, wrong
// secret) collapses to ErrUnauthorized so identifiers cannot be enumerated.
func (s *AuthService) Login(name, secret, clientIP string) (*LoginResult, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || secret == "" {
		return nil, models.ErrUnauthorized
	}

	key := LimiterKey("login", clientIP, name)
	if blocked, retryAfter := s.limiter.Check(key); blocked {
		s.audit.Record(models.AuditEventLoginBlocked, map[string]any{
			"identifier":     name,
			"ip":             clientIP,
			"retry_after_ms": retryAfter.Milliseconds(),
		})
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	profile, err := s.profiles.GetByName(name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.rejectLogin(key, name, clientIP, "unknown_identifier")
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if profile.Disabled {
		return nil, s.rejectLogin(key, name, clientIP, "account_disabled")
	}

	if !pkgauth.VerifySecret(secret, profile.Salt, profile.PasswordHash) {
		return nil, s.rejectLogin(key, name, clientIP, "invalid_credentials")
	}

	s.limiter.Reset(key)

	// Expired secrets flag the login rather than blocking it; the client is
	// expected to force a change on its next screen
	expired := pkgauth.SecretExpired(profile.PasswordChangedAt, s.now(), s.passwordMaxAge)
	if expired {
		s.audit.Record(models.AuditEventPasswordExpired, map[string]any{
			"identifier": name,
		})
	}

	var token string
	if profile.IsAdmin {
		token, err = s.sessions.CreateAdmin(profile.Name)
	} else {
		token, err = s.sessions.Create(profile.Name, profile.Role)
	}
	if err != nil {
		s.logger.Error("failed to create session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Last-login bookkeeping is best effort and never blocks the login
	loginAt := s.now()
	profile.LastLoginAt = &loginAt
	if err := s.profiles.Update(profile); err != nil {
		s.logger.Warn("failed to record last login",
			slog.String("identifier", pkglogger.SanitizedIdentifier(name)),
			slog.Any("error", err))
	}

	session, ok := s.sessions.Validate(token)
	if !ok {
		return nil, models.ErrInternalServer
	}

	s.audit.Record(models.AuditEventLoginSuccess, map[string]any{
		"identifier": name,
		"ip":         clientIP,
		"role":       string(session.Role),
	})

	return &LoginResult{
		Token:           token,
		ExpiresAt:       session.ExpiresAt,
		Identifier:      profile.Name,
		Role:            session.Role,
		PasswordExpired: expired,
	}, nil
}

// ChangePassword verifies the current secret and replaces it with a
// policy-compliant one, minting a fresh salt. All policy violations are
// reported at once.
func (s *AuthService) ChangePassword(name, current, next string) error {
	profile, err := s.profiles.GetByName(name)
	if err != nil {
		return models.ErrUnauthorized
	}

	if !pkgauth.VerifySecret(current, profile.Salt, profile.PasswordHash) {
		return models.ErrUnauthorized
	}

	if violations := s.policy.Validate(next); len(violations) > 0 {
		return &PolicyValidationError{Violations: violations}
	}

	salt, err := pkgauth.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	profile.Salt = salt
	profile.PasswordHash = pkgauth.HashSecret(next, salt)
	profile.PasswordChangedAt = s.now()

	if err := s.profiles.Update(profile); err != nil {
		return fmt.Errorf("failed to store new secret: %w", err)
	}

	s.audit.Record(models.AuditEventPinChanged, map[string]any{
		"identifier": profile.Name,
	})
	return nil
}

func (s *AuthService) rejectLogin(key, name, clientIP, reason string) error {
	s.limiter.RecordFailure(key)
	s.logger.Info("login failed",
		slog.String("identifier", pkglogger.SanitizedIdentifier(name)),
		slog.String("reason", reason))
	s.audit.Record(models.AuditEventLoginFailed, map[string]any{
		"identifier": name,
		"ip":         clientIP,
		"reason":     reason,
	})
	return models.ErrUnauthorized
}
