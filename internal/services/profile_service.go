package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwestergaard/hearth/internal/models"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
)

// ProfileRepository is the full accounts collaborator used by admin flows
type ProfileRepository interface {
	ProfileStore
	List() []*models.Profile
	Create(p *models.Profile) error
	Delete(name string) error
}

// ProfileView is a sanitized profile representation: no salt, no hash
type ProfileView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        models.Role `json:"role"`
	Disabled    bool       `json:"disabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ProfileService implements the admin-management surface: provisioning,
// role changes, disabling, deletion and PIN resets, each audited with actor
// and target identifiers.
type ProfileService struct {
	profiles ProfileRepository
	sessions *SessionService
	audit    *AuditService
	mailer   Mailer
	logger   *slog.Logger
	now      func() time.Time
}

// NewProfileService creates a new ProfileService. mailer may be nil, in
// which case generated secrets are only returned to the caller for display.
func NewProfileService(profiles ProfileRepository, sessions *SessionService, audit *AuditService, mailer Mailer, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		sessions: sessions,
		audit:    audit,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// Create provisions a profile with a generated policy-compliant secret.
// The secret is returned exactly once; when an email address is given and a
// mailer is configured it is also delivered out of band.
func (s *ProfileService) Create(actor, name, role, email string) (*ProfileView, string, error) {
	parsedRole, ok := models.ParseRole(role)
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown role %q", models.ErrBadRequest, role)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: empty profile name", models.ErrBadRequest)
	}

	secret, err := pkgauth.GenerateRandomPassword(12)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate secret: %w", err)
	}
	salt, err := pkgauth.GenerateSalt()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate salt: %w", err)
	}

	now := s.now()
	profile := &models.Profile{
		ID:                uuid.New().String(),
		Name:              name,
		Salt:              salt,
		PasswordHash:      pkgauth.HashSecret(secret, salt),
		Role:              parsedRole,
		CreatedAt:         now,
		PasswordChangedAt: now,
	}

	if err := s.profiles.Create(profile); err != nil {
		return nil, "", err
	}

	s.audit.Record(models.AuditEventProfileCreated, map[string]any{
		"actor":  actor,
		"target": name,
		"role":   role,
	})

	s.mailSecret(email, name, secret)

	return viewOf(profile), secret, nil
}

// SetRole changes a profile's role. The actor must outrank (or equal) both
// the target's current role and the requested one, so a manager can never
// touch an admin.
func (s *ProfileService) SetRole(actor string, actorRole models.Role, target, role string) error {
	newRole, ok := models.ParseRole(role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", models.ErrBadRequest, role)
	}

	profile, err := s.profiles.GetByName(target)
	if err != nil {
		return err
	}

	if !models.CanManageRole(actorRole, profile.EffectiveRole()) || !models.CanManageRole(actorRole, newRole) {
		return models.ErrForbidden
	}

	oldRole := profile.Role
	profile.Role = newRole
	if err := s.profiles.Update(profile); err != nil {
		return err
	}

	s.audit.Record(models.AuditEventRoleChanged, map[string]any{
		"actor":  actor,
		"target": profile.Name,
		"from":   string(oldRole),
		"to":     string(newRole),
	})
	return nil
}

// SetDisabled toggles a profile's disabled flag. Self-disabling is refused.
func (s *ProfileService) SetDisabled(actor string, actorRole models.Role, target string, disabled bool) error {
	profile, err := s.profiles.GetByName(target)
	if err != nil {
		return err
	}

	if strings.EqualFold(actor, profile.Name) {
		return models.ErrForbidden
	}
	if !models.CanManageRole(actorRole, profile.EffectiveRole()) {
		return models.ErrForbidden
	}

	profile.Disabled = disabled
	if err := s.profiles.Update(profile); err != nil {
		return err
	}

	event := models.AuditEventProfileEnabled
	if disabled {
		event = models.AuditEventProfileDisabled
	}
	s.audit.Record(event, map[string]any{
		"actor":  actor,
		"target": profile.Name,
	})
	return nil
}

// Delete removes a profile and cascades away every session it owns
func (s *ProfileService) Delete(actor string, actorRole models.Role, target string) error {
	profile, err := s.profiles.GetByName(target)
	if err != nil {
		return err
	}

	if strings.EqualFold(actor, profile.Name) {
		return models.ErrForbidden
	}
	if !models.CanManageRole(actorRole, profile.EffectiveRole()) {
		return models.ErrForbidden
	}

	if err := s.profiles.Delete(profile.Name); err != nil {
		return err
	}
	removed := s.sessions.DestroyAllFor(profile.Name)

	s.audit.Record(models.AuditEventProfileDeleted, map[string]any{
		"actor":            actor,
		"target":           profile.Name,
		"sessions_removed": removed,
	})
	return nil
}

// ResetPin replaces a profile's secret with a fresh generated one
func (s *ProfileService) ResetPin(actor string, actorRole models.Role, target, email string) (string, error) {
	profile, err := s.profiles.GetByName(target)
	if err != nil {
		return "", err
	}

	if !models.CanManageRole(actorRole, profile.EffectiveRole()) {
		return "", models.ErrForbidden
	}

	secret, err := pkgauth.GenerateRandomPassword(12)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	salt, err := pkgauth.GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	profile.Salt = salt
	profile.PasswordHash = pkgauth.HashSecret(secret, salt)
	profile.PasswordChangedAt = s.now()
	if err := s.profiles.Update(profile); err != nil {
		return "", err
	}

	s.audit.Record(models.AuditEventPinReset, map[string]any{
		"actor":  actor,
		"target": profile.Name,
	})

	s.mailSecret(email, profile.Name, secret)
	return secret, nil
}

// List returns sanitized views of every profile
func (s *ProfileService) List() []*ProfileView {
	profiles := s.profiles.List()
	views := make([]*ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, viewOf(p))
	}
	return views
}

// mailSecret is best effort: a delivery failure is logged, never propagated
func (s *ProfileService) mailSecret(email, name, secret string) {
	if s.mailer == nil || email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.mailer.SendInitialSecret(ctx, email, name, secret); err != nil {
		s.logger.Error("failed to deliver credential email",
			slog.String("profile", name), slog.Any("error", err))
	}
}

func viewOf(p *models.Profile) *ProfileView {
	return &ProfileView{
		ID:          p.ID,
		Name:        p.Name,
		Role:        p.EffectiveRole(),
		Disabled:    p.Disabled,
		CreatedAt:   p.CreatedAt,
		LastLoginAt: p.LastLoginAt,
	}
}
