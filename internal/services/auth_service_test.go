package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/storage"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
)

// memProfileStore is an in-memory accounts collaborator for tests
type memProfileStore struct {
	profiles map[string]*models.Profile
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: make(map[string]*models.Profile)}
}

func (m *memProfileStore) GetByName(name string) (*models.Profile, error) {
	p, ok := m.profiles[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProfileStore) Update(p *models.Profile) error {
	copied := *p
	m.profiles[p.Name] = &copied
	return nil
}

func (m *memProfileStore) add(name, secret string, role models.Role, disabled bool) {
	salt, _ := pkgauth.GenerateSalt()
	m.profiles[name] = &models.Profile{
		Name:              name,
		Salt:              salt,
		PasswordHash:      pkgauth.HashSecret(secret, salt),
		Role:              role,
		Disabled:          disabled,
		CreatedAt:         time.Now(),
		PasswordChangedAt: time.Now(),
	}
}

func newTestAuthService(t *testing.T) (*AuthService, *memProfileStore, *RateLimitService, *AuditService) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store := storage.NewSessionStore(t.TempDir(), "a-passphrase-long-enough", logger)
	sessions, err := NewSessionService(store, nil, DefaultSessionConfig(), logger)
	require.NoError(t, err)

	limiter := NewRateLimitService(DefaultLoginRateLimit(), logger)
	audit := NewAuditService(t.TempDir(), DefaultAuditConfig(), logger)
	profiles := newMemProfileStore()

	svc := NewAuthService(profiles, sessions, limiter, audit, pkgauth.DefaultPasswordPolicy(), 90, logger)
	return svc, profiles, limiter, audit
}

func TestLoginSuccess(t *testing.T) {
	svc, profiles, _, audit := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)

	result, err := svc.Login("Alice", "Sup3rSecret", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, models.RoleUser, result.Role)
	assert.False(t, result.PasswordExpired)

	// Last login was recorded best-effort
	p, err := profiles.GetByName("alice")
	require.NoError(t, err)
	assert.NotNil(t, p.LastLoginAt)

	_, entries := audit.Read(10, 0)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.AuditEventLoginSuccess, entries[0].Event)
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	svc, profiles, _, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)
	profiles.add("mallory", "An0therSecret", models.RoleUser, true)

	// Unknown identifier, wrong secret and disabled account all collapse to
	// the same rejection
	_, err := svc.Login("ghost", "whatever1", "1.2.3.4")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login("alice", "wr0ngSecret", "1.2.3.4")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login("mallory", "An0therSecret", "1.2.3.4")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLoginLockoutScenario(t *testing.T) {
	svc, profiles, _, audit := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)
	profiles.add("bob", "0therSecret", models.RoleUser, false)

	// Three failures leave the limiter unblocked
	for i := 0; i < 3; i++ {
		_, err := svc.Login("alice", "wr0ng", "1.2.3.4")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	// Fourth and fifth trip the lockout
	for i := 0; i < 2; i++ {
		_, err := svc.Login("alice", "wr0ng", "1.2.3.4")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	// Sixth attempt reports the block with a retry delay, even with the
	// correct secret
	_, err := svc.Login("alice", "Sup3rSecret", "1.2.3.4")
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventLoginBlocked, entries[0].Event)

	// A different identifier from the same IP is unaffected
	result, err := svc.Login("bob", "0therSecret", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestLoginSuccessResetsLimiter(t *testing.T) {
	svc, profiles, limiter, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)

	for i := 0; i < 4; i++ {
		_, _ = svc.Login("alice", "wr0ng", "1.2.3.4")
	}
	_, err := svc.Login("alice", "Sup3rSecret", "1.2.3.4")
	require.NoError(t, err)

	// The counter was fully reset, not decremented
	blocked, _ := limiter.Check(LimiterKey("login", "1.2.3.4", "alice"))
	assert.False(t, blocked)
}

func TestLoginFlagsExpiredPassword(t *testing.T) {
	svc, profiles, _, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)
	profiles.profiles["alice"].PasswordChangedAt = time.Now().Add(-120 * 24 * time.Hour)

	// Expired secrets flag the login, they do not block it
	result, err := svc.Login("alice", "Sup3rSecret", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.PasswordExpired)
}

func TestChangePassword(t *testing.T) {
	svc, profiles, _, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)
	before := profiles.profiles["alice"].Salt

	require.NoError(t, svc.ChangePassword("alice", "Sup3rSecret", "N3wSecret9"))

	after, err := profiles.GetByName("alice")
	require.NoError(t, err)
	assert.NotEqual(t, before, after.Salt, "salt must be regenerated on change")
	assert.True(t, pkgauth.VerifySecret("N3wSecret9", after.Salt, after.PasswordHash))
}

func TestChangePasswordReportsAllViolations(t *testing.T) {
	svc, profiles, _, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)

	err := svc.ChangePassword("alice", "Sup3rSecret", "abc")
	var policyErr *PolicyValidationError
	require.ErrorAs(t, err, &policyErr)
	assert.GreaterOrEqual(t, len(policyErr.Violations), 2)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	svc, profiles, _, _ := newTestAuthService(t)
	profiles.add("alice", "Sup3rSecret", models.RoleUser, false)

	err := svc.ChangePassword("alice", "wr0ng", "N3wSecret9")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
