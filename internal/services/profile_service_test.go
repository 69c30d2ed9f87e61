package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/storage"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
)

// memProfileRepo extends the in-memory accounts collaborator with the
// admin-flow operations
type memProfileRepo struct {
	memProfileStore
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{memProfileStore{profiles: make(map[string]*models.Profile)}}
}

func (m *memProfileRepo) List() []*models.Profile {
	out := make([]*models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		copied := *p
		out = append(out, &copied)
	}
	return out
}

func (m *memProfileRepo) Create(p *models.Profile) error {
	if _, ok := m.profiles[p.Name]; ok {
		return models.ErrConflict
	}
	copied := *p
	m.profiles[p.Name] = &copied
	return nil
}

func (m *memProfileRepo) Delete(name string) error {
	if _, ok := m.profiles[name]; !ok {
		return models.ErrNotFound
	}
	delete(m.profiles, name)
	return nil
}

type recordingMailer struct {
	recipients []string
}

func (m *recordingMailer) SendInitialSecret(_ context.Context, recipient, _, _ string) error {
	m.recipients = append(m.recipients, recipient)
	return nil
}

func newTestProfileService(t *testing.T) (*ProfileService, *memProfileRepo, *SessionService, *AuditService, *recordingMailer) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store := storage.NewSessionStore(t.TempDir(), "a-passphrase-long-enough", logger)
	sessions, err := NewSessionService(store, nil, DefaultSessionConfig(), logger)
	require.NoError(t, err)

	audit := NewAuditService(t.TempDir(), DefaultAuditConfig(), logger)
	repo := newMemProfileRepo()
	mailer := &recordingMailer{}

	svc := NewProfileService(repo, sessions, audit, mailer, logger)
	return svc, repo, sessions, audit, mailer
}

func TestCreateProfile(t *testing.T) {
	svc, repo, _, audit, mailer := newTestProfileService(t)

	view, secret, err := svc.Create("root", "alice", "user", "alice@example.com")
	require.NoError(t, err)

	// The generated secret satisfies the default policy and verifies against
	// the stored hash
	assert.Empty(t, pkgauth.DefaultPasswordPolicy().Validate(secret))
	stored := repo.profiles["alice"]
	require.NotNil(t, stored)
	assert.True(t, pkgauth.VerifySecret(secret, stored.Salt, stored.PasswordHash))

	assert.Equal(t, "alice", view.Name)
	assert.Equal(t, models.RoleUser, view.Role)
	assert.NotEmpty(t, view.ID)

	assert.Equal(t, []string{"alice@example.com"}, mailer.recipients)

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventProfileCreated, entries[0].Event)
	assert.Equal(t, "root", entries[0].Details["actor"])
}

func TestCreateProfileUnknownRole(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)

	_, _, err := svc.Create("root", "alice", "superuser", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestCreateProfileDuplicate(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)

	_, _, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)
	_, _, err = svc.Create("root", "alice", "user", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSetRole(t *testing.T) {
	svc, repo, _, audit, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetRole("root", models.RoleAdmin, "alice", "manager"))
	assert.Equal(t, models.RoleManager, repo.profiles["alice"].Role)

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventRoleChanged, entries[0].Event)
	assert.Equal(t, "user", entries[0].Details["from"])
	assert.Equal(t, "manager", entries[0].Details["to"])
}

func TestSetRoleManagerCannotTouchAdmin(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "boss", "admin", "")
	require.NoError(t, err)
	_, _, err = svc.Create("root", "alice", "user", "")
	require.NoError(t, err)

	// Neither demoting an admin nor promoting anyone to admin
	assert.ErrorIs(t, svc.SetRole("mgr", models.RoleManager, "boss", "user"), models.ErrForbidden)
	assert.ErrorIs(t, svc.SetRole("mgr", models.RoleManager, "alice", "admin"), models.ErrForbidden)
}

func TestSetDisabled(t *testing.T) {
	svc, repo, _, audit, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetDisabled("root", models.RoleAdmin, "alice", true))
	assert.True(t, repo.profiles["alice"].Disabled)

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventProfileDisabled, entries[0].Event)

	require.NoError(t, svc.SetDisabled("root", models.RoleAdmin, "alice", false))
	assert.False(t, repo.profiles["alice"].Disabled)
}

func TestSetDisabledSelfGuard(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "boss", "admin", "")
	require.NoError(t, err)

	err = svc.SetDisabled("Boss", models.RoleAdmin, "boss", true)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestDeleteCascadesSessions(t *testing.T) {
	svc, repo, sessions, audit, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)

	token, err := sessions.Create("alice", models.RoleUser)
	require.NoError(t, err)

	require.NoError(t, svc.Delete("root", models.RoleAdmin, "alice"))
	assert.NotContains(t, repo.profiles, "alice")

	_, ok := sessions.Validate(token)
	assert.False(t, ok, "deleting the profile must revoke its sessions")

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventProfileDeleted, entries[0].Event)
	assert.EqualValues(t, 1, entries[0].Details["sessions_removed"])
}

func TestResetPin(t *testing.T) {
	svc, repo, _, audit, mailer := newTestProfileService(t)
	_, original, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)

	secret, err := svc.ResetPin("root", models.RoleAdmin, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, original, secret)

	stored := repo.profiles["alice"]
	assert.True(t, pkgauth.VerifySecret(secret, stored.Salt, stored.PasswordHash))
	assert.False(t, pkgauth.VerifySecret(original, stored.Salt, stored.PasswordHash))

	assert.Equal(t, []string{"alice@example.com"}, mailer.recipients)

	_, entries := audit.Read(1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditEventPinReset, entries[0].Event)
}

func TestResetPinOutranked(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "boss", "admin", "")
	require.NoError(t, err)

	_, err = svc.ResetPin("mgr", models.RoleManager, "boss", "")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestListReturnsSanitizedViews(t *testing.T) {
	svc, _, _, _, _ := newTestProfileService(t)
	_, _, err := svc.Create("root", "alice", "user", "")
	require.NoError(t, err)
	_, _, err = svc.Create("root", "bob", "readonly", "")
	require.NoError(t, err)

	views := svc.List()
	assert.Len(t, views, 2)
}
