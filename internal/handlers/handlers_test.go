package handlers_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestergaard/hearth/internal/handlers"
	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/repositories"
	"github.com/mwestergaard/hearth/internal/routes"
	"github.com/mwestergaard/hearth/internal/services"
	"github.com/mwestergaard/hearth/internal/storage"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// testServer wires the full stack over temp dirs and routes requests the way
// production does, URL parameters and permission guards included
type testServer struct {
	router   *chi.Mux
	profiles *repositories.ProfileRepository
	sessions *services.SessionService
	audit    *services.AuditService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	profiles, err := repositories.NewProfileRepository(t.TempDir(), logger)
	require.NoError(t, err)

	store := storage.NewSessionStore(t.TempDir(), "a-passphrase-long-enough", logger)
	sessions, err := services.NewSessionService(store, profiles, services.DefaultSessionConfig(), logger)
	require.NoError(t, err)

	audit := services.NewAuditService(t.TempDir(), services.DefaultAuditConfig(), logger)
	loginLimiter := services.NewRateLimitService(services.DefaultLoginRateLimit(), logger)
	adminLimiter := services.NewRateLimitService(services.DefaultAdminRateLimit(), logger)

	authService := services.NewAuthService(profiles, sessions, loginLimiter, audit,
		pkgauth.DefaultPasswordPolicy(), 90, logger)
	profileService := services.NewProfileService(profiles, sessions, audit, nil, logger)

	ipConfig := &pkghttp.IPConfig{}
	router := chi.NewRouter()
	routes.RegisterRoutes(router,
		handlers.NewAuthHandler(authService, sessions, audit, ipConfig),
		handlers.NewProfileHandler(profileService),
		handlers.NewAuditHandler(audit),
		sessions, adminLimiter, ipConfig)

	return &testServer{router: router, profiles: profiles, sessions: sessions, audit: audit}
}

func (s *testServer) seed(t *testing.T, name, secret string, role models.Role, isAdmin bool) {
	t.Helper()
	salt, err := pkgauth.GenerateSalt()
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, s.profiles.Create(&models.Profile{
		ID:                "id-" + name,
		Name:              name,
		Salt:              salt,
		PasswordHash:      pkgauth.HashSecret(secret, salt),
		Role:              role,
		IsAdmin:           isAdmin,
		CreatedAt:         now,
		PasswordChangedAt: now,
	}))
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, name, secret string) handlers.LoginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Name: name, Secret: secret})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)

	resp := s.login(t, "alice", "Sup3rSecret")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Name)
	assert.Equal(t, "user", resp.Role)
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)

	rec := s.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Name: "alice", Secret: "wr0ng"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Authentication failed", resp.Message)
}

func TestLoginEndpointMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpointLockout(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Name: "alice", Secret: "wr0ng"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Name: "alice", Secret: "Sup3rSecret"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Greater(t, resp.RetryAfter, int64(0))
}

func TestRefreshEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)
	token := s.login(t, "alice", "Sup3rSecret").Token

	rec := s.do(t, http.MethodPost, "/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.RefreshResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEqual(t, token, resp.Token)

	// The replaced token no longer authenticates
	rec = s.do(t, http.MethodPost, "/auth/refresh", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/logout", resp.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/auth/refresh", "/auth/logout"} {
		rec := s.do(t, http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := s.do(t, http.MethodGet, "/profiles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)
	token := s.login(t, "alice", "Sup3rSecret").Token

	rec := s.do(t, http.MethodPost, "/auth/password", token,
		handlers.ChangePasswordRequest{Current: "Sup3rSecret", Next: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "validation_failed", errResp.Error)
	assert.NotEmpty(t, errResp.Violations)

	rec = s.do(t, http.MethodPost, "/auth/password", token,
		handlers.ChangePasswordRequest{Current: "Sup3rSecret", Next: "N3wSecret9"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	s.login(t, "alice", "N3wSecret9")
}

func TestChangePasswordForbiddenForReadonly(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "viewer", "V1ewSecret", models.RoleReadonly, false)
	token := s.login(t, "viewer", "V1ewSecret").Token

	rec := s.do(t, http.MethodPost, "/auth/password", token,
		handlers.ChangePasswordRequest{Current: "V1ewSecret", Next: "N3wSecret9"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileManagementEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "root", "R00tSecret!", models.RoleAdmin, true)
	admin := s.login(t, "root", "R00tSecret!").Token

	// Provision
	rec := s.do(t, http.MethodPost, "/profiles", admin,
		handlers.CreateProfileRequest{Name: "alice", Role: "user"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created handlers.CreateProfileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "alice", created.Profile.Name)
	assert.NotEmpty(t, created.Secret)

	// The generated secret logs in
	s.login(t, "alice", created.Secret)

	// Role change
	rec = s.do(t, http.MethodPut, "/profiles/alice/role", admin, handlers.SetRoleRequest{Role: "manager"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Disable, then the profile cannot log in
	disabled := true
	rec = s.do(t, http.MethodPut, "/profiles/alice/status", admin, handlers.SetStatusRequest{Disabled: &disabled})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodPost, "/auth/login", "", handlers.LoginRequest{Name: "alice", Secret: created.Secret})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Reset-pin regenerates the secret
	rec = s.do(t, http.MethodPost, "/profiles/alice/reset-pin", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset handlers.ResetPinResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reset))
	assert.NotEqual(t, created.Secret, reset.Secret)

	// Delete
	rec = s.do(t, http.MethodDelete, "/profiles/alice", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/profiles/alice", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileEndpointsPermissionMatrix(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "mgr", "Manag3rSecret", models.RoleManager, false)
	s.seed(t, "alice", "Sup3rSecret", models.RoleUser, false)
	manager := s.login(t, "mgr", "Manag3rSecret").Token
	user := s.login(t, "alice", "Sup3rSecret").Token

	// Managers may list but not manage
	rec := s.do(t, http.MethodGet, "/profiles", manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/profiles", manager,
		handlers.CreateProfileRequest{Name: "bob", Role: "user"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Regular users may do neither
	rec = s.do(t, http.MethodGet, "/profiles", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/audit", user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "root", "R00tSecret!", models.RoleAdmin, true)
	admin := s.login(t, "root", "R00tSecret!").Token

	rec := s.do(t, http.MethodGet, "/audit?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page handlers.AuditPageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.NotEmpty(t, page.Entries)
	// The login that minted this token is the newest entry
	assert.Equal(t, models.AuditEventLoginSuccess, page.Entries[0].Event)
}
