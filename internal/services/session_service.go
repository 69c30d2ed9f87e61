package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/storage"
	pkgauth "github.com/mwestergaard/hearth/pkg/auth"
	pkglogger "github.com/mwestergaard/hearth/pkg/logger"
)

// AdminChecker reports whether an identifier belongs to an admin-flagged
// account. Injected so the session layer carries no storage dependency.
type AdminChecker interface {
	IsAdmin(identifier string) bool
}

// SessionConfig holds TTLs for the two session tables
type SessionConfig struct {
	UserTTL  time.Duration
	AdminTTL time.Duration
}

// DefaultSessionConfig returns the default session TTLs
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		UserTTL:  24 * time.Hour,
		AdminTTL: 8 * time.Hour,
	}
}

// RefreshResult is returned by Refresh: the replacement token and its expiry
type RefreshResult struct {
	Token     string
	ExpiresAt time.Time
}

// SessionService owns the in-memory session tables and their encrypted
// on-disk snapshot. Every mutating operation persists the full snapshot so a
// process restart does not log every user out. A coarse mutex serializes all
// table mutations; the operation rate is low enough that finer locking would
// buy nothing.
type SessionService struct {
	mu           sync.Mutex
	users        map[string]*models.Session
	admins       map[string]*models.Session
	store        *storage.SessionStore
	adminChecker AdminChecker
	config       SessionConfig
	logger       *slog.Logger
	now          func() time.Time
}

// NewSessionService loads the persisted snapshot and constructs the manager.
// Entries already expired at load time are discarded, never resurrected.
// An undecryptable store is returned as an error; main treats it as fatal.
func NewSessionService(store *storage.SessionStore, adminChecker AdminChecker, config SessionConfig, logger *slog.Logger) (*SessionService, error) {
	snapshot, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session store: %w", err)
	}

	s := &SessionService{
		users:        snapshot.Users,
		admins:       snapshot.Admins,
		store:        store,
		adminChecker: adminChecker,
		config:       config,
		logger:       logger,
		now:          time.Now,
	}

	now := s.now()
	dropped := 0
	for token, session := range s.users {
		if session.Expired(now) {
			delete(s.users, token)
			dropped++
		}
	}
	for token, session := range s.admins {
		if session.Expired(now) {
			delete(s.admins, token)
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Info("discarded expired sessions at load", slog.Int("count", dropped))
		s.persistLocked()
	}

	return s, nil
}

// Create mints a session for a regular profile and persists the table
func (s *SessionService) Create(identifier string, role models.Role) (string, error) {
	return s.create(identifier, role, false)
}

// CreateAdmin mints a session in the separate admin table, so admin and
// regular sessions never collide even for a reused identifier
func (s *SessionService) CreateAdmin(identifier string) (string, error) {
	return s.create(identifier, models.RoleAdmin, true)
}

func (s *SessionService) create(identifier string, role models.Role, admin bool) (string, error) {
	token, err := pkgauth.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ttl := s.config.UserTTL
	table := s.users
	if admin {
		ttl = s.config.AdminTTL
		table = s.admins
	}

	table[token] = &models.Session{
		Identifier: identifier,
		Role:       role,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.persistLocked()
	return token, nil
}

// Validate resolves a token to its session. An expired entry is deleted and
// persisted on discovery (lazy expiry). A regular session whose identifier
// the admin checker confirms is surfaced with role admin, so both session
// kinds present the same shape to callers.
func (s *SessionService) Validate(token string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if session, ok := s.users[token]; ok {
		if session.Expired(now) {
			delete(s.users, token)
			s.persistLocked()
			return nil, false
		}
		resolved := *session
		if s.adminChecker != nil && s.adminChecker.IsAdmin(session.Identifier) {
			resolved.Role = models.RoleAdmin
		}
		return &resolved, true
	}

	if session, ok := s.admins[token]; ok {
		if session.Expired(now) {
			delete(s.admins, token)
			s.persistLocked()
			return nil, false
		}
		resolved := *session
		return &resolved, true
	}

	return nil, false
}

// Refresh replaces a live session with a new token bound to the same
// identifier and role, with a fresh TTL window. The old token is deleted in
// the same critical section so it can never be reused post-refresh. Unknown
// or expired tokens return (nil, false) without side effects.
func (s *SessionService) Refresh(token string) (*RefreshResult, bool) {
	newToken, err := pkgauth.GenerateToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	table := s.users
	ttl := s.config.UserTTL
	session, ok := s.users[token]
	if !ok {
		session, ok = s.admins[token]
		table = s.admins
		ttl = s.config.AdminTTL
	}
	if !ok || session.Expired(now) {
		return nil, false
	}

	delete(table, token)
	expiresAt := now.Add(ttl)
	table[newToken] = &models.Session{
		Identifier: session.Identifier,
		Role:       session.Role,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	s.persistLocked()

	return &RefreshResult{Token: newToken, ExpiresAt: expiresAt}, true
}

// Destroy removes the token from whichever table holds it. Idempotent;
// reports whether anything was removed.
func (s *SessionService) Destroy(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token]; ok {
		delete(s.users, token)
		s.persistLocked()
		s.logger.Debug("session destroyed", logToken(token))
		return true
	}
	if _, ok := s.admins[token]; ok {
		delete(s.admins, token)
		s.persistLocked()
		s.logger.Debug("admin session destroyed", logToken(token))
		return true
	}
	return false
}

// DestroyAllFor removes every session owned by the identifier, in both
// tables. Used when an account is deleted so its sessions cascade away.
func (s *SessionService) DestroyAllFor(identifier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.users {
		if session.Identifier == identifier {
			delete(s.users, token)
			removed++
		}
	}
	for token, session := range s.admins {
		if session.Identifier == identifier {
			delete(s.admins, token)
			removed++
		}
	}
	if removed > 0 {
		s.persistLocked()
	}
	return removed
}

// Sweep purges expired entries from both tables, persisting once if anything
// changed. Invoked on a fixed interval so abandoned sessions do not
// accumulate even absent new Validate calls.
func (s *SessionService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, session := range s.users {
		if session.Expired(now) {
			delete(s.users, token)
			removed++
		}
	}
	for token, session := range s.admins {
		if session.Expired(now) {
			delete(s.admins, token)
			removed++
		}
	}
	if removed > 0 {
		s.persistLocked()
	}
	return removed
}

// persistLocked writes the snapshot; the caller holds s.mu. A failed write
// is logged and absorbed: the in-memory session stays valid and the next
// successful write catches the durable state up.
func (s *SessionService) persistLocked() {
	snapshot := &storage.SessionSnapshot{Users: s.users, Admins: s.admins}
	if err := s.store.Save(snapshot); err != nil {
		s.logger.Error("failed to persist sessions", slog.Any("error", err))
	}
}

// logToken is a helper for operational logs; tokens never appear in full
func logToken(token string) slog.Attr {
	return slog.String("token", pkglogger.TokenPrefix(token))
}
