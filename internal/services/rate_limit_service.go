package services

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig holds configuration for one limiter instance
type RateLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultLoginRateLimit returns the limiter config for credential guessing
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
}

// DefaultAdminRateLimit returns the limiter config for authenticated admin
// traffic: higher threshold, shorter window, aimed at automated abuse rather
// than credential guessing
func DefaultAdminRateLimit() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:   60,
		Window:        1 * time.Minute,
		BlockDuration: 5 * time.Minute,
	}
}

// attemptState tracks one limiter key
type attemptState struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// RateLimitService is a per-key fixed-origin sliding window with lockout.
// The window resets lazily on expiry rather than keeping a sliding log,
// trading slight precision for O(1) memory and per-check cost.
type RateLimitService struct {
	mu      sync.Mutex
	entries map[string]*attemptState
	config  RateLimitConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewRateLimitService creates a new limiter instance
func NewRateLimitService(config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		entries: make(map[string]*attemptState),
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// LimiterKey composes a limiter key from request kind, client IP and target
// identifier so different login surfaces and targets are isolated
func LimiterKey(kind, clientIP, identifier string) string {
	return strings.ToLower(kind + ":" + clientIP + ":" + identifier)
}

// Check reports whether the key is currently locked out and, if so, the
// remaining lockout time. An elapsed lockout resets the entry atomically;
// otherwise Check never mutates state.
func (s *RateLimitService) Check(key string) (blocked bool, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, 0
	}

	now := s.now()
	if !entry.blockedUntil.IsZero() {
		if now.Before(entry.blockedUntil) {
			return true, entry.blockedUntil.Sub(now)
		}
		// Lockout elapsed: the key starts over
		delete(s.entries, key)
		return false, 0
	}

	return false, 0
}

// RecordFailure counts one failed attempt against the key, starting or
// resetting the window as needed. Reaching MaxAttempts sets the lockout.
func (s *RateLimitService) RecordFailure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= s.config.Window {
		entry = &attemptState{windowStart: now}
		s.entries[key] = entry
	}

	entry.count++
	if entry.count >= s.config.MaxAttempts {
		entry.blockedUntil = now.Add(s.config.BlockDuration)
		s.logger.Warn("rate limit lockout",
			slog.String("key", key),
			slog.Int("attempts", entry.count),
			slog.Duration("block_duration", s.config.BlockDuration))
	}
}

// Reset unconditionally clears the key's state. Called on every successful
// authentication: a success fully resets the counter, never decrements it.
func (s *RateLimitService) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
