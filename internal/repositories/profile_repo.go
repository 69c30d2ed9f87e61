package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mwestergaard/hearth/internal/models"
)

const profilesFileName = "profiles.json"

// defaultFlushDelay coalesces bursts of writes into a single disk flush
const defaultFlushDelay = 2 * time.Second

// ProfileRepository is the file-backed credential store. Reads serve the
// in-memory cache; writes mark the cache dirty and schedule a coalesced
// flush, with Flush forcing a synchronous write at shutdown.
type ProfileRepository struct {
	mu         sync.Mutex
	profiles   map[string]*models.Profile // keyed by lowercased name
	dir        string
	flushDelay time.Duration
	dirty      bool
	flushTimer *time.Timer
	logger     *slog.Logger
}

// NewProfileRepository loads (or initializes) the profile store rooted at dir
func NewProfileRepository(dir string, logger *slog.Logger) (*ProfileRepository, error) {
	r := &ProfileRepository{
		profiles:   make(map[string]*models.Profile),
		dir:        dir,
		flushDelay: defaultFlushDelay,
		logger:     logger,
	}

	path := filepath.Join(dir, profilesFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile store: %w", err)
	}
	var list []*models.Profile
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse profile store: %w", err)
	}
	for _, p := range list {
		r.profiles[strings.ToLower(p.Name)] = p
	}
	return r, nil
}

// GetByName returns the profile for a case-insensitive identifier
func (r *ProfileRepository) GetByName(name string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[strings.ToLower(name)]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

// List returns all profiles
func (r *ProfileRepository) List() []*models.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		copied := *p
		out = append(out, &copied)
	}
	return out
}

// Count returns the number of stored profiles
func (r *ProfileRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles)
}

// Create stores a new profile; the name must be unique case-insensitively
func (r *ProfileRepository) Create(p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(p.Name)
	if _, exists := r.profiles[key]; exists {
		return models.ErrConflict
	}
	copied := *p
	r.profiles[key] = &copied
	r.markDirtyLocked()
	return nil
}

// Update replaces an existing profile
func (r *ProfileRepository) Update(p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(p.Name)
	if _, exists := r.profiles[key]; !exists {
		return models.ErrNotFound
	}
	copied := *p
	r.profiles[key] = &copied
	r.markDirtyLocked()
	return nil
}

// Delete removes a profile by name
func (r *ProfileRepository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.profiles[key]; !exists {
		return models.ErrNotFound
	}
	delete(r.profiles, key)
	r.markDirtyLocked()
	return nil
}

// IsAdmin reports whether the identifier belongs to an admin-flagged
// profile. Satisfies the session manager's AdminChecker.
func (r *ProfileRepository) IsAdmin(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[strings.ToLower(identifier)]
	return ok && p.IsAdmin
}

// Flush forces a synchronous write of any pending changes
func (r *ProfileRepository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

// markDirtyLocked schedules a coalesced flush; the caller holds r.mu
func (r *ProfileRepository) markDirtyLocked() {
	r.dirty = true
	if r.flushTimer != nil {
		return
	}
	r.flushTimer = time.AfterFunc(r.flushDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.flushTimer = nil
		if err := r.flushLocked(); err != nil {
			r.logger.Error("failed to flush profile store", slog.Any("error", err))
		}
	})
}

func (r *ProfileRepository) flushLocked() error {
	if !r.dirty {
		return nil
	}

	list := make([]*models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		list = append(list, p)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize profiles: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(r.dir, profilesFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace profile store: %w", err)
	}
	r.dirty = false
	return nil
}
