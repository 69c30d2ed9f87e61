package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwestergaard/hearth/internal/models"
)

const (
	auditFileName      = "audit.log"
	auditArchivePrefix = "audit-"
	auditTimeFormat    = "20060102-150405"
)

// AuditConfig holds rotation settings for the audit log
type AuditConfig struct {
	MaxSizeBytes int64
	Retention    int
}

// DefaultAuditConfig returns rotation defaults: 1 MiB live file, 5 archives
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		MaxSizeBytes: 1 << 20,
		Retention:    5,
	}
}

// AuditService appends immutable JSON-line entries to a single growing log,
// rotating it to a timestamped archive once it crosses the size threshold.
// Write failures are reported to the operational logger, never to callers;
// auditing must not block the request path.
type AuditService struct {
	mu     sync.Mutex
	dir    string
	config AuditConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditService creates an audit log rooted at dir
func NewAuditService(dir string, config AuditConfig, logger *slog.Logger) *AuditService {
	return &AuditService{
		dir:    dir,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one audit entry with a generated timestamp. Never fails to
// the caller; disk problems are logged and absorbed.
func (s *AuditService) Record(event string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.AuditEntry{
		ID:        uuid.New(),
		Timestamp: s.now().UTC(),
		Event:     event,
		Details:   details,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("failed to serialize audit entry",
			slog.String("event", event), slog.Any("error", err))
		return
	}

	if err := s.rotateIfNeeded(); err != nil {
		s.logger.Error("audit rotation failed", slog.Any("error", err))
		// Keep appending to the oversized file rather than dropping entries
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.logger.Error("failed to create audit dir", slog.Any("error", err))
		return
	}

	f, err := os.OpenFile(s.livePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		s.logger.Error("failed to open audit log", slog.Any("error", err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Error("failed to append audit entry",
			slog.String("event", event), slog.Any("error", err))
	}
}

// Read returns entries from the live log newest first, with offset and limit
// applied over that reversed order. A missing or unreadable log degrades to
// an empty result; this is a diagnostic path, not a security gate.
func (s *AuditService) Read(limit, offset int) (total int, entries []models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.livePath())
	if err != nil {
		return 0, []models.AuditEntry{}
	}
	defer f.Close()

	var all []models.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var entry models.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Skip unparseable lines rather than failing the whole read
			continue
		}
		all = append(all, entry)
	}

	// Newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	total = len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return total, []models.AuditEntry{}
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return total, all[offset:end]
}

func (s *AuditService) livePath() string {
	return filepath.Join(s.dir, auditFileName)
}

// rotateIfNeeded archives the live file once it crosses the size threshold
// and prunes archives beyond the retention count, oldest first
func (s *AuditService) rotateIfNeeded() error {
	info, err := os.Stat(s.livePath())
	if err != nil {
		return nil // No live file yet, nothing to rotate
	}
	if info.Size() < s.config.MaxSizeBytes {
		return nil
	}

	archive := filepath.Join(s.dir,
		fmt.Sprintf("%s%s.log", auditArchivePrefix, s.now().UTC().Format(auditTimeFormat)))
	if err := os.Rename(s.livePath(), archive); err != nil {
		return fmt.Errorf("failed to archive audit log: %w", err)
	}

	return s.pruneArchives()
}

func (s *AuditService) pruneArchives() error {
	pattern := filepath.Join(s.dir, auditArchivePrefix+"*.log")
	archives, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(archives) <= s.config.Retention {
		return nil
	}

	// Timestamped names sort chronologically
	sort.Strings(archives)
	for _, old := range archives[:len(archives)-s.config.Retention] {
		if err := os.Remove(old); err != nil {
			s.logger.Warn("failed to prune audit archive",
				slog.String("file", old), slog.Any("error", err))
		}
	}
	return nil
}
