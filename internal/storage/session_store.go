package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/mwestergaard/hearth/internal/models"
)

const (
	encryptedFileName = "sessions.enc"
	legacyFileName    = "sessions.json"

	keySaltLength = 16
	nonceLength   = 12
)

// ErrDecryptFailed marks a snapshot that exists but cannot be decrypted with
// the configured passphrase. Callers must treat this as fatal at startup.
var ErrDecryptFailed = errors.New("session store decryption failed")

// SessionSnapshot is the full persisted state of the session manager:
// both the regular and the admin token tables, keyed by token.
type SessionSnapshot struct {
	Users  map[string]*models.Session `json:"users"`
	Admins map[string]*models.Session `json:"admins"`
}

// NewSessionSnapshot returns an empty snapshot with both tables allocated
func NewSessionSnapshot() *SessionSnapshot {
	return &SessionSnapshot{
		Users:  make(map[string]*models.Session),
		Admins: make(map[string]*models.Session),
	}
}

// envelope is the on-disk shape: ciphertext plus the material needed to
// re-derive the key, opaque without the passphrase
type envelope struct {
	Salt  string `json:"salt"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// SessionStore persists session snapshots encrypted at rest. The key is
// derived from an operator-supplied passphrase; a stolen file is useless
// without it.
type SessionStore struct {
	dir        string
	passphrase []byte
	logger     *slog.Logger
}

// NewSessionStore creates a store rooted at dir
func NewSessionStore(dir, passphrase string, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		dir:        dir,
		passphrase: []byte(passphrase),
		logger:     logger,
	}
}

// Load reads the persisted snapshot. Resolution order: the encrypted file if
// present (a decrypt failure is returned as ErrDecryptFailed), then a legacy
// plaintext file (migrated forward by an immediate encrypted re-save), then
// an empty snapshot when neither exists.
func (s *SessionStore) Load() (*SessionSnapshot, error) {
	encrypted := filepath.Join(s.dir, encryptedFileName)
	if data, err := os.ReadFile(encrypted); err == nil {
		snapshot, err := s.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return snapshot, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read session store: %w", err)
	}

	legacy := filepath.Join(s.dir, legacyFileName)
	if data, err := os.ReadFile(legacy); err == nil {
		snapshot := NewSessionSnapshot()
		if err := json.Unmarshal(data, snapshot); err != nil {
			return nil, fmt.Errorf("failed to parse legacy session store: %w", err)
		}
		s.logger.Info("migrating legacy session store to encrypted format")
		if err := s.Save(snapshot); err != nil {
			return nil, fmt.Errorf("failed to migrate legacy session store: %w", err)
		}
		if err := os.Remove(legacy); err != nil {
			s.logger.Warn("failed to remove legacy session store", slog.Any("error", err))
		}
		return snapshot, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read legacy session store: %w", err)
	}

	return NewSessionSnapshot(), nil
}

// Save serializes and encrypts the snapshot, then writes it atomically
func (s *SessionStore) Save(snapshot *SessionSnapshot) error {
	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}

	salt := make([]byte, keySaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate key salt: %w", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesgcm, err := s.cipher(salt)
	if err != nil {
		return err
	}
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	enc := base64.StdEncoding
	data, err := json.Marshal(envelope{
		Salt:  enc.EncodeToString(salt),
		Nonce: enc.EncodeToString(nonce),
		Data:  enc.EncodeToString(ciphertext),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(s.dir, encryptedFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session store: %w", err)
	}
	return nil
}

func (s *SessionStore) decrypt(data []byte) (*SessionSnapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("malformed key salt: %w", err)
	}
	nonce, err := enc.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("malformed nonce: %w", err)
	}
	ciphertext, err := enc.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("malformed ciphertext: %w", err)
	}

	aesgcm, err := s.cipher(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Wrong passphrase and tampered ciphertext are indistinguishable here
		return nil, err
	}

	snapshot := NewSessionSnapshot()
	if err := json.Unmarshal(plaintext, snapshot); err != nil {
		return nil, fmt.Errorf("malformed snapshot: %w", err)
	}
	if snapshot.Users == nil {
		snapshot.Users = make(map[string]*models.Session)
	}
	if snapshot.Admins == nil {
		snapshot.Admins = make(map[string]*models.Session)
	}
	return snapshot, nil
}

// cipher derives an AES-256 key from the passphrase with argon2id and
// returns the ready AEAD
func (s *SessionStore) cipher(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AEAD: %w", err)
	}
	return aesgcm, nil
}
