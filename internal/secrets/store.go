package secrets

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hackpilot/hackpilot/internal/database"
)

// Secret kinds known to the orchestrator. One row per kind.
const (
	KindOpenAIKey = "openai_api_key"
)

// Store persists encrypted secrets in the database, one value per kind.
// Exists and ValidateFormat never touch the plaintext of a stored value.
type Store struct {
	db  *database.DB
	mgr *Manager
}

func NewStore(db *database.DB, mgr *Manager) *Store {
	return &Store{db: db, mgr: mgr}
}

// Set encrypts and upserts the value for a kind.
func (s *Store) Set(kind, value string) error {
	if kind == "" {
		return fmt.Errorf("secret kind is required")
	}
	if value == "" {
		return fmt.Errorf("secret value is required")
	}

	encrypted, err := s.mgr.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO secrets (id, kind, encrypted_value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET encrypted_value = excluded.encrypted_value, updated_at = excluded.updated_at`,
		uuid.New().String(), kind, encrypted, now, now,
	)
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// Get decrypts and returns the value for a kind.
func (s *Store) Get(kind string) (string, error) {
	var encrypted string
	err := s.db.QueryRow("SELECT encrypted_value FROM secrets WHERE kind = ?", kind).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("secret not found: %s", kind)
	}
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	value, err := s.mgr.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", kind, err)
	}
	return value, nil
}

// Exists reports whether a value is stored for the kind. The plaintext is
// never retrieved.
func (s *Store) Exists(kind string) bool {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM secrets WHERE kind = ?", kind).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// Delete removes the stored value for a kind.
func (s *Store) Delete(kind string) error {
	res, err := s.db.Exec("DELETE FROM secrets WHERE kind = ?", kind)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("secret not found: %s", kind)
	}
	return nil
}

// ValidateFormat checks a candidate value against the shape expected for the
// kind. Pure function; never consults storage.
func ValidateFormat(kind, value string) error {
	switch kind {
	case KindOpenAIKey:
		if !strings.HasPrefix(value, "sk-") {
			return fmt.Errorf("API key should start with sk-")
		}
		if len(value) < 20 {
			return fmt.Errorf("API key looks too short")
		}
		return nil
	default:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("value is empty")
		}
		return nil
	}
}
