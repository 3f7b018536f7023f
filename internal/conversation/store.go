package conversation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/models"
)

// Store persists threads and their ordered messages. Message order within a
// thread is the seq column, assigned at append time.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateThread(title string) (*models.Thread, error) {
	now := time.Now().UTC()
	t := &models.Thread{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		"INSERT INTO threads (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		t.ID, t.Title, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

func (s *Store) GetThread(id string) (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRow(
		"SELECT id, title, created_at, updated_at FROM threads WHERE id = ?", id,
	).Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read thread: %w", err)
	}
	return &t, nil
}

// ListThreads returns all threads, most recently updated first.
func (s *Store) ListThreads() ([]models.Thread, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// MostRecentThread returns the most recently updated thread, or nil when the
// table is empty.
func (s *Store) MostRecentThread() (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRow(
		"SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC LIMIT 1",
	).Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteThread(id string) error {
	res, err := s.db.Exec("DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("thread not found: %s", id)
	}
	return nil
}

func (s *Store) UpdateThreadTitle(id, title string) error {
	_, err := s.db.Exec("UPDATE threads SET title = ?, updated_at = ? WHERE id = ?", title, time.Now().UTC(), id)
	return err
}

func (s *Store) touchThread(id string) error {
	_, err := s.db.Exec("UPDATE threads SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	return err
}

// AppendMessage persists a message at the next sequence position in its
// thread and bumps the thread's updated_at.
func (s *Store) AppendMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, thread_id, role, content, tool_name, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?), ?)`,
		m.ID, m.ThreadID, m.Role, m.Content, m.ToolName, m.ThreadID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return s.touchThread(m.ThreadID)
}

func (s *Store) UpdateMessageContent(id, content string) error {
	_, err := s.db.Exec("UPDATE messages SET content = ? WHERE id = ?", content, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// ListMessages returns a thread's messages in append order.
func (s *Store) ListMessages(threadID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		"SELECT id, thread_id, role, content, tool_name, created_at FROM messages WHERE thread_id = ? ORDER BY seq",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RecentMessages returns the last n messages of a thread in append order.
func (s *Store) RecentMessages(threadID string, n int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, thread_id, role, content, tool_name, created_at FROM (
		   SELECT id, thread_id, role, content, tool_name, seq, created_at
		   FROM messages WHERE thread_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq`,
		threadID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountUserMessages reports how many user-role messages a thread holds.
func (s *Store) CountUserMessages(threadID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE thread_id = ? AND role = ?",
		threadID, models.RoleUser,
	).Scan(&n)
	return n, err
}
