package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/models"
)

// LogAudit records an orchestrator action (tool execution, secret mutation,
// thread lifecycle) in the audit trail. Failures are logged but never block
// the action itself.
func (db *DB) LogAudit(action, category, target, details string) {
	_, err := db.Exec(
		"INSERT INTO audit_log (id, action, category, target, details, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.New().String(), action, category, target, details, time.Now().UTC(),
	)
	if err != nil {
		logger.Error("Failed to write audit log: %v", err)
		return
	}
	if db.OnAudit != nil {
		db.OnAudit(action, category)
	}
}

// RecentAuditEntries returns up to limit entries recorded since the cutoff,
// newest first.
func (db *DB) RecentAuditEntries(since time.Time, limit int) ([]models.AuditLog, error) {
	rows, err := db.Query(
		"SELECT id, action, category, target, details, created_at FROM audit_log WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?",
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.Action, &e.Category, &e.Target, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneAuditLog deletes audit entries older than the retention window.
func (db *DB) PruneAuditLog(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
