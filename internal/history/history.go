// Package history persists the outcome of every dispatched notification in a
// local SQLite journal.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/msgport/msgport/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS sends (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sends_message_id ON sends(message_id);
CREATE INDEX IF NOT EXISTS idx_sends_created_at ON sends(created_at);
`

// Entry is one journaled provider send.
type Entry struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is a SQLite-backed send journal. It satisfies the dispatcher's
// Recorder interface; journal failures are logged and never propagate into
// the send path.
type Journal struct {
	db *sql.DB
}

// Open creates (or opens) the journal database at path with WAL mode and a
// busy timeout, creating parent directories and the schema as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal dir: %w", err)
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// single writer avoids "database is locked" under concurrent provider sends
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record journals one provider send outcome. Errors are logged, not returned,
// so a broken journal cannot block notification delivery.
func (j *Journal) Record(messageID, provider, status, detail string, at time.Time) {
	_, err := j.db.Exec(
		`INSERT INTO sends (message_id, provider, status, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		messageID, provider, status, detail, at.Unix(),
	)
	if err != nil {
		logging.Get().Error().Err(err).Str("message_id", messageID).Str("provider", provider).Msg("failed to journal send outcome")
	}
}

// Recent returns up to limit journal entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, message_id, provider, status, detail, created_at FROM sends ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Provider, &e.Status, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ByMessage returns all entries for a single message ID, oldest first.
func (j *Journal) ByMessage(ctx context.Context, messageID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, message_id, provider, status, detail, created_at FROM sends WHERE message_id = ? ORDER BY id ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Provider, &e.Status, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM sends WHERE created_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
