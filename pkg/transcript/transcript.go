// Package transcript keeps an sqlite audit log of the statements executed by
// each terminal session. It is never replayed into an interpreter.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antibyte/catterm/pkg/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUnknownSession is returned when recording for a session that was never
// registered.
var ErrUnknownSession = errors.New("transcript: unknown session")

// Entry is one executed statement.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	Output    string    `json:"output,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Failed reports whether the statement produced an error.
func (e Entry) Failed() bool {
	return e.ErrorKind != ""
}

// Store wraps the sqlite connection.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and verifies the connection.
// Paths starting with ":memory:" or "file::memory:" use a single connection
// so every query sees the same in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file::memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{conn: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateTables ensures the schema exists.
func (s *Store) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			remote_addr TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS statements (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			line TEXT NOT NULL,
			output TEXT,
			error_kind TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statements_session_seq
			ON statements(session_id, seq)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// RegisterSession records a new session. Registering an existing id is a no-op.
func (s *Store) RegisterSession(ctx context.Context, id, remoteAddr string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at, remote_addr) VALUES (?, ?, ?)`,
		id, time.Now().UnixMilli(), remoteAddr)
	if err != nil {
		return fmt.Errorf("failed to register session %s: %w", id, err)
	}
	logger.Debug(logger.AreaDatabase, "registered session %s (%s)", id, remoteAddr)
	return nil
}

// Record stores an entry. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, e.SessionID).Scan(&exists)
	if err != nil {
		return e, fmt.Errorf("failed to look up session %s: %w", e.SessionID, err)
	}
	if exists == 0 {
		return e, ErrUnknownSession
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO statements (id, session_id, seq, line, output, error_kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Seq, e.Line, e.Output, e.ErrorKind, e.CreatedAt.UnixMilli())
	if err != nil {
		return e, fmt.Errorf("failed to record statement: %w", err)
	}
	return e, nil
}

// History returns up to limit most recent entries for a session, oldest
// first. A limit of zero or less returns everything.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	query := `SELECT id, session_id, seq, line, output, error_kind, created_at
		FROM statements WHERE session_id = ? ORDER BY seq DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			output    sql.NullString
			errorKind sql.NullString
			created   int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Line, &output, &errorKind, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Output = output.String
		e.ErrorKind = errorKind.String
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// DeleteSession removes a session and all its statements.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM statements WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete statements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logger.DatabaseInfo("deleted transcript for session %s", id)
	return nil
}

// SessionCount returns the number of registered sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// SessionInfo describes a registered session.
type SessionInfo struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time
	Statements int
}

// Sessions lists every registered session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT s.id, s.remote_addr, s.created_at, COUNT(st.id)
		 FROM sessions s LEFT JOIN statements st ON st.session_id = s.id
		 GROUP BY s.id ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			remote  sql.NullString
			created int64
		)
		if err := rows.Scan(&info.ID, &remote, &created, &info.Statements); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.RemoteAddr = remote.String
		info.CreatedAt = time.UnixMilli(created)
		out = append(out, info)
	}
	return out, rows.Err()
}
