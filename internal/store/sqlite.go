package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielolaszy/poker/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer connection keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		issue_key TEXT NOT NULL UNIQUE,
		author TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		start_at INTEGER NOT NULL,
		end_at INTEGER NOT NULL,
		final_value TEXT,
		final_by TEXT,
		final_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS votes (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		voter TEXT NOT NULL,
		value TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, voter)
	);
	CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id, updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return nil
}

// GetSession returns the session for an issue key.
func (s *SQLiteStore) GetSession(ctx context.Context, issueKey string) (*models.Session, error) {
	var (
		sess                models.Session
		created, start, end int64
		finalValue, finalBy sql.NullString
		finalAt             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, issue_key, author, created_at, start_at, end_at, final_value, final_by, final_at
		FROM sessions WHERE issue_key = ?
	`, issueKey).Scan(&sess.ID, &sess.IssueKey, &sess.Author, &created, &start, &end, &finalValue, &finalBy, &finalAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", issueKey, err)
	}

	sess.Created = time.UnixMilli(created)
	sess.Start = time.UnixMilli(start)
	sess.End = time.UnixMilli(end)
	if finalValue.Valid {
		sess.FinalEstimate = &models.FinalEstimate{
			Value:     finalValue.String,
			AppliedBy: finalBy.String,
			AppliedAt: time.UnixMilli(finalAt.Int64),
		}
	}
	return &sess, nil
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	finalValue, finalBy, finalAt := finalColumns(sess)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, issue_key, author, created_at, start_at, end_at, final_value, final_by, final_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.IssueKey, sess.Author, sess.Created.UnixMilli(), sess.Start.UnixMilli(), sess.End.UnixMilli(),
		finalValue, finalBy, finalAt)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.IssueKey, err)
	}
	return nil
}

// UpdateSession stores the session window and final estimate.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	finalValue, finalBy, finalAt := finalColumns(sess)
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET start_at = ?, end_at = ?, final_value = ?, final_by = ?, final_at = ?
		WHERE id = ?
	`, sess.Start.UnixMilli(), sess.End.UnixMilli(), finalValue, finalBy, finalAt, sess.ID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.IssueKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func finalColumns(sess *models.Session) (sql.NullString, sql.NullString, sql.NullInt64) {
	if sess.FinalEstimate == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullInt64{}
	}
	fe := sess.FinalEstimate
	return sql.NullString{String: fe.Value, Valid: true},
		sql.NullString{String: fe.AppliedBy, Valid: true},
		sql.NullInt64{Int64: fe.AppliedAt.UnixMilli(), Valid: true}
}

// SaveVote inserts or replaces the voter's vote.
func (s *SQLiteStore) SaveVote(ctx context.Context, v *models.Vote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (session_id, voter, value, comment, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, voter) DO UPDATE
		SET value = excluded.value, comment = excluded.comment, updated_at = excluded.updated_at
	`, v.SessionID, v.Voter, v.Value, v.Comment, v.Updated.UnixMilli())
	if err != nil {
		return fmt.Errorf("save vote for %s: %w", v.Voter, err)
	}
	return nil
}

// GetVote returns one voter's vote.
func (s *SQLiteStore) GetVote(ctx context.Context, sessionID, voter string) (*models.Vote, error) {
	var (
		v       models.Vote
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, voter, value, comment, updated_at
		FROM votes WHERE session_id = ? AND voter = ?
	`, sessionID, voter).Scan(&v.SessionID, &v.Voter, &v.Value, &v.Comment, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vote for %s: %w", voter, err)
	}
	v.Updated = time.UnixMilli(updated)
	return &v, nil
}

// ListVotes returns all votes of a session, oldest first.
func (s *SQLiteStore) ListVotes(ctx context.Context, sessionID string) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, voter, value, comment, updated_at
		FROM votes WHERE session_id = ?
		ORDER BY updated_at, voter
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var (
			v       models.Vote
			updated int64
		)
		if err := rows.Scan(&v.SessionID, &v.Voter, &v.Value, &v.Comment, &updated); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Updated = time.UnixMilli(updated)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Repository = (*SQLiteStore)(nil)
