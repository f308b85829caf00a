package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

// Store is a SQLite-backed domain.MessageStore and domain.PersonaDirectory.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL,
	persona      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	user_message TEXT NOT NULL,
	ai_response  TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	archived     INTEGER NOT NULL DEFAULT 0,
	file_url     TEXT NOT NULL DEFAULT '',
	file_type    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, ts, seq);
CREATE INDEX IF NOT EXISTS idx_messages_user_session ON messages(user_id, session_id);

CREATE TABLE IF NOT EXISTS personas (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
`

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, storageErr("set pragma", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, storageErr("create tables", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

const messageColumns = `id, user_id, persona, session_id, user_message, ai_response, ts, archived, file_url, file_type`

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID),
		string(msg.User),
		string(msg.Persona),
		string(msg.SessionID),
		msg.UserMessage,
		msg.AIResponse,
		msg.Timestamp.UnixNano(),
		msg.Archived,
		msg.FileURL,
		msg.FileType,
	)
	if err != nil {
		return storageErr("sqlite AppendMessage", err)
	}
	return nil
}

func (s *Store) QueryMessages(ctx context.Context, user domain.UserID, filter domain.MessageFilter) ([]*domain.Message, error) {
	where := []string{"user_id = ?"}
	args := []any{string(user)}

	if filter.Persona != nil {
		where = append(where, "persona = ?")
		args = append(args, string(*filter.Persona))
	}
	if filter.SessionID != nil {
		where = append(where, "session_id = ?")
		args = append(args, string(*filter.SessionID))
	}
	if filter.Archived != nil {
		where = append(where, "archived = ?")
		args = append(args, *filter.Archived)
	}

	q := `SELECT ` + messageColumns + ` FROM messages WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ts ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("sqlite QueryMessages", err)
	}
	defer rows.Close()

	out := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("sqlite QueryMessages scan", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite QueryMessages", err)
	}
	return out, nil
}

func (s *Store) UpdateMessageText(
	ctx context.Context,
	id domain.MessageID,
	user domain.UserID,
	userMessage string,
	aiResponse *string,
) (*domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("sqlite UpdateMessageText begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Owner check and write happen in one statement.
	var res sql.Result
	if aiResponse != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE messages SET user_message = ?, ai_response = ? WHERE id = ? AND user_id = ?`,
			userMessage, *aiResponse, string(id), string(user))
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE messages SET user_message = ? WHERE id = ? AND user_id = ?`,
			userMessage, string(id), string(user))
	}
	if err != nil {
		return nil, storageErr("sqlite UpdateMessageText", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("sqlite UpdateMessageText", err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, string(id))
	m, err := scanMessage(row)
	if err != nil {
		return nil, storageErr("sqlite UpdateMessageText reload", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("sqlite UpdateMessageText commit", err)
	}
	return m, nil
}

func (s *Store) SetArchived(ctx context.Context, user domain.UserID, sessionID domain.SessionID, archived bool) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET archived = ? WHERE user_id = ? AND session_id = ? AND archived <> ?`,
		archived, string(user), string(sessionID), archived)
	if err != nil {
		return 0, storageErr("sqlite SetArchived", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("sqlite SetArchived", err)
	}
	return int(n), nil
}

// ─────────────────────────────────────────
// PersonaDirectory implementation
// ─────────────────────────────────────────

func (s *Store) Resolve(ctx context.Context, id domain.PersonaID) (*domain.Persona, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM personas WHERE id = ?`, string(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("sqlite Resolve", err)
	}
	return &domain.Persona{ID: id, Name: name}, nil
}

// UpsertPersona stores a persona display name.
func (s *Store) UpsertPersona(ctx context.Context, p domain.Persona) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		string(p.ID), p.Name)
	if err != nil {
		return storageErr("sqlite UpsertPersona", err)
	}
	return nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		m                          domain.Message
		id, user, persona, session string
		ts                         int64
	)
	err := row.Scan(&id, &user, &persona, &session,
		&m.UserMessage, &m.AIResponse, &ts, &m.Archived, &m.FileURL, &m.FileType)
	if err != nil {
		return nil, err
	}

	m.ID = domain.MessageID(id)
	m.User = domain.UserID(user)
	m.Persona = domain.PersonaID(persona)
	m.SessionID = domain.SessionID(session)
	m.Timestamp = time.Unix(0, ts).UTC()
	return &m, nil
}

// storageErr wraps err with op, tagging connection-level failures as
// domain.ErrStorageUnavailable.
func storageErr(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return true
		}
	}
	return false
}
