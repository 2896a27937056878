package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"wellness-chatbot/internal/core"
	"wellness-chatbot/pkg"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// Repository stores active sessions in Postgres so several server processes
// can share them.  Ending or expiring a session deletes its rows.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

var _ core.SessionStore = (*Repository)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts a new empty session.
func (r *Repository) Create(ctx context.Context) (*pkg.Session, error) {
	sess := core.NewSession(time.Now().UTC())
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO sessions (id) VALUES ($1) RETURNING created_at`,
		sess.ID,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Load returns the session and its transcript in insertion order.
func (r *Repository) Load(ctx context.Context, id string) (*pkg.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrSessionNotFound
	}
	return loadSession(ctx, r.DB, id, "")
}

// Update runs fn inside a transaction holding the session row lock, so turns
// on one session are serialised across every process sharing the database.
// Entries fn appends are inserted and last_active is refreshed before commit.
func (r *Repository) Update(ctx context.Context, id string, fn func(sess *pkg.Session) error) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrSessionNotFound
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sess, err := loadSession(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return err
	}
	base := len(sess.Transcript)
	if err := fn(sess); err != nil {
		return err
	}
	if len(sess.Transcript) < base {
		return fmt.Errorf("session %s: transcript entries cannot be removed", id)
	}

	for _, e := range sess.Transcript[base:] {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, speaker, content, created_at)
             VALUES ($1, $2, $3, $4, $5)`,
			e.ID, id, string(e.Speaker), e.Text, e.CreatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
				return core.ErrSessionNotFound
			}
			return fmt.Errorf("append to session %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_active = NOW() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return tx.Commit()
}

// End deletes the session; its messages go with it.
func (r *Repository) End(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrSessionNotFound
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// Expire deletes sessions idle since before cutoff.  Rows locked by a turn in
// progress are skipped and picked up by a later sweep.
func (r *Repository) Expire(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM sessions
         WHERE id IN (
             SELECT id FROM sessions
             WHERE last_active < $1
             FOR UPDATE SKIP LOCKED
         )`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func loadSession(ctx context.Context, q querier, id, lock string) (*pkg.Session, error) {
	sess := &pkg.Session{ID: id}
	err := q.QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE id = $1 `+lock, id,
	).Scan(&sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, speaker, content, created_at
         FROM messages
         WHERE session_id = $1
         ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e pkg.TranscriptEntry
		if err := rows.Scan(&e.ID, &e.Speaker, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		sess.Transcript = append(sess.Transcript, e)
	}
	return sess, rows.Err()
}
