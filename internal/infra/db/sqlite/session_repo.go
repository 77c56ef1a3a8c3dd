// File: internal/infra/db/sqlite/session_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/repository"
)

type SessionRepo struct {
	cache *Cache
}

var _ repository.SessionCacheRepository = (*SessionRepo)(nil)

func NewSessionRepo(cache *Cache) *SessionRepo {
	return &SessionRepo{cache: cache}
}

// Upsert is insert-or-replace by primary key: idempotent, last write wins.
func (r *SessionRepo) Upsert(ctx context.Context, s *model.SessionRecord) error {
	_, err := r.cache.db.ExecContext(ctx,
		`INSERT INTO sessions (id, repo, title, last_activity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET repo=excluded.repo, title=excluded.title, last_activity=excluded.last_activity`,
		s.ID, s.Repo, s.Title, s.LastActivity.Unix())
	return err
}

// UpsertBatch writes all records in one transaction.
func (r *SessionRepo) UpsertBatch(ctx context.Context, sessions []*model.SessionRecord) error {
	tx, err := r.cache.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, s := range sessions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, repo, title, last_activity) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET repo=excluded.repo, title=excluded.title, last_activity=excluded.last_activity`,
			s.ID, s.Repo, s.Title, s.LastActivity.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*model.SessionRecord, error) {
	row := r.cache.db.QueryRowContext(ctx,
		`SELECT id, repo, COALESCE(title, ''), last_activity FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListByRepo returns a repo partition's sessions, most recently active first.
func (r *SessionRepo) ListByRepo(ctx context.Context, repo string) ([]*model.SessionRecord, error) {
	rows, err := r.cache.db.QueryContext(ctx,
		`SELECT id, repo, COALESCE(title, ''), last_activity FROM sessions
		 WHERE repo = ? ORDER BY last_activity DESC, id`, repo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a session and its child messages in one transaction.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.cache.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendMessage stores a child message and bumps the parent's last_activity
// in the same transaction.
func (r *SessionRepo) AppendMessage(ctx context.Context, m *model.SessionMessage) error {
	tx, err := r.cache.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := m.Seq
	if seq == 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM session_messages WHERE session_id = ?`,
			m.SessionID).Scan(&seq); err != nil {
			return err
		}
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_messages (session_id, seq, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, seq, m.Kind, m.Content, created.Unix()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`, created.Unix(), m.SessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SessionRepo) Messages(ctx context.Context, sessionID string) ([]*model.SessionMessage, error) {
	rows, err := r.cache.db.QueryContext(ctx,
		`SELECT session_id, seq, kind, content, created_at FROM session_messages
		 WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SessionMessage
	for rows.Next() {
		var m model.SessionMessage
		var created int64
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.Kind, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(created, 0)
		out = append(out, &m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.SessionRecord, error) {
	var s model.SessionRecord
	var activity int64
	err := row.Scan(&s.ID, &s.Repo, &s.Title, &activity)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.LastActivity = time.Unix(activity, 0)
	return &s, nil
}
