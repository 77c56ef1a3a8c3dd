// File: internal/infra/db/sqlite/job_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/repository"
)

type JobRepo struct {
	cache *Cache
}

var _ repository.JobCacheRepository = (*JobRepo)(nil)

func NewJobRepo(cache *Cache) *JobRepo {
	return &JobRepo{cache: cache}
}

func (r *JobRepo) Upsert(ctx context.Context, rec *model.JobRecord) error {
	_, err := r.cache.db.ExecContext(ctx,
		`INSERT INTO jobs (issue_key, repo, payload, last_activity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(issue_key) DO UPDATE SET repo=excluded.repo, payload=excluded.payload, last_activity=excluded.last_activity`,
		rec.Key, rec.Repo, rec.Payload, rec.LastActivity.Unix())
	return err
}

func (r *JobRepo) UpsertBatch(ctx context.Context, recs []*model.JobRecord) error {
	tx, err := r.cache.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (issue_key, repo, payload, last_activity) VALUES (?, ?, ?, ?)
			 ON CONFLICT(issue_key) DO UPDATE SET repo=excluded.repo, payload=excluded.payload, last_activity=excluded.last_activity`,
			rec.Key, rec.Repo, rec.Payload, rec.LastActivity.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *JobRepo) Get(ctx context.Context, key string) (*model.JobRecord, error) {
	row := r.cache.db.QueryRowContext(ctx,
		`SELECT issue_key, repo, payload, last_activity FROM jobs WHERE issue_key = ?`, key)
	var rec model.JobRecord
	var activity int64
	err := row.Scan(&rec.Key, &rec.Repo, &rec.Payload, &activity)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.LastActivity = time.Unix(activity, 0)
	return &rec, nil
}

func (r *JobRepo) ListAll(ctx context.Context) ([]*model.JobRecord, error) {
	rows, err := r.cache.db.QueryContext(ctx,
		`SELECT issue_key, repo, payload, last_activity FROM jobs ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JobRecord
	for rows.Next() {
		var rec model.JobRecord
		var activity int64
		if err := rows.Scan(&rec.Key, &rec.Repo, &rec.Payload, &activity); err != nil {
			return nil, err
		}
		rec.LastActivity = time.Unix(activity, 0)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *JobRepo) Delete(ctx context.Context, key string) error {
	_, err := r.cache.db.ExecContext(ctx, `DELETE FROM jobs WHERE issue_key = ?`, key)
	return err
}
