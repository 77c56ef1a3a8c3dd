package repository

import (
	"context"
	"time"

	"agentboard/internal/domain/model"
)

// -----------------------------
// Local cache (durable, embedded)
// -----------------------------

// SessionCacheRepository stores session parents and their child messages.
// Upserts are insert-or-replace by primary key; Delete cascades to children
// in the same transaction.
type SessionCacheRepository interface {
	Upsert(ctx context.Context, session *model.SessionRecord) error
	UpsertBatch(ctx context.Context, sessions []*model.SessionRecord) error
	Get(ctx context.Context, id string) (*model.SessionRecord, error)
	ListByRepo(ctx context.Context, repo string) ([]*model.SessionRecord, error)
	Delete(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, msg *model.SessionMessage) error
	Messages(ctx context.Context, sessionID string) ([]*model.SessionMessage, error)
}

// JobCacheRepository stores aggregated job snapshots keyed by issue key.
type JobCacheRepository interface {
	Upsert(ctx context.Context, rec *model.JobRecord) error
	UpsertBatch(ctx context.Context, recs []*model.JobRecord) error
	Get(ctx context.Context, key string) (*model.JobRecord, error)
	ListAll(ctx context.Context) ([]*model.JobRecord, error)
	Delete(ctx context.Context, key string) error
}

// Evictor runs the bounded cleanup sweep. Each pass is its own transaction
// and cascades to children; failures must never block ordinary reads.
type Evictor interface {
	Evict(ctx context.Context, maxAge time.Duration, maxPerRepo int) error
}
