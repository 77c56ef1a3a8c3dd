// File: internal/usecase/board_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/adapter"
	"agentboard/internal/domain/ports/repository"
	"agentboard/internal/infra/logging"
	"agentboard/internal/infra/metrics"
)

// Compile-time check
var _ BoardUseCase = (*boardUC)(nil)

// BoardSnapshot is an immutable view of the aggregated board handed to
// observers. Err is the short user-facing message of the last surfaced
// failure, empty once a fetch succeeds.
type BoardSnapshot struct {
	Issues    map[string]*model.Issue
	Err       string
	FromCache bool
	UpdatedAt time.Time
}

// BoardUseCase is the sync coordinator: cold start from the cache,
// background polling, optional push subscription, aggregation, change
// suppression and write-through.
type BoardUseCase interface {
	Start(ctx context.Context) error
	Refresh(ctx context.Context) error
	Subscribe() (<-chan BoardSnapshot, func())
	Snapshot() BoardSnapshot
	Stop()
}

type boardUC struct {
	fetcher  adapter.JobFetcher
	jobCache repository.JobCacheRepository
	push     adapter.StreamSession // nil when the capability probe said poll-only
	timeout  time.Duration
	log      *zerolog.Logger

	mu        sync.Mutex // guards the merge path: exactly one writer
	issues    map[string]*model.Issue
	lastErr   string
	updatedAt time.Time
	fromCache bool
	subs      map[string]chan BoardSnapshot
	detach    func()
	stopped   bool
}

func NewBoardUseCase(
	fetcher adapter.JobFetcher,
	jobCache repository.JobCacheRepository,
	push adapter.StreamSession,
	timeout time.Duration,
	logger *zerolog.Logger,
) *boardUC {
	l := logger.With().Str("component", "BoardSync").Logger()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &boardUC{
		fetcher:  fetcher,
		jobCache: jobCache,
		push:     push,
		timeout:  timeout,
		log:      &l,
		issues:   make(map[string]*model.Issue),
		subs:     make(map[string]chan BoardSnapshot),
	}
}

// Start seeds state from the cache so the board renders before the network
// responds, kicks a background full poll, and attaches the push stream when
// one was probed at startup.
func (b *boardUC) Start(ctx context.Context) error {
	if err := b.coldStart(ctx); err != nil {
		// A broken cache delays first paint but must not block startup.
		b.log.Warn().Err(err).Msg("cold start read failed")
	}

	go func() {
		if err := b.Refresh(ctx); err != nil {
			b.log.Warn().Err(err).Msg("initial poll failed")
		}
	}()

	if b.push != nil {
		b.push.Connect(ctx, "")
		msgs, cancel := b.push.Subscribe()
		b.mu.Lock()
		b.detach = cancel
		b.mu.Unlock()
		go b.consumePush(ctx, msgs)
	}
	return nil
}

func (b *boardUC) coldStart(ctx context.Context) error {
	recs, err := b.jobCache.ListAll(ctx)
	if err != nil {
		return err
	}
	var jobs []model.Job
	for _, rec := range recs {
		var part []model.Job
		if err := json.Unmarshal(rec.Payload, &part); err != nil {
			b.log.Debug().Str("key", rec.Key).Err(err).Msg("skipping unreadable cached record")
			continue
		}
		jobs = append(jobs, part...)
	}
	if len(jobs) == 0 {
		return nil
	}

	aggregated := model.AggregateIssues(jobs)
	b.mu.Lock()
	b.issues = aggregated
	b.fromCache = true
	b.updatedAt = time.Now()
	snap := b.snapshotLocked()
	b.notifyLocked(snap)
	b.mu.Unlock()
	b.log.Info().Int("issues", len(aggregated)).Msg("board seeded from cache")
	return nil
}

// Refresh performs one full poll fetch and merges the result. Also the
// refetch hook invoked after external action endpoints resolve.
func (b *boardUC) Refresh(ctx context.Context) error {
	defer logging.TraceDuration(b.log, "BoardUC.Refresh")()
	fctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	jobs, err := b.fetcher.FetchJobs(fctx)
	if err != nil {
		b.surfaceError(err)
		return err
	}
	b.applyJobs(ctx, jobs)
	return nil
}

// consumePush watches the process-wide event stream. Push updates take the
// same aggregation path as polls: a status change triggers a refetch, there
// is no separate fast path for push data.
func (b *boardUC) consumePush(ctx context.Context, msgs <-chan model.StreamMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch msg.Kind {
			case model.MsgStatusChange, model.MsgResult:
				if err := b.Refresh(ctx); err != nil {
					b.log.Debug().Err(err).Msg("push-triggered refresh failed")
				}
			}
		}
	}
}

// applyJobs is the single merge path for poll- and push-derived updates.
// Later-applied writes win; there are no ordering tokens (accepted
// eventual-consistency limitation).
func (b *boardUC) applyJobs(ctx context.Context, jobs []model.Job) {
	aggregated := model.AggregateIssues(jobs)

	b.mu.Lock()
	changed := materiallyChanged(b.issues, aggregated) || b.fromCache
	hadError := b.lastErr != ""
	b.issues = aggregated
	b.lastErr = "" // a successful fetch always clears a surfaced error
	b.fromCache = false
	b.updatedAt = time.Now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	// Write-through before observers hear about the update.
	if err := b.persist(ctx, aggregated); err != nil {
		b.log.Warn().Err(err).Msg("cache write-through failed")
	}

	if !changed && !hadError {
		metrics.IncPollSuppressed()
		return
	}
	b.mu.Lock()
	b.notifyLocked(snap)
	b.mu.Unlock()
}

func (b *boardUC) persist(ctx context.Context, issues map[string]*model.Issue) error {
	now := time.Now()
	recs := make([]*model.JobRecord, 0, len(issues))
	for key, iss := range issues {
		payload, err := json.Marshal(iss.Jobs)
		if err != nil {
			return err
		}
		recs = append(recs, &model.JobRecord{Key: key, Repo: iss.Repo, Payload: payload, LastActivity: now})
	}
	return b.jobCache.UpsertBatch(ctx, recs)
}

func (b *boardUC) surfaceError(err error) {
	msg := "Something went wrong."
	var se *domain.SyncError
	if errors.As(err, &se) {
		msg = se.UserMessage()
	}
	b.log.Warn().Err(err).Str("kind", string(domain.KindOf(err))).Msg("fetch failed")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastErr == msg {
		return
	}
	b.lastErr = msg
	b.notifyLocked(b.snapshotLocked())
}

func (b *boardUC) Subscribe() (<-chan BoardSnapshot, func()) {
	ch := make(chan BoardSnapshot, 16)
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *boardUC) Snapshot() BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *boardUC) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()

	if detach != nil {
		detach()
	}
	if b.push != nil {
		b.push.Disconnect()
	}
}

// snapshotLocked deep-copies issues so observers never share mutable state.
func (b *boardUC) snapshotLocked() BoardSnapshot {
	issues := make(map[string]*model.Issue, len(b.issues))
	for k, v := range b.issues {
		cp := *v
		cp.Jobs = append([]model.Job(nil), v.Jobs...)
		cp.CompletedPhases = make(map[string]bool, len(v.CompletedPhases))
		for p := range v.CompletedPhases {
			cp.CompletedPhases[p] = true
		}
		issues[k] = &cp
	}
	return BoardSnapshot{Issues: issues, Err: b.lastErr, FromCache: b.fromCache, UpdatedAt: b.updatedAt}
}

func (b *boardUC) notifyLocked(snap BoardSnapshot) {
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// A stalled observer keeps its backlog; it will pull a fresh
			// snapshot on its next read anyway.
		}
	}
}

// materiallyChanged compares two aggregation passes by key count and by the
// per-key status/error signature of their jobs.
func materiallyChanged(prev, next map[string]*model.Issue) bool {
	if len(prev) != len(next) {
		return true
	}
	for key, n := range next {
		p, ok := prev[key]
		if !ok {
			return true
		}
		if issueSignature(p) != issueSignature(n) {
			return true
		}
	}
	return false
}

func issueSignature(iss *model.Issue) string {
	parts := make([]string, 0, len(iss.Jobs))
	for _, j := range iss.Jobs {
		parts = append(parts, j.Command+"|"+string(j.Status)+"|"+j.Error)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
