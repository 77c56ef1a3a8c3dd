// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/adapter"
	"agentboard/internal/domain/ports/repository"
	"agentboard/internal/infra/logging"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase owns at most one attached per-resource stream at a time.
// Switching resources fully tears the previous client down — its timers and
// subscription are gone before the new one attaches.
type SessionUseCase interface {
	Attach(ctx context.Context, sessionID, repo, title string) (adapter.StreamSession, error)
	Send(text string) error
	Detach()
	History(ctx context.Context, sessionID string) ([]*model.SessionMessage, error)
	Sessions(ctx context.Context, repo string) ([]*model.SessionRecord, error)
}

type sessionUC struct {
	cache      repository.SessionCacheRepository
	newSession func() adapter.StreamSession
	log        *zerolog.Logger

	mu      sync.Mutex
	current adapter.StreamSession
	unsub   func()
}

func NewSessionUseCase(cache repository.SessionCacheRepository, newSession func() adapter.StreamSession, logger *zerolog.Logger) *sessionUC {
	l := logger.With().Str("component", "SessionSync").Logger()
	return &sessionUC{cache: cache, newSession: newSession, log: &l}
}

// Attach connects a stream for sessionID, replacing any previous one, and
// starts persisting its messages as child records of the session.
func (s *sessionUC) Attach(ctx context.Context, sessionID, repo, title string) (adapter.StreamSession, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Attach")()
	if sessionID == "" {
		return nil, fmt.Errorf("attach: %w", domain.ErrInvalidArgument)
	}
	s.Detach()

	if err := s.cache.Upsert(ctx, model.NewSessionRecord(sessionID, repo, title)); err != nil {
		return nil, err
	}

	// Subscribe before dialing so no frame can slip through between the
	// connection opening and the recorder attaching.
	client := s.newSession()
	msgs, cancel := client.Subscribe()
	client.Connect(ctx, sessionID)

	s.mu.Lock()
	s.current = client
	s.unsub = cancel
	s.mu.Unlock()

	ctx = logging.WithSessID(logging.WithRepo(ctx, repo), sessionID)
	go s.record(ctx, sessionID, msgs)
	return client, nil
}

func (s *sessionUC) Send(text string) error {
	s.mu.Lock()
	client := s.current
	s.mu.Unlock()
	if client == nil {
		return domain.ErrNotConnected
	}
	return client.SendUserInput(text)
}

// Detach disconnects the current stream, if any. Idempotent.
func (s *sessionUC) Detach() {
	s.mu.Lock()
	client, unsub := s.current, s.unsub
	s.current, s.unsub = nil, nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if client != nil {
		client.Disconnect()
	}
}

func (s *sessionUC) History(ctx context.Context, sessionID string) ([]*model.SessionMessage, error) {
	return s.cache.Messages(ctx, sessionID)
}

func (s *sessionUC) Sessions(ctx context.Context, repo string) ([]*model.SessionRecord, error) {
	return s.cache.ListByRepo(ctx, repo)
}

// record persists display-relevant messages; the write failure of a single
// message is logged, not fatal to the stream.
func (s *sessionUC) record(ctx context.Context, sessionID string, msgs <-chan model.StreamMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			kind, content := persistable(msg)
			if kind == "" {
				continue
			}
			err := s.cache.AppendMessage(ctx, &model.SessionMessage{
				SessionID: sessionID, Kind: kind, Content: content, CreatedAt: time.Now(),
			})
			if err != nil {
				logging.With(ctx, s.log).Warn().Err(err).Msg("persist message failed")
			}
		}
	}
}

func persistable(msg model.StreamMessage) (kind, content string) {
	switch msg.Kind {
	case model.MsgAssistantText:
		return "assistant", msg.Content
	case model.MsgUserInput:
		return "user", msg.Content
	case model.MsgToolUse:
		return "tool", msg.ToolName
	case model.MsgResult:
		return "result", ""
	default:
		return "", ""
	}
}
