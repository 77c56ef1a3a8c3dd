package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agentboard/internal/usecase"
)

// PollWorker drives the periodic full-refresh of the board between push
// events (or as the only update source when the backend has no stream).
type PollWorker struct {
	interval time.Duration
	board    usecase.BoardUseCase
	log      *zerolog.Logger
}

func NewPollWorker(interval time.Duration, board usecase.BoardUseCase, logger *zerolog.Logger) *PollWorker {
	pollLog := logger.With().Str("component", "PollWorker").Logger()
	return &PollWorker{
		interval: interval,
		board:    board,
		log:      &pollLog,
	}
}

func (w *PollWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting poll worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping poll worker")
			return ctx.Err()
		case <-ticker.C:
			if err := w.board.Refresh(ctx); err != nil {
				// Refresh already surfaced the error to observers.
				w.log.Warn().Err(err).Msg("poll refresh failed")
			}
		}
	}
}
