package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agentboard/internal/domain/ports/repository"
)

// Janitor applies the cache retention policy on a slow cadence so a
// long-running process does not grow its local store unbounded.
type Janitor struct {
	interval   time.Duration
	maxAge     time.Duration
	maxPerRepo int
	evictor    repository.Evictor
	log        *zerolog.Logger
}

func NewJanitor(interval, maxAge time.Duration, maxPerRepo int, evictor repository.Evictor, logger *zerolog.Logger) *Janitor {
	jLog := logger.With().Str("component", "CacheJanitor").Logger()
	return &Janitor{
		interval:   interval,
		maxAge:     maxAge,
		maxPerRepo: maxPerRepo,
		evictor:    evictor,
		log:        &jLog,
	}
}

func (j *Janitor) Run(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Msg("Starting cache janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping cache janitor")
			return ctx.Err()
		case <-ticker.C:
			if err := j.evictor.Evict(ctx, j.maxAge, j.maxPerRepo); err != nil {
				// Eviction failure never takes the sync down.
				j.log.Error().Err(err).Msg("cache eviction failed")
			}
		}
	}
}
