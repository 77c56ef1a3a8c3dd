package adapter

import (
	"context"

	"agentboard/internal/domain/model"
)

// JobFetcher is the poll endpoint. Implementations must tolerate missing
// optional fields and both object- and array-shaped responses.
type JobFetcher interface {
	FetchJobs(ctx context.Context) ([]model.Job, error)
}

// CapabilityProber checks once at startup whether the backend exposes a
// push stream. The answer is stored as configuration state; transport
// selection never falls back via caught exceptions at use time.
type CapabilityProber interface {
	ProbeStream(ctx context.Context) bool
}
