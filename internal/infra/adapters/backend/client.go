// File: internal/infra/adapters/backend/client.go
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agentboard/internal/config"
	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/adapter"
	"agentboard/internal/infra/metrics"
)

// Client consumes the backend's poll endpoint. The response may be an array
// of job objects or an object keyed by job id; every field is optional and
// defaulted, so a fetch never fails aggregation on missing data.
type Client struct {
	baseURL string
	jobs    string
	http    *http.Client
	log     *zerolog.Logger
}

var (
	_ adapter.JobFetcher       = (*Client)(nil)
	_ adapter.CapabilityProber = (*Client)(nil)
)

func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	l := logger.With().Str("component", "BackendClient").Logger()
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		jobs:    cfg.JobsPath,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     &l,
	}, nil
}

func (c *Client) FetchJobs(ctx context.Context) ([]model.Job, error) {
	start := time.Now()
	jobs, err := c.fetchJobs(ctx)
	metrics.ObservePoll(time.Since(start).Milliseconds(), err == nil)
	return jobs, err
}

func (c *Client) fetchJobs(ctx context.Context) ([]model.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.jobs, nil)
	if err != nil {
		return nil, domain.NewSyncError(domain.KindUnknown, "backend.fetch", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewSyncError(domain.KindTimeout, "backend.fetch", err)
		}
		return nil, domain.NewSyncError(domain.KindConnectionFailed, "backend.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		return nil, domain.NewSyncError(domain.KindServerError, "backend.fetch", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewSyncError(domain.KindConnectionLost, "backend.fetch", err)
	}
	jobs, err := decodeJobs(body)
	if err != nil {
		return nil, domain.NewSyncError(domain.KindInvalidMessage, "backend.fetch", err)
	}
	return jobs, nil
}

// ProbeStream asks once, at startup, whether the backend exposes a push
// stream. The answer becomes configuration state; any failure means "poll
// only" rather than a caught-exception fallback later.
func (c *Client) ProbeStream(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/capabilities", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Info().Err(err).Msg("capability probe failed; polling only")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Info().Int("status", resp.StatusCode).Msg("capability probe rejected; polling only")
		return false
	}
	var caps struct {
		Stream bool `json:"stream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return false
	}
	return caps.Stream
}

// decodeJobs accepts both response shapes: a JSON array of records, or an
// object keyed by job id.
func decodeJobs(body []byte) ([]model.Job, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return mapJobs(list), nil
	}
	var keyed map[string]map[string]any
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("poll response is neither array nor object: %w", err)
	}
	records := make([]map[string]any, 0, len(keyed))
	for _, rec := range keyed {
		records = append(records, rec)
	}
	return mapJobs(records), nil
}

func mapJobs(records []map[string]any) []model.Job {
	jobs := make([]model.Job, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		jobs = append(jobs, model.Job{
			Repo:       fieldStr(rec, "repo"),
			IssueNum:   fieldInt(rec, "issueNum", "issue_num"),
			IssueTitle: fieldStr(rec, "issueTitle", "issue_title"),
			Command:    fieldStr(rec, "command"),
			Status:     model.ParseJobStatus(fieldStr(rec, "status")),
			StartTime:  int64(fieldFloat(rec, "startTime", "start_time")),
			Error:      fieldStr(rec, "error"),
			PRUrl:      fieldStr(rec, "prUrl", "pr_url"),
		})
	}
	return jobs
}

func fieldStr(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k].(string); ok {
			return v
		}
	}
	return ""
}

func fieldFloat(rec map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := rec[k].(float64); ok {
			return v
		}
	}
	return 0
}

func fieldInt(rec map[string]any, keys ...string) int {
	return int(fieldFloat(rec, keys...))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
