package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/usecase"
)

// Server exposes the aggregated board over HTTP for local tooling:
// health, metrics and a read-only JSON view of issues and sessions.
type Server struct {
	board    usecase.BoardUseCase
	sessions usecase.SessionUseCase
	log      *zerolog.Logger
}

func NewServer(board usecase.BoardUseCase, sessions usecase.SessionUseCase, logger *zerolog.Logger) *Server {
	apiLog := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{board: board, sessions: sessions, log: &apiLog}
}

// Router builds the chi mux with all routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/board", s.handleBoard)
		r.Get("/issues/{key}", s.handleIssue)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}/messages", s.handleSessionMessages)
	})
	return r
}

// issueView is the wire shape of one aggregated issue, including the
// presentation fields the display layer renders directly.
type issueView struct {
	Key         string    `json:"key"`
	Repo        string    `json:"repo"`
	IssueNum    int       `json:"issueNum"`
	Title       string    `json:"title,omitempty"`
	Phase       string    `json:"phase"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"statusLabel"`
	StatusColor string    `json:"statusColor"`
	PRUrl       string    `json:"prUrl,omitempty"`
	CanMerge    bool      `json:"canMerge"`
	CanRevise   bool      `json:"canRevise"`
	Closed      bool      `json:"closed"`
	Revisions   int       `json:"revisions"`
	Jobs        []jobView `json:"jobs"`
}

type jobView struct {
	Command   string `json:"command"`
	Status    string `json:"status"`
	StartTime int64  `json:"startTime,omitempty"`
	Error     string `json:"error,omitempty"`
	PRUrl     string `json:"prUrl,omitempty"`
}

type boardView struct {
	Issues    []issueView `json:"issues"`
	Error     string      `json:"error,omitempty"`
	FromCache bool        `json:"fromCache"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// statusPresentation maps a derived issue status to its display label and
// color. Looked up at render time; statuses carry no presentation data.
var statusPresentation = map[model.IssueStatus]struct{ Label, Color string }{
	model.IssueNeedsAction: {"Needs Action", "#6b7280"},
	model.IssueRunning:     {"In Progress", "#2563eb"},
	model.IssueFailed:      {"Failed", "#b00020"},
	model.IssueDone:        {"Done", "#057a55"},
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot()
	view := boardView{
		Issues:    make([]issueView, 0, len(snap.Issues)),
		Error:     snap.Err,
		FromCache: snap.FromCache,
		UpdatedAt: snap.UpdatedAt,
	}
	for key, iss := range snap.Issues {
		view.Issues = append(view.Issues, toIssueView(key, iss))
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	snap := s.board.Snapshot()
	iss, ok := snap.Issues[key]
	if !ok {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	writeJSON(w, http.StatusOK, toIssueView(key, iss))
}

// handleRefresh forces a full poll; external actions (merge, revise) call
// this after they resolve so the board catches up without waiting a tick.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	if err := s.board.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("forced refresh failed")
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		writeError(w, http.StatusBadRequest, "missing repo query parameter")
		return
	}
	recs, err := s.sessions.Sessions(r.Context(), repo)
	if err != nil {
		s.log.Error().Err(err).Str("repo", repo).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	if recs == nil {
		recs = []*model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.sessions.History(r.Context(), id)
	if err != nil {
		if err == domain.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error().Err(err).Str("session_id", id).Msg("load history failed")
		writeError(w, http.StatusInternalServerError, "loading history failed")
		return
	}
	if msgs == nil {
		msgs = []*model.SessionMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs})
}

func toIssueView(key string, iss *model.Issue) issueView {
	status := model.DeriveStatus(iss)
	pres := statusPresentation[status]
	jobs := make([]jobView, 0, len(iss.Jobs))
	for _, j := range iss.Jobs {
		jobs = append(jobs, jobView{
			Command:   j.Command,
			Status:    string(j.Status),
			StartTime: j.StartTime,
			Error:     j.Error,
			PRUrl:     j.PRUrl,
		})
	}
	issueNum := 0
	if latest := iss.LatestJob(); latest != nil {
		issueNum = latest.IssueNum
	}
	return issueView{
		Key:         key,
		Repo:        iss.Repo,
		IssueNum:    issueNum,
		Title:       iss.Title,
		Phase:       string(iss.CurrentPhase),
		Status:      string(status),
		StatusLabel: pres.Label,
		StatusColor: pres.Color,
		PRUrl:       iss.PRUrl,
		CanMerge:    iss.CanMerge,
		CanRevise:   iss.CanRevise,
		Closed:      iss.IssueClosed,
		Revisions:   iss.RevisionCount,
		Jobs:        jobs,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
