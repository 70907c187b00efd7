package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jihoonkang/malhagi/internal/agent"
	"github.com/jihoonkang/malhagi/internal/config"
	"github.com/jihoonkang/malhagi/internal/observability"
	"github.com/jihoonkang/malhagi/internal/reportstore"
	"github.com/jihoonkang/malhagi/internal/session"
)

// AgentFactory builds the live interview agent for a newly created session.
// Wired at startup; nil means the server only serves session metadata and
// reports (used in tests).
type AgentFactory func(sess *session.Session) (*agent.Agent, error)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	store    reportstore.Store
	metrics  *observability.Metrics
	newAgent AgentFactory

	mu      sync.Mutex
	running map[string]*runningSession
}

type runningSession struct {
	agent  *agent.Agent
	cancel context.CancelFunc
}

func New(cfg config.Config, sessions *session.Manager, store reportstore.Store, metrics *observability.Metrics, newAgent AgentFactory) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		metrics:  metrics,
		newAgent: newAgent,
		running:  make(map[string]*runningSession),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/interview/session", s.handleCreateSession)
	r.Post("/v1/interview/session/{id}/audio", s.handlePushAudio)
	r.Post("/v1/interview/session/{id}/keepalive", s.handleKeepalive)
	r.Post("/v1/interview/session/{id}/end", s.handleEndSession)
	r.Get("/v1/interview/session/{id}", s.handleGetSession)
	r.Get("/v1/interview/reports/recent", s.handleRecentReports)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"store_mode":      s.storeMode(),
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionRequest struct {
	LearnerID string `json:"learner_id"`
	Language  string `json:"language"`
}

type createSessionResponse struct {
	SessionID       string         `json:"session_id"`
	LearnerID       string         `json:"learner_id"`
	Status          session.Status `json:"status"`
	Language        string         `json:"language"`
	StartedAt       time.Time      `json:"started_at"`
	InactivityTTLMS int64          `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.LearnerID) == "" {
		req.LearnerID = "anonymous"
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.cfg.TranscriptionLanguage
	}

	sess := s.sessions.Create(req.LearnerID, req.Language)

	if s.newAgent != nil {
		if err := s.startAgent(sess); err != nil {
			_, _ = s.sessions.End(sess.ID)
			respondError(w, http.StatusBadGateway, "agent_start_failed", err.Error())
			return
		}
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       sess.ID,
		LearnerID:       sess.LearnerID,
		Status:          sess.Status,
		Language:        sess.Language,
		StartedAt:       sess.StartedAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) startAgent(sess *session.Session) error {
	ag, err := s.newAgent(sess)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[sess.ID] = &runningSession{agent: ag, cancel: cancel}
	s.mu.Unlock()

	go func() {
		defer cancel()
		if runErr := ag.Run(ctx); runErr != nil {
			log.Printf("httpapi: session %s ended with error: %v", sess.ID, runErr)
		}
		s.mu.Lock()
		delete(s.running, sess.ID)
		s.mu.Unlock()
		_, _ = s.sessions.End(sess.ID)
	}()
	return nil
}

type pushAudioRequest struct {
	Audio string `json:"audio"` // base64 PCM16 mono 24kHz
}

// handlePushAudio forwards one chunk of learner audio into the live session.
func (s *Server) handlePushAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	run, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_running", "no live agent for session")
		return
	}

	var req pushAudioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", "audio must be base64 PCM16")
		return
	}
	if err := run.agent.PushAudio(r.Context(), pcm); err != nil {
		respondError(w, http.StatusConflict, "audio_rejected", err.Error())
		return
	}
	_ = s.sessions.Touch(id)
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleKeepalive resets the inactivity clock for a session. Front-ends that
// hold the audio path elsewhere call this to keep the janitor away.
func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Touch(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	s.mu.Lock()
	run, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		run.agent.Stop()
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRecentReports(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.RecentReportLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": recs})
}

// StopSession cancels one running session's agent, if any. Used by the
// inactivity janitor's expire hook.
func (s *Server) StopSession(id string) {
	s.mu.Lock()
	run, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		run.agent.Stop()
	}
}

// StopAll cancels every running session. Called on shutdown.
func (s *Server) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, run := range s.running {
		run.agent.Stop()
		run.cancel()
		delete(s.running, id)
	}
}

func (s *Server) storeMode() string {
	if _, ok := s.store.(*reportstore.PostgresStore); ok {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
