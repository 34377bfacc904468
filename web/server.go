package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"crontub/scheduler"
)

// Source is what the status server reads from a running daemon.
type Source interface {
	Snapshot() []scheduler.FileEntry
	Jobs() []scheduler.RunningJob
	Recent(ctx context.Context, limit int) ([]scheduler.ExecutionRecord, error)
	State() scheduler.State
}

// StatusServer exposes a read-only JSON view of the schedule table, running
// jobs and recent executions. It has no control operations.
type StatusServer struct {
	src    Source
	logger *zap.SugaredLogger
	now    func() time.Time
	server *http.Server
}

func NewStatusServer(addr string, src Source, logger *zap.SugaredLogger) *StatusServer {
	s := &StatusServer{src: src, logger: logger, now: time.Now}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/executions", s.handleExecutions)
	return s.logMiddleware(mux)
}

// Start listens on the configured address and serves until Shutdown.
func (s *StatusServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown,
// including one that happened before Serve was called.
func (s *StatusServer) Serve(ln net.Listener) error {
	s.logger.Infof("status server listening on %s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"state":  s.src.State().String(),
	})
}

type jobEntry struct {
	Path      string `json:"path"`
	Schedule  string `json:"schedule"`
	Canonical string `json:"canonical"`
	Enabled   bool   `json:"enabled"`
	LastError string `json:"last_error,omitempty"`
	NextRun   string `json:"next_run,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func (s *StatusServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	now := s.now()
	entries := s.src.Snapshot()
	jobs := make([]jobEntry, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, toJobEntry(e, now))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(jobs),
		"data":    jobs,
		"running": s.src.Jobs(),
	})
}

func toJobEntry(e scheduler.FileEntry, now time.Time) jobEntry {
	entry := jobEntry{
		Path:      e.Path,
		Schedule:  e.Raw,
		Enabled:   e.Enabled,
		LastError: e.LastError,
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
	if e.Spec != nil {
		entry.Canonical = e.Spec.String()
		if next, ok := e.Spec.Next(now); ok && e.Enabled {
			entry.NextRun = next.Format(time.RFC3339)
		}
	}
	return entry
}

func (s *StatusServer) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	recs, err := s.src.Recent(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(recs),
		"data":  recs,
	})
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorf("write json error: %v", err)
	}
}

func (s *StatusServer) writeJSONError(w http.ResponseWriter, status int, err error) {
	s.logger.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	s.writeJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}
