package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/workflow"
)

// statusPayload is the JSON body of /api/status.
type statusPayload struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	History      jobstore.Summary       `json:"history"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Degraded     bool                   `json:"degraded"`
}

type jobsPayload struct {
	Jobs []jobstore.Record `json:"jobs"`
}

type jobPayload struct {
	Job    *jobstore.Record `json:"job,omitempty"`
	Active *job.Snapshot    `json:"active,omitempty"`
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.API.Token),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, s.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, s.handleJob))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, statusPayload{
		Running:      status.Running,
		PID:          status.PID,
		Workflow:     status.Workflow,
		History:      status.History,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Degraded:     status.Workflow.Degraded(),
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	var opts jobstore.ListOptions
	for _, value := range query["state"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			opts.States = append(opts.States, trimmed)
		}
	}
	opts.ParentID = strings.TrimSpace(query.Get("parent"))
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}

	records, err := s.daemon.History(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, jobsPayload{Jobs: records})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	var payload jobPayload
	for _, snap := range s.daemon.workflow.Status().Jobs {
		if snap.ID == id {
			payload.Active = &snap
			break
		}
	}
	record, err := s.daemon.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload.Job = record
	if payload.Job == nil && payload.Active == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
