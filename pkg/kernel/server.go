// Package kernel exposes the job subsystem over HTTP: submission, status,
// stop, config defaults, artifact files and per-job event streams.
package kernel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cortexlab/pathfinder/internal/adapters/recordings"
	"github.com/cortexlab/pathfinder/internal/config"
	"github.com/cortexlab/pathfinder/internal/core/domain"
	"github.com/cortexlab/pathfinder/internal/core/services"
)

type Server struct {
	logger   *slog.Logger
	executor *services.JobExecutor
	registry *services.JobRegistry
	status   *services.StatusService
	stop     *services.GlobalStopSignal
	bus      *services.EventBus
	files    *recordings.Store
	defaults *config.AgentDefaults
}

func NewServer(
	logger *slog.Logger,
	executor *services.JobExecutor,
	registry *services.JobRegistry,
	status *services.StatusService,
	stop *services.GlobalStopSignal,
	bus *services.EventBus,
	files *recordings.Store,
	defaults *config.AgentDefaults,
) *Server {
	return &Server{
		logger:   logger,
		executor: executor,
		registry: registry,
		status:   status,
		stop:     stop,
		bus:      bus,
		files:    files,
		defaults: defaults,
	}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleRoot)
	r.Get("/config/default", s.handleDefaultConfig)

	r.Post("/agent/run", s.handleAgentRun)
	r.Get("/agent/status/{id}", s.handleStatus)
	r.Post("/agent/stop", s.handleAgentStop)
	r.Get("/agent/events/{id}", s.handleJobEvents)
	r.Get("/agent/history-files", s.handleListHistoryFiles)
	r.Get("/agent/history/{filename}", s.handleGetHistoryFile)

	r.Post("/deep-search/run", s.handleDeepSearchRun)
	r.Get("/deep-search/status/{id}", s.handleStatus)
	r.Post("/deep-search/stop", s.handleDeepSearchStop)

	r.Get("/recordings", s.handleListRecordings)
	r.Get("/recordings/{filename}", s.handleGetRecording)

	return r
}

// statusResponse is the submission/stop acknowledgement shape. The message
// carries the id after the fixed "ID: " delimiter for historical callers;
// TaskID is the first-class field new callers should use.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
}

type agentRunRequest struct {
	Config   *domain.AgentConfig `json:"config"`
	Task     string              `json:"task"`
	AddInfos string              `json:"add_infos,omitempty"`
}

type deepSearchRequest struct {
	ResearchTask         string              `json:"research_task"`
	MaxSearchIterations  int                 `json:"max_search_iterations"`
	MaxQueryPerIteration int                 `json:"max_query_per_iteration"`
	Config               *domain.AgentConfig `json:"config"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "Pathfinder API is running"})
}

func (s *Server) handleDefaultConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.defaults.Get())
}

// handleAgentRun accepts a job and returns immediately; the run itself is
// executed out-of-band.
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req agentRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	cfg := s.defaults.Get()
	if req.Config != nil {
		cfg = *req.Config
	}

	id := s.executor.Submit(domain.JobKindAgentRun, domain.Payload{
		Task:     req.Task,
		AddInfos: req.AddInfos,
		Config:   cfg,
	})

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "started",
		Message: fmt.Sprintf("Agent run started with ID: %s", id),
		TaskID:  string(id),
	})
}

func (s *Server) handleDeepSearchRun(w http.ResponseWriter, r *http.Request) {
	var req deepSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ResearchTask == "" {
		writeError(w, http.StatusBadRequest, "research_task is required")
		return
	}
	if req.MaxSearchIterations <= 0 {
		req.MaxSearchIterations = 3
	}
	if req.MaxQueryPerIteration <= 0 {
		req.MaxQueryPerIteration = 1
	}

	cfg := s.defaults.Get()
	if req.Config != nil {
		cfg = *req.Config
	}

	id := s.executor.Submit(domain.JobKindDeepSearch, domain.Payload{
		Task:                 req.ResearchTask,
		MaxSearchIterations:  req.MaxSearchIterations,
		MaxQueryPerIteration: req.MaxQueryPerIteration,
		Config:               cfg,
	})

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "started",
		Message: fmt.Sprintf("Deep search started with ID: %s", id),
		TaskID:  string(id),
	})
}

// handleStatus serves both /agent/status/{id} and /deep-search/status/{id}:
// ids live in one registry, so either path resolves any job.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.status.Query(domain.JobID(id))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found", id))
			return
		}
		s.logger.Error("status query failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	if s.registry.ActiveCount() == 0 {
		writeJSON(w, http.StatusOK, statusResponse{
			Status:  "warning",
			Message: "No agent is currently running",
		})
		return
	}
	s.stop.RequestStop()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: "Agent stop requested",
	})
}

func (s *Server) handleDeepSearchStop(w http.ResponseWriter, r *http.Request) {
	s.stop.RequestStop()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: "Deep search stop requested",
	})
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.files.ListRecordings(r.URL.Query().Get("path"))
	if err != nil {
		s.logger.Error("failed to list recordings", "error", err)
		writeError(w, http.StatusInternalServerError, "Error listing recordings: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.files.ResolveRecording(r.URL.Query().Get("path"), filename)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Recording %s not found", filename))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleListHistoryFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.ListHistoryFiles(r.URL.Query().Get("path"))
	if err != nil {
		s.logger.Error("failed to list history files", "error", err)
		writeError(w, http.StatusInternalServerError, "Error listing history files: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGetHistoryFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.files.ResolveHistory(r.URL.Query().Get("path"), filename)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("History file %s not found", filename))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
