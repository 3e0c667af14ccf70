// Package api provides the HTTP surface the dashboard drives workflows through
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/pipeline"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/storage"
	"github.com/chicogong/ytagents/pkg/store"
	"github.com/chicogong/ytagents/pkg/workflow"
)

// StepRunner generates one workflow step
type StepRunner interface {
	RunStep(ctx context.Context, workflowID string, step schemas.StepName) (*pipeline.Report, error)
}

// Server holds the API server dependencies
type Server struct {
	machine *workflow.Machine
	runner  StepRunner
	videos  storage.VideoBackend
	log     *logger.Logger
}

// NewServer creates a new API server
func NewServer(machine *workflow.Machine, runner StepRunner, videos storage.VideoBackend, log *logger.Logger) *Server {
	return &Server{machine: machine, runner: runner, videos: videos, log: log}
}

// CreateWorkflowRequest is the body of POST /api/workflows
type CreateWorkflowRequest struct {
	Topic string `json:"topic"`
}

// CreateWorkflowResponse is returned with 201
type CreateWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// StepResponse reports a step after it was generated
type StepResponse struct {
	WorkflowID string                `json:"workflow_id"`
	Step       *schemas.StepState    `json:"step"`
	Results    []schemas.StageResult `json:"results,omitempty"`
	Video      *schemas.VideoRecord  `json:"video,omitempty"`
}

// ApproveResponse names the step that can be generated next
type ApproveResponse struct {
	NextStep schemas.StepName `json:"next_step,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleCreateWorkflow handles POST /api/workflows
func (s *Server) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	id, err := s.machine.Create(r.Context(), req.Topic)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, CreateWorkflowResponse{WorkflowID: id})
}

// HandleListWorkflows handles GET /api/workflows
func (s *Server) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list, err := s.machine.List(r.Context(), filter)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	if list == nil {
		list = []*schemas.Workflow{}
	}
	s.sendJSON(w, http.StatusOK, list)
}

// HandleGetWorkflow handles GET /api/workflows/{id}
func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.machine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, wf)
}

// HandleGetStep handles GET /api/workflows/{id}/steps/{step}
func (s *Server) HandleGetStep(w http.ResponseWriter, r *http.Request) {
	step, ok := s.stepParam(w, r)
	if !ok {
		return
	}
	st, err := s.machine.GetStep(r.Context(), chi.URLParam(r, "id"), step)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, st)
}

// HandleGenerateStep handles POST /api/workflows/{id}/steps/{step}
func (s *Server) HandleGenerateStep(w http.ResponseWriter, r *http.Request) {
	step, ok := s.stepParam(w, r)
	if !ok {
		return
	}
	s.generate(w, r, step)
}

// HandleUpload handles POST /api/workflows/{id}/upload
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, schemas.StepUpload)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, step schemas.StepName) {
	id := chi.URLParam(r, "id")
	rep, err := s.runner.RunStep(r.Context(), id, step)
	if err != nil {
		s.sendErr(w, err)
		return
	}

	st, err := s.machine.GetStep(r.Context(), id, step)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, StepResponse{WorkflowID: id, Step: st, Results: rep.Results, Video: rep.Video})
}

// HandleApproveStep handles POST /api/workflows/{id}/steps/{step}/approve
func (s *Server) HandleApproveStep(w http.ResponseWriter, r *http.Request) {
	step, ok := s.stepParam(w, r)
	if !ok {
		return
	}
	next, err := s.machine.ApproveStep(r.Context(), chi.URLParam(r, "id"), step)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ApproveResponse{NextStep: next})
}

// HandleRejectStep handles POST /api/workflows/{id}/steps/{step}/reject
func (s *Server) HandleRejectStep(w http.ResponseWriter, r *http.Request) {
	step, ok := s.stepParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.machine.RejectStep(r.Context(), id, step); err != nil {
		s.sendErr(w, err)
		return
	}
	st, err := s.machine.GetStep(r.Context(), id, step)
	if err != nil {
		s.sendErr(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, st)
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}
	if s.videos != nil {
		health["storage"] = s.videos.Name()
	}
	s.sendJSON(w, http.StatusOK, health)
}

// Helper methods

func (s *Server) stepParam(w http.ResponseWriter, r *http.Request) (schemas.StepName, bool) {
	step, err := schemas.ParseStepName(chi.URLParam(r, "step"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "not_found", err.Error())
		return "", false
	}
	return step, true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("response not written", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: code, Message: message, Code: status})
}

// sendErr maps domain errors to status codes
func (s *Server) sendErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, storage.ErrVideoNotFound):
		s.sendError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, workflow.ErrWorkflowClosed):
		s.sendError(w, http.StatusConflict, "workflow_closed", err.Error())
	case errors.Is(err, workflow.ErrPrecondition):
		s.sendError(w, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case errors.Is(err, workflow.ErrEmptyTopic), errors.Is(err, workflow.ErrInvalidPayload):
		s.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, pipeline.ErrStageFailed):
		s.sendError(w, http.StatusBadGateway, "stage_failed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.sendError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		s.log.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseListFilter(r *http.Request) (*store.ListFilter, error) {
	q := r.URL.Query()
	filter := &store.ListFilter{Topic: q.Get("topic"), SortOrder: q.Get("sort")}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = n
	}
	return filter, nil
}
