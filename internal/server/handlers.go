package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/db"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// MethodStartWorkflow is the JSON-RPC method served at /a2a.
const MethodStartWorkflow = "start_recruiting_workflow"

const maxRequestBytes = 1 << 20

// RunWorkflowRequest is the body of /run_workflow and the params of
// start_recruiting_workflow.
type RunWorkflowRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Title    string    `json:"title"`
	Skills   SkillList `json:"skills"`
}

// SkillList accepts either a comma-separated string or an array of strings.
type SkillList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *SkillList) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = types.ParseSkills(str)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("skills must be a string or an array of strings")
	}
	*s = list
	return nil
}

func (r RunWorkflowRequest) workflowRequest() workflow.Request {
	return workflow.Request{
		Credentials: types.Credentials{Username: r.Username, Password: r.Password},
		Criteria:    types.SearchCriteria{Title: r.Title, Skills: []string(r.Skills)},
	}
}

// RunListResponse is the body of GET /runs.
type RunListResponse struct {
	Runs  []db.Run `json:"runs"`
	Count int      `json:"count"`
}

// RunDetailResponse is the body of GET /runs/{id}.
type RunDetailResponse struct {
	Run      *db.Run      `json:"run"`
	Outcomes []db.Outcome `json:"outcomes"`
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (RunWorkflowRequest, error) {
	var req RunWorkflowRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, err
		}
		return req, &ErrValidation{Field: "body", Message: err.Error()}
	}
	return req, nil
}

// handleRunWorkflow runs one workflow and returns its report. A run rejected
// by input validation is a 400 carrying the same report.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report := s.runner.Run(r.Context(), req.workflowRequest())

	status := http.StatusOK
	if report.State == workflow.StateValidationFailed {
		status = http.StatusBadRequest
	}
	s.jsonResponse(w, status, report)
}

// handleRunWorkflowStream runs one workflow, streaming progress events and a
// final complete event carrying the report.
func (s *Server) handleRunWorkflowStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// A streamed run lasts as long as its batch; the server-wide write timeout
	// would cut it off mid-stream.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug("write deadline not cleared", zap.Error(err))
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	wreq := req.workflowRequest()
	wreq.OnProgress = func(event workflow.ProgressEvent) {
		if err := sse.WriteEvent("progress", event); err != nil {
			s.log.Debug("progress event dropped", zap.String("run_id", event.RunID), zap.Error(err))
		}
	}

	report := s.runner.Run(r.Context(), wreq)
	sse.WriteComplete(report)
}

// startRecruitingWorkflow serves the JSON-RPC form of /run_workflow.
func (s *Server) startRecruitingWorkflow(ctx context.Context, params json.RawMessage) (any, error) {
	var req RunWorkflowRequest
	if err := rpc.DecodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, req.workflowRequest()), nil
}

// handleListRuns lists stored runs, filtered by ?username=, ?state= and ?limit=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, &ErrStoreUnavailable{})
		return
	}

	q := r.URL.Query()
	filters := db.RunFilters{Username: q.Get("username"), State: q.Get("state")}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			s.writeError(w, &ErrValidation{Field: "limit", Message: "must be an integer between 1 and 500"})
			return
		}
		filters.Limit = limit
	}

	runs, err := s.store.ListRuns(r.Context(), filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun returns one stored run with its outcomes.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, &ErrStoreUnavailable{})
		return
	}

	idStr := chi.URLParam(r, "id")
	runID, err := uuid.Parse(idStr)
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "invalid run ID format"})
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if run == nil {
		s.writeError(w, &ErrRunNotFound{RunID: idStr})
		return
	}

	outcomes, err := s.store.ListOutcomes(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, RunDetailResponse{Run: run, Outcomes: outcomes})
}
