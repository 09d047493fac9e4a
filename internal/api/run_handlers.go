package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/pipeline"
)

func (s *Server) registerRunRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startRun",
		Method:        http.MethodPost,
		Path:          "/api/v1/runs",
		Summary:       "Start a pipeline run",
		Description:   "Scans every configured source in the background. Fails with 409 while a run is active.",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartRun)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLatestRun",
		Method:      http.MethodGet,
		Path:        "/api/v1/runs/latest",
		Summary:     "Latest run",
		Description: "Returns the summary of the last run started through the API",
		Tags:        []string{"Runs"},
	}, s.handleLatestRun)
}

// StartRunResponse acknowledges a run request.
type StartRunResponse struct {
	Status  string   `json:"status" doc:"Always 'started'"`
	Sources []string `json:"sources" doc:"Sources the run will scan"`
}

// StartRunOutput wraps the acknowledgement for Huma.
type StartRunOutput struct {
	Body StartRunResponse
}

// LatestRunResponse reports the last run.
type LatestRunResponse struct {
	Running bool               `json:"running" doc:"Whether a run is in progress"`
	Summary *domain.RunSummary `json:"summary" doc:"Summary of the last finished run"`
	Error   string             `json:"error,omitempty" doc:"Error that ended the last run"`
}

// LatestRunOutput wraps the latest run for Huma.
type LatestRunOutput struct {
	Body LatestRunResponse
}

func (s *Server) handleStartRun(_ context.Context, _ *struct{}) (*StartRunOutput, error) {
	if s.runner == nil {
		return nil, errors.Internal("pipeline not configured", nil)
	}
	if s.runner.Running() {
		return nil, pipeline.ErrRunInProgress
	}

	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		summary, err := s.runner.Run(s.runCtx, s.sources...)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.Info("run request raced with an active run")
			return
		}
		if err != nil {
			s.logger.Error("pipeline run failed", "error", err)
		}

		s.mu.Lock()
		s.lastRun, s.lastErr = summary, err
		s.mu.Unlock()
	}()

	return &StartRunOutput{Body: StartRunResponse{Status: "started", Sources: names}}, nil
}

func (s *Server) handleLatestRun(_ context.Context, _ *struct{}) (*LatestRunOutput, error) {
	s.mu.RLock()
	summary, err := s.lastRun, s.lastErr
	s.mu.RUnlock()

	if summary == nil && err == nil {
		return nil, errors.NotFound("no run has finished yet")
	}

	resp := LatestRunResponse{Summary: summary}
	if s.runner != nil {
		resp.Running = s.runner.Running()
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return &LatestRunOutput{Body: resp}, nil
}
