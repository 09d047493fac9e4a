package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Overall health states.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthDown     = "down"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports catalog reachability, configured sources and the outcome of the last run. " +
			"Answers 503 when the catalog cannot be reached.",
		Tags: []string{"Health"},
	}, s.handleHealthCheck)
}

// CatalogHealth is the result of pinging the catalog database.
type CatalogHealth struct {
	Reachable bool   `json:"reachable"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LastRunHealth summarises the most recent run started through the API.
type LastRunHealth struct {
	ID       string    `json:"id"`
	Finished time.Time `json:"finished_at"`
	Failed   int       `json:"failed"`
	Error    string    `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string         `json:"status" enum:"ok,degraded,down"`
	Catalog CatalogHealth  `json:"catalog"`
	Sources []string       `json:"sources"`
	Running bool           `json:"running" doc:"Whether a pipeline run is in progress"`
	LastRun *LastRunHealth `json:"last_run,omitempty"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:  healthOK,
		Catalog: s.pingCatalog(ctx),
		Sources: make([]string, 0, len(s.sources)),
		Running: s.runner != nil && s.runner.Running(),
		LastRun: s.lastRunHealth(),
	}
	for _, src := range s.sources {
		resp.Sources = append(resp.Sources, src.Name())
	}

	switch {
	case !resp.Catalog.Reachable:
		resp.Status = healthDown
	case len(resp.Sources) == 0,
		resp.LastRun != nil && (resp.LastRun.Error != "" || resp.LastRun.Failed > 0):
		resp.Status = healthDegraded
	}

	status := http.StatusOK
	if resp.Status == healthDown {
		status = http.StatusServiceUnavailable
	}
	return &HealthOutput{Status: status, Body: resp}, nil
}

func (s *Server) pingCatalog(ctx context.Context) CatalogHealth {
	if s.catalog == nil {
		return CatalogHealth{Error: "catalog not configured"}
	}

	start := time.Now()
	err := s.catalog.Ping(ctx)
	latency := time.Since(start).Round(time.Microsecond).String()
	if err != nil {
		s.logger.Warn("catalog ping failed", "error", err)
		return CatalogHealth{Latency: latency, Error: err.Error()}
	}
	return CatalogHealth{Reachable: true, Latency: latency}
}

func (s *Server) lastRunHealth() *LastRunHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastRun == nil && s.lastErr == nil {
		return nil
	}
	h := &LastRunHealth{}
	if s.lastRun != nil {
		h.ID = s.lastRun.ID
		h.Finished = s.lastRun.FinishedAt
		h.Failed = s.lastRun.Failed
	}
	if s.lastErr != nil {
		h.Error = s.lastErr.Error()
	}
	return h
}
