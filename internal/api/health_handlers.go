package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Uptime     string                     `json:"uptime" doc:"Time since the server started"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"sessions": {
			Status:  "healthy",
			Message: strconv.Itoa(s.registry.Len()) + " active",
		},
		"events": s.checkEvents(),
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(s.started).Round(time.Second).String(),
			Components: components,
		},
	}, nil
}

// checkEvents reports the event stream. A server without push is degraded, not down.
func (s *Server) checkEvents() ComponentHealth {
	if s.push == nil {
		return ComponentHealth{Status: "degraded", Message: "event stream disabled"}
	}
	return ComponentHealth{
		Status:  "healthy",
		Message: strconv.Itoa(s.push.ClientCount()) + " clients connected",
	}
}
