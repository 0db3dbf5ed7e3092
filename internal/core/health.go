package core

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the total time allowed for all probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem health check (audit sink, remote API
// reachability). Probes must respect the context deadline.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// RegisterHealthProbe adds a probe; called by the entry point before
// MountRoutes.
func (s *Server) RegisterHealthProbe(p HealthProbe) {
	s.healthProbes = append(s.healthProbes, p)
}

// HandleHealth runs all registered probes concurrently under a short
// deadline. Returns 200 when everything is healthy, 503 otherwise. Public,
// mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:     "ok",
		Components: make(map[string]componentStatus, len(s.healthProbes)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, probe := range s.healthProbes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := p.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				resp.Status = "degraded"
				resp.Components[p.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				resp.Components[p.Name()] = componentStatus{Status: "ok"}
			}
		}(probe)
	}
	wg.Wait()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
