package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/sqlgate/sqlgate/pkg/httputil"
	"github.com/sqlgate/sqlgate/pkg/schemacheck"
)

// Health states for the aggregate and per-database health report.
const (
	HealthUp       = "UP"
	HealthDegraded = "DEGRADED"
	HealthDown     = "DOWN"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Databases map[string]string `json:"databases"`
	Timestamp time.Time         `json:"timestamp"`
}

// registerManagement wires the fixed read-only endpoints under the reserved
// /api/ prefix: registry listings, validation reports, health, and async
// job retrieval.
func (s *Server) registerManagement(router *httputil.Router) {
	api := router.Group("/api")

	api.HandleFunc("GET", "/health", s.handleHealth)
	api.HandleFunc("GET", "/endpoints", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, s.store.Current().Endpoints())
	})
	api.HandleFunc("GET", "/queries", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, s.store.Current().Queries())
	})
	api.HandleFunc("GET", "/databases", func(w http.ResponseWriter, r *http.Request) {
		// DatabaseDefinition masks credentials in its JSON shape.
		httputil.JSON(w, http.StatusOK, s.store.Current().Databases())
	})
	api.HandleFunc("GET", "/validation/config", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, s.store.Current().ValidateChain())
	})
	api.HandleFunc("GET", "/validation/schema", func(w http.ResponseWriter, r *http.Request) {
		reg := s.store.Current()
		report := schemacheck.New(reg.Definitions(), s.pools, s.logger).Run(r.Context())
		httputil.JSON(w, http.StatusOK, report)
	})
	api.HandleFunc("GET", "/jobs/{id}", s.handleJob)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown job id")
		return
	}
	httputil.JSON(w, http.StatusOK, job)
}

// handleHealth probes every database reachable from a registered endpoint.
// All reachable is UP, some is DEGRADED, none is DOWN.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg := s.store.Current()
	names := reg.EndpointDatabases()

	resp := healthResponse{
		Databases: make(map[string]string, len(names)),
		Timestamp: time.Now().UTC(),
	}

	up := 0
	for _, name := range names {
		ctx, cancel := contextWithProbeTimeout(r)
		err := s.pools.HealthCheck(ctx, name)
		cancel()
		if err != nil {
			resp.Databases[name] = HealthDown
			continue
		}
		resp.Databases[name] = HealthUp
		up++
	}

	code := http.StatusOK
	switch {
	case len(names) == 0 || up == len(names):
		resp.Status = HealthUp
	case up > 0:
		resp.Status = HealthDegraded
	default:
		resp.Status = HealthDown
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, resp)
}

func contextWithProbeTimeout(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), 3*time.Second)
}
