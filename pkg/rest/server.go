package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/httputil"
	mw "github.com/sqlgate/sqlgate/pkg/httputil/middleware"
	"github.com/sqlgate/sqlgate/pkg/metrics"
	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
)

// Server dispatches requests for every configured endpoint. Routes are
// rebuilt from the current registry snapshot whenever the store swaps one
// in; the live handler is swapped atomically so in-flight requests keep the
// router they started with.
type Server struct {
	store   *registry.Store
	pools   *pgpool.Manager
	exec    *Executor
	jobs    *JobStore
	logger  *zap.Logger
	baseURL string

	handler    atomic.Pointer[http.Handler]
	httpServer *http.Server
	middleware []httputil.Middleware
}

// Options tunes the server beyond its dependencies.
type Options struct {
	BaseURL      string
	AsyncWorkers int64
	JobTimeout   time.Duration
	JobTTL       time.Duration
	Middleware   []httputil.Middleware // replaces the default chain when set
}

func NewServer(store *registry.Store, pools *pgpool.Manager, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		store:   store,
		pools:   pools,
		exec:    NewExecutor(pools, logger),
		jobs:    NewJobStore(opts.AsyncWorkers, opts.JobTimeout, opts.JobTTL, logger),
		logger:  logger,
		baseURL: opts.BaseURL,
	}

	s.middleware = opts.Middleware
	if s.middleware == nil {
		s.middleware = []httputil.Middleware{
			mw.RequestID,
			mw.CORSWithOptions(nil),
			mw.Logger(logger),
		}
	}

	s.rebuild(store.Current())
	store.OnSwap(func(reg *registry.Registry) {
		s.pools.Reset(reg.DatabaseDefs())
		s.rebuild(reg)
	})
	return s
}

// rebuild registers management routes and all configured endpoints, in
// specificity order, onto a fresh router and publishes it.
func (s *Server) rebuild(reg *registry.Registry) {
	router := httputil.NewRouter()
	router.Use(s.middleware...)

	s.registerManagement(router)

	base := router
	if s.baseURL != "" {
		base = router.Group(s.baseURL)
	}
	for _, ep := range orderEndpoints(reg.Endpoints()) {
		handler, err := s.endpointHandler(reg, ep)
		if err != nil {
			// Unreachable on a validated registry; refuse the one route
			// rather than the whole snapshot.
			s.logger.Error("skipping endpoint registration",
				zap.String("endpoint", ep.Name), zap.Error(err))
			continue
		}
		base.Handle(ep.Method, ep.Path, handler)
		s.logger.Debug("registered endpoint",
			zap.String("endpoint", ep.Name),
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
		)
	}

	h := router.Handler()
	s.handler.Store(&h)
}

// endpointHandler resolves the endpoint's queries once, at registration
// time, and captures the typed records in the handler closure: request-path
// code never goes back through string-keyed lookup.
func (s *Server) endpointHandler(reg *registry.Registry, ep registry.EndpointDefinition) (http.Handler, error) {
	q, ok := reg.Query(ep.Query)
	if !ok {
		return nil, internalf("endpoint %q references unknown query %q", ep.Name, ep.Query)
	}
	var countQ *registry.QueryDefinition
	if ep.CountQuery != "" {
		cq, ok := reg.Query(ep.CountQuery)
		if !ok {
			return nil, internalf("endpoint %q references unknown count query %q", ep.Name, ep.CountQuery)
		}
		countQ = &cq
	}
	pathParams := ep.PathParams()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		defer func() {
			metrics.EndpointRequests.WithLabelValues(ep.Name, strconv.Itoa(status)).Inc()
			metrics.EndpointDuration.WithLabelValues(ep.Name).Observe(time.Since(start).Seconds())
		}()

		values := buildParamMap(r, pathParams)

		run := func(ctx context.Context) (*Envelope, *StatusError) {
			if ep.Pagination != nil && ep.Pagination.Enabled {
				pr, serr := pageFromValues(values, ep.Pagination)
				if serr != nil {
					return nil, serr
				}
				bound, serr := bindParams(q.Parameters, values)
				if serr != nil {
					return nil, serr
				}
				return s.exec.Paginated(ctx, q, countQ, bound, pr)
			}
			bound, serr := bindParams(q.Parameters, values)
			if serr != nil {
				return nil, serr
			}
			return s.exec.Single(ctx, q, bound)
		}

		if cast.ToBool(values["async"]) {
			id := uuid.New().String()
			if serr := s.jobs.Submit(id, ep.Name, run); serr != nil {
				status = serr.Code
				httputil.Error(w, serr.Code, serr.Message)
				return
			}
			status = http.StatusAccepted
			httputil.JSON(w, status, envelope(TypeAccepted, map[string]string{"requestId": id}))
			return
		}

		env, serr := run(r.Context())
		if serr != nil {
			status = serr.Code
			httputil.Error(w, serr.Code, serr.Message)
			return
		}
		httputil.JSON(w, status, env)
	}), nil
}

// ServeHTTP delegates to the current atomically published handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("server listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the async job store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobs.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
