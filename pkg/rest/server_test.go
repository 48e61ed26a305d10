package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/internal/testutil"
	"github.com/sqlgate/sqlgate/pkg/httputil"
	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
)

type fixedSource struct {
	defs *registry.Definitions
}

func (s *fixedSource) Load(ctx context.Context) (*registry.Definitions, error) {
	return s.defs, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := testutil.Registry()
	store := registry.NewStore(reg, &fixedSource{defs: testutil.Definitions()}, zap.NewNop())
	pools := pgpool.NewManager(reg.DatabaseDefs(), zap.NewNop())
	t.Cleanup(pools.Close)

	server := NewServer(store, pools, zap.NewNop(), Options{})
	t.Cleanup(func() { server.Shutdown(context.Background()) })
	return server
}

func do(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestManagementListings(t *testing.T) {
	server := newTestServer(t)

	t.Run("endpoints", func(t *testing.T) {
		rec := do(t, server, "GET", "/api/endpoints")
		require.Equal(t, http.StatusOK, rec.Code)

		var eps []registry.EndpointDefinition
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&eps))
		require.Len(t, eps, 2)
		assert.Equal(t, "get-order", eps[0].Name)
		assert.Equal(t, "list-orders", eps[1].Name)
	})

	t.Run("queries", func(t *testing.T) {
		rec := do(t, server, "GET", "/api/queries")
		require.Equal(t, http.StatusOK, rec.Code)

		var qs []registry.QueryDefinition
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&qs))
		assert.Len(t, qs, 3)
	})

	t.Run("databases mask credentials", func(t *testing.T) {
		rec := do(t, server, "GET", "/api/databases")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("config validation report", func(t *testing.T) {
		rec := do(t, server, "GET", "/api/validation/config")
		require.Equal(t, http.StatusOK, rec.Code)

		var report registry.ValidationReport
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
		assert.True(t, report.Valid())
		assert.Equal(t, 2, report.Endpoints)
	})
}

func TestMissingRequiredParameterRejectedBeforeExecution(t *testing.T) {
	server := newTestServer(t)

	// list-orders requires customer; binding fails before any pool is touched
	rec := do(t, server, "GET", "/orders")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Message, `missing required parameter "customer"`)
}

func TestPaginationBoundsRejected(t *testing.T) {
	server := newTestServer(t)

	rec := do(t, server, "GET", "/orders?customer=acme&size=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, "GET", "/orders?customer=acme&size=500")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "exceeds maximum")
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(t)
	rec := do(t, server, "GET", "/no/such/route")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownJobIs404(t *testing.T) {
	server := newTestServer(t)
	rec := do(t, server, "GET", "/api/jobs/2c9e41e9-0000-0000-0000-000000000000")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "unknown job id")
}

func TestAsyncSubmissionAccepted(t *testing.T) {
	server := newTestServer(t)

	rec := do(t, server, "GET", "/orders?customer=acme&async=true")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, TypeAccepted, env.Type)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	id, ok := data["requestId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	// the job record is visible immediately, whatever state it is in
	rec = do(t, server, "GET", "/api/jobs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)

	var job Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "list-orders", job.Endpoint)
}

func TestRequestIDHeaderSet(t *testing.T) {
	server := newTestServer(t)
	rec := do(t, server, "GET", "/api/endpoints")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReloadSwapsRoutes(t *testing.T) {
	reg := testutil.Registry()

	next := testutil.Definitions()
	next.AddQuery("fixture", registry.QueryDefinition{
		Name:     "ping",
		SQL:      "SELECT 1 AS one",
		Database: "warehouse",
	})
	next.AddEndpoint("fixture", registry.EndpointDefinition{
		Name:   "ping",
		Method: "GET",
		Path:   "/ping",
		Query:  "ping",
	})

	store := registry.NewStore(reg, &fixedSource{defs: next}, zap.NewNop())
	pools := pgpool.NewManager(reg.DatabaseDefs(), zap.NewNop())
	defer pools.Close()

	server := NewServer(store, pools, zap.NewNop(), Options{})
	defer server.Shutdown(context.Background())

	rec := do(t, server, "GET", "/api/endpoints")
	var eps []registry.EndpointDefinition
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&eps))
	require.Len(t, eps, 2)

	require.NoError(t, store.Reload(context.Background()))

	rec = do(t, server, "GET", "/api/endpoints")
	eps = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&eps))
	assert.Len(t, eps, 3)
}
