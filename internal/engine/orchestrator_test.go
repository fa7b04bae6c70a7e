package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/binding"
	"github.com/quarrylabs/quarry/internal/cache"
	"github.com/quarrylabs/quarry/internal/connector"
	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// stubConnector records executions and returns a canned result.
type stubConnector struct {
	kind         string
	calls        int
	result       *connector.RawResult
	err          error
	lastResolved *template.ResolvedRequest
}

func (s *stubConnector) Kind() string { return s.kind }

func (s *stubConnector) Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*connector.RawResult, error) {
	s.calls++
	s.lastResolved = resolved
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type harness struct {
	db           *sql.DB
	orchestrator *Orchestrator
	bindings     *binding.Store
	stub         *stubConnector
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.CreateConnection(database, &models.Connection{
		ID: "conn-1", Name: "test", Kind: models.KindHTTP, Host: "https://api.example.com",
	}))

	logger := zap.NewNop()
	cacheController := cache.NewController(database)
	bindings := binding.NewStore(database, cacheController, logger)
	stub := &stubConnector{
		kind:   models.KindHTTP,
		result: &connector.RawResult{Body: []byte(`[{"id":1,"status":"active"}]`), StatusCode: 200, StatusText: "200 OK"},
	}
	registry := connector.NewRegistry(stub)
	orchestrator := NewOrchestrator(database, bindings, cacheController, registry, time.Second, logger)

	return &harness{db: database, orchestrator: orchestrator, bindings: bindings, stub: stub}
}

func (h *harness) createRequest(t *testing.T, dr *models.DataRequest) {
	t.Helper()
	dr.ConnectionID = "conn-1"
	if dr.Kind == "" {
		dr.Kind = models.KindHTTP
	}
	require.NoError(t, db.CreateDataRequest(h.db, dr))
}

func TestRunValidationFailedSkipsConnector(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "status = {{status}}"})
	_, err := h.bindings.Set("dr-1", models.VariableBinding{Name: "status", Type: models.TypeString, Required: true, Value: ""})
	require.NoError(t, err)

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusValidationFailed, envelope.Status)
	assert.Equal(t, []string{"status"}, envelope.MissingRequired)
	assert.Equal(t, 0, h.stub.calls, "connector must never be reached on validation failure")
}

func TestRunMissThenHit(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "status = {{status}}"})
	_, err := h.bindings.Set("dr-1", models.VariableBinding{Name: "status", Type: models.TypeString, Required: true, Value: "active"})
	require.NoError(t, err)

	first, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, first.Status)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, h.stub.calls)
	assert.Equal(t, "status = active", h.stub.lastResolved.Body)

	second, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, second.Status)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, h.stub.calls, "cache hit must not invoke the connector again")
	assert.Equal(t, first.Response, second.Response)
}

func TestRunBypassAlwaysExecutes(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "/users"})

	_, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, h.stub.calls)

	h.stub.result = &connector.RawResult{Body: []byte(`[{"id":2}]`), StatusCode: 200, StatusText: "200 OK"}

	bypassed, err := h.orchestrator.Run(context.Background(), "dr-1", Options{BypassCache: true})
	require.NoError(t, err)

	assert.Equal(t, 2, h.stub.calls, "bypass must invoke the connector even with an unchanged fingerprint")
	assert.False(t, bypassed.Cached)

	// The bypassed run refreshed the stored entry.
	cached, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, bypassed.Response, cached.Response)
}

func TestRunBindingChangeIsMiss(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "status = {{status}}"})
	_, err := h.bindings.Set("dr-1", models.VariableBinding{Name: "status", Type: models.TypeString, Value: "active"})
	require.NoError(t, err)

	_, err = h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, h.stub.calls)

	_, err = h.bindings.Set("dr-1", models.VariableBinding{Name: "status", Type: models.TypeString, Value: "archived"})
	require.NoError(t, err)

	_, err = h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, h.stub.calls, "changed binding value must be a cache miss")
}

func TestRunConnectorFailureNotCached(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "/users"})
	h.stub.err = &connector.Failure{Message: "connection refused"}

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusExecutionFailed, envelope.Status)
	assert.Equal(t, "connection refused", envelope.Error)

	// The failure was not cached: a retry reaches the connector again.
	h.stub.err = nil
	retried, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, retried.Status)
	assert.False(t, retried.Cached)
	assert.Equal(t, 2, h.stub.calls)
}

func TestRunBackendErrorStatus(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "/users"})
	h.stub.result = &connector.RawResult{Body: []byte(`{"error":"forbidden"}`), StatusCode: 403, StatusText: "403 Forbidden"}

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusExecutionFailed, envelope.Status)
	assert.Equal(t, 403, envelope.StatusCode)
}

func TestRunTransformFailureNotCached(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{
		ID:       "dr-1",
		Template: "/users",
		Transform: &models.TransformSpec{
			Enabled: true,
			Steps: []models.TransformStep{
				{Type: "pick", Fields: []string{"id"}},
				{Type: "filter", Field: "status", Op: "eq", Value: "active"},
			},
		},
	})

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusTransformFailed, envelope.Status)

	// No cache write happened: the next run executes again.
	_, err = h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, h.stub.calls)
}

func TestRunTransformApplied(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{
		ID:       "dr-1",
		Template: "/users",
		Transform: &models.TransformSpec{
			Enabled: true,
			Steps:   []models.TransformStep{{Type: "pick", Fields: []string{"id"}}},
		},
	})

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, envelope.Status)
	assert.JSONEq(t, `[{"id":1}]`, string(envelope.Response))

	// The cached entry holds the transformed payload; a hit returns it
	// without re-running the pipeline.
	second, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.JSONEq(t, `[{"id":1}]`, string(second.Response))
}

func TestRunUnknownTypeIsValidationFailed(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Template: "{{v}}"})

	// Write an invalid type directly; Store.Set would reject it.
	_, err := h.db.Exec(
		`INSERT INTO variable_bindings (data_request_id, name, type, default_value, required, value, created_at, updated_at)
		 VALUES ('dr-1', 'v', 'uuid', '', 0, 'x', 0, 0)`)
	require.NoError(t, err)

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusValidationFailed, envelope.Status)
	assert.Equal(t, 0, h.stub.calls)
}

func TestRunUnknownDataRequest(t *testing.T) {
	h := setupHarness(t)

	_, err := h.orchestrator.Run(context.Background(), "nope", Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunUnregisteredKind(t *testing.T) {
	h := setupHarness(t)
	h.createRequest(t, &models.DataRequest{ID: "dr-1", Kind: models.KindSQL, Template: "SELECT 1"})

	envelope, err := h.orchestrator.Run(context.Background(), "dr-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusValidationFailed, envelope.Status)
}
