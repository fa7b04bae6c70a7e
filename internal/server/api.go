// Package server implements the REST API for data request management
// and execution.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/binding"
	"github.com/quarrylabs/quarry/internal/cache"
	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/models"
)

// APIServer handles the REST API for connections, data requests,
// bindings, saved queries, and run invocations.
type APIServer struct {
	DB       *sql.DB
	Engine   *engine.Orchestrator
	Bindings *binding.Store
	Cache    *cache.Controller
	Logger   *zap.Logger
	validate *validator.Validate
}

func NewAPIServer(database *sql.DB, orchestrator *engine.Orchestrator, bindings *binding.Store, cacheController *cache.Controller, logger *zap.Logger) *APIServer {
	return &APIServer{
		DB:       database,
		Engine:   orchestrator,
		Bindings: bindings,
		Cache:    cacheController,
		Logger:   logger.With(logging.Component("api")),
		validate: validator.New(),
	}
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/connections", s.handleCreateConnection)
	mux.HandleFunc("GET /v1/connections", s.handleListConnections)
	mux.HandleFunc("DELETE /v1/connections/{id}", s.handleDeleteConnection)

	mux.HandleFunc("POST /v1/datarequests", s.handleCreateDataRequest)
	mux.HandleFunc("GET /v1/datarequests", s.handleListDataRequests)
	mux.HandleFunc("GET /v1/datarequests/{id}", s.handleGetDataRequest)
	mux.HandleFunc("PUT /v1/datarequests/{id}", s.handleUpdateDataRequest)
	mux.HandleFunc("DELETE /v1/datarequests/{id}", s.handleDeleteDataRequest)
	mux.HandleFunc("POST /v1/datarequests/{id}/run", s.handleRun)

	mux.HandleFunc("GET /v1/datarequests/{id}/bindings", s.handleListBindings)
	mux.HandleFunc("PUT /v1/datarequests/{id}/bindings/{name}", s.handleSetBinding)
	mux.HandleFunc("DELETE /v1/datarequests/{id}/bindings/{name}", s.handleDeleteBinding)

	mux.HandleFunc("POST /v1/savedqueries", s.handleCreateSavedQuery)
	mux.HandleFunc("GET /v1/savedqueries", s.handleListSavedQueries)
	mux.HandleFunc("PUT /v1/savedqueries/{id}", s.handleUpdateSavedQuery)

	return mux
}

func (s *APIServer) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req api.CreateConnectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !models.ValidKind(req.Kind) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("unknown backend kind %q", req.Kind)})
		return
	}

	conn := &models.Connection{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Kind:     req.Kind,
		Host:     req.Host,
		Username: req.Username,
		Password: req.Password,
		Options:  req.Options,
	}
	if err := db.CreateConnection(s.DB, conn); err != nil {
		s.Logger.Error("failed to create connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	writeJSON(w, http.StatusCreated, connectionResponse(conn))
}

func (s *APIServer) handleListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := db.ListConnections(s.DB)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListConnectionsResponse{Connections: make([]api.ConnectionResponse, 0, len(connections))}
	for i := range connections {
		resp.Connections = append(resp.Connections, connectionResponse(&connections[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := db.GetConnection(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "connection not found"})
		return
	}

	// Data requests riding on this connection go with it, so their
	// cached responses must go too.
	requests, err := db.ListDataRequests(s.DB)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	for _, dr := range requests {
		if dr.ConnectionID == id {
			if err := s.Cache.InvalidateAll(dr.ID); err != nil {
				s.Logger.Warn("cache invalidation failed", logging.DataRequest(dr.ID), zap.Error(err))
			}
		}
	}

	if err := db.DeleteConnection(s.DB, id); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete connection"})
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: true})
}

func (s *APIServer) handleCreateDataRequest(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDataRequestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !models.ValidKind(req.Kind) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("unknown backend kind %q", req.Kind)})
		return
	}

	conn, err := db.GetConnection(s.DB, req.ConnectionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "connection not found"})
		return
	}

	dr := &models.DataRequest{
		ID:            uuid.NewString(),
		ConnectionID:  req.ConnectionID,
		Kind:          req.Kind,
		Template:      req.Template,
		Configuration: req.Configuration,
		Transform:     req.Transform,
	}
	if err := db.CreateDataRequest(s.DB, dr); err != nil {
		s.Logger.Error("failed to create data request", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	writeJSON(w, http.StatusCreated, dataRequestResponse(dr))
}

func (s *APIServer) handleListDataRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := db.ListDataRequests(s.DB)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListDataRequestsResponse{DataRequests: make([]api.DataRequestResponse, 0, len(requests))}
	for i := range requests {
		resp.DataRequests = append(resp.DataRequests, dataRequestResponse(&requests[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleGetDataRequest(w http.ResponseWriter, r *http.Request) {
	dr, err := db.GetDataRequest(s.DB, r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if dr == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "data request not found"})
		return
	}
	writeJSON(w, http.StatusOK, dataRequestResponse(dr))
}

// handleUpdateDataRequest mutates template, configuration, or transform.
// Any such edit supersedes previous fingerprints, so cached responses
// for the request are dropped.
func (s *APIServer) handleUpdateDataRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req api.UpdateDataRequestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Kind != "" && !models.ValidKind(req.Kind) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("unknown backend kind %q", req.Kind)})
		return
	}

	dr, err := db.GetDataRequest(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if dr == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "data request not found"})
		return
	}

	if req.Kind != "" {
		dr.Kind = req.Kind
	}
	dr.Template = req.Template
	dr.Configuration = req.Configuration
	dr.Transform = req.Transform

	if err := db.UpdateDataRequest(s.DB, dr); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to update data request"})
		return
	}
	if err := s.Cache.InvalidateAll(id); err != nil {
		s.Logger.Warn("cache invalidation failed", logging.DataRequest(id), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, dataRequestResponse(dr))
}

func (s *APIServer) handleDeleteDataRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	dr, err := db.GetDataRequest(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if dr == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "data request not found"})
		return
	}

	if err := s.Cache.InvalidateAll(id); err != nil {
		s.Logger.Warn("cache invalidation failed", logging.DataRequest(id), zap.Error(err))
	}
	if err := db.DeleteDataRequest(s.DB, id); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete data request"})
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: true})
}

func (s *APIServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req api.RunRequest
	if !s.decode(w, r, &req) {
		return
	}

	envelope, err := s.Engine.Run(r.Context(), id, engine.Options{BypassCache: req.BypassCache})
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
			return
		}
		s.Logger.Error("run failed", logging.DataRequest(id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	resp := api.RunResponse{
		Status:          string(envelope.Status),
		StatusCode:      envelope.StatusCode,
		Cached:          envelope.Cached,
		Response:        envelope.Response,
		Error:           envelope.Error,
		MissingRequired: envelope.MissingRequired,
	}
	writeJSON(w, httpStatusFor(envelope.Status), resp)
}

func httpStatusFor(status engine.Status) int {
	switch status {
	case engine.StatusDone:
		return http.StatusOK
	case engine.StatusValidationFailed:
		return http.StatusUnprocessableEntity
	case engine.StatusExecutionFailed:
		return http.StatusBadGateway
	case engine.StatusTransformFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) handleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.Bindings.List(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListBindingsResponse{Bindings: make([]api.BindingResponse, 0, len(bindings))}
	for _, b := range bindings {
		resp.Bindings = append(resp.Bindings, bindingResponse(&b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleSetBinding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := r.PathValue("name")

	var req api.SetBindingRequest
	if !s.decode(w, r, &req) {
		return
	}

	dr, err := db.GetDataRequest(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if dr == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "data request not found"})
		return
	}

	saved, err := s.Bindings.Set(id, models.VariableBinding{
		Name:         name,
		Type:         req.Type,
		DefaultValue: req.DefaultValue,
		Required:     req.Required,
		Value:        req.Value,
	})
	if err != nil {
		s.Logger.Error("failed to save binding", logging.DataRequest(id), logging.Binding(name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to save binding"})
		return
	}

	writeJSON(w, http.StatusOK, bindingResponse(saved))
}

func (s *APIServer) handleDeleteBinding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := r.PathValue("name")

	b, err := s.Bindings.Get(id, name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if b == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "binding not found"})
		return
	}

	if err := s.Bindings.Delete(id, name); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete binding"})
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: true})
}

func (s *APIServer) handleCreateSavedQuery(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSavedQueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	q := &models.SavedQuery{
		ID:      uuid.NewString(),
		Type:    req.Type,
		Summary: req.Summary,
		Query:   req.Query,
	}
	if err := db.CreateSavedQuery(s.DB, q); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	writeJSON(w, http.StatusCreated, savedQueryResponse(q))
}

func (s *APIServer) handleListSavedQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := db.ListSavedQueries(s.DB, r.URL.Query().Get("type"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListSavedQueriesResponse{SavedQueries: make([]api.SavedQueryResponse, 0, len(queries))}
	for i := range queries {
		resp.SavedQueries = append(resp.SavedQueries, savedQueryResponse(&queries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleUpdateSavedQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req api.UpdateSavedQueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	q, err := db.GetSavedQuery(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if q == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "saved query not found"})
		return
	}

	if req.Summary != "" {
		q.Summary = req.Summary
	}
	q.Query = req.Query
	if err := db.UpdateSavedQuery(s.DB, q); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to update saved query"})
		return
	}
	writeJSON(w, http.StatusOK, savedQueryResponse(q))
}

// decode reads, strictly parses, and validates a JSON request body.
// A false return means a response has already been written.
func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && err != io.EOF {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "request body too large"})
				return false
			}
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid JSON"})
			return false
		}
		// Ensure no trailing data
		if dec.Decode(&struct{}{}) != io.EOF {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "unexpected trailing data"})
			return false
		}
	}

	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func connectionResponse(c *models.Connection) api.ConnectionResponse {
	return api.ConnectionResponse{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      c.Kind,
		Host:      c.Host,
		CreatedAt: time.Unix(c.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}

func dataRequestResponse(dr *models.DataRequest) api.DataRequestResponse {
	return api.DataRequestResponse{
		ID:            dr.ID,
		ConnectionID:  dr.ConnectionID,
		Kind:          dr.Kind,
		Template:      dr.Template,
		Configuration: dr.Configuration,
		Transform:     dr.Transform,
		CreatedAt:     time.Unix(dr.CreatedAt, 0).UTC().Format(time.RFC3339),
		UpdatedAt:     time.Unix(dr.UpdatedAt, 0).UTC().Format(time.RFC3339),
	}
}

func bindingResponse(b *models.VariableBinding) api.BindingResponse {
	return api.BindingResponse{
		Name:         b.Name,
		Type:         b.Type,
		DefaultValue: b.DefaultValue,
		Required:     b.Required,
		Value:        b.Value,
	}
}

func savedQueryResponse(q *models.SavedQuery) api.SavedQueryResponse {
	return api.SavedQueryResponse{
		ID:        q.ID,
		Type:      q.Type,
		Summary:   q.Summary,
		Query:     q.Query,
		CreatedAt: time.Unix(q.CreatedAt, 0).UTC().Format(time.RFC3339),
		UpdatedAt: time.Unix(q.UpdatedAt, 0).UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
