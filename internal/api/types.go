// Package api defines the request and response types for the REST API.
package api

import (
	"encoding/json"

	"github.com/quarrylabs/quarry/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateConnectionRequest struct {
	Name     string            `json:"name" validate:"required"`
	Kind     string            `json:"kind" validate:"required"`
	Host     string            `json:"host" validate:"required"`
	Username *string           `json:"username,omitempty"`
	Password *string           `json:"password,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

type ConnectionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Host      string `json:"host"`
	CreatedAt string `json:"created_at"`
}

type ListConnectionsResponse struct {
	Connections []ConnectionResponse `json:"connections"`
}

type CreateDataRequestRequest struct {
	ConnectionID  string                `json:"connection_id" validate:"required"`
	Kind          string                `json:"kind" validate:"required"`
	Template      string                `json:"template"`
	Configuration map[string]any        `json:"configuration,omitempty"`
	Transform     *models.TransformSpec `json:"transform,omitempty"`
}

type UpdateDataRequestRequest struct {
	Kind          string                `json:"kind"`
	Template      string                `json:"template"`
	Configuration map[string]any        `json:"configuration,omitempty"`
	Transform     *models.TransformSpec `json:"transform,omitempty"`
}

type DataRequestResponse struct {
	ID            string                `json:"id"`
	ConnectionID  string                `json:"connection_id"`
	Kind          string                `json:"kind"`
	Template      string                `json:"template"`
	Configuration map[string]any        `json:"configuration,omitempty"`
	Transform     *models.TransformSpec `json:"transform,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

type ListDataRequestsResponse struct {
	DataRequests []DataRequestResponse `json:"data_requests"`
}

type SetBindingRequest struct {
	Type         string `json:"type" validate:"required,oneof=string number boolean date"`
	DefaultValue string `json:"default_value"`
	Required     bool   `json:"required"`
	Value        string `json:"value"`
}

type BindingResponse struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultValue string `json:"default_value"`
	Required     bool   `json:"required"`
	Value        string `json:"value"`
}

type ListBindingsResponse struct {
	Bindings []BindingResponse `json:"bindings"`
}

type RunRequest struct {
	BypassCache bool `json:"bypass_cache"`
}

type RunResponse struct {
	Status          string          `json:"status"`
	StatusCode      int             `json:"status_code,omitempty"`
	Cached          bool            `json:"cached"`
	Response        json.RawMessage `json:"response,omitempty"`
	Error           string          `json:"error,omitempty"`
	MissingRequired []string        `json:"missing_required,omitempty"`
}

type CreateSavedQueryRequest struct {
	Type    string `json:"type" validate:"required"`
	Summary string `json:"summary" validate:"required"`
	Query   string `json:"query" validate:"required"`
}

type UpdateSavedQueryRequest struct {
	Summary string `json:"summary"`
	Query   string `json:"query" validate:"required"`
}

type SavedQueryResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	Query     string `json:"query"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ListSavedQueriesResponse struct {
	SavedQueries []SavedQueryResponse `json:"saved_queries"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}
