// Package engine coordinates template resolution, cache checks,
// connector execution, and the transform pipeline for one invocation.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/binding"
	"github.com/quarrylabs/quarry/internal/cache"
	"github.com/quarrylabs/quarry/internal/connector"
	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/template"
	"github.com/quarrylabs/quarry/internal/transform"
)

// Status is the terminal state of one invocation. Exactly one status is
// surfaced per call.
type Status string

const (
	StatusDone             Status = "done"
	StatusValidationFailed Status = "validation_failed"
	StatusExecutionFailed  Status = "execution_failed"
	StatusTransformFailed  Status = "transform_failed"
)

// ErrNotFound reports a run against an unknown data request or connection.
var ErrNotFound = errors.New("not found")

// Envelope is the result of one invocation handed back to callers.
type Envelope struct {
	Status          Status
	StatusCode      int
	Response        []byte
	Error           string
	MissingRequired []string
	Cached          bool
}

// Options carries per-invocation flags.
type Options struct {
	// BypassCache forces a fresh execution and refreshes the stored
	// entry even when the fingerprint is unchanged.
	BypassCache bool
}

// Orchestrator runs data requests. Each invocation is independent and
// stateless beyond its inputs; the cache controller and binding store
// own the only shared mutable state.
type Orchestrator struct {
	db               *sql.DB
	bindings         *binding.Store
	cache            *cache.Controller
	connectors       *connector.Registry
	connectorTimeout time.Duration
	logger           *zap.Logger
}

func NewOrchestrator(database *sql.DB, bindings *binding.Store, cacheController *cache.Controller, connectors *connector.Registry, connectorTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		db:               database,
		bindings:         bindings,
		cache:            cacheController,
		connectors:       connectors,
		connectorTimeout: connectorTimeout,
		logger:           logger.With(logging.Component("engine")),
	}
}

// Run resolves, executes, and transforms one data request. Terminal
// outcomes are reported in the envelope; an error return means the
// request could not even be loaded.
func (o *Orchestrator) Run(ctx context.Context, dataRequestID string, opts Options) (*Envelope, error) {
	dr, err := db.GetDataRequest(o.db, dataRequestID)
	if err != nil {
		return nil, fmt.Errorf("load data request: %w", err)
	}
	if dr == nil {
		return nil, fmt.Errorf("data request %s: %w", dataRequestID, ErrNotFound)
	}

	conn, err := db.GetConnection(o.db, dr.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s: %w", dr.ConnectionID, ErrNotFound)
	}

	bindings, err := o.bindings.List(dataRequestID)
	if err != nil {
		return nil, fmt.Errorf("load bindings: %w", err)
	}

	// Resolving
	resolved, err := template.Resolve(dr, bindings)
	if err != nil {
		var verr *template.ValidationError
		if errors.As(err, &verr) {
			o.logger.Info("resolution rejected",
				logging.DataRequest(dataRequestID),
				logging.Status(string(StatusValidationFailed)),
				zap.Error(verr))
			return &Envelope{Status: StatusValidationFailed, Error: verr.Error()}, nil
		}
		return nil, fmt.Errorf("resolve template: %w", err)
	}
	if !resolved.Valid() {
		o.logger.Info("required bindings missing",
			logging.DataRequest(dataRequestID),
			zap.Strings("missing", resolved.MissingRequired))
		return &Envelope{
			Status:          StatusValidationFailed,
			Error:           "missing required bindings",
			MissingRequired: resolved.MissingRequired,
		}, nil
	}

	// CacheCheck
	entry, fingerprint, err := o.cache.Lookup(dataRequestID, resolved.Body, resolved.Configuration, opts.BypassCache)
	if err != nil {
		if fingerprint == "" {
			return nil, err
		}
		// Lookup errors degrade to a miss; a broken cache store must not
		// block execution.
		o.logger.Warn("cache lookup failed", logging.DataRequest(dataRequestID), zap.Error(err))
	}
	if entry != nil {
		o.logger.Debug("cache hit",
			logging.DataRequest(dataRequestID),
			logging.Fingerprint(fingerprint))
		return &Envelope{Status: StatusDone, StatusCode: 200, Response: entry.Response, Cached: true}, nil
	}

	// Executing
	conn2, err := o.connectors.For(dr.Kind)
	if err != nil {
		return &Envelope{Status: StatusValidationFailed, Error: err.Error()}, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, o.connectorTimeout)
	result, err := conn2.Execute(execCtx, resolved, conn)
	cancel()
	if err != nil {
		var failure *connector.Failure
		if !errors.As(err, &failure) {
			failure = &connector.Failure{Message: err.Error()}
		}
		o.logger.Warn("connector failed",
			logging.DataRequest(dataRequestID),
			logging.Kind(dr.Kind),
			logging.StatusCode(failure.StatusCode),
			zap.String("reason", failure.Message))
		return &Envelope{Status: StatusExecutionFailed, StatusCode: failure.StatusCode, Error: failure.Message}, nil
	}
	if result.StatusCode >= 400 {
		o.logger.Warn("backend reported error status",
			logging.DataRequest(dataRequestID),
			logging.Kind(dr.Kind),
			logging.StatusCode(result.StatusCode))
		return &Envelope{
			Status:     StatusExecutionFailed,
			StatusCode: result.StatusCode,
			Error:      result.StatusText,
			Response:   result.Body,
		}, nil
	}

	// Transforming
	transformed, err := transform.Apply(result.Body, dr.Transform)
	if err != nil {
		o.logger.Warn("transform failed", logging.DataRequest(dataRequestID), zap.Error(err))
		return &Envelope{Status: StatusTransformFailed, StatusCode: result.StatusCode, Error: err.Error()}, nil
	}

	// Done: only a fully resolved, fetched, and transformed response is
	// ever cached.
	if err := o.cache.Store(dataRequestID, fingerprint, transformed); err != nil {
		o.logger.Error("cache store failed, returning uncached result",
			logging.DataRequest(dataRequestID),
			logging.Fingerprint(fingerprint),
			zap.Error(err))
	}

	o.logger.Info("data request executed",
		logging.DataRequest(dataRequestID),
		logging.Kind(dr.Kind),
		logging.StatusCode(result.StatusCode),
		logging.Cached(false))

	return &Envelope{Status: StatusDone, StatusCode: result.StatusCode, Response: transformed}, nil
}
