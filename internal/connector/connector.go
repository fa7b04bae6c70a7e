// Package connector defines the backend execution contract and its
// per-kind implementations. The engine never branches on backend kind
// itself; it selects a connector from the registry and treats every
// variant through the same contract.
package connector

import (
	"context"
	"fmt"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// RawResult is the opaque payload a connector returns, plus a status
// descriptor. Non-HTTP backends report 200/OK on success so the engine
// can treat all variants uniformly.
type RawResult struct {
	Body       []byte
	StatusCode int
	StatusText string
}

// Failure is a structured connector failure: a human-readable message
// and, when the backend reported one, a status code.
type Failure struct {
	Message    string
	StatusCode int
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("connector failure (status %d): %s", f.StatusCode, f.Message)
	}
	return "connector failure: " + f.Message
}

// Connector executes one resolved request against a live backend.
// Implementations own all backend-specific concerns: address
// construction, query parsing, method and body assembly.
type Connector interface {
	Kind() string
	Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*RawResult, error)
}

// Registry selects a connector by data request kind.
type Registry struct {
	byKind map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{byKind: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.byKind[c.Kind()] = c
	}
	return r
}

// For returns the connector registered for kind.
func (r *Registry) For(kind string) (Connector, error) {
	c, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("no connector registered for kind %q", kind)
	}
	return c, nil
}

// failureFromContext maps a context cancellation or deadline into a
// Failure so a timeout surfaces as a connector failure, never a hang.
func failureFromContext(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &Failure{Message: "backend call timed out"}
	}
	if ctx.Err() == context.Canceled {
		return &Failure{Message: "backend call canceled"}
	}
	return &Failure{Message: err.Error()}
}
