// Package binding manages the variable bindings declared on data requests.
package binding

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/cache"
	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// Store maps a data request to its declared bindings. All mutations
// persist through the repository and invalidate the request's cache
// entries, since any binding edit changes the next resolution.
type Store struct {
	db     *sql.DB
	cache  *cache.Controller
	logger *zap.Logger
}

func NewStore(database *sql.DB, cacheController *cache.Controller, logger *zap.Logger) *Store {
	return &Store{
		db:     database,
		cache:  cacheController,
		logger: logger.With(logging.Component("binding")),
	}
}

// Get returns the binding by exact name match, or nil when absent.
func (s *Store) Get(dataRequestID, name string) (*models.VariableBinding, error) {
	return db.GetBinding(s.db, dataRequestID, name)
}

// List returns all bindings declared on the data request.
func (s *Store) List(dataRequestID string) ([]models.VariableBinding, error) {
	return db.ListBindings(s.db, dataRequestID)
}

// Set creates the binding if the name is unseen, else updates it in
// place. The one-binding-per-name invariant holds by replacement on
// name collision. Cache entries for the data request are always
// invalidated as a side effect.
func (s *Store) Set(dataRequestID string, b models.VariableBinding) (*models.VariableBinding, error) {
	if !models.ValidBindingType(b.Type) {
		return nil, &template.ValidationError{Binding: b.Name, Reason: fmt.Sprintf("unknown binding type %q", b.Type)}
	}

	b.DataRequestID = dataRequestID
	saved, err := db.UpsertBinding(s.db, &b)
	if err != nil {
		return nil, fmt.Errorf("save binding: %w", err)
	}

	if err := s.cache.InvalidateAll(dataRequestID); err != nil {
		s.logger.Warn("cache invalidation after binding change failed",
			logging.DataRequest(dataRequestID),
			logging.Binding(b.Name),
			zap.Error(err))
	}

	return saved, nil
}

// Delete removes the binding and invalidates the request's cache entries.
func (s *Store) Delete(dataRequestID, name string) error {
	if err := db.DeleteBinding(s.db, dataRequestID, name); err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}

	if err := s.cache.InvalidateAll(dataRequestID); err != nil {
		s.logger.Warn("cache invalidation after binding delete failed",
			logging.DataRequest(dataRequestID),
			logging.Binding(name),
			zap.Error(err))
	}
	return nil
}
