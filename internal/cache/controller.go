// Package cache implements fingerprint-keyed response caching for
// resolved data requests.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/models"
)

// Fingerprint derives the cache key for a resolved request: a SHA-256
// content hash of the data request id, the resolved body, and the
// configuration snapshot. encoding/json marshals map keys in sorted
// order, so identical configurations always hash equal.
func Fingerprint(dataRequestID, resolvedBody string, config map[string]any) (string, error) {
	snapshot, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal configuration snapshot: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(dataRequestID))
	h.Write([]byte{0})
	h.Write([]byte(resolvedBody))
	h.Write([]byte{0})
	h.Write(snapshot)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Controller decides cache hit/miss/invalidate for resolved requests.
// Entries persist in sqlite; an in-memory index fronts it for the fast
// path. Safe for concurrent use.
type Controller struct {
	db *sql.DB

	mu        sync.RWMutex
	entries   map[string]*models.CacheEntry
	byRequest map[string]map[string]struct{}
}

func NewController(database *sql.DB) *Controller {
	return &Controller{
		db:        database,
		entries:   make(map[string]*models.CacheEntry),
		byRequest: make(map[string]map[string]struct{}),
	}
}

// Lookup computes the fingerprint for the resolved request and returns
// the stored entry when present. With bypass set it always reports a
// miss; the caller is expected to refresh the entry after execution.
// A fingerprint with no entry is a miss, never a stale hit: there is no
// TTL, only fingerprint-based invalidation.
func (c *Controller) Lookup(dataRequestID, resolvedBody string, config map[string]any, bypass bool) (*models.CacheEntry, string, error) {
	fingerprint, err := Fingerprint(dataRequestID, resolvedBody, config)
	if err != nil {
		return nil, "", err
	}

	if bypass {
		return nil, fingerprint, nil
	}

	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if ok {
		return entry, fingerprint, nil
	}

	entry, err = db.GetCacheEntry(c.db, fingerprint)
	if err != nil {
		return nil, fingerprint, fmt.Errorf("cache lookup: %w", err)
	}
	if entry == nil {
		return nil, fingerprint, nil
	}

	c.mu.Lock()
	c.index(entry)
	c.mu.Unlock()

	return entry, fingerprint, nil
}

// Store overwrites the entry for the fingerprint unconditionally.
func (c *Controller) Store(dataRequestID, fingerprint string, response []byte) error {
	entry := &models.CacheEntry{
		Fingerprint:   fingerprint,
		DataRequestID: dataRequestID,
		Response:      response,
		StoredAt:      time.Now().Unix(),
	}

	if err := db.PutCacheEntry(c.db, entry); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	c.mu.Lock()
	c.index(entry)
	c.mu.Unlock()

	return nil
}

// InvalidateAll drops every entry derived from the data request. Called
// whenever its bindings, template, or configuration are edited outside
// of a resolve/execute cycle, and on data request deletion.
func (c *Controller) InvalidateAll(dataRequestID string) error {
	if err := db.DeleteCacheEntries(c.db, dataRequestID); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}

	c.mu.Lock()
	for fingerprint := range c.byRequest[dataRequestID] {
		delete(c.entries, fingerprint)
	}
	delete(c.byRequest, dataRequestID)
	c.mu.Unlock()

	return nil
}

// index records the entry in the in-memory maps. Caller holds c.mu.
func (c *Controller) index(entry *models.CacheEntry) {
	c.entries[entry.Fingerprint] = entry
	set, ok := c.byRequest[entry.DataRequestID]
	if !ok {
		set = make(map[string]struct{})
		c.byRequest[entry.DataRequestID] = set
	}
	set[entry.Fingerprint] = struct{}{}
}
