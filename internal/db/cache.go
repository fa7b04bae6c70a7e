package db

import (
	"database/sql"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

func GetCacheEntry(d *sql.DB, fingerprint string) (*models.CacheEntry, error) {
	row := d.QueryRow(
		"SELECT fingerprint, data_request_id, response, stored_at FROM cache_entries WHERE fingerprint = ?",
		fingerprint,
	)
	var e models.CacheEntry
	err := row.Scan(&e.Fingerprint, &e.DataRequestID, &e.Response, &e.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutCacheEntry overwrites any existing entry for the fingerprint.
func PutCacheEntry(d *sql.DB, e *models.CacheEntry) error {
	if e.StoredAt == 0 {
		e.StoredAt = time.Now().Unix()
	}
	_, err := d.Exec(
		`INSERT INTO cache_entries (fingerprint, data_request_id, response, stored_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			data_request_id = excluded.data_request_id,
			response = excluded.response,
			stored_at = excluded.stored_at`,
		e.Fingerprint, e.DataRequestID, e.Response, e.StoredAt,
	)
	return err
}

func DeleteCacheEntries(d *sql.DB, dataRequestID string) error {
	_, err := d.Exec("DELETE FROM cache_entries WHERE data_request_id = ?", dataRequestID)
	return err
}
