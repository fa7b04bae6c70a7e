package db

import (
	"database/sql"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

func CreateSavedQuery(d *sql.DB, q *models.SavedQuery) error {
	now := time.Now().Unix()
	q.CreatedAt = now
	q.UpdatedAt = now

	_, err := d.Exec(
		"INSERT INTO saved_queries (id, type, summary, query, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		q.ID, q.Type, q.Summary, q.Query, q.CreatedAt, q.UpdatedAt,
	)
	return err
}

func GetSavedQuery(d *sql.DB, id string) (*models.SavedQuery, error) {
	row := d.QueryRow(
		"SELECT id, type, summary, query, created_at, updated_at FROM saved_queries WHERE id = ?",
		id,
	)
	var q models.SavedQuery
	err := row.Scan(&q.ID, &q.Type, &q.Summary, &q.Query, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListSavedQueries returns saved queries, optionally filtered by type.
func ListSavedQueries(d *sql.DB, queryType string) ([]models.SavedQuery, error) {
	query := "SELECT id, type, summary, query, created_at, updated_at FROM saved_queries"
	var args []any
	if queryType != "" {
		query += " WHERE type = ?"
		args = append(args, queryType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queries []models.SavedQuery
	for rows.Next() {
		var q models.SavedQuery
		if err := rows.Scan(&q.ID, &q.Type, &q.Summary, &q.Query, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func UpdateSavedQuery(d *sql.DB, q *models.SavedQuery) error {
	q.UpdatedAt = time.Now().Unix()
	res, err := d.Exec(
		"UPDATE saved_queries SET summary = ?, query = ?, updated_at = ? WHERE id = ?",
		q.Summary, q.Query, q.UpdatedAt, q.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func DeleteSavedQuery(d *sql.DB, id string) error {
	_, err := d.Exec("DELETE FROM saved_queries WHERE id = ?", id)
	return err
}
