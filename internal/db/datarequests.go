package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

func CreateDataRequest(d *sql.DB, dr *models.DataRequest) error {
	config, err := marshalConfiguration(dr.Configuration)
	if err != nil {
		return err
	}
	transform, err := marshalTransform(dr.Transform)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	dr.CreatedAt = now
	dr.UpdatedAt = now

	_, err = d.Exec(
		`INSERT INTO data_requests (id, connection_id, kind, template, configuration, transform, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dr.ID, dr.ConnectionID, dr.Kind, dr.Template, config, transform, dr.CreatedAt, dr.UpdatedAt,
	)
	return err
}

func GetDataRequest(d *sql.DB, id string) (*models.DataRequest, error) {
	row := d.QueryRow(
		`SELECT id, connection_id, kind, template, configuration, transform, created_at, updated_at
		 FROM data_requests WHERE id = ?`,
		id,
	)
	return scanDataRequest(row)
}

func ListDataRequests(d *sql.DB) ([]models.DataRequest, error) {
	rows, err := d.Query(
		`SELECT id, connection_id, kind, template, configuration, transform, created_at, updated_at
		 FROM data_requests ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.DataRequest
	for rows.Next() {
		dr, err := scanDataRequestRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *dr)
	}
	return requests, rows.Err()
}

// UpdateDataRequest overwrites the template, configuration, and transform
// of an existing data request. Cache invalidation is the caller's job.
func UpdateDataRequest(d *sql.DB, dr *models.DataRequest) error {
	config, err := marshalConfiguration(dr.Configuration)
	if err != nil {
		return err
	}
	transform, err := marshalTransform(dr.Transform)
	if err != nil {
		return err
	}

	dr.UpdatedAt = time.Now().Unix()

	res, err := d.Exec(
		`UPDATE data_requests SET kind = ?, template = ?, configuration = ?, transform = ?, updated_at = ?
		 WHERE id = ?`,
		dr.Kind, dr.Template, config, transform, dr.UpdatedAt, dr.ID,
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

func DeleteDataRequest(d *sql.DB, id string) error {
	_, err := d.Exec("DELETE FROM data_requests WHERE id = ?", id)
	return err
}

func marshalConfiguration(config map[string]any) (string, error) {
	if config == nil {
		return "{}", nil
	}
	b, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal configuration: %w", err)
	}
	return string(b), nil
}

func marshalTransform(spec *models.TransformSpec) (*string, error) {
	if spec == nil {
		return nil, nil
	}
	b, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal transform: %w", err)
	}
	s := string(b)
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataRequest(row *sql.Row) (*models.DataRequest, error) {
	dr, err := scanDataRequestRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return dr, err
}

func scanDataRequestRows(row rowScanner) (*models.DataRequest, error) {
	var dr models.DataRequest
	var config string
	var transform *string
	err := row.Scan(&dr.ID, &dr.ConnectionID, &dr.Kind, &dr.Template, &config, &transform, &dr.CreatedAt, &dr.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(config), &dr.Configuration); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if transform != nil {
		var spec models.TransformSpec
		if err := json.Unmarshal([]byte(*transform), &spec); err != nil {
			return nil, fmt.Errorf("unmarshal transform: %w", err)
		}
		dr.Transform = &spec
	}
	return &dr, nil
}
