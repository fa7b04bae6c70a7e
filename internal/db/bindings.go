package db

import (
	"database/sql"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

func GetBinding(d *sql.DB, dataRequestID, name string) (*models.VariableBinding, error) {
	row := d.QueryRow(
		`SELECT id, data_request_id, name, type, default_value, required, value, created_at, updated_at
		 FROM variable_bindings WHERE data_request_id = ? AND name = ?`,
		dataRequestID, name,
	)
	var b models.VariableBinding
	var required int
	err := row.Scan(&b.ID, &b.DataRequestID, &b.Name, &b.Type, &b.DefaultValue, &required, &b.Value, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Required = required != 0
	return &b, nil
}

func ListBindings(d *sql.DB, dataRequestID string) ([]models.VariableBinding, error) {
	rows, err := d.Query(
		`SELECT id, data_request_id, name, type, default_value, required, value, created_at, updated_at
		 FROM variable_bindings WHERE data_request_id = ? ORDER BY id`,
		dataRequestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []models.VariableBinding
	for rows.Next() {
		var b models.VariableBinding
		var required int
		if err := rows.Scan(&b.ID, &b.DataRequestID, &b.Name, &b.Type, &b.DefaultValue, &required, &b.Value, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Required = required != 0
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// UpsertBinding creates the binding if the name is unseen for the data
// request, otherwise updates it in place. The UNIQUE(data_request_id, name)
// constraint enforces one binding per name; the existing row id survives
// an update.
func UpsertBinding(d *sql.DB, b *models.VariableBinding) (*models.VariableBinding, error) {
	now := time.Now().Unix()
	required := 0
	if b.Required {
		required = 1
	}

	_, err := d.Exec(
		`INSERT INTO variable_bindings (data_request_id, name, type, default_value, required, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(data_request_id, name) DO UPDATE SET
			type = excluded.type,
			default_value = excluded.default_value,
			required = excluded.required,
			value = excluded.value,
			updated_at = excluded.updated_at`,
		b.DataRequestID, b.Name, b.Type, b.DefaultValue, required, b.Value, now, now,
	)
	if err != nil {
		return nil, err
	}

	return GetBinding(d, b.DataRequestID, b.Name)
}

func DeleteBinding(d *sql.DB, dataRequestID, name string) error {
	_, err := d.Exec("DELETE FROM variable_bindings WHERE data_request_id = ? AND name = ?", dataRequestID, name)
	return err
}
