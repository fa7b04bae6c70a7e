package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

func CreateConnection(d *sql.DB, c *models.Connection) error {
	options := "{}"
	if c.Options != nil {
		b, err := json.Marshal(c.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		options = string(b)
	}

	c.CreatedAt = time.Now().Unix()

	_, err := d.Exec(
		`INSERT INTO connections (id, name, kind, host, username, password, options, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Kind, c.Host, c.Username, c.Password, options, c.CreatedAt,
	)
	return err
}

func GetConnection(d *sql.DB, id string) (*models.Connection, error) {
	row := d.QueryRow(
		"SELECT id, name, kind, host, username, password, options, created_at FROM connections WHERE id = ?",
		id,
	)
	var c models.Connection
	var options string
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.Host, &c.Username, &c.Password, &options, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &c.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return &c, nil
}

func ListConnections(d *sql.DB) ([]models.Connection, error) {
	rows, err := d.Query("SELECT id, name, kind, host, username, password, options, created_at FROM connections ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []models.Connection
	for rows.Next() {
		var c models.Connection
		var options string
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.Host, &c.Username, &c.Password, &options, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &c.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}

func DeleteConnection(d *sql.DB, id string) error {
	_, err := d.Exec("DELETE FROM connections WHERE id = ?", id)
	return err
}
