package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// SQLConnector executes a resolved SQL query against Postgres through
// the pgx stdlib driver. Pools are opened lazily and kept per
// connection id.
type SQLConnector struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewSQLConnector() *SQLConnector {
	return &SQLConnector{pools: make(map[string]*sql.DB)}
}

func (c *SQLConnector) Kind() string { return models.KindSQL }

func (c *SQLConnector) Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*RawResult, error) {
	pool, err := c.pool(conn)
	if err != nil {
		return nil, &Failure{Message: err.Error()}
	}

	rows, err := pool.QueryContext(ctx, resolved.Body)
	if err != nil {
		return nil, failureFromContext(ctx, err)
	}
	defer rows.Close()

	records, err := rowsToMaps(rows)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("read rows: %v", err)}
	}

	body, err := json.Marshal(records)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("encode rows: %v", err)}
	}

	return &RawResult{Body: body, StatusCode: 200, StatusText: "OK"}, nil
}

// Close releases every pooled database handle.
func (c *SQLConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, pool := range c.pools {
		_ = pool.Close()
		delete(c.pools, id)
	}
}

func (c *SQLConnector) pool(conn *models.Connection) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[conn.ID]; ok {
		return pool, nil
	}

	pool, err := sql.Open("pgx", dsn(conn))
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	c.pools[conn.ID] = pool
	return pool, nil
}

func dsn(conn *models.Connection) string {
	if raw, ok := conn.Options["dsn"]; ok && raw != "" {
		return raw
	}

	u := url.URL{Scheme: "postgres", Host: conn.Host}
	if conn.Username != nil {
		if conn.Password != nil {
			u.User = url.UserPassword(*conn.Username, *conn.Password)
		} else {
			u.User = url.User(*conn.Username)
		}
	}
	if database, ok := conn.Options["database"]; ok {
		u.Path = "/" + database
	}
	if sslmode, ok := conn.Options["sslmode"]; ok {
		u.RawQuery = "sslmode=" + sslmode
	}
	return u.String()
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, column := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[column] = v
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
