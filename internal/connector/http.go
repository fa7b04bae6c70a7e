package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// maxResponseBody caps how much of a backend response is read.
const maxResponseBody = 10 << 20 // 10MB

// HTTPConnector executes a resolved request against a plain HTTP API.
// The resolved body is the route; method, headers, and request body come
// from the configuration snapshot, all of which may have carried
// placeholders before resolution.
type HTTPConnector struct {
	Client *http.Client
}

func NewHTTPConnector() *HTTPConnector {
	return &HTTPConnector{Client: http.DefaultClient}
}

func (c *HTTPConnector) Kind() string { return models.KindHTTP }

func (c *HTTPConnector) Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*RawResult, error) {
	method := http.MethodGet
	if m, ok := resolved.Configuration["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if b, ok := resolved.Configuration["body"].(string); ok && b != "" {
		body = strings.NewReader(b)
	}

	url := joinURL(conn.Host, resolved.Body)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("build request: %v", err)}
	}

	if headers, ok := resolved.Configuration["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}
	for name, value := range conn.Options {
		if strings.HasPrefix(name, "header:") {
			req.Header.Set(strings.TrimPrefix(name, "header:"), value)
		}
	}
	if conn.Username != nil && conn.Password != nil {
		req.SetBasicAuth(*conn.Username, *conn.Password)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, failureFromContext(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("read response: %v", err), StatusCode: resp.StatusCode}
	}

	return &RawResult{
		Body:       payload,
		StatusCode: resp.StatusCode,
		StatusText: resp.Status,
	}, nil
}

func joinURL(host, route string) string {
	host = strings.TrimRight(host, "/")
	if route == "" {
		return host
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return host + route
}
