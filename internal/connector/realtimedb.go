package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// RealtimeDBConnector executes a resolved path against a realtime tree
// database over its REST surface. The resolved body is a node path; the
// configuration carries the ordering and windowing options, which map
// onto query parameters.
type RealtimeDBConnector struct {
	Client *http.Client
}

func NewRealtimeDBConnector() *RealtimeDBConnector {
	return &RealtimeDBConnector{Client: http.DefaultClient}
}

func (c *RealtimeDBConnector) Kind() string { return models.KindRealtimeDB }

func (c *RealtimeDBConnector) Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*RawResult, error) {
	route := strings.Trim(resolved.Body, "/")
	endpoint := strings.TrimRight(conn.Host, "/") + "/" + route + ".json"

	params := url.Values{}
	config := resolved.Configuration

	if orderBy, ok := config["orderBy"].(string); ok && orderBy != "" {
		switch orderBy {
		case "key":
			params.Set("orderBy", `"$key"`)
		case "value":
			params.Set("orderBy", `"$value"`)
		case "child":
			child, _ := config["childKey"].(string)
			if child == "" {
				return nil, &Failure{Message: "orderBy child requires a childKey"}
			}
			params.Set("orderBy", fmt.Sprintf("%q", child))
		default:
			return nil, &Failure{Message: fmt.Sprintf("unknown orderBy %q", orderBy)}
		}
	}

	for _, key := range []string{"limitToFirst", "limitToLast", "startAt", "endAt"} {
		if v, ok := config[key]; ok && v != nil {
			params.Set(key, fmt.Sprintf("%v", v))
		}
	}
	if token, ok := conn.Options["authToken"]; ok && token != "" {
		params.Set("auth", token)
	}

	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("build request: %v", err)}
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
