package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

// DocumentConnector executes a resolved document query against a
// document database's HTTP data API. The resolved body uses the
// collection('name').find({...}).limit(n) shape; it is parsed here and
// posted as a find action.
type DocumentConnector struct {
	Client *http.Client
}

func NewDocumentConnector() *DocumentConnector {
	return &DocumentConnector{Client: http.DefaultClient}
}

func (c *DocumentConnector) Kind() string { return models.KindDocument }

type documentQuery struct {
	Collection string
	Filter     any
	Limit      int
}

func (c *DocumentConnector) Execute(ctx context.Context, resolved *template.ResolvedRequest, conn *models.Connection) (*RawResult, error) {
	query, err := parseDocumentQuery(resolved.Body)
	if err != nil {
		return nil, &Failure{Message: err.Error()}
	}

	action := map[string]any{
		"collection": query.Collection,
		"filter":     query.Filter,
	}
	if query.Limit > 0 {
		action["limit"] = query.Limit
	}
	if database, ok := conn.Options["database"]; ok && database != "" {
		action["database"] = database
	}

	payload, err := json.Marshal(action)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("encode find action: %v", err)}
	}

	endpoint := strings.TrimRight(conn.Host, "/") + "/action/find"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey, ok := conn.Options["apiKey"]; ok && apiKey != "" {
		req.Header.Set("api-key", apiKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, failureFromContext(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("read response: %v", err), StatusCode: resp.StatusCode}
	}

	return &RawResult{
		Body:       body,
		StatusCode: resp.StatusCode,
		StatusText: resp.Status,
	}, nil
}

// parseDocumentQuery breaks a collection('name').find({...}).limit(n)
// query into its parts. The filter must be valid JSON once resolved;
// anything beyond that shape is the backend's problem, not ours.
func parseDocumentQuery(body string) (*documentQuery, error) {
	text := strings.TrimSpace(body)

	const collectionPrefix = "collection('"
	if !strings.HasPrefix(text, collectionPrefix) {
		return nil, fmt.Errorf("document query must start with collection('name')")
	}
	rest := text[len(collectionPrefix):]
	end := strings.Index(rest, "')")
	if end < 0 {
		return nil, fmt.Errorf("unterminated collection name")
	}
	query := &documentQuery{Collection: rest[:end]}
	rest = rest[end+2:]

	const findPrefix = ".find("
	if !strings.HasPrefix(rest, findPrefix) {
		return nil, fmt.Errorf("document query requires .find(...)")
	}
	filterText, rest, err := balancedParens(rest[len(findPrefix)-1:])
	if err != nil {
		return nil, err
	}

	filterText = strings.TrimSpace(filterText)
	if filterText == "" {
		query.Filter = map[string]any{}
	} else if err := json.Unmarshal([]byte(filterText), &query.Filter); err != nil {
		return nil, fmt.Errorf("find filter is not valid JSON: %v", err)
	}

	rest = strings.TrimSpace(rest)
	if rest != "" {
		const limitPrefix = ".limit("
		if !strings.HasPrefix(rest, limitPrefix) {
			return nil, fmt.Errorf("unexpected trailing query text %q", rest)
		}
		limitText, trailing, err := balancedParens(rest[len(limitPrefix)-1:])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(trailing) != "" {
			return nil, fmt.Errorf("unexpected trailing query text %q", trailing)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitText))
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("limit must be a non-negative integer")
		}
		query.Limit = limit
	}

	return query, nil
}

// balancedParens takes text starting at '(' and returns the content up
// to the matching ')' plus whatever follows it.
func balancedParens(text string) (string, string, error) {
	if text == "" || text[0] != '(' {
		return "", "", fmt.Errorf("expected '('")
	}
	depth := 0
	for i, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return text[1:i], text[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parentheses in query")
}
