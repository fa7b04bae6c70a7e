package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
	"github.com/quarrylabs/quarry/internal/template"
)

func TestHTTPConnectorExecute(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	defer srv.Close()

	c := NewHTTPConnector()
	resolved := &template.ResolvedRequest{
		Body: "/v1/users?status=active",
		Configuration: map[string]any{
			"method": "post",
			"headers": map[string]any{
				"Authorization": "Bearer abc",
			},
			"body": `{"name":"jo"}`,
		},
	}
	conn := &models.Connection{ID: "conn-1", Kind: models.KindHTTP, Host: srv.URL}

	result, err := c.Execute(context.Background(), resolved, conn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if gotMethod != "POST" {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/v1/users?status=active" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody != `{"name":"jo"}` {
		t.Errorf("body = %q", gotBody)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", result.StatusCode)
	}
	if string(result.Body) != `{"id": 1}` {
		t.Errorf("response body = %s", result.Body)
	}
}

func TestHTTPConnectorErrorStatusReturnedAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewHTTPConnector()
	resolved := &template.ResolvedRequest{Body: "/x", Configuration: map[string]any{}}
	conn := &models.Connection{ID: "conn-1", Kind: models.KindHTTP, Host: srv.URL}

	// Backend-reported errors come back as a RawResult; the orchestrator,
	// not the connector, decides that 403 means ExecutionFailed.
	result, err := c.Execute(context.Background(), resolved, conn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", result.StatusCode)
	}
}

func TestHTTPConnectorBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
	}))
	defer srv.Close()

	user, pass := "svc", "hunter2"
	c := NewHTTPConnector()
	conn := &models.Connection{ID: "conn-1", Kind: models.KindHTTP, Host: srv.URL, Username: &user, Password: &pass}

	_, err := c.Execute(context.Background(), &template.ResolvedRequest{Body: "/"}, conn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotUser != "svc" || gotPass != "hunter2" {
		t.Errorf("basic auth = %s:%s", gotUser, gotPass)
	}
}

func TestHTTPConnectorTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	c := NewHTTPConnector()
	conn := &models.Connection{ID: "conn-1", Kind: models.KindHTTP, Host: srv.URL}

	_, err := c.Execute(ctx, &template.ResolvedRequest{Body: "/"}, conn)
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}
	if failure.Message != "backend call timed out" {
		t.Errorf("message = %q", failure.Message)
	}
}

func TestRealtimeDBConnectorQueryParams(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	c := NewRealtimeDBConnector()
	resolved := &template.ResolvedRequest{
		Body: "/teams/alpha/scores",
		Configuration: map[string]any{
			"orderBy":     "child",
			"childKey":    "points",
			"limitToLast": float64(25),
		},
	}
	conn := &models.Connection{
		ID:      "conn-1",
		Kind:    models.KindRealtimeDB,
		Host:    srv.URL,
		Options: map[string]string{"authToken": "tok"},
	}

	result, err := c.Execute(context.Background(), resolved, conn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if gotPath != "/teams/alpha/scores.json" {
		t.Errorf("path = %s", gotPath)
	}
	if got := gotQuery["orderBy"]; len(got) != 1 || got[0] != `"points"` {
		t.Errorf("orderBy = %v", gotQuery["orderBy"])
	}
	if got := gotQuery["limitToLast"]; len(got) != 1 || got[0] != "25" {
		t.Errorf("limitToLast = %v", gotQuery["limitToLast"])
	}
	if got := gotQuery["auth"]; len(got) != 1 || got[0] != "tok" {
		t.Errorf("auth = %v", gotQuery["auth"])
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d", result.StatusCode)
	}
}

func TestRealtimeDBConnectorOrderByKey(t *testing.T) {
	var gotOrderBy string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrderBy = r.URL.Query().Get("orderBy")
	}))
	defer srv.Close()

	c := NewRealtimeDBConnector()
	resolved := &template.ResolvedRequest{Body: "users", Configuration: map[string]any{"orderBy": "key"}}
	conn := &models.Connection{ID: "conn-1", Kind: models.KindRealtimeDB, Host: srv.URL}

	if _, err := c.Execute(context.Background(), resolved, conn); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotOrderBy != `"$key"` {
		t.Errorf("orderBy = %q", gotOrderBy)
	}
}

func TestDocumentConnectorExecute(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotAction map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotAction)
		_, _ = w.Write([]byte(`{"documents":[]}`))
	}))
	defer srv.Close()

	c := NewDocumentConnector()
	resolved := &template.ResolvedRequest{
		Body: `collection('users').find({"status": "active"}).limit(100)`,
	}
	conn := &models.Connection{
		ID:      "conn-1",
		Kind:    models.KindDocument,
		Host:    srv.URL,
		Options: map[string]string{"apiKey": "key-1", "database": "prod"},
	}

	result, err := c.Execute(context.Background(), resolved, conn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if gotPath != "/action/find" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAPIKey != "key-1" {
		t.Errorf("api key = %q", gotAPIKey)
	}
	if gotAction["collection"] != "users" {
		t.Errorf("collection = %v", gotAction["collection"])
	}
	if gotAction["limit"] != float64(100) {
		t.Errorf("limit = %v", gotAction["limit"])
	}
	if gotAction["database"] != "prod" {
		t.Errorf("database = %v", gotAction["database"])
	}
	filter, _ := gotAction["filter"].(map[string]any)
	if filter["status"] != "active" {
		t.Errorf("filter = %v", gotAction["filter"])
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d", result.StatusCode)
	}
}

func TestParseDocumentQuery(t *testing.T) {
	query, err := parseDocumentQuery(`collection('orders').find({"total": {"$gt": 10}})`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if query.Collection != "orders" {
		t.Errorf("collection = %s", query.Collection)
	}
	if query.Limit != 0 {
		t.Errorf("limit = %d, want 0", query.Limit)
	}

	testCases := []struct {
		name string
		text string
	}{
		{"missing_collection", `find({})`},
		{"unterminated_collection", `collection('users`},
		{"missing_find", `collection('users')`},
		{"unbalanced_parens", `collection('users').find({`},
		{"bad_filter_json", `collection('users').find({status: active})`},
		{"bad_limit", `collection('users').find({}).limit(ten)`},
		{"trailing_garbage", `collection('users').find({}).sort()`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseDocumentQuery(tc.text); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestRegistrySelection(t *testing.T) {
	registry := NewRegistry(NewHTTPConnector(), NewRealtimeDBConnector(), NewDocumentConnector(), NewSQLConnector())

	for _, kind := range []string{models.KindHTTP, models.KindRealtimeDB, models.KindDocument, models.KindSQL} {
		c, err := registry.For(kind)
		if err != nil {
			t.Errorf("For(%s): %v", kind, err)
			continue
		}
		if c.Kind() != kind {
			t.Errorf("For(%s) returned connector for %s", kind, c.Kind())
		}
	}

	if _, err := registry.For("graphql"); err == nil {
		t.Error("expected error for unregistered kind")
	}
}
