// Package client is a thin HTTP client for the quarry API, used by the
// CLI subcommands.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
)

type Client struct {
	BaseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) CreateConnection(req api.CreateConnectionRequest) (*api.ConnectionResponse, error) {
	var resp api.ConnectionResponse
	if err := c.do("POST", "/v1/connections", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListConnections() (*api.ListConnectionsResponse, error) {
	var resp api.ListConnectionsResponse
	if err := c.do("GET", "/v1/connections", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateDataRequest(req api.CreateDataRequestRequest) (*api.DataRequestResponse, error) {
	var resp api.DataRequestResponse
	if err := c.do("POST", "/v1/datarequests", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListDataRequests() (*api.ListDataRequestsResponse, error) {
	var resp api.ListDataRequestsResponse
	if err := c.do("GET", "/v1/datarequests", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetDataRequest(id string) (*api.DataRequestResponse, error) {
	var resp api.DataRequestResponse
	if err := c.do("GET", "/v1/datarequests/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteDataRequest(id string) error {
	return c.do("DELETE", "/v1/datarequests/"+id, nil, nil)
}

func (c *Client) ListBindings(id string) (*api.ListBindingsResponse, error) {
	var resp api.ListBindingsResponse
	if err := c.do("GET", "/v1/datarequests/"+id+"/bindings", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SetBinding(id, name string, req api.SetBindingRequest) (*api.BindingResponse, error) {
	var resp api.BindingResponse
	if err := c.do("PUT", "/v1/datarequests/"+id+"/bindings/"+name, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteBinding(id, name string) error {
	return c.do("DELETE", "/v1/datarequests/"+id+"/bindings/"+name, nil, nil)
}

// Run executes a data request. A non-done outcome comes back as a
// populated RunResponse, not an error; the caller decides how to
// present it.
func (c *Client) Run(id string, bypassCache bool) (*api.RunResponse, error) {
	body, err := json.Marshal(api.RunRequest{BypassCache: bypassCache})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", c.BaseURL+"/v1/datarequests/"+id+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result api.RunResponse
	if err := json.Unmarshal(payload, &result); err != nil || result.Status == "" {
		var errResp api.ErrorResponse
		if json.Unmarshal(payload, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(payload))
	}
	return &result, nil
}

func (c *Client) do(method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return parseError(resp)
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("%s", errResp.Error)
}
