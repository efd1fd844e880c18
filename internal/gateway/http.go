package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
)

// defaultHTTPTimeout is the per-request timeout used by the gateway client.
const defaultHTTPTimeout = 15 * time.Second

// HTTPClient is the Gateway implementation backed by the panel server's JSON
// API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a gateway client. The base URL is expected without a
// trailing slash; request paths are joined as baseURL + "/v1/...".
func NewHTTPClient(baseURL string, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *HTTPClient) SetToken(token string) { c.token = token }

// appendResponse is the envelope returned by all append endpoints.
type appendResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginResult is the payload returned by the login endpoint.
type LoginResult struct {
	Token    string `json:"token"`
	Operator struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Role        string `json:"role"`
		Dependency  string `json:"dependency"`
	} `json:"operator"`
}

// Login authenticates an operator and returns the issued token and profile.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", body, &result); err != nil {
		return LoginResult{}, err
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("login rejected")
	}
	return result, nil
}

// AppendActivity implements Gateway.
func (c *HTTPClient) AppendActivity(ctx context.Context, a records.Activity) (string, error) {
	return c.append(ctx, "appendActivity", "/v1/activities", a)
}

// ListActivity implements Gateway.
func (c *HTTPClient) ListActivity(ctx context.Context) ([]records.Activity, error) {
	var out []records.Activity
	if err := c.do(ctx, http.MethodGet, "/v1/activities", nil, &out); err != nil {
		return nil, unavailable("listActivity", err)
	}
	return out, nil
}

// AppendLog implements Gateway.
func (c *HTTPClient) AppendLog(ctx context.Context, l records.Log) (string, error) {
	return c.append(ctx, "appendLog", "/v1/logs", l)
}

// ListLogs implements Gateway.
func (c *HTTPClient) ListLogs(ctx context.Context) ([]records.Log, error) {
	var out []records.Log
	if err := c.do(ctx, http.MethodGet, "/v1/logs", nil, &out); err != nil {
		return nil, unavailable("listLog", err)
	}
	return out, nil
}

// AppendAlert implements Gateway. The empty-message check happens here, at
// the boundary, before anything is written anywhere.
func (c *HTTPClient) AppendAlert(ctx context.Context, a records.Alert) (string, error) {
	if strings.TrimSpace(a.Message) == "" {
		return "", ErrEmptyMessage
	}
	return c.append(ctx, "appendAlert", "/v1/alerts", a)
}

// ListUnreadAlerts implements Gateway.
func (c *HTTPClient) ListUnreadAlerts(ctx context.Context) ([]records.Alert, error) {
	var out []records.Alert
	if err := c.do(ctx, http.MethodGet, "/v1/alerts", nil, &out); err != nil {
		return nil, unavailable("listUnreadAlerts", err)
	}
	return out, nil
}

// AcknowledgeAlert implements Gateway.
func (c *HTTPClient) AcknowledgeAlert(ctx context.Context, id string) error {
	var resp appendResponse
	if err := c.do(ctx, http.MethodPost, "/v1/alerts/"+id+"/read", nil, &resp); err != nil {
		return unavailable("acknowledgeAlert", err)
	}
	if !resp.Success {
		return unavailable("acknowledgeAlert", fmt.Errorf("%s", resp.Error))
	}
	return nil
}

func (c *HTTPClient) append(ctx context.Context, op string, path string, payload any) (string, error) {
	var resp appendResponse
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", unavailable(op, err)
	}
	if !resp.Success {
		return "", unavailable(op, fmt.Errorf("%s", resp.Error))
	}
	return resp.ID, nil
}

func (c *HTTPClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}
