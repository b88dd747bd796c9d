package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// HTTPClient implements ConfigClient using the kconf HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// requestTimeout bounds a single API call.
const requestTimeout = 30 * time.Second

// NewHTTPClient targets baseURL (e.g. "http://localhost:8080"). A non-empty
// token is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

type valueBody struct {
	Value json.RawMessage `json:"value"`
}

// keyPath returns the route for key, escaping each segment but keeping the
// separators.
func keyPath(userID, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	escaped := strings.Join(segs, "/")
	if userID == "" {
		return "/v1/global/" + escaped
	}
	return "/v1/users/" + url.PathEscape(userID) + "/data/" + escaped
}

func (c *HTTPClient) Get(ctx context.Context, userID, key string, def json.RawMessage) (json.RawMessage, error) {
	path := keyPath(userID, key)
	if def != nil {
		path += "?" + url.Values{"default": {string(def)}}.Encode()
	}
	return c.exchange(ctx, http.MethodGet, path, nil)
}

func (c *HTTPClient) Set(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	return c.exchange(ctx, http.MethodPut, keyPath(userID, key), &valueBody{Value: value})
}

func (c *HTTPClient) Update(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	return c.exchange(ctx, http.MethodPatch, keyPath(userID, key), &valueBody{Value: value})
}

// exchange sends an optional value body and returns the value of the reply.
func (c *HTTPClient) exchange(ctx context.Context, method, path string, body *valueBody) (json.RawMessage, error) {
	var reqBody any
	if body != nil {
		reqBody = body
	}
	var resp valueBody
	if err := c.doJSON(ctx, method, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return nullToNil(resp.Value), nil
}

func (c *HTTPClient) List(ctx context.Context, prefix string) ([]*model.Entry, error) {
	path := "/v1/entries"
	if prefix != "" {
		path += "?" + url.Values{"prefix": {prefix}}.Encode()
	}
	var resp struct {
		Entries []*model.Entry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// nullToNil maps the wire "null" back to the absence marker. JSON cannot
// carry the difference between a stored null and an empty entry.
func nullToNil(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusBadGateway
}

// doJSON sends body as JSON and decodes the reply into result. Error
// replies become *APIError.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
