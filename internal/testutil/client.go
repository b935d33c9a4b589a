// Package testutil drives the HTTP API from end-to-end tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Client wraps http.Client with test-friendly methods. A non-empty Token is
// sent as a bearer token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithToken returns a copy of the client that authenticates as a portal
// session.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

type Response struct {
	*http.Response
	Body []byte
}

// Data decodes the "data" member of a success envelope into target.
func (r *Response) Data(t *testing.T, target any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(r.Body, &env), "body: %s", r.Body)
	require.NoError(t, json.Unmarshal(env.Data, target), "data: %s", env.Data)
}

// ErrorCode returns the code of an error envelope.
func (r *Response) ErrorCode(t *testing.T) string {
	t.Helper()
	var env struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(r.Body, &env), "body: %s", r.Body)
	return env.Code
}

func (c *Client) GET(t *testing.T, path string) *Response {
	t.Helper()
	return c.Do(t, http.MethodGet, path, nil, nil)
}

func (c *Client) POST(t *testing.T, path string, body any) *Response {
	t.Helper()
	return c.Do(t, http.MethodPost, path, body, nil)
}

func (c *Client) PUT(t *testing.T, path string, body any) *Response {
	t.Helper()
	return c.Do(t, http.MethodPut, path, body, nil)
}

func (c *Client) DELETE(t *testing.T, path string) *Response {
	t.Helper()
	return c.Do(t, http.MethodDelete, path, nil, nil)
}

func (c *Client) Do(t *testing.T, method, path string, body any, headers map[string]string) *Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.BaseURL+path, reqBody)
	require.NoError(t, err, "failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	require.NoError(t, err, "request failed")
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	return &Response{
		Response: resp,
		Body:     respBody,
	}
}

func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "body: %s", resp.Body)
}

func AssertContains(t *testing.T, resp *Response, substr string) {
	t.Helper()
	require.True(t, strings.Contains(string(resp.Body), substr), "response body does not contain %q. Body: %s", substr, resp.Body)
}
