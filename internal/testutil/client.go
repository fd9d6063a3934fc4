// Package testutil provides helpers for integration tests: a PostgreSQL
// container, an HTTP client and an OpenAPI response validator.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// Client is an HTTP client for testing API endpoints.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Validator   *OpenAPIValidator
	ValidateAPI bool
	t           *testing.T
}

// NewClient creates a new test client without validation.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

// NewClientWithValidator creates a client that checks every response against
// the OpenAPI document. Call SetT before use.
func NewClientWithValidator(baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{},
		Validator:   validator,
		ValidateAPI: true,
	}
}

// SetT sets the testing.T used to report validation errors.
func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// WithoutValidation returns a copy of the client with validation disabled.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.ValidateAPI = false
	return &clone
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with JSON body.
func (c *Client) POST(path string, body interface{}) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

// PATCH performs a PATCH request with JSON body.
func (c *Client) PATCH(path string, body interface{}) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

func (c *Client) do(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	var bodyBytes []byte

	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.ValidateAPI && c.Validator != nil && c.t != nil {
		// the original body was consumed
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		validationReq, _ := http.NewRequest(method, c.BaseURL+path, bodyReader)
		validationReq.Header = req.Header

		c.Validator.ValidateResponse(c.t, validationReq, resp)
	}

	return resp, nil
}

// DecodeJSON decodes response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// RandomSlug returns prefix followed by a short random suffix.
func RandomSlug(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
