package intuitherm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Service endpoints. The service auto-creates sensors on the first data
// push, so there is no explicit registration endpoint.
const (
	EndpointHealth          = "/api/v1/health"
	EndpointControlStatus   = "/api/v1/control/status"
	EndpointMetrics         = "/api/v1/metrics"
	EndpointControlOverride = "/api/v1/control/override"
	EndpointControlEnable   = "/api/v1/control/enable"
	EndpointControlDisable  = "/api/v1/control/disable"
	EndpointSensorData      = "/api/v1/sensors/data"
)

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
}

// Client performs authenticated JSON requests against the IntuiTherm
// service. It is stateless per call: one base URL, one bearer token.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

// NewClient creates a client for the service at serviceURL. A trailing
// slash on serviceURL is stripped so endpoint paths concatenate cleanly.
func NewClient(serviceURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(serviceURL, "/"),
		auth:    "Bearer " + apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetJSON fetches an endpoint and decodes the JSON response body.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}

	return c.do(req, endpoint)
}

// PostJSON posts a JSON body to an endpoint and decodes the JSON response.
// A nil body sends an empty POST.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body for %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, endpoint)
}

// do executes the request and decodes the response. Failures are logged
// here with the endpoint and returned to the caller; isolation of those
// failures happens one layer up in the coordinator.
func (c *Client) do(req *http.Request, endpoint string) (map[string]any, error) {
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("HTTP error for %s: %v\n", endpoint, err)
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("HTTP error for %s: %v\n", endpoint, err)
		return nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw)}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			log.Printf("Authentication failed for %s - check API key\n", endpoint)
		case resp.StatusCode == http.StatusBadRequest && req.Method == http.MethodPost:
			log.Printf("Bad request to %s: %s\n", endpoint, statusErr.Body)
		default:
			log.Printf("HTTP error for %s: %v\n", endpoint, statusErr)
		}
		return nil, statusErr
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("HTTP error for %s: %v\n", endpoint, err)
		return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return payload, nil
}
