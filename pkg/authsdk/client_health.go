package authsdk

import (
	"context"
	"net/http"
)

// Health reports the service and dependency status. It always answers 200.
func (c *SDKClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}

	return &health, nil
}

// Live checks if the process is up.
func (c *SDKClient) Live(ctx context.Context) (*StatusResponse, error) {
	return c.probe(ctx, "/health/live")
}

// Ready checks if the service can take traffic. A 503 is returned as an error.
func (c *SDKClient) Ready(ctx context.Context) (*StatusResponse, error) {
	return c.probe(ctx, "/health/ready")
}

func (c *SDKClient) probe(ctx context.Context, path string) (*StatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := decodeJSON(resp, &status, http.StatusOK); err != nil {
		return nil, err
	}

	return &status, nil
}
