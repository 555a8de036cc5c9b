package client

import "context"

// Health fetches the server's readiness report, which covers database
// connectivity and the dispatcher's queue depth.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	report := new(HealthResponse)
	if err := c.doRequest(ctx, "GET", "/healthz", nil, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Ping checks that the server is reachable and healthy, discarding the
// report itself.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, "GET", "/healthz", nil, nil)
}
