package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qdrant/go-client/qdrant"
)

// HTTPPinger probes a backend by issuing a GET against a cheap endpoint.
// Any response below 500 counts as reachable: an auth error still proves the
// service is up, and probing never spends tokens.
type HTTPPinger struct {
	// name identifies the backend in readiness responses (e.g. "model").
	name string
	// url is the endpoint to GET.
	url string
	// client performs the probe.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url. A nil client uses
// http.DefaultClient; the probe deadline comes from the request context.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET and reports transport failures and 5xx responses.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
