package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/version"
)

// probeTimeout bounds each backend probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// Pinger reports whether a backend docqa depends on (the qdrant index store,
// the model endpoint) is reachable. Implementations must be safe for
// concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the backend in readiness responses, e.g. "qdrant".
	Name() string
}

type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// readyResponse is the body of GET /api/ready. Index and Sessions describe
// this process; Checks describe its backends.
type readyResponse struct {
	Ready    bool         `json:"ready"`
	Index    string       `json:"index_backend,omitempty"`
	Sessions int          `json:"sessions"`
	Checks   []readyCheck `json:"checks"`
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleReady handles GET /api/ready. Probes run concurrently, each under
// probeTimeout; any failure turns the response into a 503. Live sessions are
// unaffected by a failing backend until they next reach it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{
		Ready:  true,
		Index:  s.cfg.IndexBackend,
		Checks: s.probe(r.Context()),
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Len()
	}

	log := logging.FromContext(r.Context())
	for _, c := range resp.Checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("backend", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// probe pings every backend in parallel and returns results in pinger order.
func (s *Server) probe(ctx context.Context) []readyCheck {
	checks := make([]readyCheck, len(s.pingers))

	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(pctx)
			checks[i] = readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
			}
		})
	}
	wg.Wait()

	return checks
}
