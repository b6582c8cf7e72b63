package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/session"
)

// newLimitedTestServer builds an API server whose model routes allow burst
// requests per client and per session and effectively never refill.
func newLimitedTestServer(t *testing.T, burst int) *apiTestServer {
	t.Helper()
	return newAPITestServer(t, &fakeBackends{}, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = burst
	})
}

// from sets the remote address req appears to come from.
func from(req *http.Request, addr string) *http.Request {
	req.RemoteAddr = addr
	return req
}

// createSessionFrom uploads text on behalf of addr and returns the session id.
func (a *apiTestServer) createSessionFrom(t *testing.T, addr, text string) string {
	t.Helper()
	w := a.do(from(uploadRequest(t, http.MethodPost, "/api/sessions", "notes.pdf", text, "hf_token"), addr))
	if w.Code != http.StatusCreated {
		t.Fatalf("create session from %s: expected 201, got %d, body: %s", addr, w.Code, w.Body.String())
	}
	var info session.Info
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	return info.ID
}

func TestRateLimit_SessionBudgetSharedAcrossClients(t *testing.T) {
	t.Parallel()
	a := newLimitedTestServer(t, 2)
	id := a.createSessionFrom(t, "10.0.0.1:5000", "The sky is blue.")

	// Each asker has a fresh client budget; only the session's runs out.
	for _, addr := range []string{"10.0.0.2:5000", "10.0.0.3:5000"} {
		if w := a.do(from(askRequestFor(id, "sky?"), addr)); w.Code != http.StatusOK {
			t.Fatalf("ask from %s: expected 200, got %d", addr, w.Code)
		}
	}

	w := a.do(from(askRequestFor(id, "sky?"), "10.0.0.4:5000"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the session budget is spent, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After: want 1, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: want application/json, got %q", ct)
	}
	if msg := decodeError(t, w); msg != "session rate limit exceeded" {
		t.Errorf("error: got %q", msg)
	}

	if m := findMetric(t, a.reg, "docqa_http_rate_limited_total", map[string]string{"scope": scopeSession}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("want one session-scoped rejection, got %v", m)
	}
	if m := findMetric(t, a.reg, "docqa_http_rate_limited_total", map[string]string{"scope": scopeClient}); m != nil && m.GetCounter().GetValue() != 0 {
		t.Errorf("no client-scoped rejection expected, got %v", m.GetCounter().GetValue())
	}

	// Reads do not spend the budget.
	if w := a.do(from(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil), "10.0.0.4:5000")); w.Code != http.StatusOK {
		t.Errorf("get session: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_ClientBudgetSpansSessions(t *testing.T) {
	t.Parallel()
	a := newLimitedTestServer(t, 2)
	first := a.createSessionFrom(t, "10.0.1.1:5000", "The sky is blue.")
	second := a.createSessionFrom(t, "10.0.1.2:5000", "Grass is green.")

	const asker = "10.0.1.9:4711"
	if w := a.do(from(askRequestFor(first, "sky?"), asker)); w.Code != http.StatusOK {
		t.Fatalf("first ask: expected 200, got %d", w.Code)
	}
	if w := a.do(from(askRequestFor(second, "grass?"), asker)); w.Code != http.StatusOK {
		t.Fatalf("second ask: expected 200, got %d", w.Code)
	}

	// Both sessions still have budget; the client does not. A new port on
	// the same host is the same client.
	w := a.do(from(askRequestFor(first, "sky?"), "10.0.1.9:4712"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the client budget is spent, got %d", w.Code)
	}
	if msg := decodeError(t, w); msg != "client rate limit exceeded" {
		t.Errorf("error: got %q", msg)
	}
	if m := findMetric(t, a.reg, "docqa_http_rate_limited_total", map[string]string{"scope": scopeClient}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("want one client-scoped rejection, got %v", m)
	}
	if !strings.Contains(a.logs.String(), `"scope":"client"`) {
		t.Errorf("rejection not logged with its scope:\n%s", a.logs.String())
	}
}

func TestRateLimit_DeleteForgetsSessionBudget(t *testing.T) {
	t.Parallel()
	a := newLimitedTestServer(t, 5)
	id := a.createSessionFrom(t, "10.0.2.1:5000", "The sky is blue.")

	if w := a.do(from(askRequestFor(id, "sky?"), "10.0.2.2:5000")); w.Code != http.StatusOK {
		t.Fatalf("ask: expected 200, got %d", w.Code)
	}
	if n := a.srv.limiter.sessions.len(); n != 1 {
		t.Fatalf("want one session bucket after ask, got %d", n)
	}

	if w := a.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if n := a.srv.limiter.sessions.len(); n != 0 {
		t.Errorf("want no session buckets after delete, got %d", n)
	}
}

func TestBucketSet_EvictIdleAndForget(t *testing.T) {
	t.Parallel()

	b := newBucketSet(rate.Limit(1), 1)
	start := time.Unix(1_700_000_000, 0)

	if !b.allow("s-old", start) {
		t.Fatal("fresh bucket should start full")
	}
	if b.allow("s-old", start) {
		t.Fatal("burst of 1 should reject the second request at the same instant")
	}
	if !b.allow("s-old", start.Add(time.Second)) {
		t.Fatal("one second at 1 rps should refill one token")
	}
	b.allow("s-new", start.Add(10*time.Minute))

	b.evictIdle(start.Add(5 * time.Minute))
	if n := b.len(); n != 1 {
		t.Fatalf("want only the recent bucket after eviction, got %d", n)
	}

	b.forget("s-new")
	b.forget("s-missing")
	if n := b.len(); n != 0 {
		t.Errorf("want empty set after forget, got %d", n)
	}
}

func TestModelLimiter_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	l, stop := newModelLimiter(1, 1, NewMetrics(nil))
	stop()
	stop()

	var nilLimiter *modelLimiter
	nilLimiter.forgetSession("s-1")
	l.forgetSession("s-unknown")
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.7:5000", "192.0.2.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"unix-socket", "unix-socket"},
	}
	for _, tc := range tests {
		t.Run(tc.remote, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/api/sessions/s-1/ask", nil)
			r.RemoteAddr = tc.remote
			r.Header.Set("X-Forwarded-For", "203.0.113.9")
			if got := clientIP(r); got != tc.want {
				t.Errorf("clientIP(%q) = %q, want %q", tc.remote, got, tc.want)
			}
		})
	}
}
