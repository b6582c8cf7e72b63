package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/docqa-go/internal/budget"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer()
	s.cfg.MetricsRegistry = reg
	s.cfg.MetricsGatherer = reg
	s.metrics = NewMetrics(reg)
	return s, reg
}

// findMetric returns the series of name whose labels include every pair in
// want, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m
			}
		}
	}
	return nil
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_StartOpRecordsOutcome(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	done := s.metrics.startOp("ask")
	if m := findMetric(t, reg, "docqa_operation_in_flight", map[string]string{"op": "ask"}); m == nil || m.GetGauge().GetValue() != 1 {
		t.Fatalf("want in_flight=1 while running, got %v", m)
	}
	done("ok")

	m := findMetric(t, reg, "docqa_operation_requests_total", map[string]string{"op": "ask", "outcome": "ok"})
	if m == nil {
		t.Fatal(`docqa_operation_requests_total{op="ask",outcome="ok"} not found`)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("want counter=1, got %v", got)
	}
	if m := findMetric(t, reg, "docqa_operation_in_flight", map[string]string{"op": "ask"}); m.GetGauge().GetValue() != 0 {
		t.Errorf("want in_flight=0 after completion, got %v", m.GetGauge().GetValue())
	}
}

func Test_Metrics_ObservePrompt(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.ObservePrompt("quiz", budget.Usage{PromptTokens: 100, MaxOutputTokens: 100, Window: 1000})
	s.metrics.ObservePrompt("quiz", budget.Usage{PromptTokens: 950, MaxOutputTokens: 100, Window: 1000})

	h := findMetric(t, reg, "docqa_prompt_tokens_estimated", map[string]string{"op": "quiz"})
	if h == nil || h.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("want 2 prompt observations, got %v", h)
	}
	if got := h.GetHistogram().GetSampleSum(); got != 1050 {
		t.Errorf("want sample sum 1050, got %v", got)
	}

	c := findMetric(t, reg, "docqa_prompt_overflow_total", map[string]string{"op": "quiz"})
	if c == nil || c.GetCounter().GetValue() != 1 {
		t.Errorf("want one overflow, got %v", c)
	}
}

func Test_Metrics_InstrumentUsesRoutePattern(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := instrument(s.metrics, mux)

	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	m := findMetric(t, reg, "docqa_http_requests_total", map[string]string{
		"method":     http.MethodGet,
		labelHandler: "GET /api/sessions/{id}",
		"code":       "418",
	})
	if m == nil || m.GetCounter().GetValue() != 3 {
		t.Errorf("want 3 requests under the route pattern, got %v", m)
	}
	if findMetric(t, reg, "docqa_http_requests_total", map[string]string{labelHandler: "unmatched", "code": "404"}) == nil {
		t.Error("unrouted request should be labelled unmatched")
	}
}

func Test_Metrics_AskThroughAPI(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, nil)
	id := a.createSession(t, "The sky is blue.")

	if w := a.do(askRequestFor(id, "sky?")); w.Code != http.StatusOK {
		t.Fatalf("ask: expected 200, got %d", w.Code)
	}

	if m := findMetric(t, a.reg, "docqa_operation_requests_total", map[string]string{"op": "ask", "outcome": "ok"}); m == nil {
		t.Error("ask operation not counted")
	}
	if m := findMetric(t, a.reg, "docqa_prompt_tokens_estimated", map[string]string{"op": "answer"}); m == nil || m.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("want one prompt observation for the answer, got %v", m)
	}
	if m := findMetric(t, a.reg, "docqa_sessions_active", nil); m == nil || m.GetGauge().GetValue() != 1 {
		t.Errorf("want sessions_active=1, got %v", m)
	}

	w := a.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `docqa_http_requests_total{code="200",handler="POST /api/sessions/{id}/ask",method="POST"} 1`) {
		t.Errorf("ask route missing from /metrics output:\n%s", body)
	}
}
