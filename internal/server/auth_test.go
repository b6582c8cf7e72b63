package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		header      string
		wantToken   string
		wantPresent bool
	}{
		{name: "missing", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "scheme only", header: "Bearer"},
		{name: "blank credential", header: "Bearer   "},
		{name: "canonical", header: "Bearer server-key", wantToken: "server-key", wantPresent: true},
		{name: "lowercase scheme", header: "bearer server-key", wantToken: "server-key", wantPresent: true},
		{name: "padded credential", header: "Bearer  server-key ", wantToken: "server-key", wantPresent: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			got, present := bearerToken(r)
			if got != tc.wantToken || present != tc.wantPresent {
				t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, got, present, tc.wantToken, tc.wantPresent)
			}
		})
	}
}

// sessionRoutes returns one request per protected route under /api/sessions/{id}.
func sessionRoutes(t *testing.T, id string) map[string]*http.Request {
	t.Helper()
	base := "/api/sessions/" + id
	return map[string]*http.Request{
		"get":        httptest.NewRequest(http.MethodGet, base, nil),
		"ask":        askRequestFor(id, "sky?"),
		"quiz":       httptest.NewRequest(http.MethodPost, base+"/quiz", strings.NewReader(`{}`)),
		"history":    httptest.NewRequest(http.MethodGet, base+"/history", nil),
		"reanalyze":  uploadRequest(t, http.MethodPut, base+"/document", "b.pdf", "Grass is green.", "hf_token"),
		"delete":     httptest.NewRequest(http.MethodDelete, base, nil),
		"create new": uploadRequest(t, http.MethodPost, "/api/sessions", "a.pdf", "The sky is blue.", "hf_token"),
	}
}

func TestAuth_SessionRoutesRejectWithoutKey(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, func(c *Config) { c.APIKey = "server-key" })

	for name, req := range sessionRoutes(t, "s-unknown") {
		w := a.do(req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, w.Code)
			continue
		}
		if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="docqa"` {
			t.Errorf("%s: WWW-Authenticate = %q", name, got)
		}
		if msg := decodeError(t, w); msg != "authorization required" {
			t.Errorf("%s: error = %q", name, msg)
		}
	}
}

func TestAuth_WrongKeyIsInvalidToken(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, func(c *Config) { c.APIKey = "server-key" })

	req := askRequestFor("s-42", "sky?")
	req.Header.Set("Authorization", "Bearer server-kez")
	w := a.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, `error="invalid_token"`) {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if msg := decodeError(t, w); msg != "invalid api key" {
		t.Errorf("error = %q", msg)
	}

	logs := a.logs.String()
	if !strings.Contains(logs, `"session_id":"s-42"`) {
		t.Errorf("rejection should name the session:\n%s", logs)
	}
	if strings.Contains(logs, "server-kez") {
		t.Error("presented key leaked into logs")
	}
}

func TestAuth_ValidKeyReachesSessionHandlers(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, func(c *Config) { c.APIKey = "server-key" })

	// Past the key check, unknown sessions are the handlers' 404, and the
	// create route succeeds outright.
	for name, req := range sessionRoutes(t, "s-unknown") {
		req.Header.Set("Authorization", "bearer server-key")
		w := a.do(req)

		want := http.StatusNotFound
		if name == "create new" {
			want = http.StatusCreated
		}
		if w.Code != want {
			t.Errorf("%s: expected %d, got %d, body: %s", name, want, w.Code, w.Body.String())
		}
	}
}

func TestAuth_OperationalRoutesStayOpen(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, func(c *Config) { c.APIKey = "server-key" })

	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		if w := a.do(httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without a key, got %d", path, w.Code)
		}
	}
}

func TestAuth_EmptyKeyDisablesCheck(t *testing.T) {
	t.Parallel()
	a := newAPITestServer(t, &fakeBackends{}, nil)

	id := a.createSession(t, "The sky is blue.")
	if w := a.do(askRequestFor(id, "sky?")); w.Code != http.StatusOK {
		t.Errorf("ask without any key: expected 200, got %d", w.Code)
	}
}
