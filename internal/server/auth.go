package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// requireAPIKey guards the session routes with the server's own API key,
// presented as "Authorization: Bearer <key>". It is unrelated to the model
// credential in X-Model-Token, which only reaches the backends. An empty
// apiKey disables the check; New warns about that once at startup.
//
// Failures get a 401 JSON error and a Bearer challenge. Presented keys are
// never logged.
func requireAPIKey(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present := bearerToken(r)

		var reason string
		switch {
		case !present:
			reason = "authorization required"
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa"`)
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			reason = "invalid api key"
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa", error="invalid_token"`)
		default:
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("auth rejected",
			slog.String("reason", reason),
			slog.String("session_id", r.PathValue("id")),
		)
		writeJSONError(w, r, reason, http.StatusUnauthorized)
	})
}

// bearerToken returns the credential of a Bearer Authorization header and
// whether one was presented at all.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
