package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Model-route budget applied per client and per session when Config leaves
// RateLimit or RateBurst at zero.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// bucketIdleTTL is how long an unused bucket survives before eviction.
const bucketIdleTTL = 5 * time.Minute

// Rate limit scopes, used as the "scope" metric label.
const (
	scopeClient  = "client"
	scopeSession = "session"
)

// bucket is one token bucket and the last time it was spent from.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds token buckets keyed by client address or session id.
type bucketSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func newBucketSet(limit rate.Limit, burst int) *bucketSet {
	return &bucketSet{buckets: make(map[string]*bucket), limit: limit, burst: burst}
}

// allow spends one token from key's bucket at now, creating the bucket full.
func (b *bucketSet) allow(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.buckets[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.buckets[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// forget drops key's bucket.
func (b *bucketSet) forget(key string) {
	b.mu.Lock()
	delete(b.buckets, key)
	b.mu.Unlock()
}

// evictIdle drops buckets not spent from since cutoff.
func (b *bucketSet) evictIdle(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, e := range b.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(b.buckets, key)
		}
	}
}

func (b *bucketSet) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

// modelLimiter guards the routes that reach the embedding and generation
// backends. A request spends one token from its client's bucket and, on
// /api/sessions/{id}/... routes, one from that session's bucket, so a session
// shared by many clients still cannot exceed its own budget.
type modelLimiter struct {
	clients  *bucketSet
	sessions *bucketSet
	metrics  *Metrics
}

// newModelLimiter builds a limiter with rps and burst per client and per
// session, and starts idle-bucket eviction until the returned stop is called.
func newModelLimiter(rps float64, burst int, metrics *Metrics) (*modelLimiter, func()) {
	l := &modelLimiter{
		clients:  newBucketSet(rate.Limit(rps), burst),
		sessions: newBucketSet(rate.Limit(rps), burst),
		metrics:  metrics,
	}

	stopCh := make(chan struct{})
	go l.evictLoop(stopCh)

	var once sync.Once
	return l, func() { once.Do(func() { close(stopCh) }) }
}

func (l *modelLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-bucketIdleTTL)
			l.clients.evictIdle(cutoff)
			l.sessions.evictIdle(cutoff)
		}
	}
}

// forgetSession drops the bucket of a deleted session.
func (l *modelLimiter) forgetSession(id string) {
	if l != nil {
		l.sessions.forget(id)
	}
}

// middleware rejects over-budget requests with 429 and a Retry-After header.
// It must wrap a handler registered on the mux so the {id} path value is set.
func (l *modelLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()

		scope, ok := scopeClient, l.clients.allow(clientIP(r), now)
		if id := r.PathValue("id"); ok && id != "" {
			scope, ok = scopeSession, l.sessions.allow(id, now)
		}
		if !ok {
			l.metrics.rateLimitedTotal.WithLabelValues(scope).Inc()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("scope", scope),
				slog.String("client", clientIP(r)),
			)
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, r, scope+" rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote host without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
