package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/ssepush/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyBody   = 64 << 10 // 64 KB
	idempotencyPrefix    = "idem:"
)

// idempotencyEntry is what the cache holds for a key: a pending marker while
// the first request runs, then its response.
type idempotencyEntry struct {
	Pending     bool   `json:"pending,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

var pendingEntry, _ = json.Marshal(idempotencyEntry{Pending: true})

// Idempotency returns middleware that replays the stored response of a
// mutating request whose Idempotency-Key was already seen within ttl, so a
// retried push trigger does not deliver the message twice. The key is
// claimed with SetIfAbsent before the handler runs; a retry arriving while
// the first attempt is still running gets 409.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			cacheKey := idempotencyPrefix + r.Method + " " + r.URL.Path + " " + key

			claimed, err := c.SetIfAbsent(ctx, cacheKey, pendingEntry, ttl)
			if err != nil {
				slog.WarnContext(ctx, "idempotency: cache unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				if replay(w, r, c, cacheKey, key) {
					return
				}
				// The entry expired between the claim and the read.
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			// Server errors release the key so the client may retry them.
			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				if err := c.Delete(ctx, cacheKey); err != nil {
					slog.WarnContext(ctx, "idempotency: failed to release key", "key", key, "error", err)
				}
				return
			}
			entry, err := json.Marshal(idempotencyEntry{
				StatusCode:  rec.statusCode,
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.Set(ctx, cacheKey, entry, ttl); err != nil {
				slog.WarnContext(ctx, "idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// replay answers from the cached entry and reports whether it did.
func replay(w http.ResponseWriter, r *http.Request, c cache.Cache, cacheKey, key string) bool {
	data, ok, err := c.Get(r.Context(), cacheKey)
	if err != nil {
		slog.WarnContext(r.Context(), "idempotency: cache lookup failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}

	var cached idempotencyEntry
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.WarnContext(r.Context(), "idempotency: corrupt cache entry", "key", key)
		return false
	}
	if cached.Pending {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"a request with this Idempotency-Key is in progress"}`))
		return true
	}

	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// responseRecorder wraps http.ResponseWriter to capture the response.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
