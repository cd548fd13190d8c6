package otel

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// HTTP requests. Requests whose path starts with one of skipPrefixes are not
// traced.
func HTTPMiddleware(serviceName string, skipPrefixes ...string) func(http.Handler) http.Handler {
	filter := func(r *http.Request) bool {
		for _, p := range skipPrefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return false
			}
		}
		return true
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, otelhttp.WithFilter(filter))
	}
}
