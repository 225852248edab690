// Package server implements the HTTP routing and request-handling layer
// around the streaming property store's write and read pipelines: a
// net/http.ServeMux router, request-scoped logging, rate limiting, and
// panic recovery, mirroring the teacher's internal/server package shape.
package server

import (
	"net/http"

	"github.com/brynmoore/streamstore/internal/server/ratelimit"
)

// NewRouter builds the store's HTTP handler: the two spec-defined routes
// plus the ambient /healthz and /debug/schema additions, wrapped in
// logging, rate limiting, and recovery middleware.
func NewRouter(h *Handlers, rl *ratelimit.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /write-item-stream/{item_id}/{version}", h.WriteItemStream)
	mux.HandleFunc("GET /read-item-stream/{item_id}/{version}", h.ReadItemStream)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /debug/schema", h.DebugSchema)

	var handler http.Handler = mux
	handler = withRateLimit(rl, handler)
	handler = withRecovery(handler)
	handler = withLogging(handler)
	handler = withRequestMetadata(handler)
	return handler
}
