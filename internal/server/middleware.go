package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brynmoore/streamstore/internal/server/dto"
	"github.com/brynmoore/streamstore/internal/server/ratelimit"
	"github.com/brynmoore/streamstore/internal/server/reqctx"
)

// withRequestMetadata stamps the client IP and User-Agent onto the request
// context, mirroring the teacher's addRequestMetadataToContext.
func withRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqctx.WithClientIP(r.Context(), reqctx.GetClientIP(r))
		ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withLogging logs one line per request at completion, including status and
// duration, the way request-scoped logging is done throughout the teacher's
// handler layer via log/slog.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration", time.Since(start),
			"ip", reqctx.ClientIP(r.Context()),
		)
	})
}

// withRecovery converts a panic in a handler into a 500 response instead of
// crashing the process, matching the ambient-protection posture the
// teacher's rate limiting and quota checks share: a misbehaving request
// never takes down the whole store.
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic in handler", "recovered", rec)
				writeAPIError(w, dto.Io("internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies the configured per-route, per-IP tier before
// dispatching to next, writing a 429 itself when the caller is over budget.
// This is an ambient protection concern layered on top of the spec's two
// routes; it never changes the status codes the spec itself defines.
func withRateLimit(cfg *ratelimit.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := cfg.Match(r.Method, r.URL.Path)
		if tier == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := reqctx.GetClientIP(r)
		key := ratelimit.BuildKey(ip, tier.Name)
		result := tier.Limiter.Allow(key)
		rw := ratelimit.NewResponseWriter(w, result)
		if !result.Allowed {
			writeRateLimitError(rw, result)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Flush lets statusWriter pass through http.Flusher for streaming handlers.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeAPIError(w http.ResponseWriter, apiErr *dto.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	resp := dto.ErrorResponse{
		Error: dto.ErrorDetails{Code: apiErr.Code(), Message: apiErr.Error()},
	}
	if d := apiErr.Details(); d != nil {
		resp.Details = d
	}
	_ = writeJSON(w, resp)
}

func writeRateLimitError(w http.ResponseWriter, result ratelimit.Result) {
	retryAfter := int(result.RetryAfter.Seconds())
	apiErr := dto.NewAPIError(http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded").
		WithDetail("retry_after_seconds", retryAfter)
	writeAPIError(w, apiErr)
}
