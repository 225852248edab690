package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brynmoore/streamstore/internal/server/reqctx"
)

func TestWithRecoveryConvertsPanicToInternalError(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := withRecovery(panicking)

	req := httptest.NewRequest(http.MethodGet, "/whatever", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestWithRequestMetadataStampsClientIP(t *testing.T) {
	var sawIP string
	handler := withRequestMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIP = reqctx.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if sawIP != "203.0.113.5" {
		t.Fatalf("ClientIP = %q, want 203.0.113.5", sawIP)
	}
}
