package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/brynmoore/streamstore/internal/fileregistry"
	"github.com/brynmoore/streamstore/internal/pipeline"
	"github.com/brynmoore/streamstore/internal/server/dto"
)

// Handlers holds the pipelines the HTTP layer dispatches to. It is the
// store's analogue of the teacher's handlers.Services.
type Handlers struct {
	Write   *pipeline.WritePipeline
	Read    *pipeline.ReadPipeline
	Version string
}

func parseKey(r *http.Request) (fileregistry.Key, *dto.APIError) {
	itemID := r.PathValue("item_id")
	versionStr := r.PathValue("version")
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil || version < 0 {
		return fileregistry.Key{}, dto.InvalidProperty("version must be a non-negative integer")
	}
	return fileregistry.Key{ItemID: itemID, Version: version}, nil
}

// WriteItemStream implements POST /write-item-stream/{item_id}/{version}.
// The request body is consumed streamingly; it is never buffered whole.
func (h *Handlers) WriteItemStream(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseKey(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "xml") {
		writeAPIError(w, dto.InvalidProperty("Content-Type must be application/xml"))
		return
	}

	result, err := h.Write.Run(r.Context(), key, r.Body)
	if err != nil {
		writeAPIError(w, apiErrorFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	errStrs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errStrs[i] = e.Error()
	}
	_ = writeJSON(w, map[string]any{
		"properties_written": result.PropertiesWritten,
		"errors":              errStrs,
	})
}

// ReadItemStream implements GET /read-item-stream/{item_id}/{version}. The
// response streams the data file's bytes verbatim as they become durable,
// staying open until the writer closes or the client disconnects.
func (h *Handlers) ReadItemStream(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseKey(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	handle, err := h.Read.Open(r.Context(), key)
	if err != nil {
		writeAPIError(w, apiErrorFor(err))
		return
	}
	defer handle.Release()

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)

	if err := h.Read.Stream(r.Context(), handle, w); err != nil {
		slog.WarnContext(r.Context(), "read stream ended early", "item_id", key.ItemID, "version", key.Version, "err", err)
	}
}

// Healthz implements GET /healthz, grounded on the teacher's
// handlers.HealthHandler.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, map[string]string{"status": "ok", "version": h.Version})
}

// DebugSchema implements GET /debug/schema: a JSON Schema describing the
// property wire shape, for client tooling. Read-only, no auth, consistent
// with the store's non-goal on authentication.
func (h *Handlers) DebugSchema(w http.ResponseWriter, r *http.Request) {
	reflector := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := reflector.Reflect(&dto.PropertyWire{})
	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, schema)
}
