package pipeline

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/brynmoore/streamstore/internal/blockpool"
	"github.com/brynmoore/streamstore/internal/fileregistry"
	"github.com/brynmoore/streamstore/internal/itemstore"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

func newWritePipeline(t *testing.T) (*WritePipeline, *fileregistry.Registry) {
	t.Helper()
	store, err := itemstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("itemstore.New() error: %v", err)
	}
	pool := blockpool.New(2)
	t.Cleanup(pool.Close)
	reg := fileregistry.New()
	return &WritePipeline{
		Store:            store,
		Registry:         reg,
		Pool:             pool,
		MaxPropertyBytes: 4096,
	}, reg
}

func TestWritePipelineAppendsValidProperties(t *testing.T) {
	wp, _ := newWritePipeline(t)
	body := `<property for="a"><string>hello</string></property><property for="b"><number>3</number></property>`
	key := fileregistry.Key{ItemID: "widget", Version: 1}

	result, err := wp.Run(context.Background(), key, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.PropertiesWritten != 2 {
		t.Errorf("PropertiesWritten = %d, want 2", result.PropertiesWritten)
	}

	path := wp.Store.DataPath("widget", 1)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading data file: %v", err)
	}
	if !strings.Contains(string(data), `<property for="a">`) || !strings.Contains(string(data), `<property for="b">`) {
		t.Errorf("data file missing expected properties: %s", data)
	}
}

func TestWritePipelineEmptyBodyFails(t *testing.T) {
	wp, _ := newWritePipeline(t)
	key := fileregistry.Key{ItemID: "widget", Version: 1}

	result, err := wp.Run(context.Background(), key, strings.NewReader(""))
	if err == nil {
		t.Fatal("expected an error for an empty request body")
	}
	if !storeerr.Is(err, storeerr.InvalidProperty) {
		t.Errorf("expected InvalidProperty, got %v", err)
	}
	if result.PropertiesWritten != 0 {
		t.Errorf("PropertiesWritten = %d, want 0", result.PropertiesWritten)
	}
}

func TestWritePipelinePartialFailureStillWritesGoodProperties(t *testing.T) {
	wp, _ := newWritePipeline(t)
	body := `<property for="a"><string>ok</string></property><property for=""><string>bad</string></property>`
	key := fileregistry.Key{ItemID: "widget", Version: 1}

	result, err := wp.Run(context.Background(), key, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.PropertiesWritten != 1 {
		t.Errorf("PropertiesWritten = %d, want 1", result.PropertiesWritten)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want exactly one", result.Errors)
	}
}

func TestWritePipelineVersionConflict(t *testing.T) {
	wp, _ := newWritePipeline(t)
	key1 := fileregistry.Key{ItemID: "widget", Version: 1}
	if _, err := wp.Run(context.Background(), key1, strings.NewReader(`<property for="a"><string>v</string></property>`)); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	key2 := fileregistry.Key{ItemID: "widget", Version: 2}
	_, err := wp.Run(context.Background(), key2, strings.NewReader(`<property for="a"><string>v</string></property>`))
	if !storeerr.Is(err, storeerr.VersionConflict) {
		t.Fatalf("expected VersionConflict writing a second version to the same item, got %v", err)
	}
}

func TestWritePipelineUnterminatedPropertyFails(t *testing.T) {
	wp, _ := newWritePipeline(t)
	key := fileregistry.Key{ItemID: "widget", Version: 1}
	body := `<property for="a"><string>no closing tag`

	_, err := wp.Run(context.Background(), key, strings.NewReader(body))
	if !storeerr.Is(err, storeerr.UnterminatedProperty) {
		t.Fatalf("expected UnterminatedProperty, got %v", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestWritePipelineTransportErrorPropagates(t *testing.T) {
	wp, _ := newWritePipeline(t)
	key := fileregistry.Key{ItemID: "widget", Version: 1}
	boom := io.ErrClosedPipe

	_, err := wp.Run(context.Background(), key, errReader{err: boom})
	if err == nil {
		t.Fatal("expected a transport error to propagate")
	}
}
