package itemstore

import (
	"testing"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

func TestValidateItemID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"widget-1", true},
		{"", false},
		{"a/b", false},
		{`a\b`, false},
	}
	for _, tc := range cases {
		err := ValidateItemID(tc.id)
		if (err == nil) != tc.valid {
			t.Errorf("ValidateItemID(%q) error = %v, want valid=%v", tc.id, err, tc.valid)
		}
	}
}

func TestPrepareWriteFirstVersionThenConflict(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	path, err := s.PrepareWrite("widget", 1)
	if err != nil {
		t.Fatalf("PrepareWrite() error: %v", err)
	}
	if path == "" {
		t.Fatal("expected a non-empty data path")
	}

	if _, err := s.PrepareWrite("widget", 1); err != nil {
		t.Errorf("repeat write to same version should succeed: %v", err)
	}

	_, err = s.PrepareWrite("widget", 2)
	if !storeerr.Is(err, storeerr.VersionConflict) {
		t.Fatalf("expected VersionConflict writing a second version, got %v", err)
	}
}

func TestPrepareReadRequiresFileOrWriter(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = s.PrepareRead("widget", 1, false)
	if !storeerr.Is(err, storeerr.NotFound) {
		t.Fatalf("expected NotFound with no file and no writer, got %v", err)
	}

	if _, err := s.PrepareRead("widget", 1, true); err != nil {
		t.Errorf("expected a candidate writer to satisfy PrepareRead even with no file yet: %v", err)
	}

	if _, err := s.PrepareWrite("widget", 1); err != nil {
		t.Fatalf("PrepareWrite() error: %v", err)
	}
	if _, err := s.PrepareRead("widget", 1, false); err != nil {
		t.Errorf("expected PrepareRead to succeed once the data file exists: %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := s.Metadata("widget"); !storeerr.Is(err, storeerr.NotFound) {
		t.Fatalf("expected NotFound before any write, got %v", err)
	}
	if _, err := s.PrepareWrite("widget", 3); err != nil {
		t.Fatalf("PrepareWrite() error: %v", err)
	}
	meta, err := s.Metadata("widget")
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Version != 3 {
		t.Errorf("Version = %d, want 3", meta.Version)
	}
	if meta.Created.IsZero() {
		t.Error("expected a non-zero Created timestamp")
	}
}
