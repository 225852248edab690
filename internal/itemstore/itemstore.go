// Package itemstore owns the on-disk layout rooted at a configured storage
// directory: the data file and metadata sidecar paths, sidecar creation, and
// the version-conflict check a write must pass before any bytes are
// appended. It does not itself hold the data file open — that is
// fileregistry/sharedfile's job — but it is the component that decides
// whether a write is even allowed to proceed.
package itemstore

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
	"unicode"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

// Metadata is the per-item sidecar record, keyed by item_id alone.
type Metadata struct {
	Version int64
	Created time.Time
}

// metadataXML is the on-disk shape: <metadata><version>N</version><created>RFC3339</created></metadata>.
type metadataXML struct {
	XMLName xml.Name `xml:"metadata"`
	Version int64    `xml:"version"`
	Created string   `xml:"created"`
}

// ItemStore resolves filesystem paths under root and enforces the version
// policy documented in spec.md §4.5: a write to a version different from the
// item's recorded version is a conflict, never an implicit upgrade.
type ItemStore struct {
	root string
}

// New creates an ItemStore rooted at root, creating the directory if absent.
func New(root string) (*ItemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.Io, "creating storage root", err)
	}
	return &ItemStore{root: root}, nil
}

var itemIDPattern = regexp.MustCompile(`^[^/\\]+$`)

// ValidateItemID checks that id is non-empty, printable, and contains no
// path separators, per spec.md §3's ItemKey invariant.
func ValidateItemID(id string) error {
	if id == "" {
		return storeerr.New(storeerr.InvalidProperty, "item_id must not be empty")
	}
	if !itemIDPattern.MatchString(id) {
		return storeerr.New(storeerr.InvalidProperty, "item_id must not contain path separators")
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return storeerr.New(storeerr.InvalidProperty, "item_id must be printable")
		}
	}
	return nil
}

func (s *ItemStore) dataPath(itemID string, version int64) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%d.xml", itemID, version))
}

func (s *ItemStore) metadataPath(itemID string) string {
	return filepath.Join(s.root, itemID+"_metadata.xml")
}

// DataPath returns the data file path for (itemID, version), whether or not
// it exists yet.
func (s *ItemStore) DataPath(itemID string, version int64) string {
	return s.dataPath(itemID, version)
}

// PrepareWrite resolves and returns the data file path for a write to
// (itemID, version). On the first write to itemID it creates the metadata
// sidecar recording version; on a later write it requires the recorded
// version to match, failing with storeerr.VersionConflict otherwise. The
// data file is created if it does not already exist.
func (s *ItemStore) PrepareWrite(itemID string, version int64) (string, error) {
	if err := ValidateItemID(itemID); err != nil {
		return "", err
	}
	if version < 0 {
		return "", storeerr.New(storeerr.InvalidProperty, "version must be non-negative")
	}

	meta, err := s.readMetadata(itemID)
	if err != nil && !storeerr.Is(err, storeerr.NotFound) {
		return "", err
	}
	if err == nil {
		if meta.Version != version {
			return "", storeerr.New(storeerr.VersionConflict,
				fmt.Sprintf("item %q is at version %d, write requested version %d", itemID, meta.Version, version))
		}
	} else {
		if err := s.writeMetadata(itemID, Metadata{Version: version, Created: time.Now().UTC()}); err != nil {
			return "", err
		}
	}

	path := s.dataPath(itemID, version)
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return "", storeerr.Wrap(storeerr.Io, "creating data file", err)
	}
	_ = f.Close()
	return path, nil
}

// PrepareRead resolves the data file path for a read of (itemID, version).
// It fails with storeerr.NotFound only when the data file does not exist
// and hasCandidateWriter (supplied by the caller after checking the
// in-process registry) is also false, per spec.md §4.5's "a reader may
// attach before any bytes are written, provided the SharedFile entry exists
// from a concurrent writer".
func (s *ItemStore) PrepareRead(itemID string, version int64, hasCandidateWriter bool) (string, error) {
	if err := ValidateItemID(itemID); err != nil {
		return "", err
	}
	path := s.dataPath(itemID, version)
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", storeerr.Wrap(storeerr.Io, "stat data file", err)
		}
		if !hasCandidateWriter {
			return "", storeerr.New(storeerr.NotFound, fmt.Sprintf("no data file or active writer for %s/%d", itemID, version))
		}
	}
	return path, nil
}

func (s *ItemStore) readMetadata(itemID string) (Metadata, error) {
	b, err := os.ReadFile(s.metadataPath(itemID)) //nolint:gosec // G304: itemID is validated, path is repo-internal
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, storeerr.New(storeerr.NotFound, "no metadata for item")
		}
		return Metadata{}, storeerr.Wrap(storeerr.Io, "reading metadata sidecar", err)
	}
	var m metadataXML
	if err := xml.Unmarshal(b, &m); err != nil {
		return Metadata{}, storeerr.Wrap(storeerr.Io, "parsing metadata sidecar", err)
	}
	created, err := time.Parse(time.RFC3339, m.Created)
	if err != nil {
		return Metadata{}, storeerr.Wrap(storeerr.Io, "parsing metadata created timestamp", err)
	}
	return Metadata{Version: m.Version, Created: created}, nil
}

func (s *ItemStore) writeMetadata(itemID string, m Metadata) error {
	x := metadataXML{Version: m.Version, Created: m.Created.Format(time.RFC3339)}
	b, err := xml.Marshal(x)
	if err != nil {
		return storeerr.Wrap(storeerr.Io, "encoding metadata sidecar", err)
	}
	if err := os.WriteFile(s.metadataPath(itemID), b, 0o644); err != nil {
		return storeerr.Wrap(storeerr.Io, "writing metadata sidecar", err)
	}
	return nil
}

// Metadata returns the recorded metadata for itemID, or storeerr.NotFound if
// the item has never been written.
func (s *ItemStore) Metadata(itemID string) (Metadata, error) {
	if err := ValidateItemID(itemID); err != nil {
		return Metadata{}, err
	}
	return s.readMetadata(itemID)
}
