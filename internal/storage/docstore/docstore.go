// Package docstore implements a file-backed JSON document store with
// crash-safe replace semantics: every write goes to a temp file first and
// is then renamed over the target. The store offers last-writer-wins
// atomicity per document and nothing more; read-modify-write sequences
// must be serialized by the caller.
package docstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store reads and writes JSON documents under a single directory.
type Store struct {
	dir string
}

// New creates the document directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create document dir")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// Read unmarshals the named document into v. It returns false with no
// error when the document is absent or empty.
func (s *Store) Read(name string, v any) (bool, error) {
	payload, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read document %s", name)
	}
	if len(payload) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, errors.Wrapf(err, "decode document %s", name)
	}
	return true, nil
}

// Write marshals v and atomically replaces the named document.
func (s *Store) Write(name string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode document %s", name)
	}

	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrapf(err, "write document %s temp file", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "persist document %s", name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}
