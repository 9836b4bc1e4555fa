// Package assets persists binary render outputs and hands back stable
// references.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound indicates no asset exists for the given reference.
var ErrNotFound = errors.New("asset not found")

// Store writes assets to a flat directory. References are opaque file names;
// callers must not interpret them.
type Store struct {
	dir string
}

// NewStore creates the asset directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save persists data and returns a stable reference. ext is the file
// extension including the dot (".png"); an empty ext is allowed.
func (s *Store) Save(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("save asset: empty data")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	ref := uuid.New().String() + ext
	path := filepath.Join(s.dir, ref)

	// Write to a temp file first so a crash never leaves a half-written
	// asset under a stable reference.
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("save asset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save asset: %w", err)
	}

	return ref, nil
}

// Load reads an asset by reference.
func (s *Store) Load(ref string) ([]byte, error) {
	// Reject anything that could escape the asset directory.
	if ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, fmt.Errorf("asset %q: %w", ref, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("asset %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	return data, nil
}
