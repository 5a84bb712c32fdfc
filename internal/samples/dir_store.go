// Package samples serves the bundled sample images from a local directory.
package samples

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/book-expert/vision-service/internal/core"
)

// ErrInvalidName is returned for names that would escape the store.
var ErrInvalidName = errors.New("invalid sample image name")

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImageName reports whether name carries one of the listed image
// extensions, ignoring case.
func IsImageName(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// ValidateName rejects empty names, names containing a path separator and
// any name containing "..".
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

// DirStore implements core.ImageStore over a flat directory.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory need not exist yet.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// List returns the sorted image file names in the directory. A missing
// directory lists as empty.
func (s *DirStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to read sample directory %s: %w", s.root, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !IsImageName(entry.Name()) {
			continue
		}

		names = append(names, entry.Name())
	}

	slices.Sort(names)

	return names, nil
}

// Fetch reads a single sample image. Unknown or invalid names return an
// error wrapping core.ErrNotFound.
func (s *DirStore) Fetch(_ context.Context, name string) ([]byte, error) {
	err := ValidateName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNotFound, err)
	}

	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, name)
		}

		return nil, fmt.Errorf("failed to read sample image %s: %w", name, err)
	}

	return data, nil
}
