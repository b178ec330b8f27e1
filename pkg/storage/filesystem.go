package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidRef is returned for attachment references that escape the base directory.
var ErrInvalidRef = errors.New("invalid attachment reference")

// ErrNotFound is returned when a reference points at no stored file.
var ErrNotFound = errors.New("attachment not found")

// OwnedRef normalises ref and reports whether it lies inside the learner's directory
// "<cohortID>/<learnerID>/". Dot segments are resolved before the check, so a ref
// cannot climb out of the owner's directory.
func OwnedRef(ref, cohortID, learnerID string) (string, bool) {
	if !segment(cohortID) || !segment(learnerID) {
		return "", false
	}
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return "", false
	}
	cleaned := path.Clean(ref)
	prefix := cohortID + "/" + learnerID + "/"
	if !strings.HasPrefix(cleaned, prefix) || len(cleaned) == len(prefix) {
		return "", false
	}
	return cleaned, true
}

func segment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\")
}

// LocalStorage resolves submission attachment references to files under a base
// directory. Uploading is handled by an external collaborator; this service only
// reads what is already there.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./attachments"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve attachments directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create attachments directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// Save writes bytes under the reference. Used by fixtures and local tooling.
func (s *LocalStorage) Save(ref string, data []byte) (string, error) {
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare attachment directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return ref, nil
}

// Resolve maps a reference to the absolute path of an existing regular file.
func (s *LocalStorage) Resolve(ref string) (string, error) {
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// Open returns a read-only handle for the referenced file.
func (s *LocalStorage) Open(ref string) (*os.File, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) path(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) {
		return "", ErrInvalidRef
	}
	path := filepath.Join(s.baseDir, filepath.Clean(ref))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidRef
	}
	return path, nil
}
