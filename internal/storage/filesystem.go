package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"studio/internal/domain"
)

// Error wraps a failed storage operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error { return []error{domain.ErrStorage, e.Err} }

// FileStore persists assets onto the local filesystem and serves them under
// a public base URL. It stands in for an object storage bucket.
type FileStore struct {
	basePath      string
	publicBaseURL string
}

// NewFileStore initializes a FileStore rooted at basePath. Public URLs are
// built as publicBaseURL + "/" + key.
func NewFileStore(basePath, publicBaseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Upload writes data at key and returns its public URL.
func (s *FileStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "upload", Key: key, Err: err}
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", &Error{Op: "upload", Key: key, Err: err}
	}
	if len(data) == 0 {
		return "", &Error{Op: "upload", Key: cleanKey, Err: errors.New("empty payload")}
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", &Error{Op: "upload", Key: cleanKey, Err: err}
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", &Error{Op: "upload", Key: cleanKey, Err: err}
	}
	return s.PublicURL(cleanKey), nil
}

// Download reads the object stored at key.
func (s *FileStore) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "download", Key: key, Err: err}
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, &Error{Op: "download", Key: key, Err: err}
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", domain.ErrNotFound, cleanKey)
		}
		return nil, &Error{Op: "download", Key: cleanKey, Err: err}
	}
	return data, nil
}

// PublicURL returns the URL an object at key is served from.
func (s *FileStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	return s.publicBaseURL + "/" + cleanKey
}

// KeyFromURL maps a public URL produced by this store back to its key.
func (s *FileStore) KeyFromURL(u string) (string, bool) {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(u, prefix) {
		return "", false
	}
	key, err := sanitizeKey(strings.TrimPrefix(u, prefix))
	if err != nil {
		return "", false
	}
	return key, true
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("invalid key")
	}
	return cleaned, nil
}
