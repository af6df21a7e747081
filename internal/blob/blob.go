// Package blob is the object store behind originals, derivatives and
// profile images. Keys are forward-slash paths under a configured root;
// the filesystem implementation confines every key to that root.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jkov/photark/internal/apperr"
)

// Store abstracts the object store. Implementations must treat keys as
// opaque forward-slash paths.
type Store interface {
	// Put writes r under key, creating parents, and returns bytes written.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open returns a seekable reader and the object size.
	Open(ctx context.Context, key string) (io.ReadSeekCloser, int64, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Size stats the object without opening it.
	Size(ctx context.Context, key string) (int64, error)
}

// FS is the filesystem store rooted at a data directory.
type FS struct {
	root string
}

// NewFS creates the root if needed and returns a filesystem store.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// resolve confines key to the root. Keys are server-generated, but a
// segment check keeps a corrupted path from ever escaping the data dir.
func (s *FS) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", apperr.BadRequestf("invalid storage key %q", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.BadRequestf("storage key escapes root: %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FS) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("blob: mkdir for %s: %w", key, err)
	}
	tmp := path + ".part"
	f, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("blob: create %s: %w", key, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("blob: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("blob: finalize %s: %w", key, err)
	}
	_ = ctx
	return n, nil
}

func (s *FS) Open(ctx context.Context, key string) (io.ReadSeekCloser, int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Clean(path))
	if os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("%w: %s", apperr.ErrStorageMissing, key)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("blob: open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("blob: stat %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", apperr.ErrStorageMissing, key)
	}
	_ = ctx
	return f, info.Size(), nil
}

func (s *FS) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	_ = ctx
	return nil
}

func (s *FS) Size(ctx context.Context, key string) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: %s", apperr.ErrStorageMissing, key)
	}
	if err != nil {
		return 0, fmt.Errorf("blob: stat %s: %w", key, err)
	}
	_ = ctx
	return info.Size(), nil
}
