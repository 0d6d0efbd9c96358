package blob

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore serves files under a root directory.
// It accepts file:// URIs and bare paths; both are resolved relative to the root.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore confined to root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(root)}
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, uri string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, uri)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Object{
		Data:        data,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}, nil
}

// resolve maps a URI to a path under the root.
func (s *FileStore) resolve(uri string) (string, error) {
	p := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", err
		}
		p = u.Host + u.Path
	}

	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, uri)
	}
	return full, nil
}
