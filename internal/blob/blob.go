// Package blob resolves attachment URIs to bytes and a content type.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Errors returned by stores.
var (
	ErrNotFound          = errors.New("blob not found")
	ErrUnsupportedScheme = errors.New("unsupported blob uri scheme")
	ErrOutsideRoot       = errors.New("blob path outside root")
	ErrTooLarge          = errors.New("blob exceeds size limit")
	ErrHostNotAllowed    = errors.New("blob host not allowed")
)

// MaxSize is the largest object a store will return.
const MaxSize = 32 << 20

// Object is a resolved blob.
type Object struct {
	Data        []byte
	ContentType string // may be empty
}

// Store resolves a URI to an object.
type Store interface {
	Get(ctx context.Context, uri string) (*Object, error)
}

// Mux dispatches to a store by URI scheme. Bare paths use the "file" store.
type Mux struct {
	stores map[string]Store
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{stores: make(map[string]Store)}
}

// Handle registers a store for a scheme.
func (m *Mux) Handle(scheme string, s Store) {
	m.stores[strings.ToLower(scheme)] = s
}

// Get implements Store.
func (m *Mux) Get(ctx context.Context, uri string) (*Object, error) {
	scheme := schemeOf(uri)
	s, ok := m.stores[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return s.Get(ctx, uri)
}

// schemeOf returns the lowercased scheme, or "file" for bare paths.
func schemeOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// single-letter schemes are Windows drive letters
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
