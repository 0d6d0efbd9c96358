package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxRedirects matches the net/http default.
const maxRedirects = 10

// HTTPStore fetches http and https URIs, such as signed storage URLs.
// Only hosts on the allowlist are contacted, redirects included.
type HTTPStore struct {
	client  *http.Client
	allowed []string
}

// NewHTTPStore creates an HTTPStore. A nil client gets a 60 second timeout.
// allowedHosts holds exact host names, or domain suffixes when an entry starts
// with a dot (".example.com"). An empty list rejects every URI.
func NewHTTPStore(client *http.Client, allowedHosts []string) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	s := &HTTPStore{}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.allowed = append(s.allowed, h)
		}
	}

	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return s.checkHost(req.URL)
	}
	s.client = &c
	return s
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, uri string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if err := s.checkHost(req.URL); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, uri)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return &Object{Data: data, ContentType: contentType}, nil
}

func (s *HTTPStore) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	for _, allowed := range s.allowed {
		if host == allowed || (strings.HasPrefix(allowed, ".") && strings.HasSuffix(host, allowed)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}
