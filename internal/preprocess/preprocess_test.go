package preprocess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mandalnilabja/chatgate/internal/blob"
	"github.com/mandalnilabja/chatgate/internal/types"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfBytes = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
)

type fakeStore struct {
	objects map[string]*blob.Object
	calls   atomic.Int32
}

func (s *fakeStore) Get(ctx context.Context, uri string) (*blob.Object, error) {
	s.calls.Add(1)
	if obj, ok := s.objects[uri]; ok {
		return obj, nil
	}
	return nil, blob.ErrNotFound
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]*blob.Object{
		"uploads/cat.png":    {Data: pngBytes, ContentType: "image/png"},
		"uploads/raw":        {Data: pngBytes},
		"uploads/report.pdf": {Data: pdfBytes, ContentType: "application/pdf"},
	}}
}

func TestNormalizeTextOnly(t *testing.T) {
	p := New(newFakeStore(), nil, nil)

	msgs := []types.Message{
		types.NewTextMessage(types.RoleUser, "hi"),
		types.NewTextMessage(types.RoleAssistant, "hello"),
		types.NewTextMessage(types.RoleUser, "bye"),
	}
	out, _, err := p.Normalize(context.Background(), msgs, types.Attachments{})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	for i, want := range []string{"hi", "hello", "bye"} {
		if out[i].Role != msgs[i].Role || out[i].Text() != want {
			t.Errorf("message %d = %+v, want %q", i, out[i], want)
		}
	}
}

func TestNormalizeAttachments(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, nil)

	msgs := []types.Message{
		types.NewTextMessage(types.RoleUser, "first"),
		types.NewTextMessage(types.RoleAssistant, "ok"),
		types.NewTextMessage(types.RoleUser, "describe these"),
	}
	att := types.Attachments{
		ImageURIs: []string{"uploads/cat.png", "uploads/raw", "uploads/missing.png"},
		PDFURIs:   []string{"uploads/report.pdf"},
	}

	out, dropped, err := p.Normalize(context.Background(), msgs, att)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	if len(out[0].Parts) != 1 {
		t.Errorf("first user message should be untouched, got %d parts", len(out[0].Parts))
	}

	last := out[2]
	if len(last.Parts) != 4 {
		t.Fatalf("last message has %d parts, want 4 (missing image dropped)", len(last.Parts))
	}
	if last.Parts[0].Text != "describe these" {
		t.Errorf("parts[0] = %+v", last.Parts[0])
	}
	wantTypes := []struct{ kind, mime string }{
		{types.PartImage, MIMEPNG},
		{types.PartImage, MIMEPNG}, // sniffed
		{types.PartPDF, MIMEPDF},
	}
	for i, w := range wantTypes {
		got := last.Parts[i+1]
		if got.Type != w.kind || got.MIMEType != w.mime {
			t.Errorf("parts[%d] = %s %s, want %s %s", i+1, got.Type, got.MIMEType, w.kind, w.mime)
		}
		if got.Data == "" || strings.HasPrefix(got.Data, "data:") {
			t.Errorf("parts[%d] should hold raw base64, got %q", i+1, got.Data)
		}
	}
	if !last.HasImage() {
		t.Error("HasImage() = false")
	}
}

func TestNormalizeInlineParts(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, nil)

	msgs := []types.Message{{
		Role: types.RoleUser,
		Content: types.Content{Parts: []types.ContentPart{
			{Type: types.PartText, Text: "what is this?"},
			{Type: types.PartImage, Image: "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg=="},
			{Type: types.PartImage, Image: "data:text/plain,hello"},
		}},
	}}

	out, _, err := p.Normalize(context.Background(), msgs, types.Attachments{})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	parts := out[0].Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2 (non-base64 data url dropped)", len(parts))
	}
	if parts[1].MIMEType != MIMEPNG || parts[1].Data != "iVBORw0KGgoAAAANSUhEUg==" {
		t.Errorf("inline part = %+v", parts[1])
	}
	if store.calls.Load() != 0 {
		t.Errorf("data urls should not hit the blob store, got %d calls", store.calls.Load())
	}
}

func TestNormalizeFilePreamble(t *testing.T) {
	p := New(newFakeStore(), nil, nil)

	msgs := []types.Message{types.NewTextMessage(types.RoleUser, "summarize")}
	att := types.Attachments{
		ImageURIs: []string{"uploads/cat.png"},
		FileContents: []types.FileContent{
			{Name: "notes.txt", Content: "alpha"},
			{Name: "data.json", Content: `{"a":1}`},
		},
	}

	out, _, err := p.Normalize(context.Background(), msgs, att)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	want := "--- Attached file: notes.txt ---\nalpha\n--- End of file: notes.txt ---\n\n" +
		"--- Attached file: data.json ---\n{\"a\":1}\n--- End of file: data.json ---\n\n" +
		"--- User prompt ---\nsummarize"
	parts := out[0].Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].Text != want {
		t.Errorf("text = %q, want %q", parts[0].Text, want)
	}
	if parts[1].Type != types.PartImage {
		t.Errorf("media part should follow the text, got %+v", parts[1])
	}
}

func TestNormalizeCachesResolvedBlobs(t *testing.T) {
	store := newFakeStore()
	cache, err := NewCache(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	p := New(store, cache, nil)

	msgs := []types.Message{types.NewTextMessage(types.RoleUser, "look")}
	att := types.Attachments{ImageURIs: []string{"uploads/cat.png"}}

	if _, _, err := p.Normalize(context.Background(), msgs, att); err != nil {
		t.Fatal(err)
	}
	cache.Wait()
	if _, _, err := p.Normalize(context.Background(), msgs, att); err != nil {
		t.Fatal(err)
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("blob store called %d times, want 1", got)
	}
}

func TestNormalizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	p := New(store, nil, nil)
	msgs := []types.Message{types.NewTextMessage(types.RoleUser, "x")}
	_, _, err := p.Normalize(ctx, msgs, types.Attachments{ImageURIs: []string{"uploads/cat.png"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Normalize() error = %v, want context.Canceled", err)
	}
	if got := store.calls.Load(); got != 0 {
		t.Errorf("blob store called %d times after cancellation", got)
	}
}

// slowStore blocks every fetch until release is closed or the fetch context ends.
type slowStore struct {
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, uri string) (*blob.Object, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return &blob.Object{Data: pngBytes, ContentType: "image/png"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestNormalizeSharedFetchSurvivesCancelledCaller(t *testing.T) {
	store := &slowStore{started: make(chan struct{}), release: make(chan struct{})}
	p := New(store, nil, nil)

	msgs := []types.Message{types.NewTextMessage(types.RoleUser, "look")}
	att := types.Attachments{ImageURIs: []string{"uploads/shared.png"}}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, _, err := p.Normalize(ctxA, msgs, att)
		errA <- err
	}()
	<-store.started

	type result struct {
		out     []types.NormalizedMessage
		dropped int
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		out, dropped, err := p.Normalize(context.Background(), msgs, att)
		resB <- result{out, dropped, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}

	close(store.release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller error: %v", b.err)
	}
	if b.dropped != 0 {
		t.Errorf("live caller dropped %d attachments", b.dropped)
	}
	if len(b.out[0].Parts) != 2 || b.out[0].Parts[1].MIMEType != MIMEPNG {
		t.Errorf("live caller parts = %+v, want text + image", b.out[0].Parts)
	}
}

func TestNormalizeDropsDisallowedRemoteHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	remote := blob.NewHTTPStore(srv.Client(), []string{"127.0.0.1"})
	mux := blob.NewMux()
	mux.Handle("http", remote)
	mux.Handle("https", remote)
	p := New(mux, nil, nil)

	att := types.Attachments{ImageURIs: []string{
		srv.URL + "/cat.png",
		strings.Replace(srv.URL, "127.0.0.1", "localhost", 1) + "/cat.png",
	}}
	out, dropped, err := p.Normalize(context.Background(), []types.Message{types.NewTextMessage(types.RoleUser, "look")}, att)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want only the allowed host", n)
	}
	if parts := out[0].Parts; len(parts) != 2 || parts[1].MIMEType != MIMEPNG {
		t.Errorf("parts = %+v, want text and the allowed image", parts)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	p := New(newFakeStore(), nil, nil)
	if _, _, err := p.Normalize(context.Background(), nil, types.Attachments{}); !errors.Is(err, types.ErrInvalidRequest) {
		t.Errorf("Normalize(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestFilePreambleEmpty(t *testing.T) {
	if got := FilePreamble(nil); got != "" {
		t.Errorf("FilePreamble(nil) = %q", got)
	}
}
