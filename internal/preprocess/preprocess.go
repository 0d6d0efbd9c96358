// Package preprocess normalizes chat messages before they reach a provider:
// attachment URIs become inline base64 media and extracted file texts become
// a preamble of the trailing user message.
package preprocess

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mandalnilabja/chatgate/internal/blob"
	"github.com/mandalnilabja/chatgate/internal/metrics"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	// resolveConcurrency bounds parallel blob fetches per request.
	resolveConcurrency = 4

	// fetchTimeout bounds one shared blob fetch. The fetch is detached from the
	// requests waiting on it, so one caller going away does not fail the others.
	fetchTimeout = 60 * time.Second
)

// Preprocessor resolves attachments and builds normalized messages.
type Preprocessor struct {
	store  blob.Store
	cache  *ristretto.Cache[string, types.Part]
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a Preprocessor. cache may be nil.
func New(store blob.Store, cache *ristretto.Cache[string, types.Part], logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{store: store, cache: cache, logger: logger}
}

// NewCache creates a resolved-attachment cache bounded by total payload size.
func NewCache(maxBytes int64) (*ristretto.Cache[string, types.Part], error) {
	return ristretto.NewCache(&ristretto.Config[string, types.Part]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
}

// mediaRef is a media part waiting for resolution.
type mediaRef struct {
	msg  int
	slot int
	uri  string
	kind string // declared part type
}

// Normalize converts messages and attachments into provider-neutral messages.
// Attachments that fail to resolve are logged and dropped, and their number is
// returned as dropped; only context cancellation fails the call.
func (p *Preprocessor) Normalize(ctx context.Context, messages []types.Message, att types.Attachments) (out []types.NormalizedMessage, dropped int, err error) {
	if len(messages) == 0 {
		return nil, 0, types.NewInvalidRequest("messages are required")
	}

	out = make([]types.NormalizedMessage, len(messages))
	slots := make([][]*types.Part, len(messages))
	var refs []mediaRef

	for i, m := range messages {
		out[i].Role = m.Role
		if len(m.Content.Parts) == 0 {
			slots[i] = append(slots[i], &types.Part{Type: types.PartText, Text: m.Content.Text})
			continue
		}
		for _, cp := range m.Content.Parts {
			switch cp.Type {
			case types.PartImage:
				refs = append(refs, mediaRef{msg: i, slot: len(slots[i]), uri: cp.Image, kind: types.PartImage})
				slots[i] = append(slots[i], nil)
			case types.PartPDF:
				refs = append(refs, mediaRef{msg: i, slot: len(slots[i]), uri: cp.PDF, kind: types.PartPDF})
				slots[i] = append(slots[i], nil)
			default:
				slots[i] = append(slots[i], &types.Part{Type: types.PartText, Text: cp.Text})
			}
		}
	}

	target := lastUserIndex(messages)
	for _, uri := range att.ImageURIs {
		refs = append(refs, mediaRef{msg: target, slot: len(slots[target]), uri: uri, kind: types.PartImage})
		slots[target] = append(slots[target], nil)
	}
	for _, uri := range att.PDFURIs {
		refs = append(refs, mediaRef{msg: target, slot: len(slots[target]), uri: uri, kind: types.PartPDF})
		slots[target] = append(slots[target], nil)
	}

	dropped, err = p.resolveAll(ctx, refs, slots)
	if err != nil {
		return nil, 0, err
	}

	for i := range out {
		for _, part := range slots[i] {
			if part != nil {
				out[i].Parts = append(out[i].Parts, *part)
			}
		}
		if len(out[i].Parts) == 0 {
			out[i].Parts = []types.Part{types.TextPart("")}
		}
	}

	if len(att.FileContents) > 0 {
		out[target] = withFilePreamble(out[target], att.FileContents)
	}
	return out, dropped, nil
}

// resolveAll fills the slots of refs concurrently and returns how many failed.
// Failed slots stay nil.
func (p *Preprocessor) resolveAll(ctx context.Context, refs []mediaRef, slots [][]*types.Part) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, ref := range refs {
		g.Go(func() error {
			part, err := p.resolve(gctx, ref.uri)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				metrics.AttachmentFailuresTotal.Inc()
				p.logger.Warn("attachment dropped",
					"uri", redactURI(ref.uri),
					"kind", ref.kind,
					"error", err,
				)
				return nil
			}
			slots[ref.msg][ref.slot] = &part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(failed.Load()), nil
}

// resolve turns a URI or data: URL into an inline media part.
func (p *Preprocessor) resolve(ctx context.Context, uri string) (types.Part, error) {
	if strings.HasPrefix(uri, "data:") {
		return parseDataURL(uri)
	}
	if uri == "" {
		return types.Part{}, fmt.Errorf("%w: empty uri", types.ErrAttachment)
	}

	if p.cache != nil {
		if part, ok := p.cache.Get(uri); ok {
			return part, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return types.Part{}, err
	}

	ch := p.group.DoChan(uri, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		obj, err := p.store.Get(fetchCtx, uri)
		if err != nil {
			return types.Part{}, fmt.Errorf("%w: %w", types.ErrAttachment, err)
		}
		data := base64.StdEncoding.EncodeToString(obj.Data)
		part, err := mediaPart(obj.ContentType, data)
		if err != nil {
			return types.Part{}, err
		}
		if p.cache != nil {
			p.cache.Set(uri, part, int64(len(part.Data)))
		}
		return part, nil
	})

	select {
	case <-ctx.Done():
		return types.Part{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return types.Part{}, res.Err
		}
		return res.Val.(types.Part), nil
	}
}

// parseDataURL decodes a base64 data: URL without touching the blob store.
func parseDataURL(uri string) (types.Part, error) {
	header, data, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return types.Part{}, fmt.Errorf("%w: malformed data url", types.ErrAttachment)
	}
	stored, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return types.Part{}, fmt.Errorf("%w: data url is not base64", types.ErrAttachment)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return types.Part{}, fmt.Errorf("%w: invalid base64 payload: %w", types.ErrAttachment, err)
	}
	return mediaPart(stored, data)
}

func mediaPart(stored, data string) (types.Part, error) {
	mimeType := DetectMIME(stored, data)
	if mimeType == "" {
		return types.Part{}, fmt.Errorf("%w: unsupported media type %q", types.ErrAttachment, stored)
	}
	kind := types.PartImage
	if mimeType == MIMEPDF {
		kind = types.PartPDF
	}
	return types.Part{Type: kind, MIMEType: mimeType, Data: data}, nil
}

// lastUserIndex returns the index of the last user message, or the last index.
func lastUserIndex(messages []types.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return i
		}
	}
	return len(messages) - 1
}

// redactURI drops the query string, which often carries a signature.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	return u.String()
}
