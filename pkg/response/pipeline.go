package response

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/format"
	"github.com/platinummonkey/apigate/pkg/transformer"
)

// Pipeline shapes handler results into responses. Stages run in order:
// wrap, transform, format, conditional.
type Pipeline struct {
	Transformers *transformer.Factory
	Formatters   *format.Registry
	// Conditional enables ETag computation and If-None-Match handling. A
	// per-request override is read from the context, see WithConditional.
	Conditional bool
}

// NewPipeline creates a pipeline over the given registries
func NewPipeline(transformers *transformer.Factory, formatters *format.Registry, conditional bool) *Pipeline {
	return &Pipeline{
		Transformers: transformers,
		Formatters:   formatters,
		Conditional:  conditional,
	}
}

// WithConditional overrides the pipeline's conditional switch for one request
func WithConditional(ctx context.Context, enabled bool) context.Context {
	return contextkeys.WithConditional(ctx, enabled)
}

func (p *Pipeline) conditional(ctx context.Context) bool {
	if enabled, ok := contextkeys.GetConditional(ctx); ok {
		return enabled
	}
	return p.Conditional
}

// Prepare runs value through the pipeline for the negotiated format name.
// It fails with a 406 *apierrors.Error when no formatter is registered for
// name.
func (p *Pipeline) Prepare(ctx context.Context, r *http.Request, value interface{}, name string) (*Response, error) {
	resp := Wrap(value, http.StatusOK)

	c, err := p.transform(ctx, resp)
	if err != nil {
		return nil, err
	}

	if err := p.format(r, resp, c, name); err != nil {
		return nil, err
	}

	if p.conditional(ctx) {
		applyConditional(r, resp, c)
	}
	return resp, nil
}

func (p *Pipeline) transform(ctx context.Context, resp *Response) (content.Content, error) {
	if !p.Transformers.Transformable(resp.Content, resp.Binding) {
		return content.Classify(resp.Content), nil
	}
	c, err := p.Transformers.Transform(ctx, resp.Content, resp.Binding)
	if err != nil {
		return nil, fmt.Errorf("transform response: %w", err)
	}
	return c, nil
}

func (p *Pipeline) format(r *http.Request, resp *Response, c content.Content, name string) error {
	if p.Formatters == nil {
		return apierrors.NotAcceptable(name)
	}
	formatter, err := p.Formatters.Get(name, r)
	if err != nil {
		if errors.Is(err, format.ErrUnsupportedFormat) {
			return apierrors.NotAcceptable(name).Wrap(err)
		}
		return err
	}

	body, formatted, err := format.Format(formatter, c)
	if err != nil {
		return fmt.Errorf("format %s response: %w", name, err)
	}
	if formatted {
		resp.Header.Set("Content-Type", formatter.ContentType())
	}
	// a response built with a rendered Body and no Content keeps its body
	if resp.Content != nil || resp.Body == nil {
		resp.Body = body
	}
	resp.Format = name
	return nil
}

// applyConditional sets the ETag of successful responses and downgrades to
// 304 when the request's If-None-Match matches it. Opaque content that is
// not a string or byte slice is never hashed.
func applyConditional(r *http.Request, resp *Response, c content.Content) {
	if !resp.IsSuccessful() {
		return
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		if opaque, ok := c.(content.Opaque); ok {
			if _, hashable := opaque.Bytes(); !hashable {
				return
			}
		}
		etag = ETag(resp.Body)
		resp.Header.Set("ETag", etag)
	}

	if r == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		return
	}
	if MatchesNoneMatch(r.Header.Get("If-None-Match"), etag) {
		resp.Status = http.StatusNotModified
		resp.Body = nil
	}
}
