package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/response"
)

// InternalOptions shape an internal request
type InternalOptions struct {
	// Version and Format default to the outer request's negotiated values,
	// then to the parser defaults.
	Version string
	Format  string
	Query   url.Values
	Header  http.Header
	Body    io.Reader
	// Domain sets the request host for domain-restricted routes.
	Domain string
	// Principal authenticates the request. It defaults to the principal of
	// the outer request.
	Principal *auth.Principal
}

// Internal dispatches a request from inside the process, e.g. from a handler
// composing other endpoints. It runs the same routing, authentication and
// pipeline as an external request but is never throttled. Errors are
// returned as errors instead of being translated, and the outer request's
// routing state in ctx is left untouched. The Content of the returned
// response is the handler's raw value.
func (d *Dispatcher) Internal(ctx context.Context, method, uri string, opts InternalOptions) (*response.Response, error) {
	desc := d.parser.Parse("")
	if outer, ok := CurrentDescriptor(ctx); ok {
		desc.Version, desc.Format = outer.Version, outer.Format
	}
	if opts.Version != "" {
		desc.Version = opts.Version
	}
	if opts.Format != "" {
		desc.Format = opts.Format
	}
	desc.Vendor = d.parser.Vendor
	if desc.Vendor == "" {
		desc.Vendor = "api"
	}

	target := "/" + strings.TrimLeft(uri, "/")
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	ctx = contextkeys.WithInternal(ctx)
	if opts.Principal != nil {
		ctx = auth.WithPrincipal(ctx, opts.Principal)
	}
	ctx = response.WithConditional(ctx, false)

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("build internal request: %w", err)
	}
	for key, values := range opts.Header {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("Accept", desc.MediaType())
	if opts.Domain != "" {
		req.Host = opts.Domain
	}

	return d.Dispatch(req)
}
