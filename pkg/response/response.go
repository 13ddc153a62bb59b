package response

import (
	"net/http"

	"github.com/platinummonkey/apigate/pkg/transformer"
)

// Response is the pipeline's response type. Content holds the original
// handler value until the pipeline renders Body.
type Response struct {
	Status  int
	Header  http.Header
	Content interface{}
	Binding *transformer.Binding
	Body    []byte
	cookies []*http.Cookie
	// Format is the negotiated format the body was rendered with
	Format string
}

// New creates a response for content with the given status
func New(content interface{}, status int) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		Status:  status,
		Header:  make(http.Header),
		Content: content,
	}
}

// Wrap returns v unchanged when it already is a *Response, and wraps any
// other value with status
func Wrap(v interface{}, status int) *Response {
	if resp, ok := v.(*Response); ok && resp != nil {
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		if resp.Status == 0 {
			resp.Status = http.StatusOK
		}
		return resp
	}
	return New(v, status)
}

// Item binds a single resource to a transformer. t may be nil to use the
// type mapping of the pipeline's factory.
func Item(resource interface{}, t transformer.Transformer) *Response {
	resp := New(resource, http.StatusOK)
	resp.Binding = transformer.NewBinding(resource, t)
	return resp
}

// Collection binds a list of resources to a transformer
func Collection(resources interface{}, t transformer.Transformer) *Response {
	return Item(resources, t)
}

// Created is a 201 response with an optional Location header
func Created(location string, content interface{}) *Response {
	resp := New(content, http.StatusCreated)
	if location != "" {
		resp.Header.Set("Location", location)
	}
	return resp
}

// Accepted is a 202 response with an optional Location header
func Accepted(location string, content interface{}) *Response {
	resp := New(content, http.StatusAccepted)
	if location != "" {
		resp.Header.Set("Location", location)
	}
	return resp
}

// NoContent is an empty 204 response
func NoContent() *Response {
	return New(nil, http.StatusNoContent)
}

// StatusCode sets the status
func (r *Response) StatusCode(status int) *Response {
	r.Status = status
	return r
}

// WithHeader sets a header, replacing previous values
func (r *Response) WithHeader(key, value string) *Response {
	r.Header.Set(key, value)
	return r
}

// WithCookie adds a cookie
func (r *Response) WithCookie(c *http.Cookie) *Response {
	r.cookies = append(r.cookies, c)
	return r
}

// Cookies returns the cookies added to the response
func (r *Response) Cookies() []*http.Cookie {
	return append([]*http.Cookie(nil), r.cookies...)
}

// AddMeta attaches one metadata entry, creating a binding when needed
func (r *Response) AddMeta(key string, value interface{}) *Response {
	r.binding().AddMeta(key, value)
	return r
}

// SetMeta replaces the metadata
func (r *Response) SetMeta(meta map[string]interface{}) *Response {
	r.binding().SetMeta(meta)
	return r
}

// Meta returns the metadata attached to the response
func (r *Response) Meta() map[string]interface{} {
	if r.Binding == nil {
		return map[string]interface{}{}
	}
	return r.Binding.Meta()
}

func (r *Response) binding() *transformer.Binding {
	if r.Binding == nil {
		r.Binding = transformer.NewBinding(r.Content, nil)
	}
	return r.Binding
}

// IsSuccessful reports a 2xx status
func (r *Response) IsSuccessful() bool {
	return r.Status >= 200 && r.Status < 300
}

// Write sends the response. The body is omitted for HEAD requests and for
// statuses that forbid one.
func (r *Response) Write(w http.ResponseWriter, req *http.Request) error {
	header := w.Header()
	for key, values := range r.Header {
		header[key] = append([]string(nil), values...)
	}
	for _, c := range r.cookies {
		http.SetCookie(w, c)
	}

	omitBody := (req != nil && req.Method == http.MethodHead) ||
		r.Status == http.StatusNoContent || r.Status == http.StatusNotModified
	w.WriteHeader(r.Status)
	if omitBody {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
