package response

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/contextkeys"
	"github.com/platinummonkey/apigate/pkg/format"
	"github.com/platinummonkey/apigate/pkg/transformer"
)

type user struct {
	ID   int
	Name string
}

func newPipeline(conditional bool) *Pipeline {
	f := transformer.NewFactory()
	f.Register(&user{}, transformer.Func(func(_ context.Context, v interface{}) (interface{}, error) {
		u := v.(*user)
		return content.F("id", u.ID, "name", u.Name), nil
	}))
	return NewPipeline(f, format.Defaults(format.DefaultCallbackParam), conditional)
}

func TestPipeline_FormatsStructuredContent(t *testing.T) {
	p := newPipeline(false)

	tests := []struct {
		name        string
		value       interface{}
		format      string
		wantBody    string
		wantType    string
		wantStatus  int
		requestPath string
	}{
		{"raw fields", content.F("foo", "bar"), "json", `{"foo":"bar"}`, "application/json", 200, "/"},
		{"transformed item", &user{ID: 1, Name: "bob"}, "json", `{"id":1,"name":"bob"}`, "application/json", 200, "/"},
		{"transformed list", []*user{{ID: 1, Name: "a"}}, "json", `[{"id":1,"name":"a"}]`, "application/json", 200, "/"},
		{"map", map[string]int{"b": 2, "a": 1}, "json", `{"a":1,"b":2}`, "application/json", 200, "/"},
		{"created", Created("/users/1", content.F("id", 1)), "json", `{"id":1}`, "application/json", 201, "/"},
		{"jsonp", content.F("foo", "bar"), "jsonp", `foo({"foo":"bar"});`, "application/javascript", 200, "/?callback=foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.requestPath, nil)
			resp, err := p.Prepare(context.Background(), r, tt.value, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantBody, string(resp.Body))
			assert.Equal(t, tt.wantType, resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.format, resp.Format)
		})
	}
}

func TestPipeline_OpaqueKeepsContentType(t *testing.T) {
	p := newPipeline(false)
	resp := New("<p>hi</p>", http.StatusOK).WithHeader("Content-Type", "text/html")

	out, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), resp, "json")
	require.NoError(t, err)
	assert.Equal(t, "text/html", out.Header.Get("Content-Type"))
	assert.Equal(t, "<p>hi</p>", string(out.Body))
}

func TestPipeline_UnsupportedFormat(t *testing.T) {
	p := newPipeline(false)

	_, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), "foo", "xml")
	require.Error(t, err)
	status, ok := apierrors.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotAcceptable, status)
	assert.True(t, errors.Is(err, format.ErrUnsupportedFormat))
}

func TestPipeline_MetaAttached(t *testing.T) {
	p := newPipeline(false)
	resp := Collection([]*user{{ID: 1, Name: "a"}}, nil).AddMeta("total", 1)

	out, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), resp, "json")
	require.NoError(t, err)
	assert.Equal(t, `{"data":[{"id":1,"name":"a"}],"meta":{"total":1}}`, string(out.Body))
	assert.Equal(t, map[string]interface{}{"total": 1}, out.Meta())
}

func TestPipeline_ConditionalRequests(t *testing.T) {
	p := newPipeline(true)
	value := func() interface{} { return content.F("foo", "bar") }

	first, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), value(), "json")
	require.NoError(t, err)
	etag := first.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, ETag([]byte(`{"foo":"bar"}`)), etag)

	second, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), value(), "json")
	require.NoError(t, err)
	assert.Equal(t, etag, second.Header.Get("ETag"))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("If-None-Match", etag)
	notModified, err := p.Prepare(context.Background(), r, value(), "json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, notModified.Status)
	assert.Empty(t, notModified.Body)
	assert.Equal(t, etag, notModified.Header.Get("ETag"))
	assert.Equal(t, "application/json", notModified.Header.Get("Content-Type"))
}

func TestPipeline_ConditionalSkips(t *testing.T) {
	p := newPipeline(true)

	t.Run("error responses", func(t *testing.T) {
		resp, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), New(content.F("message", "no"), 404), "json")
		require.NoError(t, err)
		assert.Empty(t, resp.Header.Get("ETag"))
	})

	t.Run("unhashable opaque content", func(t *testing.T) {
		resp, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), 42, "json")
		require.NoError(t, err)
		assert.Equal(t, "42", string(resp.Body))
		assert.Empty(t, resp.Header.Get("ETag"))
	})

	t.Run("string content is hashed", func(t *testing.T) {
		resp, err := p.Prepare(context.Background(), httptest.NewRequest("GET", "/", nil), "plain", "json")
		require.NoError(t, err)
		assert.Equal(t, ETag([]byte("plain")), resp.Header.Get("ETag"))
	})

	t.Run("handler etag is kept and compared", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("If-None-Match", `W/"v1"`)
		resp, err := p.Prepare(context.Background(), r, New(content.F("a", 1), 200).WithHeader("ETag", `"v1"`), "json")
		require.NoError(t, err)
		assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
		assert.Equal(t, http.StatusNotModified, resp.Status)
	})

	t.Run("unsafe methods", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", nil)
		r.Header.Set("If-None-Match", "*")
		resp, err := p.Prepare(context.Background(), r, content.F("a", 1), "json")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
	})

	t.Run("context override", func(t *testing.T) {
		ctx := WithConditional(context.Background(), false)
		resp, err := p.Prepare(ctx, httptest.NewRequest("GET", "/", nil), content.F("a", 1), "json")
		require.NoError(t, err)
		assert.Empty(t, resp.Header.Get("ETag"))
	})

	t.Run("shared context key", func(t *testing.T) {
		off := newPipeline(false)
		ctx := contextkeys.WithConditional(context.Background(), true)
		resp, err := off.Prepare(ctx, httptest.NewRequest("GET", "/", nil), content.F("a", 1), "json")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Header.Get("ETag"))

		enabled, ok := contextkeys.GetConditional(WithConditional(context.Background(), false))
		assert.True(t, ok)
		assert.False(t, enabled)
	})
}

func TestMatchesNoneMatch(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{"", `"a"`, false},
		{`"a"`, `"a"`, true},
		{`"b"`, `"a"`, false},
		{`"b", "a"`, `"a"`, true},
		{`W/"a"`, `"a"`, true},
		{`"a"`, `W/"a"`, true},
		{"*", `"a"`, true},
		{`"b", *`, `"a"`, true},
		{`"a"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesNoneMatch(tt.header, tt.etag))
		})
	}
}

func TestResponse_Write(t *testing.T) {
	resp := New(nil, http.StatusOK)
	resp.Body = []byte("hello")
	resp.WithHeader("X-Test", "1").WithCookie(&http.Cookie{Name: "session", Value: "abc"})

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Write(rec, httptest.NewRequest("GET", "/", nil)))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "session=abc")

	rec = httptest.NewRecorder()
	require.NoError(t, resp.Write(rec, httptest.NewRequest("HEAD", "/", nil)))
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, NoContent().Write(rec, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBuilders(t *testing.T) {
	created := Created("/users/1", nil)
	assert.Equal(t, http.StatusCreated, created.Status)
	assert.Equal(t, "/users/1", created.Header.Get("Location"))

	accepted := Accepted("", nil)
	assert.Equal(t, http.StatusAccepted, accepted.Status)
	assert.Empty(t, accepted.Header.Get("Location"))

	item := Item(&user{}, nil)
	require.NotNil(t, item.Binding)
	assert.Same(t, item, Wrap(item, http.StatusTeapot))
	assert.Equal(t, http.StatusTeapot, Wrap("x", http.StatusTeapot).Status)
	assert.Equal(t, http.StatusAccepted, New("x", 200).StatusCode(http.StatusAccepted).Status)
}
