package dispatch

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/response"
	"github.com/platinummonkey/apigate/pkg/routing"
)

func TestInternal(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(reg *routing.Registry) {
		require.NoError(t, reg.Version("v1", routing.Attributes{}, func(g *routing.Group) {
			g.Get("users/{id}", func(req *routing.Request) (interface{}, error) {
				return content.F("id", req.Params.Get("id"), "version", req.Version, "q", req.URL.Query().Get("q")), nil
			})
			g.Get("secret", func(req *routing.Request) (interface{}, error) {
				return content.F("principal", auth.FromContext(req.Context()).ID), nil
			}, routing.Attributes{Protected: routing.Bool(true), Limit: 1})
			g.Get("missing", failing(apierrors.NotFound("no such user")))

			g.Get("dashboard", func(req *routing.Request) (interface{}, error) {
				ctx := req.Context()
				outer := CurrentRoute(ctx)

				inner, err := f.d.Internal(ctx, http.MethodGet, "users/5", InternalOptions{Version: "v2"})
				if err != nil {
					return nil, err
				}
				secret, err := f.d.Internal(ctx, http.MethodGet, "/secret", InternalOptions{})
				if err != nil {
					return nil, err
				}
				_, missingErr := f.d.Internal(ctx, http.MethodGet, "/missing", InternalOptions{})

				status, _ := apierrors.StatusOf(missingErr)
				return content.F(
					"inner", string(inner.Body),
					"secret", string(secret.Body),
					"missing", status,
					"restored", CurrentRoute(ctx) == outer,
				), nil
			}, routing.Attributes{Protected: routing.Bool(true)})
		}))
		require.NoError(t, reg.Version("v2", routing.Attributes{}, func(g *routing.Group) {
			g.Get("users/{id}", func(req *routing.Request) (interface{}, error) {
				return content.F("id", req.Params.Get("id"), "version", req.Version), nil
			})
		}))
	}, nil)

	r := get("/dashboard", "")
	r.SetBasicAuth("bob", "secret")
	rec := f.serve(r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Contains(t, body, `"inner":"{\"id\":\"5\",\"version\":\"v2\"}"`)
	assert.Contains(t, body, `"secret":"{\"principal\":\"bob-id\"}"`)
	assert.Contains(t, body, `"missing":404`)
	assert.Contains(t, body, `"restored":true`)
}

func TestInternal_ErrorsAreNotTranslated(t *testing.T) {
	f := newFixture(t, func(reg *routing.Registry) {
		require.NoError(t, reg.Version("v1", routing.Attributes{}, func(g *routing.Group) {
			g.Get("invalid", failing(apierrors.ValidationFailed("bad", "name is required")))
			g.Get("private", value("private"), routing.Attributes{Protected: routing.Bool(true)})
			g.Get("items", func(req *routing.Request) (interface{}, error) {
				return response.New([]string{req.URL.Query().Get("page")}, http.StatusOK), nil
			})
		}))
	}, func(opts *Options) {
		opts.Exceptions.Register(HandlerFor(func(context.Context, *apierrors.Error) interface{} {
			t.Fatal("exception handlers do not run for internal requests")
			return nil
		}))
	})

	_, err := f.d.Internal(context.Background(), "get", "invalid", InternalOptions{})
	require.Error(t, err)
	assert.True(t, apierrors.IsKind(err, apierrors.KindValidationFailed))

	_, err = f.d.Internal(context.Background(), http.MethodGet, "private", InternalOptions{})
	status, ok := apierrors.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, status)

	resp, err := f.d.Internal(context.Background(), http.MethodGet, "private", InternalOptions{Principal: &auth.Principal{ID: "svc"}})
	require.NoError(t, err)
	assert.Equal(t, "private", string(resp.Body))

	resp, err = f.d.Internal(context.Background(), http.MethodGet, "items", InternalOptions{
		Query:  map[string][]string{"page": {"3"}},
		Format: "yaml",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, resp.Content, "Content keeps the raw handler value")
	assert.Equal(t, "yaml", resp.Format)
	assert.True(t, strings.HasPrefix(string(resp.Body), "- "))
	assert.Empty(t, resp.Header.Get("ETag"))
}
