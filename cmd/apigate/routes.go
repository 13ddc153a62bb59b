package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/apigate/pkg/apierrors"
	"github.com/platinummonkey/apigate/pkg/auth"
	"github.com/platinummonkey/apigate/pkg/content"
	"github.com/platinummonkey/apigate/pkg/dispatch"
	"github.com/platinummonkey/apigate/pkg/httputil"
	"github.com/platinummonkey/apigate/pkg/response"
	"github.com/platinummonkey/apigate/pkg/routing"
	"github.com/platinummonkey/apigate/pkg/transformer"
)

// user is the sample resource served by the bundled API
type user struct {
	ID        int
	Name      string
	Email     string
	CreatedAt time.Time
}

type createUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
}

type issueKeyRequest struct {
	Scopes []string `json:"scopes"`
	TTL    string   `json:"ttl"`
}

// userStore is an in-memory user table
type userStore struct {
	mu     sync.RWMutex
	users  map[int]*user
	nextID int
	now    func() time.Time
}

func newUserStore() *userStore {
	s := &userStore{users: make(map[int]*user), nextID: 1, now: time.Now}
	s.create("Ada Lovelace", "ada@example.com")
	s.create("Grace Hopper", "grace@example.com")
	return s
}

func (s *userStore) create(name, email string) *user {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: s.nextID, Name: name, Email: email, CreatedAt: s.now().UTC()}
	s.users[u.ID] = u
	s.nextID++
	return u
}

func (s *userStore) get(id int) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *userStore) list() []*user {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*user, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// v1 exposes the public profile only
var userV1 = transformer.Func(func(_ context.Context, v interface{}) (interface{}, error) {
	u, ok := v.(*user)
	if !ok {
		return nil, fmt.Errorf("cannot transform %T as user", v)
	}
	return content.F("id", u.ID, "name", u.Name), nil
})

var userV2 = transformer.Func(func(_ context.Context, v interface{}) (interface{}, error) {
	u, ok := v.(*user)
	if !ok {
		return nil, fmt.Errorf("cannot transform %T as user", v)
	}
	return content.F(
		"id", u.ID,
		"name", u.Name,
		"email", u.Email,
		"created_at", u.CreatedAt.Format(time.RFC3339),
	), nil
})

// sampleAPI is the bundled demo API. It shows versioned routes, protected
// routes, route throttles and internal requests.
type sampleAPI struct {
	users *userStore
	keys  *auth.KeyStore
	// tokens is nil when no JWT secret is configured.
	tokens *auth.JWTIntrospector
	// dispatcher is set once the dispatcher is built; internal requests
	// need it.
	dispatcher *dispatch.Dispatcher
}

func (a *sampleAPI) register(reg *routing.Registry) error {
	if err := reg.Version("v1", routing.Attributes{}, func(g *routing.Group) {
		a.userRoutes(g, userV1)
	}); err != nil {
		return err
	}

	if err := reg.Version("v2", routing.Attributes{}, func(g *routing.Group) {
		a.userRoutes(g, userV2)
		g.Get("dashboard", a.dashboard, routing.Attributes{As: "dashboard", Protected: routing.Bool(true)})
	}); err != nil {
		return err
	}

	if err := reg.Version("v1", routing.Attributes{Prefix: "auth", Protected: routing.Bool(true)}, func(g *routing.Group) {
		g.Get("me", a.me)
		g.Post("tokens", a.issueToken, routing.Attributes{Providers: []string{"basic"}})
		g.Post("keys", a.issueKey, routing.Attributes{Scopes: []string{"keys:write"}})
		g.Delete("keys/{id}", a.revokeKey, routing.Attributes{Scopes: []string{"keys:write"}})
	}); err != nil {
		return err
	}

	return reg.Default(routing.Attributes{Conditional: routing.Bool(false)}, func(g *routing.Group) {
		g.Get("ping", func(*routing.Request) (interface{}, error) {
			return content.F("status", "ok"), nil
		})
	})
}

func (a *sampleAPI) userRoutes(g *routing.Group, t transformer.Transformer) {
	g.Get("users", func(*routing.Request) (interface{}, error) {
		list := a.users.list()
		return response.Collection(list, t).AddMeta("count", len(list)), nil
	}, routing.Attributes{As: "users.index"})

	g.Get("users/{id}", func(req *routing.Request) (interface{}, error) {
		id, err := req.Params.Int("id")
		if err != nil {
			return nil, apierrors.NotFound("").Wrap(err)
		}
		u, ok := a.users.get(id)
		if !ok {
			return nil, apierrors.NotFound("User not found.")
		}
		return response.Item(u, t), nil
	}, routing.Attributes{As: "users.show", Where: map[string]string{"id": "[0-9]+"}})

	g.Post("users", func(req *routing.Request) (interface{}, error) {
		var body createUserRequest
		if err := httputil.ParseJSON(req.Request, &body); err != nil {
			return nil, apierrors.BadRequest("Malformed JSON body.").Wrap(err)
		}
		if err := apierrors.ValidateStruct(&body, "Could not create user."); err != nil {
			return nil, err
		}
		u := a.users.create(body.Name, body.Email)
		return response.Item(u, t).
			StatusCode(http.StatusCreated).
			WithHeader("Location", "/users/"+strconv.Itoa(u.ID)), nil
	}, routing.Attributes{
		As:        "users.store",
		Protected: routing.Bool(true),
		Scopes:    []string{"users:write"},
		Limit:     10,
		Expires:   time.Minute,
	})
}

func (a *sampleAPI) me(req *routing.Request) (interface{}, error) {
	p := auth.FromContext(req.Context())
	return content.F("id", p.ID, "provider", p.Provider, "scopes", p.Scopes), nil
}

func (a *sampleAPI) issueToken(req *routing.Request) (interface{}, error) {
	if a.tokens == nil {
		return nil, apierrors.New(http.StatusNotImplemented, "Token issuing is not configured.")
	}
	p := auth.FromContext(req.Context())
	token, err := a.tokens.Issue(p.ID, p.Scopes, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return response.New(content.F("token_type", "Bearer", "access_token", token, "expires_in", 3600), http.StatusCreated), nil
}

func (a *sampleAPI) issueKey(req *routing.Request) (interface{}, error) {
	var body issueKeyRequest
	if req.ContentLength != 0 {
		if err := httputil.ParseJSON(req.Request, &body); err != nil {
			return nil, apierrors.BadRequest("Malformed JSON body.").Wrap(err)
		}
	}

	var expiresAt *time.Time
	if body.TTL != "" {
		ttl, err := time.ParseDuration(body.TTL)
		if err != nil || ttl <= 0 {
			return nil, apierrors.ValidationFailed("Could not issue key.", "ttl must be a positive duration")
		}
		at := time.Now().Add(ttl)
		expiresAt = &at
	}

	p := auth.FromContext(req.Context())
	if missing := p.MissingScopes(body.Scopes); len(missing) > 0 {
		return nil, apierrors.ScopeMismatch(missing)
	}
	plaintext, key, err := a.keys.Issue(p.ID, body.Scopes, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("issue key: %w", err)
	}
	return response.Created("/auth/keys/"+key.ID, content.F(
		"id", key.ID,
		"key", plaintext,
		"scopes", key.Scopes,
	)), nil
}

func (a *sampleAPI) revokeKey(req *routing.Request) (interface{}, error) {
	if err := a.keys.Revoke(req.Params.Get("id")); err != nil {
		return nil, apierrors.NotFound("API key not found.").Wrap(err)
	}
	return response.NoContent(), nil
}

// dashboard composes other endpoints through internal requests
func (a *sampleAPI) dashboard(req *routing.Request) (interface{}, error) {
	ctx := req.Context()

	users, err := a.dispatcher.Internal(ctx, http.MethodGet, "users", dispatch.InternalOptions{})
	if err != nil {
		return nil, err
	}
	me, err := a.dispatcher.Internal(ctx, http.MethodGet, "auth/me", dispatch.InternalOptions{Version: "v1"})
	if err != nil {
		return nil, err
	}

	list, _ := users.Content.([]*user)
	return content.F("user_count", len(list), "me", me.Content), nil
}
