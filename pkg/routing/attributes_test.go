package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttributes_Merge(t *testing.T) {
	outer := Attributes{
		Prefix:    "api",
		Namespace: `App\Http`,
		Domain:    "api.example.com",
		Versions:  []string{"v1"},
		Where:     map[string]string{"id": "[0-9]+", "slug": "[a-z-]+"},
		Protected: Bool(true),
		Scopes:    []string{"read"},
		Providers: []string{"basic"},
		Throttle:  "global",
		As:        "api.",
	}
	inner := Attributes{
		Prefix:    "/users/",
		Namespace: `Users`,
		Where:     map[string]string{"id": "[0-9]{1,3}"},
		Protected: Bool(false),
		Scopes:    []string{"write", "read"},
		Providers: []string{"oauth"},
		Limit:     5,
		Expires:   time.Minute,
		As:        "users",
	}

	got := outer.Merge(inner)

	assert.Equal(t, "api/users", got.Prefix)
	assert.Equal(t, `App\Http\Users`, got.Namespace)
	assert.Equal(t, "api.example.com", got.Domain)
	assert.Equal(t, []string{"v1"}, got.Versions)
	assert.Equal(t, map[string]string{"id": "[0-9]{1,3}", "slug": "[a-z-]+"}, got.Where)
	assert.False(t, got.IsProtected())
	assert.Equal(t, []string{"read", "write"}, got.Scopes)
	assert.Equal(t, []string{"basic", "oauth"}, got.Providers)
	assert.Equal(t, "global", got.Throttle)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, time.Minute, got.Expires)
	assert.Equal(t, "api.users", got.As)

	// inputs untouched
	assert.Equal(t, "[0-9]+", outer.Where["id"])
	assert.True(t, outer.IsProtected())
	assert.Equal(t, []string{"read"}, outer.Scopes)
}

func TestAttributes_MergeIsAssociative(t *testing.T) {
	a := Attributes{Prefix: "api", Namespace: `App`, Versions: []string{"v1"}, Scopes: []string{"a"}}
	b := Attributes{Prefix: "admin", Namespace: `\Admin`, Protected: Bool(true), Scopes: []string{"b", "a"}}
	c := Attributes{Prefix: "users", Namespace: `Users`, Throttle: "auth", Where: map[string]string{"id": "[0-9]+"}}

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	assert.Equal(t, left, right)
	assert.Equal(t, "api/admin/users", left.Prefix)
	assert.Equal(t, `Admin\Users`, left.ResolvedNamespace())
}

func TestMergeNamespace(t *testing.T) {
	tests := []struct {
		outer, inner, want string
	}{
		{"", "", ""},
		{`App`, "", `App`},
		{"", `Api`, `Api`},
		{`App\`, `\Api\`, `\Api`},
		{`App\Http\`, `Api\`, `App\Http\Api`},
		{`\Root`, `Child`, `\Root\Child`},
	}

	for _, tt := range tests {
		t.Run(tt.outer+"+"+tt.inner, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeNamespace(tt.outer, tt.inner))
		})
	}
}

func TestResolveUses(t *testing.T) {
	tests := []struct {
		namespace, uses, want string
	}{
		{`App\Http`, "UserController@index", `App\Http\UserController@index`},
		{`\App`, "UserController@index", `App\UserController@index`},
		{`App`, `Other\UserController@index`, `Other\UserController@index`},
		{`App`, `\Other\UserController@index`, `Other\UserController@index`},
		{"", "UserController@index", "UserController@index"},
		{`App`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uses, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveUses(tt.namespace, tt.uses))
		})
	}
}

func TestJoinURI(t *testing.T) {
	tests := []struct {
		prefix, uri, want string
	}{
		{"", "", "/"},
		{"", "/", "/"},
		{"api", "users", "/api/users"},
		{"/api/", "/users/{id}/", "/api/users/{id}"},
		{"api/v1", "", "/api/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, joinURI(tt.prefix, tt.uri))
		})
	}
}

func TestCompileTemplates(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		where   map[string]string
		want    []string
		wantErr bool
	}{
		{name: "root", uri: "/", want: []string{"/"}},
		{name: "static", uri: "/users", want: []string{"/users"}},
		{name: "constrained", uri: "/users/{id}", where: map[string]string{"id": "[0-9]+"}, want: []string{"/users/{id:[0-9]+}"}},
		{name: "inline param", uri: "/files/{name}.json", want: []string{"/files/{name}.json"}},
		{name: "optional", uri: "/users/{id?}", want: []string{"/users/{id}", "/users"}},
		{name: "required after optional", uri: "/a/{b?}/{c}", wantErr: true},
		{name: "static after optional", uri: "/a/{b?}/c", wantErr: true},
		{name: "optional inline", uri: "/a/x{b?}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileTemplates(tt.uri, tt.where)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructuralSignature(t *testing.T) {
	assert.Equal(t,
		structuralSignature("GET", "", "/users/{id}"),
		structuralSignature("GET", "", "/users/{user}"))
	assert.NotEqual(t,
		structuralSignature("GET", "", "/users/{id:[0-9]+}"),
		structuralSignature("GET", "", "/users/{id}"))
	assert.Equal(t,
		structuralSignature("GET", "API.example.com", "/"),
		structuralSignature("GET", "api.example.com", "/"))
}
