// Package routing holds the versioned route registry.
//
// Every API version owns a Collection backed by its own gorilla/mux router.
// Non-versioned routes live in a fallback collection that the dispatcher
// consults when the version collection has no match.
//
// Routes are declared through immutable group contexts:
//
//	reg := routing.NewRegistry()
//	err := reg.Version("v1", routing.Attributes{Prefix: "api", Namespace: `App\Http`}, func(g *routing.Group) {
//		g.Handle([]string{"GET", "HEAD"}, "users", routing.Action{Handler: listUsers, Uses: "UserController@index"})
//		g.Group(routing.Attributes{Protected: routing.Bool(true), Scopes: []string{"write"}}, func(g *routing.Group) {
//			g.Post("users", createUser)
//			g.Get("users/{id}/posts/{post?}", showPosts, routing.Attributes{Where: map[string]string{"id": "[0-9]+"}})
//		})
//	})
//
// URI parameters are written {name}; {name?} marks a trailing optional
// segment. Where-constraints become mux regular expressions. Registering a
// structurally identical method+pattern+domain twice in one version fails
// with ErrDuplicateRoute.
package routing
