// Package dispatch runs API requests from the Accept header to the
// rendered response.
//
// Every request goes through the same stages:
//
//	parsing      Accept header -> (version, format)
//	routing      version collection, then the fallback collection
//	guarding     authentication for protected routes, then throttling
//	invoking     the route handler
//	translating  errors carrying an HTTP status -> {message, errors?}
//	done         wrap, transform, format, conditional
//
// Errors without an HTTP status are not translated. Dispatch returns them
// untouched and ServeHTTP answers them with a logged 500.
//
// Usage:
//
//	d, err := dispatch.New(dispatch.Options{
//		Registry:      routes,
//		Parser:        accept.NewParser("myapp", "v1", "json"),
//		Pipeline:      response.NewPipeline(transformers, format.Defaults(""), true),
//		Authenticator: authn,
//		Throttles:     chain,
//		Limiter:       throttle.NewLimiter(store, time.Second, metrics),
//		Metrics:       metrics,
//	})
//	http.Handle("/", d)
//
// Handlers can compose other endpoints with Internal. Internal requests share
// the outer principal, skip throttling and return HTTP errors as errors.
package dispatch
