// Package accept negotiates API version and response format from the Accept header.
//
//	p := accept.NewParser("myapp", "v1", "json")
//	d := p.Parse("application/vnd.myapp.v2+yaml, application/json")
//	// d.Version == "v2", d.Format == "yaml"
//
// Only the first media range of the configured vendor is honored. Unknown
// formats are passed through; the response pipeline answers 406 when no
// formatter is registered for them.
package accept
