// Package format holds the response formatters and the registry the
// response pipeline selects them from.
//
// Built-in formats are json, jsonp, yaml and msgpack. The jsonp formatter is
// per request: it reads the callback query parameter (default "callback")
// and renders cb(<json>); as application/javascript.
package format
