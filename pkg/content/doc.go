// Package content tags handler results with the shape they are formatted as.
//
// Classification happens exactly once, in the transform stage of the response
// pipeline:
//
//	Record     a keyed resource, {"app_user": {...}}
//	Collection a list of resources, {"app_users": [...]}, or [] when empty
//	Array      generic maps, slices and structs
//	Opaque     strings, bytes and scalars, written unformatted
//
// Fields keeps insertion order in JSON, YAML and MessagePack output.
package content
