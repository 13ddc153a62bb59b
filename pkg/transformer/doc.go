// Package transformer projects domain objects into plain structured data
// before formatting.
//
// A Factory maps Go types to Transformers; a Binding attached to a response
// can name a transformer explicitly and carries metadata such as pagination
// info, rendered under the reserved "meta" key.
package transformer
