// Package response is the response type and the pipeline that renders it.
//
// Prepare runs four stages. Wrap turns a raw handler value into a Response.
// Transform projects it through the transformer factory and picks the
// content kind. Format serializes structured kinds with the negotiated
// formatter and leaves opaque bodies, and their content type, alone.
// Conditional, when enabled, sets an xxhash ETag on 2xx responses and
// answers a matching If-None-Match with 304.
package response
