package response

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ETag returns the strong entity tag of body
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// MatchesNoneMatch reports whether an If-None-Match header value matches
// etag. The header may list several tags or be "*"; comparison is weak, so
// W/"x" matches "x".
func MatchesNoneMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" || etag == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := opaqueTag(etag)
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || (candidate != "" && opaqueTag(candidate) == want) {
			return true
		}
	}
	return false
}

func opaqueTag(tag string) string {
	return strings.TrimPrefix(tag, "W/")
}
