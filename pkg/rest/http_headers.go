package rest

import (
	"net/http"
	"strings"
)

// Response header names set by the bridge. Backend-supplied names are
// lowercased before merging so they collide with these as intended.
const (
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderRangeUnit     = "range-unit"
	HeaderContentRange  = "content-range"

	contentTypeJSON = "application/json"
	rangeUnitItems  = "items"
)

// flattenHeaders converts a transport header set into a single-valued map
// with lowercase names. The last value wins on duplicates.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[len(values)-1]
	}
	return out
}

// methodHasBody reports whether requests with the given method carry a body
// worth forwarding to the backend.
func methodHasBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}
