package rest

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Request is the canonical, transport-independent form of an inbound HTTP
// request. It is built once per request and not modified afterwards.
type Request struct {
	Method   string
	Path     string // path with the API prefix stripped
	RawQuery string // query string without the leading '?'
	Headers  map[string]string
	Body     []byte // nil for methods without a body or an empty body

	query url.Values
}

// NewRequest normalizes r. The path must start with prefix, which is removed.
// Bodies larger than maxBody bytes are rejected; maxBody <= 0 disables the limit.
func NewRequest(r *http.Request, prefix string, maxBody int64) (*Request, error) {
	if r == nil || r.URL == nil {
		return nil, fmt.Errorf("%w: missing URL", ErrMalformedRequest)
	}

	// RequestURI is what came over the wire; r.URL may have been rewritten by
	// the mux, so re-parse when possible to catch garbage early.
	u := r.URL
	if r.RequestURI != "" {
		parsed, err := url.ParseRequestURI(r.RequestURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		u = parsed
	}

	path, ok := strings.CutPrefix(u.Path, prefix)
	if !ok {
		// "/rest/v1" should still reach the root of "/rest/v1/"
		if strings.TrimSuffix(prefix, "/") != u.Path {
			return nil, fmt.Errorf("%w: path %q outside of prefix %q", ErrMalformedRequest, u.Path, prefix)
		}
		path = ""
	}

	// filter syntax is the backend's business; keep whatever pairs parse
	query, _ := url.ParseQuery(u.RawQuery)

	req := &Request{
		Method:   r.Method,
		Path:     strings.TrimPrefix(path, "/"),
		RawQuery: u.RawQuery,
		Headers:  flattenHeaders(r.Header),
		query:    query,
	}

	if methodHasBody(r.Method) && r.Body != nil && r.Body != http.NoBody {
		body, err := readBody(r.Body, maxBody)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			req.Body = body
		}
	}

	return req, nil
}

func readBody(rc io.ReadCloser, maxBody int64) ([]byte, error) {
	defer rc.Close()

	var src io.Reader = rc
	if maxBody > 0 {
		src = io.LimitReader(rc, maxBody+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrMalformedRequest, err)
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedRequest, maxBody)
	}
	return body, nil
}

// Query returns the query parameters as a flat map; the last value wins on
// repeated keys.
func (r *Request) Query() map[string]string {
	out := make(map[string]string, len(r.query))
	for k, v := range r.query {
		if len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

// Offset returns the pagination offset requested by the client, 0 when it is
// absent or not a number.
func (r *Request) Offset() int64 {
	return parseOffset(r.query.Get("offset"))
}

func parseOffset(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// "12.0" is still a number
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}
