package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edgeflare/pgbridge/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds an id accepted from a client.
const maxRequestIDLen = 128

// RequestID tags every request with an id, echoed in the X-Request-Id
// response header and stored in the context for the logger and the bridge.
// An id sent by the client wins, then one already in the context, then a new
// UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := inboundRequestID(r)
		if reqID == "" {
			reqID, _ = httputil.RequestID(r)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// inboundRequestID returns the client's id if it is short and printable.
func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if len(id) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}
