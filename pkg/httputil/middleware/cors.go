package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSOptions defines configuration for CORS.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
}

// defaultCORSOptions returns the default CORS options. Browser clients need
// the pagination headers exposed to read them.
func defaultCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With", "Prefer", "Range", "Range-Unit", "Accept-Profile", "Content-Profile", "apikey", "x-client-info"},
		ExposedHeaders:   []string{"Content-Range", "Range-Unit", "Content-Location", "Location", "X-Request-Id"},
		AllowCredentials: true,
	}
}

// CORSWithOptions creates a CORS middleware with the provided configuration.
// If options is nil, it will use the default CORS settings.
// If options is an empty struct (CORSOptions{}), it will create a middleware with no CORS headers.
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = defaultCORSOptions()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin, vary := allowedOrigin(options, r.Header.Get("Origin"))
			if vary {
				w.Header().Add("Vary", "Origin")
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			if len(options.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(options.AllowedMethods, ","))
			}
			if len(options.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(options.AllowedHeaders, ","))
			}
			if len(options.ExposedHeaders) > 0 {
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(options.ExposedHeaders, ","))
			}
			// browsers refuse credentials together with a wildcard origin
			if options.AllowCredentials && origin != "" && origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// preflight never reaches the backend
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowedOrigin picks the Access-Control-Allow-Origin value for a request
// from reqOrigin. vary is set when the value depends on the request.
func allowedOrigin(options *CORSOptions, reqOrigin string) (origin string, vary bool) {
	if len(options.AllowedOrigins) == 0 {
		return "", false
	}
	if slices.Contains(options.AllowedOrigins, "*") {
		if options.AllowCredentials && reqOrigin != "" {
			return reqOrigin, true
		}
		return "*", false
	}
	if reqOrigin == "" {
		if len(options.AllowedOrigins) == 1 {
			return options.AllowedOrigins[0], false
		}
		return "", true
	}
	for _, o := range options.AllowedOrigins {
		if strings.EqualFold(o, reqOrigin) {
			return reqOrigin, true
		}
	}
	return "", true
}

// CORSWithOrigins returns the default CORS middleware restricted to origins.
func CORSWithOrigins(origins []string) func(http.Handler) http.Handler {
	opts := defaultCORSOptions()
	if len(origins) > 0 {
		opts.AllowedOrigins = origins
	}
	return CORSWithOptions(opts)
}
