package httpx

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// CORSOptions configures CORSMiddleware.
type CORSOptions struct {
	// AllowedOrigins lists exact origins; "*" allows any.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

// CORSMiddleware answers preflight requests and adds CORS headers for allowed
// origins. Requests from other origins pass through without CORS headers, so
// browsers block them.
func CORSMiddleware(opts CORSOptions) Middleware {
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Content-Type"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: opts.AllowedMethods,
		AllowedHeaders: opts.AllowedHeaders,
		ExposedHeaders: opts.ExposedHeaders,
		MaxAge:         int(opts.MaxAge.Seconds()),
	})
	return c.Handler
}
