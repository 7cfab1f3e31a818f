// Package middleware holds transport middleware shared by the API routes.
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin and the headers download clients need
// for ranged requests.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration. Range and
// the checksum/content-range headers are exposed so browser-based update
// clients can resume downloads and verify integrity.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Range",
		},
		ExposeHeaders: []string{
			"Content-Range",
			"Accept-Ranges",
			"Content-Length",
			"X-Checksum-Sha256",
		},
		MaxAge: cfg.MaxAge,
	})
}
