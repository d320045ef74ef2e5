// internal/interfaces/http/middleware/cors.go
package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/your-org/ops-ledger/internal/config"
)

// CORS returns a middleware that handles Cross-Origin Resource Sharing
func CORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	origins := cfg.Security.CORSAllowedOrigins
	switch {
	case slices.Contains(origins, "*"):
		corsConfig.AllowAllOrigins = true
	case len(origins) > 0:
		corsConfig.AllowOrigins = origins
		// Allows entries such as https://*.example.com
		corsConfig.AllowWildcard = true
	case cfg.IsProduction():
		// Nothing configured: deny every cross-origin caller
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	default:
		corsConfig.AllowAllOrigins = true
	}

	if len(cfg.Security.CORSAllowedMethods) > 0 {
		corsConfig.AllowMethods = cfg.Security.CORSAllowedMethods
	}
	if len(cfg.Security.CORSAllowedHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.Security.CORSAllowedHeaders
	}
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", RequestIDHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.MaxAge = 24 * time.Hour

	return cors.New(corsConfig)
}
