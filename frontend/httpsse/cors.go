package httpsse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowedOrigins holds the parsed set of allowed origins for CORS,
// grounded on api/cors.go's AllowedOrigins/ParseAllowedOrigins.
type AllowedOrigins struct {
	origins map[string]struct{}
}

func (ao *AllowedOrigins) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := ao.origins[origin]
	return ok
}

// ParseAllowedOrigins parses a comma-separated list of scheme://host[:port]
// origins; each must have a scheme and host and no path, query or fragment.
func ParseAllowedOrigins(originsStr string) (*AllowedOrigins, error) {
	origins := make(map[string]struct{})
	for _, origin := range strings.Split(originsStr, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid origin %q: must have scheme and host", origin)
		}
		if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
			return nil, fmt.Errorf("invalid origin %q: must not have path, query or fragment", origin)
		}
		origins[fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)] = struct{}{}
	}
	return &AllowedOrigins{origins: origins}, nil
}

func corsMiddleware(allowed *AllowedOrigins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed != nil && allowed.IsAllowed(origin) && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
