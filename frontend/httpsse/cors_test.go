package httpsse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAllowedOrigins_ValidList(t *testing.T) {
	ao, err := ParseAllowedOrigins("https://app.example.com, http://localhost:3000")
	require.NoError(t, err)
	assert.True(t, ao.IsAllowed("https://app.example.com"))
	assert.True(t, ao.IsAllowed("http://localhost:3000"))
	assert.False(t, ao.IsAllowed("https://evil.example.com"))
}

func TestParseAllowedOrigins_EmptyEntriesSkipped(t *testing.T) {
	ao, err := ParseAllowedOrigins(" , https://app.example.com ,")
	require.NoError(t, err)
	assert.True(t, ao.IsAllowed("https://app.example.com"))
}

func TestParseAllowedOrigins_RejectsMissingScheme(t *testing.T) {
	_, err := ParseAllowedOrigins("app.example.com")
	assert.Error(t, err)
}

func TestParseAllowedOrigins_RejectsPathOrQuery(t *testing.T) {
	_, err := ParseAllowedOrigins("https://app.example.com/path")
	assert.Error(t, err)

	_, err = ParseAllowedOrigins("https://app.example.com?x=1")
	assert.Error(t, err)
}

func TestAllowedOrigins_IsAllowed_EmptyOriginAlwaysAllowed(t *testing.T) {
	ao, err := ParseAllowedOrigins("https://app.example.com")
	require.NoError(t, err)
	assert.True(t, ao.IsAllowed(""), "a same-origin request (no Origin header) must not be blocked")
}

func TestCorsMiddleware_SetsHeadersForAllowedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ao, err := ParseAllowedOrigins("https://app.example.com")
	require.NoError(t, err)

	r := gin.New()
	r.Use(corsMiddleware(ao))
	r.GET("/ping", func(c *gin.Context) { c.Status(200) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 200, w.Code)
}

func TestCorsMiddleware_OmitsHeadersForDisallowedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ao, err := ParseAllowedOrigins("https://app.example.com")
	require.NoError(t, err)

	r := gin.New()
	r.Use(corsMiddleware(ao))
	r.GET("/ping", func(c *gin.Context) { c.Status(200) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddleware_OptionsRequestShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	called := false
	r.Use(corsMiddleware(nil))
	r.OPTIONS("/ping", func(c *gin.Context) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, 204, w.Code)
	assert.False(t, called, "OPTIONS must be aborted before reaching the route handler")
}
