package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/interfaces/http/middleware"
	"github.com/your-org/ops-ledger/internal/pkg/auth"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(middleware.RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-123")
	w = serve(r, req)
	assert.Equal(t, "trace-123", w.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, strings.Repeat("x", 65))
	w = serve(r, req)
	assert.Len(t, w.Header().Get(middleware.RequestIDHeader), 36)
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestSizeLimit(8))
	r.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short"))).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		serve(r, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 64)))).Code)
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testutil.Config()
	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(12, "ops@example.com", "dispatcher")
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.AuthMiddleware(cfg))
	r.GET("/", func(c *gin.Context) {
		id, ok := middleware.GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "ok": ok, "keys": len(c.Keys)})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			require.Equal(t, tt.status, w.Code)

			body := decode(t, w)
			if tt.status == http.StatusOK {
				assert.Equal(t, float64(12), body["user_id"])
				assert.Equal(t, true, body["ok"])
				assert.Equal(t, float64(1), body["keys"])
			} else {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestGetUserIDFromContextWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := middleware.GetUserIDFromContext(c)
	assert.False(t, ok)

	c.Set("user_id", "7")
	_, ok = middleware.GetUserIDFromContext(c)
	assert.False(t, ok)
}

func TestTimeoutReportsSlowHandler(t *testing.T) {
	r := gin.New()
	r.Use(middleware.Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, "REQUEST_TIMEOUT", decode(t, w)["code"])

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/fast", nil)).Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(middleware.SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestRateLimitBypass(t *testing.T) {
	cfg := testutil.Config()
	cfg.Security.RateLimitPerMinute = 1

	// Without Redis nothing is limited
	r := gin.New()
	r.Use(middleware.RateLimit(cfg, nil, logger.Discard()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}

	// An unreachable Redis fails open
	unreachable := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer unreachable.Close()

	r = gin.New()
	r.Use(middleware.RateLimit(cfg, unreachable, logger.Discard()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestCORS(t *testing.T) {
	preflight := func(r *gin.Engine, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return serve(r, req)
	}
	build := func(cfg *config.Config) *gin.Engine {
		r := gin.New()
		r.Use(middleware.CORS(cfg))
		r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	dev := testutil.Config()
	w := preflight(build(dev), "http://localhost:3000")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	listed := testutil.Config()
	listed.Security.CORSAllowedOrigins = []string{"https://ops.example.com"}
	r := build(listed)
	w = preflight(r, "https://ops.example.com")
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	w = preflight(r, "https://evil.example.net")
	assert.Equal(t, http.StatusForbidden, w.Code)

	prod := testutil.Config()
	prod.App.Environment = "production"
	w = preflight(build(prod), "https://ops.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
