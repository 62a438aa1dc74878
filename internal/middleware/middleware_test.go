package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/util"
)

type memBlacklist map[string]bool

func (m memBlacklist) IsTokenBlacklisted(_ context.Context, hash string) bool {
	return m[hash]
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(svc *jwt.JWTService, bl TokenBlacklist) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", AuthMiddleware(svc, bl), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "username": GetUsername(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	svc := jwt.NewJWTService("test-secret-test-secret-test-secret", time.Hour, 2*time.Hour)
	access, err := svc.GenerateAccessToken(42, "alice")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken(42, "alice")
	require.NoError(t, err)
	revoked, err := svc.GenerateAccessToken(43, "bob")
	require.NoError(t, err)

	r := newAuthRouter(svc, memBlacklist{util.HashToken(revoked): true})

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bad scheme", "Token " + access, "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, "", http.StatusUnauthorized},
		{"revoked", "Bearer " + revoked, "", http.StatusUnauthorized},
		{"valid header", "Bearer " + access, "", http.StatusOK},
		{"valid query", "", "?token=" + access, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":42`)
			}
		})
	}
}

func TestRequestIDEchoesClientValue(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(DefaultCORSConfig("http://app.local")))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RecoveryMiddleware())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":1004`)
}

func TestUserRateLimiter(t *testing.T) {
	l := NewUserRateLimiter(0.001, 2)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1), "burst exhausted")
	assert.True(t, l.Allow(2), "other users have their own bucket")

	unlimited := NewUserRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow(1))
	}
}

func TestRateLimitMiddlewareResponds429(t *testing.T) {
	l := NewUserRateLimiter(0.001, 1)
	r := gin.New()
	r.POST("/send", func(c *gin.Context) { c.Set(ContextUserID, int64(9)) }, l.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":1005`)
}
