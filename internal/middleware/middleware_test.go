package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(RateLimit(rl))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(ip string) int {
		rq := httptest.NewRequest(http.MethodGet, "/x", nil)
		rq.RemoteAddr = ip + ":1234"
		return serve(r, rq).Code
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.2"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 2, rl.Cleanup())
}

func TestRequireJWT(t *testing.T) {
	const secret = "test-secret"
	r := gin.New()
	r.POST("/ingest", RequireJWT(secret), func(c *gin.Context) {
		_, ok := c.Get(ClaimsKey)
		assert.True(t, ok)
		c.Status(http.StatusAccepted)
	})

	sign := func(key string, exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "feed",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		s, err := tok.SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return serve(r, req)
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+sign("other", time.Now().Add(time.Hour))).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+sign(secret, time.Now().Add(-time.Hour))).Code)
	w := call("Bearer " + sign(secret, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRequireJWTDisabled(t *testing.T) {
	r := gin.New()
	r.POST("/ingest", RequireJWT(""), func(c *gin.Context) { c.Status(http.StatusAccepted) })
	w := serve(r, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Logger())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
