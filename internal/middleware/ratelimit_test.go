package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(window))
	r.POST("/query", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func doPost(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBlocksWithinWindow(t *testing.T) {
	r := newLimitedRouter(time.Minute)
	first := doPost(r)
	require.Equal(t, "ok", first.Body.String())
	// the error envelope rides on a 200, body carries the code
	second := doPost(r)
	require.NotEqual(t, "ok", second.Body.String())
}

func TestRateLimitDisabled(t *testing.T) {
	r := newLimitedRouter(0)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doPost(r).Code)
	}
}

func TestRateLimitAllowsAfterWindow(t *testing.T) {
	r := newLimitedRouter(10 * time.Millisecond)
	first := doPost(r)
	require.Equal(t, http.StatusOK, first.Code)
	time.Sleep(20 * time.Millisecond)
	second := doPost(r)
	require.Equal(t, "ok", second.Body.String())
}
