package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func router(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/applet/:id/html", func(c *gin.Context) {
		c.Header("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestRateLimit(t *testing.T) {
	r := router(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/applet/a/html", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other clients keep their own budget
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/applet/a/html", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSExposesLastModified(t *testing.T) {
	r := router(CORS(DefaultCORSConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/applet/a/html", nil)
	req.Header.Set("Origin", "http://applet.test")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Last-Modified")
}

func TestCORSPreflight(t *testing.T) {
	r := router(CORS(DefaultCORSConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/applet/a/storage", nil)
	req.Header.Set("Origin", "http://applet.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestID(t *testing.T) {
	r := router(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applet/a/html", nil))
	assert.Regexp(t, `^req_[0-9A-Z]{26}$`, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/applet/a/html", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-7", w.Header().Get(RequestIDHeader))
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(8))
	r.PUT("/applet/:id/storage", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/applet/a/storage", strings.NewReader(`{"a":"1"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/applet/a/storage", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}
