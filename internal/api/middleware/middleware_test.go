package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	clock := time.Now()
	rl.now = func() time.Time { return clock }
	rl.lastTime = clock

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("Expected first two requests to pass")
	}
	if rl.Allow() {
		t.Error("Expected third request to be limited")
	}

	clock = clock.Add(30 * time.Second)
	if !rl.Allow() {
		t.Error("Expected a token to be refilled after half the window")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(1, time.Hour))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", code)
	}
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(time.Second)
	clock := time.Now()
	d.now = func() time.Time { return clock }

	router := gin.New()
	router.POST("/upload", d.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/upload", d.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(method, body string) int {
		req := httptest.NewRequest(method, "/upload", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(http.MethodPost, "a"); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if code := send(http.MethodPost, "a"); code != http.StatusTooManyRequests {
		t.Errorf("Expected duplicate to be suppressed, got %d", code)
	}
	if code := send(http.MethodPost, "b"); code != http.StatusOK {
		t.Errorf("Different body should pass, got %d", code)
	}
	if code := send(http.MethodGet, ""); code != http.StatusOK {
		t.Errorf("GET should never be deduplicated, got %d", code)
	}

	clock = clock.Add(2 * time.Second)
	if code := send(http.MethodPost, "a"); code != http.StatusOK {
		t.Errorf("Expected request after the window to pass, got %d", code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimit(8))
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("Expected 500 INTERNAL_ERROR, got %d %s", w.Code, w.Body.String())
	}
}
