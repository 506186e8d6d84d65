package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"

	"diffatours/pkg/client"
	"diffatours/pkg/config"
	"diffatours/pkg/logger"
)

type routes func(*httprouter.Router)

func (f routes) RegisterRoutes(r *httprouter.Router) { f(r) }

type countingObserver struct{ requests int }

func (o *countingObserver) ObserveHTTPRequest(string, int, time.Duration) { o.requests++ }

func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		MetricsEnabled:    true,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Minute,
		MaxRequestSize:    1 << 10,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
		Client:            client.NewClient(),
	}
}

func TestApplication_Wiring(t *testing.T) {
	app := routes(func(r *httprouter.Router) {
		r.POST("/api/v1/admissions", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})
	health := routes(func(r *httprouter.Router) {
		r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})

	closed := false
	observer := &countingObserver{}
	a := NewApplication(testConfig()).
		WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}), observer).
		OnShutdown(func(context.Context) error {
			closed = true
			return nil
		})
	a.SetApp(app, health)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, "# metrics", serve(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admissions", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusUnsupportedMediaType, serve(req).Code, "app routes get the full chain")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admissions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusOK, serve(req).Code)
	assert.Equal(t, 2, observer.requests, "only app routes are observed")

	a.gracefulShutdown()
	assert.True(t, closed)
}

func TestApplication_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	empty := routes(func(*httprouter.Router) {})

	a := NewApplication(cfg).WithMetrics(http.NotFoundHandler(), nil)
	a.SetApp(empty, empty)
	defer a.gracefulShutdown()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
