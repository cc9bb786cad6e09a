package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/pkg/moderation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, mutate func(cfg *configs.Config)) *gin.Engine {
	t.Helper()
	cfg := configs.Default()
	cfg.Upstream.APIKey = "key"
	if mutate != nil {
		mutate(cfg)
	}
	log := zap.NewNop()
	svc := moderation.NewService(cfg, moderation.NewClient(cfg.Upstream, nil, log), nil, log)
	return NewRouter(cfg, svc, log)
}

func TestRouterRequestID(t *testing.T) {
	router := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "given")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "given", w.Header().Get("X-Request-Id"))
}

func TestRouterRequestIDOnErrors(t *testing.T) {
	router := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRouterCORSAllowAll(t *testing.T) {
	router := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/moderate", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-tenant-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestRouterCORSAllowList(t *testing.T) {
	router := newRouter(t, func(cfg *configs.Config) {
		cfg.CORS.AllowOrigins = "https://app.example, https://admin.example"
		cfg.CORS.AllowMethods = "GET,POST"
		cfg.CORS.AllowHeaders = "Content-Type"
	})

	req := httptest.NewRequest(http.MethodOptions, "/moderate", nil)
	req.Header.Set("Origin", "https://admin.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/moderate", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigWildcards(t *testing.T) {
	cfg := corsConfig(configs.CORS{AllowOrigins: "*", AllowHeaders: "*", AllowMethods: "*"})

	assert.True(t, cfg.AllowAllOrigins)
	assert.Empty(t, cfg.AllowOrigins)
	assert.Equal(t, []string{"*"}, cfg.AllowMethods)
	assert.Equal(t, []string{"*"}, cfg.AllowHeaders)
	assert.NoError(t, cfg.Validate())
}

func TestCORSConfigExplicitLists(t *testing.T) {
	cfg := corsConfig(configs.CORS{AllowOrigins: "https://app.example", AllowHeaders: "Content-Type, X-Tenant-Id", AllowMethods: "POST"})

	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowOrigins)
	assert.Equal(t, []string{"POST"}, cfg.AllowMethods)
	assert.Equal(t, []string{"Content-Type", "X-Tenant-Id"}, cfg.AllowHeaders)
	assert.NoError(t, cfg.Validate())
}
