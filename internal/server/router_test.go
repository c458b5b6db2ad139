package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-gateway/internal/apiclient"
	"site-gateway/internal/config"
	"site-gateway/internal/handler"
	"site-gateway/internal/middleware"
	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
	"site-gateway/internal/service"
	"site-gateway/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Relay: config.RelayConfig{Timeout: time.Second, MaxBodyBytes: 64 << 10},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		},
	}
}

func newSite(t *testing.T, apiBase string, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	return newSiteWithConfig(t, testConfig(), apiBase, limiter)
}

func newSiteWithConfig(t *testing.T, cfg *config.Config, apiBase string, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	provider := runtimeconfig.NewProvider(runtimeconfig.MapSource{runtimeconfig.KeyAPIBaseURL: apiBase})
	client := utils.NewHTTPClient(cfg.Relay.Timeout)

	relay := service.NewChatRelay(provider, client, cfg.Relay.Timeout)
	backend := apiclient.New("", provider, client)

	router, err := NewRouter(cfg, Handlers{
		Chat:   handler.NewChatHandler(relay, cfg.Relay.MaxBodyBytes),
		Config: handler.NewConfigHandler(provider, backend),
	}, limiter)
	require.NoError(t, err)
	return router
}

func postChatFrom(site http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"a","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	site.ServeHTTP(rr, req)
	return rr.Code
}

func postChat(site http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	site.ServeHTTP(rr, req)
	return rr
}

func TestChatHealthyUpstream(t *testing.T) {
	reply := `{"reply":"We build AI agents.","session_id":"abc","state":"QUALIFYING","finished":false}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		var req model.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "abc", req.SessionID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	defer upstream.Close()

	site := newSite(t, upstream.URL+"/api/v1", nil)
	rr := postChat(site, `{"session_id":"abc","message":"What do you do?"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, reply, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestChatUpstreamDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	site := newSite(t, "http://"+addr+"/api/v1", nil)
	rr := postChat(site, `{"session_id":"abc","message":"What do you do?"}`)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Chat service unavailable")
}

func TestChatUpstreamErrorStatusPropagates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer upstream.Close()

	site := newSite(t, upstream.URL, nil)
	rr := postChat(site, `{"session_id":"abc","message":"hi"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"message":"Chat service unavailable","detail":"maintenance"}`, rr.Body.String())
}

func TestRuntimeConfigIsDynamic(t *testing.T) {
	site := newSite(t, "https://api.example.com/api/v1", nil)

	rr := httptest.NewRecorder()
	site.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runtime-config", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	assert.JSONEq(t, `{"apiBaseUrl":"https://api.example.com/api/v1","chatBaseUrl":"https://api.example.com"}`, rr.Body.String())
}

func TestHealth(t *testing.T) {
	site := newSite(t, "https://api.example.com/api/v1", nil)

	rr := httptest.NewRecorder()
	site.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestChatRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer upstream.Close()

	site := newSite(t, upstream.URL, middleware.NewRateLimiter(1, time.Minute))

	assert.Equal(t, http.StatusOK, postChat(site, `{"session_id":"a","message":"1"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postChat(site, `{"session_id":"a","message":"2"}`).Code)
}

func TestCORSPreflight(t *testing.T) {
	site := newSite(t, "https://api.example.com", nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	site.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer upstream.Close()

	site := newSite(t, upstream.URL, middleware.NewRateLimiter(1, time.Minute))

	codes := make([]int, 0, 5)
	for _, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3", "198.51.100.4", "198.51.100.5"} {
		codes = append(codes, postChatFrom(site, "203.0.113.7:4711", xff))
	}
	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
}

func TestRateLimitHonoursForwardedForFromTrustedProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	site := newSiteWithConfig(t, cfg, upstream.URL, middleware.NewRateLimiter(1, time.Minute))

	assert.Equal(t, http.StatusOK, postChatFrom(site, "10.1.2.3:4711", "198.51.100.1"))
	assert.Equal(t, http.StatusOK, postChatFrom(site, "10.1.2.3:4711", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postChatFrom(site, "10.1.2.3:4711", "198.51.100.1"))
}

func TestNewRouterRejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	_, err := NewRouter(cfg, Handlers{}, nil)
	assert.Error(t, err)
}
