package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-gateway/internal/config"
	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.yaml")
}

func clearRuntimeEnv(t *testing.T) {
	for _, key := range []string{
		runtimeconfig.KeyPublicAPIURL,
		runtimeconfig.KeyAPIBaseURL,
		runtimeconfig.KeyAPIURL,
		runtimeconfig.KeyChatBaseURL,
	} {
		t.Setenv(key, "")
	}
}

func TestConfigCommandPrintsServerConfig(t *testing.T) {
	clearRuntimeEnv(t)
	t.Setenv(runtimeconfig.KeyPublicAPIURL, "https://api.example.com/api/v1")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", missingConfig(t)})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `{"apiBaseUrl":"https://api.example.com/api/v1","chatBaseUrl":"https://api.example.com"}`, out.String())
}

func TestConfigCommandDefaults(t *testing.T) {
	clearRuntimeEnv(t)

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", missingConfig(t)})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `{"apiBaseUrl":"http://localhost:8000/api/v1","chatBaseUrl":"http://localhost:8000"}`, out.String())
}

func TestSubscribeRequiresEmail(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"subscribe", "--config", missingConfig(t)})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
}

func testServerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(missingConfig(t))
	require.NoError(t, err)
	return cfg
}

func postChat(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"abc","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewServerWiresRelayAndLimiter(t *testing.T) {
	reply := `{"reply":"hello","session_id":"abc","state":"GREETING","finished":false}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		_, _ = w.Write([]byte(reply))
	}))
	defer upstream.Close()

	cfg := testServerConfig(t)
	cfg.RateLimit.RequestsPerMinute = 1
	provider := runtimeconfig.NewProvider(runtimeconfig.MapSource{runtimeconfig.KeyAPIBaseURL: upstream.URL + "/api/v1"})

	srv, limiter, err := newServer(cfg, provider)
	require.NoError(t, err)
	require.NotNil(t, limiter)
	assert.Equal(t, ":3000", srv.Addr)

	first := postChat(srv.Handler)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, reply, first.Body.String())
	assert.Equal(t, http.StatusTooManyRequests, postChat(srv.Handler).Code)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runtime-config", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"apiBaseUrl":"`+upstream.URL+`/api/v1","chatBaseUrl":"`+upstream.URL+`"}`, rr.Body.String())
}

func TestNewServerRelayTimeoutDetail(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	cfg := testServerConfig(t)
	cfg.RateLimit.Enabled = false
	cfg.Relay.Timeout = 50 * time.Millisecond
	provider := runtimeconfig.NewStaticProvider(runtimeconfig.RuntimeConfig{ChatBaseURL: upstream.URL})

	srv, limiter, err := newServer(cfg, provider)
	require.NoError(t, err)
	assert.Nil(t, limiter)

	rr := postChat(srv.Handler)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	var out model.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Contains(t, out.Detail, "no response within 50ms")
}

func TestNewServerRejectsBadTrustedProxies(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	_, _, err := newServer(cfg, runtimeconfig.NewProvider(nil))
	assert.Error(t, err)
}
