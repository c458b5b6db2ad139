// Package runtimeconfig derives the backend API base URL and the chat base
// URL from prioritized inputs. Each execution context owns a Provider; the
// server reads the process environment, clients read values the server
// embedded into what it served.
package runtimeconfig

import (
	"strings"
	"sync"

	"site-gateway/pkg/logger"
)

const (
	DefaultAPIBaseURL = "http://localhost:8000/api/v1"

	// KeyPublicAPIURL, KeyAPIBaseURL and KeyAPIURL are consulted in that order.
	KeyPublicAPIURL = "PUBLIC_API_URL"
	KeyAPIBaseURL   = "API_BASE_URL"
	KeyAPIURL       = "API_URL"
	KeyChatBaseURL  = "CHAT_BASE_URL"

	apiVersionSuffix = "/api/v1"
)

var apiKeys = []string{KeyPublicAPIURL, KeyAPIBaseURL, KeyAPIURL}

type RuntimeConfig struct {
	APIBaseURL  string `json:"apiBaseUrl"`
	ChatBaseURL string `json:"chatBaseUrl"`
}

// ResolveAPIBaseURL returns the first valid API base input, or
// DefaultAPIBaseURL.
func ResolveAPIBaseURL(src Source) string {
	if v, ok := firstValid(src, apiKeys...); ok {
		return v
	}
	return DefaultAPIBaseURL
}

// ResolveChatBaseURL prefers the dedicated chat input and otherwise derives
// the chat base from the API base by dropping a trailing /api/v1.
func ResolveChatBaseURL(src Source) string {
	if v, ok := firstValid(src, KeyChatBaseURL); ok {
		return v
	}
	return deriveChatBaseURL(ResolveAPIBaseURL(src))
}

func Resolve(src Source) RuntimeConfig {
	return RuntimeConfig{
		APIBaseURL:  ResolveAPIBaseURL(src),
		ChatBaseURL: ResolveChatBaseURL(src),
	}
}

func deriveChatBaseURL(apiBase string) string {
	if strings.HasSuffix(apiBase, apiVersionSuffix) {
		if trimmed := strings.TrimSuffix(apiBase, apiVersionSuffix); trimmed != "" {
			return trimmed
		}
	}
	return apiBase
}

func firstValid(src Source, keys ...string) (string, bool) {
	if src == nil {
		return "", false
	}
	for _, key := range keys {
		raw, ok := src.Lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v := ValidateURL(raw)
		if !v.OK() {
			logger.WithFields(logger.Fields{
				"key":    key,
				"reason": v.Reason(),
			}).Debug("ignoring runtime config input")
			continue
		}
		return v.URL(), true
	}
	return "", false
}

// Provider caches the RuntimeConfig of one execution context. The first Get
// resolves from the source; later changes to the source are not observed.
type Provider struct {
	src  Source
	once sync.Once
	cfg  RuntimeConfig
}

func NewProvider(src Source) *Provider {
	return &Provider{src: src}
}

// NewStaticProvider returns a provider pinned to cfg, for callers that
// already hold resolved values.
func NewStaticProvider(cfg RuntimeConfig) *Provider {
	p := &Provider{cfg: cfg}
	p.once.Do(func() {})
	return p
}

func (p *Provider) Get() RuntimeConfig {
	p.once.Do(func() {
		p.cfg = Resolve(p.src)
	})
	return p.cfg
}
