package runtimeconfig

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Source looks up a named configuration input.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource holds values embedded by a server for a client context.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// FromConfig embeds resolved values so that a client Provider resolves to
// the same URLs.
func FromConfig(cfg RuntimeConfig) MapSource {
	src := MapSource{}
	if cfg.APIBaseURL != "" {
		src[KeyPublicAPIURL] = cfg.APIBaseURL
	}
	if cfg.ChatBaseURL != "" {
		src[KeyChatBaseURL] = cfg.ChatBaseURL
	}
	return src
}

// Validation is the outcome of ValidateURL: either a normalized URL or the
// reason it was rejected.
type Validation struct {
	url    string
	reason string
}

func Valid(u string) Validation {
	return Validation{url: u}
}

func Invalid(reason string) Validation {
	return Validation{reason: reason}
}

func (v Validation) OK() bool       { return v.reason == "" }
func (v Validation) URL() string    { return v.url }
func (v Validation) Reason() string { return v.reason }

// ValidateURL accepts absolute http and https URLs with a host. Surrounding
// whitespace and trailing slashes are removed from the result.
func ValidateURL(raw string) Validation {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Invalid("empty value")
	}

	u, err := url.Parse(s)
	if err != nil {
		return Invalid(err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Invalid(fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" || u.Hostname() == "" {
		return Invalid("missing host")
	}

	return Valid(strings.TrimRight(s, "/"))
}
