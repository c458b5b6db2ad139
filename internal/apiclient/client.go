// Package apiclient is the client-side consumer of the site: it reaches the
// REST backend through a client-context runtime config and the chat relay
// through the site origin.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
	"site-gateway/pkg/logger"
)

const (
	RuntimeConfigPath = "/api/runtime-config"
	ChatPath          = "/api/chat"

	maxResponseBody = 1 << 20
)

type ConfigProvider interface {
	Get() runtimeconfig.RuntimeConfig
}

type Client struct {
	siteURL string
	config  ConfigProvider
	http    *http.Client
}

func New(siteURL string, config ConfigProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		siteURL: strings.TrimRight(siteURL, "/"),
		config:  config,
		http:    httpClient,
	}
}

// RelayError is a non-2xx answer from the chat relay.
type RelayError struct {
	Status  int
	Message string
	Detail  string
}

func (e *RelayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("chat relay returned %d: %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("chat relay returned %d: %s", e.Status, e.Message)
}

// FetchRuntimeConfig reads the values a site exposes for clients and turns
// them into a source for a client-context provider.
func FetchRuntimeConfig(ctx context.Context, httpClient *http.Client, siteURL string) (runtimeconfig.MapSource, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	target := strings.TrimRight(siteURL, "/") + RuntimeConfigPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build runtime config request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch runtime config")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch runtime config: unexpected status %d", resp.StatusCode)
	}

	var cfg runtimeconfig.RuntimeConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode runtime config")
	}
	return runtimeconfig.FromConfig(cfg), nil
}

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.config.Get().APIBaseURL, "/") + path
}

func (c *Client) SubmitContactForm(ctx context.Context, payload model.ContactFormPayload) (*model.APIResponse, error) {
	resp, err := c.postAPI(ctx, "/contact", payload, "Failed to submit contact form")
	if err != nil {
		logger.Errorf("Contact form submission error: %v", err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) SubscribeNewsletter(ctx context.Context, payload model.NewsletterPayload) (*model.APIResponse, error) {
	resp, err := c.postAPI(ctx, "/newsletter/subscribe", payload, "Failed to subscribe")
	if err != nil {
		logger.Errorf("Newsletter subscription error: %v", err)
		return nil, err
	}
	return resp, nil
}

// HealthCheck reports whether the backend answers {api}/health with a 2xx.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/health"), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// SendChatMessage posts to the site's own relay endpoint.
func (c *Client) SendChatMessage(ctx context.Context, chatReq model.ChatRequest) (*model.ChatReply, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send chat message")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, "read chat response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		relayErr := &RelayError{Status: resp.StatusCode, Message: model.ChatUnavailableMessage}
		var body model.ErrorResponse
		if json.Unmarshal(raw, &body) == nil {
			if body.Message != "" {
				relayErr.Message = body.Message
			}
			relayErr.Detail = body.Detail
		}
		return nil, relayErr
	}

	var reply model.ChatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, errors.Wrap(err, "decode chat reply")
	}
	return &reply, nil
}

func (c *Client) postAPI(ctx context.Context, path string, payload interface{}, fallback string) (*model.APIResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(path), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
			return nil, errors.New(errBody.Message)
		}
		return nil, errors.New(fallback)
	}

	var out model.APIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "decode %s response", path)
	}
	return &out, nil
}
