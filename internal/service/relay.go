package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
	"site-gateway/pkg/logger"
)

const (
	unknownProxyError = "Unknown chat proxy error"

	maxUpstreamBody = 4 << 20
)

// ConfigProvider hands out the runtime configuration of one execution
// context.
type ConfigProvider interface {
	Get() runtimeconfig.RuntimeConfig
}

// RelayResult is the status and JSON body to send back to the caller.
type RelayResult struct {
	Status int
	Body   []byte
}

// ChatRelay forwards chat payloads to {chatBaseUrl}/chat and normalizes
// every outcome into a RelayResult. It holds no per-request state.
type ChatRelay struct {
	config  ConfigProvider
	client  *http.Client
	timeout time.Duration
}

func NewChatRelay(config ConfigProvider, client *http.Client, timeout time.Duration) *ChatRelay {
	if client == nil {
		client = http.DefaultClient
	}
	// The relay timeout is the only deadline on the upstream call.
	if timeout > 0 && client.Timeout > 0 {
		unbounded := *client
		unbounded.Timeout = 0
		client = &unbounded
	}
	return &ChatRelay{
		config:  config,
		client:  client,
		timeout: timeout,
	}
}

func (r *ChatRelay) Target() string {
	return strings.TrimRight(r.config.Get().ChatBaseURL, "/") + "/chat"
}

// Forward performs exactly one upstream POST. The call is detached from
// ctx cancellation and bounded only by the relay timeout.
func (r *ChatRelay) Forward(ctx context.Context, payload []byte) RelayResult {
	target := r.Target()
	start := time.Now()

	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log := logger.WithFields(logger.Fields{"target": target})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		log.WithError(err).Warn("chat relay: building upstream request failed")
		return transportFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(err, "no response within %s", r.timeout)
		}
		log.WithError(err).Warn("chat relay: upstream unreachable")
		return transportFailure(err)
	}
	defer resp.Body.Close()

	log = log.WithFields(logger.Fields{
		"status":  resp.StatusCode,
		"latency": time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Partial or failed reads still produce whatever text arrived.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
		detail := string(body)
		if strings.TrimSpace(detail) == "" {
			detail = statusText(resp)
		}
		log.WithField("detail", detail).Warn("chat relay: upstream returned an error")
		return normalizedError(resp.StatusCode, detail)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		log.WithError(err).Warn("chat relay: reading upstream body failed")
		return transportFailure(errors.Wrap(err, "read chat response"))
	}
	if !json.Valid(body) {
		log.Warn("chat relay: upstream body is not JSON")
		return transportFailure(errors.New("chat service returned a malformed response"))
	}

	log.Debug("chat relay: forwarded")
	return RelayResult{Status: http.StatusOK, Body: body}
}

func transportFailure(err error) RelayResult {
	detail := unknownProxyError
	if err != nil && err.Error() != "" {
		detail = err.Error()
	}
	return normalizedError(http.StatusBadGateway, detail)
}

func normalizedError(status int, detail string) RelayResult {
	body, err := json.Marshal(model.ErrorResponse{
		Message: model.ChatUnavailableMessage,
		Detail:  detail,
	})
	if err != nil {
		body = []byte(fmt.Sprintf(`{"message":%q,"detail":%q}`, model.ChatUnavailableMessage, unknownProxyError))
	}
	return RelayResult{Status: status, Body: body}
}

// statusText returns the reason phrase the upstream sent, falling back to
// the canonical text for the code.
func statusText(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// ErrInvalidChatRequest marks payloads the relay refuses to forward.
var ErrInvalidChatRequest = errors.New("invalid chat request")

// PreparePayload checks that raw is a JSON object carrying a session_id and
// a message, and returns it compacted for forwarding. Unknown fields are
// kept.
func PreparePayload(raw []byte) ([]byte, *model.ChatRequest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, "empty body")
	}
	if trimmed[0] != '{' {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, "body must be a JSON object")
	}

	var req model.ChatRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, "session_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, "message is required")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, nil, errors.Wrap(ErrInvalidChatRequest, err.Error())
	}
	return buf.Bytes(), &req, nil
}
