package model

const ChatUnavailableMessage = "Chat service unavailable"

// ChatReply is the upstream chat backend's success body. The relay does not
// decode it; clients do.
type ChatReply struct {
	Reply     string                 `json:"reply"`
	SessionID string                 `json:"session_id"`
	State     string                 `json:"state"`
	Finished  bool                   `json:"finished"`
	Debug     map[string]interface{} `json:"debug,omitempty"`
}

// ErrorResponse is the normalized failure body returned for every relay
// failure, whatever the cause.
type ErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// APIResponse is the envelope returned by the backend REST API.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Upstream  *bool  `json:"upstream,omitempty"`
}
