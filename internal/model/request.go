package model

// ChatRequest is what the widget posts to the relay and what the relay
// forwards upstream. Fields beyond these are passed through untouched.
type ChatRequest struct {
	SessionID string                 `json:"session_id"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type ContactFormPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Message string `json:"message"`
}

type NewsletterPayload struct {
	Email string `json:"email"`
}
