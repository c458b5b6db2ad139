// Package widget drives one chat widget session: it owns the session id,
// the rendered message list and the last state label the backend reported.
package widget

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"site-gateway/internal/model"
	"site-gateway/pkg/logger"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

const (
	IntroMessage    = "👋 Hi! I'm here to help you explore our AI solutions. Ask me anything or tell me what brought you here today."
	FallbackMessage = "Apologies, I'm having trouble reaching our assistant right now. Please try again in a moment."
)

var (
	ErrNothingToSend = errors.New("nothing to send")
	ErrBusy          = errors.New("a message is already in flight")
	ErrEmptyReply    = errors.New("chat relay returned no reply")
)

type ChatMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sender delivers one chat request to the relay.
type Sender interface {
	SendChatMessage(ctx context.Context, req model.ChatRequest) (*model.ChatReply, error)
}

type Session struct {
	mu       sync.Mutex
	sender   Sender
	id       string
	state    string
	messages []ChatMessage
	sending  bool
	seq      int
}

func NewSession(sender Sender) *Session {
	s := &Session{
		sender: sender,
		id:     NewSessionID(),
	}
	s.messages = append(s.messages, ChatMessage{ID: "intro", Role: RoleAssistant, Content: IntroMessage})
	return s
}

// NewSessionID returns a random UUID, or a best-effort pseudo-random id when
// the system randomness source fails.
func NewSessionID() string {
	return newSessionID(uuid.NewRandom)
}

func newSessionID(gen func() (uuid.UUID, error)) string {
	if id, err := gen(); err == nil {
		return id.String()
	}
	return "session-" + strconv.FormatUint(rand.Uint64(), 36)
}

func (s *Session) ID() string {
	return s.id
}

// CurrentState is the last state label reported by the backend; empty
// before the first reply.
func (s *Session) CurrentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StateLabel renders a backend state for display, e.g. "LEAD_CAPTURE"
// becomes "Workflow step: lead capture". Empty states render as "".
func StateLabel(state string) string {
	if state == "" {
		return ""
	}
	return "Workflow step: " + strings.ToLower(strings.ReplaceAll(state, "_", " "))
}

func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send relays text and returns the assistant message appended to the list.
// On relay failure the generic fallback message is appended and returned
// together with the error.
func (s *Session) Send(ctx context.Context, text string) (ChatMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ChatMessage{}, ErrNothingToSend
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ChatMessage{}, ErrBusy
	}
	s.sending = true
	s.appendLocked(RoleUser, trimmed)
	s.mu.Unlock()

	reply, err := s.sender.SendChatMessage(ctx, model.ChatRequest{
		SessionID: s.id,
		Message:   trimmed,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false

	if err == nil && reply == nil {
		err = ErrEmptyReply
	}
	if err != nil {
		logger.WithFields(logger.Fields{"session_id": s.id}).WithError(err).Warn("chat widget: relay failed")
		return s.appendLocked(RoleAssistant, FallbackMessage), err
	}

	s.state = reply.State
	return s.appendLocked(RoleAssistant, reply.Reply), nil
}

func (s *Session) appendLocked(role Role, content string) ChatMessage {
	s.seq++
	msg := ChatMessage{
		ID:      fmt.Sprintf("%s-%d", role, s.seq),
		Role:    role,
		Content: content,
	}
	s.messages = append(s.messages, msg)
	return msg
}
