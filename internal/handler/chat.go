package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"site-gateway/internal/middleware"
	"site-gateway/internal/model"
	"site-gateway/internal/service"
	"site-gateway/pkg/logger"
)

const invalidChatRequest = "Invalid chat request"

// Relay is the chat relay as seen by the HTTP layer.
type Relay interface {
	Forward(ctx context.Context, payload []byte) service.RelayResult
}

type ChatHandler struct {
	relay        Relay
	maxBodyBytes int64
}

func NewChatHandler(relay Relay, maxBodyBytes int64) *ChatHandler {
	return &ChatHandler{
		relay:        relay,
		maxBodyBytes: maxBodyBytes,
	}
}

// Relay handles POST /api/chat.
func (h *ChatHandler) Relay(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, model.ErrorResponse{Message: invalidChatRequest, Detail: err.Error()})
		return
	}

	payload, req, err := service.PreparePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: invalidChatRequest, Detail: err.Error()})
		return
	}

	res := h.relay.Forward(c.Request.Context(), payload)

	log := logger.WithFields(logger.Fields{
		"session_id": req.SessionID,
		"status":     res.Status,
		"request_id": middleware.GetRequestID(c),
	})
	if res.Status >= 400 {
		log.Warn("chat relay failed")
	} else {
		log.Debug("chat relayed")
	}

	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}
