package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/chat"
	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/validation"
)

// chatMessage is a message as the frontend keeps it.
type chatMessage struct {
	Role      string     `json:"role" validate:"required,oneof=user assistant"`
	Content   string     `json:"content" validate:"max=8000"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages" validate:"max=200,dive"`
	NewMessage     string        `json:"newMessage" validate:"notblank,max=4000"`
	ConversationID string        `json:"conversationId" validate:"omitempty,max=64"`
}

type chatResponse struct {
	Content        string    `json:"content"`
	Role           string    `json:"role"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
}

func toDomainMessages(in []chatMessage) []domain.Message {
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[i] = domain.Message{Role: domain.Role(m.Role), Content: m.Content}
		if m.Timestamp != nil {
			out[i].Timestamp = m.Timestamp.UTC()
		}
	}
	return out
}

// Chat runs one chat turn against the LLM.
func Chat(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}

		reply, err := d.Chat.HandleTurn(r.Context(), chat.Turn{
			ConversationID: req.ConversationID,
			History:        toDomainMessages(req.Messages),
			Message:        req.NewMessage,
		})
		if err != nil {
			status := http.StatusInternalServerError
			msg := "Failed to process the chat message"
			switch {
			case errors.Is(err, chat.ErrUnknownConversation):
				status, msg = http.StatusBadRequest, "Unknown conversation"
			case errors.Is(err, chat.ErrUpstream):
				status, msg = http.StatusBadGateway, "The assistant is unavailable, please try again later"
			}
			d.Logger.Error("chat turn failed",
				logger.String("conversation_id", req.ConversationID),
				logger.Int("status", status),
				logger.Error(err))
			writeError(w, d, status, msg)
			return
		}

		writeJSON(w, d, http.StatusOK, chatResponse{
			Content:        reply.Content,
			Role:           string(domain.RoleAssistant),
			Timestamp:      d.Now().UTC(),
			ConversationID: reply.ConversationID,
		})
	}
}
