package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/validation"
)

type exportRequest struct {
	Email          string        `json:"email" validate:"required,email"`
	Message        string        `json:"message" validate:"max=2000"`
	ChatMessages   []chatMessage `json:"chatMessages" validate:"min=1,max=500,dive"`
	ConversationID string        `json:"conversationId" validate:"omitempty,max=64"`
}

// ExportChat emails the transcript to the visitor and logs the export.
func ExportChat(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}

		rec := &domain.ExportRecord{
			Email:          domain.NormalizeEmail(req.Email),
			Message:        strings.TrimSpace(req.Message),
			ConversationID: req.ConversationID,
			Messages:       toDomainMessages(req.ChatMessages),
			Timestamp:      d.Now().UTC(),
		}

		if err := d.Notifier.SendTranscript(r.Context(), rec.Email, rec.Message, rec.Messages); err != nil {
			d.Logger.Error("failed to send chat export", logger.Error(err))
			writeError(w, d, http.StatusInternalServerError, "Failed to send the email")
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
		defer cancel()
		if err := d.Activity.RecordExport(ctx, rec); err != nil {
			d.Logger.Warn("failed to record chat export",
				logger.String("conversation_id", rec.ConversationID),
				logger.Error(err))
		}

		writeResult(w, d, http.StatusOK, true, "Chat exported and emailed successfully.")
	}
}
