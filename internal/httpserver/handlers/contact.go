package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/validation"
)

const recordTimeout = 2 * time.Second

type contactRequest struct {
	Name    string `json:"name" validate:"notblank,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"notblank,max=300"`
	Message string `json:"message" validate:"notblank,max=10000"`
}

// Contact relays the contact form to the owner.
func Contact(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeError(w, d, http.StatusBadRequest, err.Error())
			return
		}

		sub := &domain.ContactSubmission{
			Name:      strings.TrimSpace(req.Name),
			Email:     domain.NormalizeEmail(req.Email),
			Subject:   strings.TrimSpace(req.Subject),
			Message:   strings.TrimSpace(req.Message),
			Timestamp: d.Now().UTC(),
		}

		if err := d.Notifier.SendContact(r.Context(), sub); err != nil {
			d.Logger.Error("failed to relay contact form", logger.Error(err))
			writeError(w, d, http.StatusInternalServerError, "Failed to send the email")
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
		defer cancel()
		if err := d.Activity.RecordContact(ctx, sub); err != nil {
			d.Logger.Warn("failed to record contact form", logger.Error(err))
		}

		writeResult(w, d, http.StatusOK, true, "Contact form submitted successfully and email sent.")
	}
}
