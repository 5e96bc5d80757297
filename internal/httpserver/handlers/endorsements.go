package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/endorsement"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/validation"
)

type otpRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Action        string `json:"action" validate:"required"`
	SkillID       string `json:"skillId"`
	EndorsementID string `json:"endorsementId"`
}

type createEndorsementRequest struct {
	SkillID string `json:"skillId" validate:"notblank,max=100"`
	Name    string `json:"name" validate:"notblank,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"notblank,max=2000"`
	OTP     string `json:"otp" validate:"required,max=16"`
}

type deleteEndorsementRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,max=16"`
}

type endorsementView struct {
	ID        string `json:"id"`
	SkillID   string `json:"skillId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type endorsementListResponse struct {
	Endorsements []endorsementView `json:"endorsements"`
}

type createEndorsementResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Endorsement endorsementView `json:"endorsement"`
}

func viewOf(e *domain.Endorsement) endorsementView {
	return endorsementView{
		ID:        e.ID,
		SkillID:   e.SkillID,
		Name:      e.Name,
		Email:     e.Email,
		Message:   e.Message,
		Timestamp: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// endorsementStatus maps workflow errors to HTTP codes. Unknown errors are 500.
func endorsementStatus(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, endorsement.ErrInvalidAction),
		errors.Is(err, endorsement.ErrSkillIDRequired),
		errors.Is(err, endorsement.ErrEndorsementIDRequired),
		errors.Is(err, endorsement.ErrInvalidCode),
		errors.Is(err, endorsement.ErrInvalidSkill):
		return http.StatusBadRequest
	case errors.Is(err, endorsement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, endorsement.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// endorsementMessage returns the text shown to the visitor. Store and
// transport details stay in the logs.
func endorsementMessage(err error, status int) string {
	if status != http.StatusInternalServerError {
		return err.Error()
	}
	switch {
	case errors.Is(err, endorsement.ErrMailFailed):
		return endorsement.ErrMailFailed.Error()
	case errors.Is(err, endorsement.ErrDeleteFailed):
		return endorsement.ErrDeleteFailed.Error()
	default:
		return "Internal server error"
	}
}

func writeEndorsementError(w http.ResponseWriter, d deps.Deps, op string, err error) {
	status := endorsementStatus(err)
	if status == http.StatusInternalServerError {
		d.Logger.Error("endorsement request failed",
			logger.String("op", op),
			logger.Error(err))
	} else {
		d.Logger.Debug("endorsement request rejected",
			logger.String("op", op),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeResult(w, d, status, false, endorsementMessage(err, status))
}

// RequestOTP mails a verification code for an endorse or delete action.
func RequestOTP(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeResult(w, d, http.StatusBadRequest, false, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeEndorsementError(w, d, "request-otp", err)
			return
		}

		err := d.Endorsements.RequestOTP(r.Context(), endorsement.OTPRequest{
			Email:         req.Email,
			Action:        domain.OTPAction(req.Action),
			SkillID:       req.SkillID,
			EndorsementID: req.EndorsementID,
		})
		if err != nil {
			writeEndorsementError(w, d, "request-otp", err)
			return
		}

		writeResult(w, d, http.StatusOK, true, "Verification code sent to your email")
	}
}

// CreateEndorsement stores an endorsement authorized by an endorse code.
func CreateEndorsement(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEndorsementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeResult(w, d, http.StatusBadRequest, false, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeEndorsementError(w, d, "create", err)
			return
		}

		e, err := d.Endorsements.Create(r.Context(), endorsement.CreateRequest{
			SkillID: req.SkillID,
			Name:    req.Name,
			Email:   req.Email,
			Message: req.Message,
			OTP:     req.OTP,
		})
		if err != nil {
			writeEndorsementError(w, d, "create", err)
			return
		}

		writeJSON(w, d, http.StatusOK, createEndorsementResponse{
			Success:     true,
			Message:     "Endorsement added successfully",
			Endorsement: viewOf(e),
		})
	}
}

// DeleteEndorsement soft-deletes an endorsement authorized by a delete code.
func DeleteEndorsement(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req deleteEndorsementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeResult(w, d, http.StatusBadRequest, false, err.Error())
			return
		}
		if err := validation.Struct(&req); err != nil {
			writeEndorsementError(w, d, "delete", err)
			return
		}

		if err := d.Endorsements.Delete(r.Context(), id, req.Email, req.OTP); err != nil {
			writeEndorsementError(w, d, "delete", err)
			return
		}

		writeResult(w, d, http.StatusOK, true, "Endorsement deleted successfully")
	}
}

// ListEndorsements returns every active endorsement.
func ListEndorsements(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := d.Endorsements.List(r.Context())
		writeEndorsementList(w, d, list, err)
	}
}

// ListSkillEndorsements returns the active endorsements of one skill.
func ListSkillEndorsements(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := d.Endorsements.ListBySkill(r.Context(), chi.URLParam(r, "skillId"))
		writeEndorsementList(w, d, list, err)
	}
}

func writeEndorsementList(w http.ResponseWriter, d deps.Deps, list []*domain.Endorsement, err error) {
	if err != nil {
		d.Logger.Error("failed to list endorsements", logger.Error(err))
		writeError(w, d, http.StatusInternalServerError, "Failed to load endorsements")
		return
	}
	views := make([]endorsementView, 0, len(list))
	for _, e := range list {
		views = append(views, viewOf(e))
	}
	writeJSON(w, d, http.StatusOK, endorsementListResponse{Endorsements: views})
}
