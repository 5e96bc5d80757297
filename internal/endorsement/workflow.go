// Package endorsement implements the OTP-gated endorsement workflow.
//
// Every state change is authorized by a one-time code mailed to the
// requester. Codes are scoped to (email, action, target) so a code issued to
// endorse one skill can neither endorse another nor delete anything.
package endorsement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
	store "github.com/MrSnakeDoc/folio/internal/store/redis"
)

// Errors returned by the workflow. Their text is shown to the visitor.
var (
	ErrInvalidAction         = errors.New("Invalid action. Must be 'endorse' or 'delete'")
	ErrSkillIDRequired       = errors.New("skillId is required for endorse action")
	ErrEndorsementIDRequired = errors.New("endorsementId is required for delete action")
	ErrNotFound              = errors.New("Endorsement not found")
	ErrForbidden             = errors.New("You can only delete your own endorsements")
	ErrInvalidCode           = errors.New("Invalid verification code")
	ErrInvalidSkill          = errors.New("Invalid skill ID")
	ErrMailFailed            = errors.New("Failed to send verification email")
	ErrDeleteFailed          = errors.New("Failed to delete endorsement")
)

// Store persists endorsements.
type Store interface {
	CreateEndorsement(ctx context.Context, e *domain.Endorsement) error
	GetEndorsement(ctx context.Context, id string) (*domain.Endorsement, error)
	ListActiveEndorsements(ctx context.Context) ([]*domain.Endorsement, error)
	ListEndorsementsBySkill(ctx context.Context, skillID string) ([]*domain.Endorsement, error)
	SoftDeleteEndorsement(ctx context.Context, id string, now time.Time) (bool, error)
}

// Codes issues and checks one-time codes.
type Codes interface {
	Issue(ctx context.Context, email string, action domain.OTPAction, targetID string) (string, error)
	Verify(ctx context.Context, email string, action domain.OTPAction, code, targetID string) bool
	ReapExpired(ctx context.Context) (int, error)
	TTL() time.Duration
}

// Mailer delivers the codes.
type Mailer interface {
	SendEndorseCode(ctx context.Context, to, code, skillName string, ttl time.Duration) error
	SendDeleteCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// Skills resolves skill ids.
type Skills interface {
	SkillName(id string) (string, bool)
}

// Workflow coordinates codes, mails and the endorsement store.
type Workflow struct {
	store  Store
	codes  Codes
	mailer Mailer
	skills Skills
	log    logger.Logger
	now    func() time.Time
}

// NewWorkflow creates the endorsement workflow.
func NewWorkflow(s Store, codes Codes, mailer Mailer, skills Skills, log logger.Logger) *Workflow {
	return &Workflow{
		store:  s,
		codes:  codes,
		mailer: mailer,
		skills: skills,
		log:    log,
		now:    time.Now,
	}
}

// OTPRequest asks for a code authorizing action.
type OTPRequest struct {
	Email         string
	Action        domain.OTPAction
	SkillID       string
	EndorsementID string
}

// RequestOTP validates the request, issues a code for its slot and mails it.
func (w *Workflow) RequestOTP(ctx context.Context, req OTPRequest) error {
	if n, err := w.codes.ReapExpired(ctx); err != nil {
		w.log.Warn("otp reap failed", logger.Error(err))
	} else if n > 0 {
		w.log.Debug("expired otps reaped", logger.Int("count", n))
	}

	if !req.Action.Valid() {
		return ErrInvalidAction
	}

	var target string
	switch req.Action {
	case domain.ActionEndorse:
		target = strings.TrimSpace(req.SkillID)
		if target == "" {
			return ErrSkillIDRequired
		}
	case domain.ActionDelete:
		target = strings.TrimSpace(req.EndorsementID)
		if target == "" {
			return ErrEndorsementIDRequired
		}
		if _, err := w.owned(ctx, target, req.Email); err != nil {
			return err
		}
	}

	code, err := w.codes.Issue(ctx, req.Email, req.Action, target)
	if err != nil {
		return fmt.Errorf("request otp: %w", err)
	}

	to := domain.NormalizeEmail(req.Email)
	if req.Action == domain.ActionEndorse {
		name, ok := w.skills.SkillName(target)
		if !ok {
			name = target
		}
		err = w.mailer.SendEndorseCode(ctx, to, code, name, w.codes.TTL())
	} else {
		err = w.mailer.SendDeleteCode(ctx, to, code, w.codes.TTL())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMailFailed, err)
	}
	return nil
}

// CreateRequest is a code-authorized endorsement.
type CreateRequest struct {
	SkillID string
	Name    string
	Email   string
	Message string
	OTP     string
}

// Create consumes the endorse code and stores the endorsement.
// The code is checked before the skill so that probing skill ids costs a code.
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (*domain.Endorsement, error) {
	skillID := strings.TrimSpace(req.SkillID)
	if !w.codes.Verify(ctx, req.Email, domain.ActionEndorse, strings.TrimSpace(req.OTP), skillID) {
		return nil, ErrInvalidCode
	}

	if _, ok := w.skills.SkillName(skillID); !ok {
		return nil, ErrInvalidSkill
	}

	e := domain.NewEndorsement(skillID, req.Name, req.Email, req.Message, w.now())
	if err := w.store.CreateEndorsement(ctx, e); err != nil {
		return nil, fmt.Errorf("create endorsement: %w", err)
	}

	w.log.Info("endorsement created",
		logger.String("id", e.ID),
		logger.String("skill_id", e.SkillID))
	return e, nil
}

// Delete consumes the delete code and soft deletes the endorsement.
// Ownership is checked against the stored author before the code is spent.
func (w *Workflow) Delete(ctx context.Context, id, email, code string) error {
	if _, err := w.owned(ctx, id, email); err != nil {
		return err
	}

	if !w.codes.Verify(ctx, email, domain.ActionDelete, strings.TrimSpace(code), id) {
		return ErrInvalidCode
	}

	ok, err := w.store.SoftDeleteEndorsement(ctx, id, w.now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if !ok {
		return ErrDeleteFailed
	}

	w.log.Info("endorsement deleted", logger.String("id", id))
	return nil
}

// List returns every active endorsement.
func (w *Workflow) List(ctx context.Context) ([]*domain.Endorsement, error) {
	return w.store.ListActiveEndorsements(ctx)
}

// ListBySkill returns the active endorsements of one skill.
func (w *Workflow) ListBySkill(ctx context.Context, skillID string) ([]*domain.Endorsement, error) {
	return w.store.ListEndorsementsBySkill(ctx, skillID)
}

func (w *Workflow) owned(ctx context.Context, id, email string) (*domain.Endorsement, error) {
	e, err := w.store.GetEndorsement(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load endorsement: %w", err)
	}
	if !e.OwnedBy(email) {
		return nil, ErrForbidden
	}
	return e, nil
}
