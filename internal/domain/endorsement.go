package domain

import (
	"strings"
	"time"
)

// EndorsementStatus is the lifecycle state of an endorsement.
type EndorsementStatus string

const (
	EndorsementActive  EndorsementStatus = "active"
	EndorsementDeleted EndorsementStatus = "deleted"
)

// Endorsement is a visitor's public vouch for one of the owner's skills.
//
// Endorsements are never removed from the store. Deleting one flips its
// Status so that metrics keep seeing the full history.
type Endorsement struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned by the store on creation.
	ID string

	// SkillID references an entry of skills.json.
	SkillID string

	// ─────────────────────────────
	// Author
	// ─────────────────────────────

	// Name is the display name, trimmed.
	Name string

	// Email is normalized to lowercase and never changes after creation.
	// Ownership checks rely on that.
	Email string

	// Message is the endorsement text, trimmed.
	Message string

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	// CreatedAt is set server-side.
	CreatedAt time.Time

	Status EndorsementStatus

	// DeletedAt is zero while the endorsement is active.
	DeletedAt time.Time
}

// IsActive reports whether the endorsement is visible.
func (e *Endorsement) IsActive() bool {
	return e.Status == EndorsementActive
}

// OwnedBy compares the author email with the given one, ignoring case.
func (e *Endorsement) OwnedBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(e.Email), strings.TrimSpace(email))
}

// NewEndorsement builds an active endorsement with normalized fields.
// ID is left empty for the store to assign.
func NewEndorsement(skillID, name, email, message string, now time.Time) *Endorsement {
	return &Endorsement{
		SkillID:   strings.TrimSpace(skillID),
		Name:      strings.TrimSpace(name),
		Email:     NormalizeEmail(email),
		Message:   strings.TrimSpace(message),
		CreatedAt: now.UTC(),
		Status:    EndorsementActive,
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
