package domain

import "time"

// DefaultOTPTTL is how long an issued code stays valid.
const DefaultOTPTTL = 10 * time.Minute

// OTPAction is the operation a code authorizes.
type OTPAction string

const (
	ActionEndorse OTPAction = "endorse"
	ActionDelete  OTPAction = "delete"
)

// Valid reports whether a is a known action.
func (a OTPAction) Valid() bool {
	return a == ActionEndorse || a == ActionDelete
}

// OTPStatus is the state of a single issued code.
type OTPStatus string

const (
	OTPIssued     OTPStatus = "issued"
	OTPConsumed   OTPStatus = "consumed"
	OTPSuperseded OTPStatus = "superseded"
	OTPExpired    OTPStatus = "expired"
	OTPExhausted  OTPStatus = "exhausted"
)

// OTPRecord is one code issued for an (email, action, target) slot.
type OTPRecord struct {
	ID       string
	Email    string
	Action   OTPAction
	Code     string
	TargetID string // skill id for endorse, endorsement id for delete

	CreatedAt time.Time
	ExpiresAt time.Time
	ClosedAt  time.Time // set when the record leaves OTPIssued

	Status   OTPStatus
	Attempts int
}

// ExpiredAt reports whether the code can no longer be used at now.
// A code whose expiry equals now is expired.
func (r *OTPRecord) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// ActiveAt reports whether the code is still open and unexpired.
func (r *OTPRecord) ActiveAt(now time.Time) bool {
	return r.Status == OTPIssued && !r.ExpiredAt(now)
}
