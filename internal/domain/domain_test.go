package domain

import (
	"testing"
	"time"
)

func TestOTPRecordExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiresAt  time.Time
		status     OTPStatus
		wantExpiry bool
		wantActive bool
	}{
		{
			name:       "future expiry",
			expiresAt:  now.Add(time.Minute),
			status:     OTPIssued,
			wantExpiry: false,
			wantActive: true,
		},
		{
			name:       "expiry equal to now",
			expiresAt:  now,
			status:     OTPIssued,
			wantExpiry: true,
			wantActive: false,
		},
		{
			name:       "past expiry",
			expiresAt:  now.Add(-time.Second),
			status:     OTPIssued,
			wantExpiry: true,
			wantActive: false,
		},
		{
			name:       "consumed before expiry",
			expiresAt:  now.Add(time.Minute),
			status:     OTPConsumed,
			wantExpiry: false,
			wantActive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &OTPRecord{ExpiresAt: tt.expiresAt, Status: tt.status}
			if got := r.ExpiredAt(now); got != tt.wantExpiry {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.wantExpiry)
			}
			if got := r.ActiveAt(now); got != tt.wantActive {
				t.Errorf("ActiveAt() = %v, want %v", got, tt.wantActive)
			}
		})
	}
}

func TestOTPActionValid(t *testing.T) {
	for _, a := range []OTPAction{ActionEndorse, ActionDelete} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	for _, a := range []OTPAction{"", "update", "Endorse"} {
		if a.Valid() {
			t.Errorf("%q should not be valid", a)
		}
	}
}

func TestEndorsementOwnedBy(t *testing.T) {
	e := NewEndorsement("k1", "Ada", "A@B.com", "great", time.Now())

	if e.Email != "a@b.com" {
		t.Fatalf("email not normalized: %q", e.Email)
	}

	tests := []struct {
		email string
		want  bool
	}{
		{"a@b.com", true},
		{"A@B.COM", true},
		{"  a@b.com ", true},
		{"b@b.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := e.OwnedBy(tt.email); got != tt.want {
			t.Errorf("OwnedBy(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestNewEndorsementTrims(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	e := NewEndorsement(" k1 ", "  Ada Lovelace ", "ada@example.com", "\n Solid work.  ", now)

	if e.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", e.Name)
	}
	if e.Message != "Solid work." {
		t.Errorf("Message = %q", e.Message)
	}
	if e.SkillID != "k1" {
		t.Errorf("SkillID = %q", e.SkillID)
	}
	if !e.IsActive() {
		t.Error("new endorsement should be active")
	}
	if e.CreatedAt.Location() != time.UTC {
		t.Error("CreatedAt should be UTC")
	}
}
