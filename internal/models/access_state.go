package models

import (
	"fmt"
	"time"
)

// PaymentStatus is the billing state reported by the remote authority.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusOverdue PaymentStatus = "overdue"
	PaymentStatusBlocked PaymentStatus = "blocked"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusPending, PaymentStatusOverdue, PaymentStatusBlocked:
		return true
	}
	return false
}

// ParsePaymentStatus parses s, treating the empty string as paid.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	if s == "" {
		return PaymentStatusPaid, nil
	}
	ps := PaymentStatus(s)
	if !ps.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, s)
	}
	return ps, nil
}

// DefaultWarningMessage is shown when a warning is active but carries no text.
const DefaultWarningMessage = "System notification from administrator"

// AccessState is the block/warning/payment snapshot governing access.
// BlockReason only has meaning while IsBlocked is true.
type AccessState struct {
	IsBlocked         bool          `json:"is_blocked"`
	BlockReason       string        `json:"block_reason"`
	ShowWarning       bool          `json:"show_warning"`
	WarningMessage    string        `json:"warning_message"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	OutstandingAmount float64       `json:"outstanding_amount"`
	LastContact       *time.Time    `json:"last_contact,omitempty"`
}

// DisplayWarningMessage returns the warning text with the generic fallback applied.
func (s AccessState) DisplayWarningMessage() string {
	if s.WarningMessage == "" {
		return DefaultWarningMessage
	}
	return s.WarningMessage
}

// AccessStatePatch is a set of Access State fields written together in one
// storage statement. Nil fields are left unchanged.
type AccessStatePatch struct {
	IsBlocked         *bool
	BlockReason       *string
	ShowWarning       *bool
	WarningMessage    *string
	PaymentStatus     *PaymentStatus
	OutstandingAmount *float64
	LastContact       *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p AccessStatePatch) IsEmpty() bool {
	return p.IsBlocked == nil && p.BlockReason == nil && p.ShowWarning == nil &&
		p.WarningMessage == nil && p.PaymentStatus == nil && p.OutstandingAmount == nil &&
		p.LastContact == nil
}

// Validate rejects patches that would break Access State invariants.
func (p AccessStatePatch) Validate() error {
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return &ValidationError{Field: "payment_status", Message: fmt.Sprintf("unknown value %q", *p.PaymentStatus)}
	}
	if p.OutstandingAmount != nil && *p.OutstandingAmount < 0 {
		return &ValidationError{Field: "outstanding_amount", Message: "must not be negative"}
	}
	return nil
}

// Apply writes the non-nil fields of p onto s.
func (p AccessStatePatch) Apply(s *AccessState) {
	if p.IsBlocked != nil {
		s.IsBlocked = *p.IsBlocked
	}
	if p.BlockReason != nil {
		s.BlockReason = *p.BlockReason
	}
	if p.ShowWarning != nil {
		s.ShowWarning = *p.ShowWarning
	}
	if p.WarningMessage != nil {
		s.WarningMessage = *p.WarningMessage
	}
	if p.PaymentStatus != nil {
		s.PaymentStatus = *p.PaymentStatus
	}
	if p.OutstandingAmount != nil {
		s.OutstandingAmount = *p.OutstandingAmount
	}
	if p.LastContact != nil {
		t := *p.LastContact
		s.LastContact = &t
	}
}
