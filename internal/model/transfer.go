package model

import (
	"fmt"
	"strings"
	"time"
)

// Transfer represents a custody transfer request for a property.
// It starts pending and is resolved exactly once, by the recipient,
// to approved or rejected. Terminal states are frozen.
type Transfer struct {
	ID         int64      `json:"id"`
	PropertyID int64      `json:"property_id"`
	FromUserID int64      `json:"from_user_id"`
	ToUserID   int64      `json:"to_user_id"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// Joined fields (not always populated).
	PropertyName string `json:"property_name,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	FromUsername string `json:"from_username,omitempty"`
	ToUsername   string `json:"to_username,omitempty"`
}

// Transfer statuses.
const (
	TransferPending  = "pending"
	TransferApproved = "approved"
	TransferRejected = "rejected"
)

// Decision is the recipient's resolution of a pending transfer.
type Decision string

// Decisions.
const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Decide applies a decision to the transfer in memory. It enforces
// that only the recipient may decide, that the transfer is still
// pending, and that a rejection carries a reason. A rejection reason
// is never defaulted: a silent placeholder would mask intent in the
// audit trail.
//
// Decide does not persist anything; the store wraps it in the same
// transaction as the ledger append so readers never see an approved
// transfer without its ledger entry.
func (t *Transfer) Decide(actingUserID int64, decision Decision, reason string, now time.Time) error {
	if t.Status != TransferPending {
		return fmt.Errorf("%w: transfer %d is already %s", ErrInvalidStateTransition, t.ID, t.Status)
	}
	if actingUserID != t.ToUserID {
		return fmt.Errorf("%w: only the recipient may decide transfer %d", ErrUnauthorized, t.ID)
	}

	switch decision {
	case DecisionApprove:
		t.Status = TransferApproved
	case DecisionReject:
		if strings.TrimSpace(reason) == "" {
			return fmt.Errorf("%w: rejecting a transfer requires a reason", ErrInvalidArgument)
		}
		t.Status = TransferRejected
		t.Reason = reason
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidArgument, decision)
	}

	t.ResolvedAt = &now
	return nil
}

// Views for listing transfers relative to an acting user.
const (
	TransferViewIncoming = "incoming"
	TransferViewOutgoing = "outgoing"
	TransferViewHistory  = "history"
)
