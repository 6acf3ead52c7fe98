package model

import (
	"errors"
	"testing"
	"time"
)

func pendingTransfer() *Transfer {
	return &Transfer{
		ID:         1,
		PropertyID: 1,
		FromUserID: 10,
		ToUserID:   20,
		Status:     TransferPending,
	}
}

func TestDecideApprove(t *testing.T) {
	tr := pendingTransfer()
	now := time.Now()

	if err := tr.Decide(20, DecisionApprove, "", now); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if tr.Status != TransferApproved {
		t.Errorf("expected approved, got %q", tr.Status)
	}
	if tr.ResolvedAt == nil || !tr.ResolvedAt.Equal(now) {
		t.Errorf("expected resolved timestamp %v, got %v", now, tr.ResolvedAt)
	}
}

func TestDecideRejectNeedsReason(t *testing.T) {
	tr := pendingTransfer()

	err := tr.Decide(20, DecisionReject, "", time.Now())
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if tr.Status != TransferPending {
		t.Errorf("failed decide mutated status to %q", tr.Status)
	}

	if err := tr.Decide(20, DecisionReject, "damaged on inspection", time.Now()); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if tr.Status != TransferRejected || tr.Reason != "damaged on inspection" {
		t.Errorf("unexpected rejection state: %+v", tr)
	}
}

func TestDecideWrongActor(t *testing.T) {
	tr := pendingTransfer()

	// Neither the sender nor a third party may decide.
	for _, actor := range []int64{10, 99} {
		err := tr.Decide(actor, DecisionApprove, "", time.Now())
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("actor %d: expected ErrUnauthorized, got %v", actor, err)
		}
	}
	if tr.Status != TransferPending {
		t.Errorf("unauthorized decide mutated status to %q", tr.Status)
	}
}

func TestDecideTerminalStatesAreFrozen(t *testing.T) {
	for _, status := range []string{TransferApproved, TransferRejected} {
		tr := pendingTransfer()
		tr.Status = status

		err := tr.Decide(20, DecisionApprove, "", time.Now())
		if !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("from %q: expected ErrInvalidStateTransition, got %v", status, err)
		}
		err = tr.Decide(20, DecisionReject, "late reason", time.Now())
		if !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("from %q: expected ErrInvalidStateTransition, got %v", status, err)
		}
	}
}

func TestDecideUnknownDecision(t *testing.T) {
	tr := pendingTransfer()

	err := tr.Decide(20, Decision("recall"), "", time.Now())
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
