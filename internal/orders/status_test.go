package orders

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusReady},
		{StatusConfirmed, StatusCancelled},
		{StatusReady, StatusPickedUp},
		{StatusReady, StatusNoShow},
		{StatusReady, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	rejected := []struct{ from, to Status }{
		{StatusPending, StatusReady},    // must confirm first
		{StatusPending, StatusPickedUp}, // must go through ready
		{StatusPending, StatusNoShow},
		{StatusConfirmed, StatusPending}, // no going back
		{StatusConfirmed, StatusPickedUp},
		{StatusReady, StatusPending},
		{StatusPickedUp, StatusPending}, // terminal
		{StatusPickedUp, StatusReady},
		{StatusPickedUp, StatusCancelled},
		{StatusNoShow, StatusReady},
		{StatusNoShow, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusConfirmed},
		{StatusPending, StatusPending}, // self-transition
	}
	for _, tc := range rejected {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusPickedUp, StatusNoShow, StatusCancelled} {
		if !Terminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusReady} {
		if Terminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if Terminal(Status("bogus")) {
		t.Error("unknown status must not count as terminal")
	}
}

func TestInvalidTransitionErrorType(t *testing.T) {
	o := &PickupOrder{Status: StatusPickedUp}
	err := ApplyTransition(o, StatusPending, timeNowUTC())
	if err == nil {
		t.Fatal("expected error for picked-up -> pending")
	}
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if inv.From != StatusPickedUp || inv.To != StatusPending {
		t.Errorf("error carries wrong statuses: %v", inv)
	}
	if o.Status != StatusPickedUp {
		t.Errorf("rejected transition mutated status to %s", o.Status)
	}
}
