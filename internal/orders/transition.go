package orders

import "time"

// PickupWindow is how long a ready order waits before it can be swept.
const PickupWindow = time.Hour

// ApplyTransition validates the status change and stamps the timeline.
// The order is mutated in place; callers persist it afterwards.
//
// Stamps per target status:
//
//	confirmed            -> ConfirmedAt = now
//	ready                -> ReadyAt = now, PickupDeadline = now + PickupWindow
//	picked-up / no-show  -> CompletedAt = now
//	cancelled            -> CancelledAt = now
func ApplyTransition(o *PickupOrder, to Status, now time.Time) error {
	if !KnownStatus(to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}

	switch to {
	case StatusConfirmed:
		setOnce(&o.Timeline.ConfirmedAt, now)
	case StatusReady:
		setOnce(&o.Timeline.ReadyAt, now)
		setOnce(&o.Timeline.PickupDeadline, now.Add(PickupWindow))
	case StatusPickedUp, StatusNoShow:
		setOnce(&o.Timeline.CompletedAt, now)
	case StatusCancelled:
		setOnce(&o.Timeline.CancelledAt, now)
	}
	o.Status = to
	return nil
}

// setOnce preserves an already-written stamp; timeline entries are write-once.
func setOnce(dst **time.Time, t time.Time) {
	if *dst == nil {
		v := t
		*dst = &v
	}
}
