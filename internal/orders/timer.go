package orders

import (
	"fmt"
	"time"
)

// ExpiringSoonWindow is how close to the deadline an order counts as "expiring
// soon" for staff dashboards.
const ExpiringSoonWindow = 15 * time.Minute

// Remaining is the single remaining-time computation; everything else in this
// file (and the sweeper) derives from it. It returns the duration until the
// deadline and true, or zero and false once now >= deadline.
func Remaining(deadline, now time.Time) (time.Duration, bool) {
	if !now.Before(deadline) {
		return 0, false
	}
	return deadline.Sub(now), true
}

// RemainingPickupTime reads the stored pickup deadline. Orders that never
// entered ready have no deadline and report none.
func RemainingPickupTime(o *PickupOrder, now time.Time) (time.Duration, bool) {
	if o == nil || o.Timeline.PickupDeadline == nil {
		return 0, false
	}
	return Remaining(*o.Timeline.PickupDeadline, now)
}

// FormatRemaining renders a remaining duration as "M min S sec", or "Expired"
// once the deadline has passed.
func FormatRemaining(deadline, now time.Time) string {
	d, ok := Remaining(deadline, now)
	if !ok {
		return "Expired"
	}
	mins := int(d / time.Minute)
	secs := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%d min %d sec", mins, secs)
}

// ExpiringSoon is true while remaining time exists and is under 15 minutes.
func ExpiringSoon(deadline, now time.Time) bool {
	d, ok := Remaining(deadline, now)
	return ok && d < ExpiringSoonWindow
}

// Summary is the lightweight listing projection for order boards.
type Summary struct {
	ID            string     `json:"id"`
	Number        int64      `json:"number"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Status        Status     `json:"status"`
	ItemCount     int        `json:"item_count"`
	TotalCents    int        `json:"total_cents"`
	Location      Location   `json:"location"`
	PlacedAt      *time.Time `json:"placed_at,omitempty"`
	Deadline      *time.Time `json:"pickup_deadline,omitempty"`
	RemainingMins int        `json:"remaining_mins"`
	ExpiringSoon  bool       `json:"expiring_soon"`
}

// Summarize projects an order for listing. Remaining time comes from the same
// deadline-based computation the sweeper uses.
func Summarize(o *PickupOrder, now time.Time) Summary {
	s := Summary{
		ID:            o.ID,
		Number:        o.Number,
		CustomerName:  o.Customer.Name,
		CustomerPhone: o.Customer.Phone,
		Status:        o.Status,
		ItemCount:     len(o.Items),
		TotalCents:    o.TotalCents,
		Location:      o.Location,
		PlacedAt:      o.Timeline.PlacedAt,
		Deadline:      o.Timeline.PickupDeadline,
	}
	if d, ok := RemainingPickupTime(o, now); ok {
		s.RemainingMins = int(d / time.Minute)
		s.ExpiringSoon = d < ExpiringSoonWindow
	}
	return s
}
