package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked-up"
	StatusNoShow    Status = "no-show"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusReady: true, StatusCancelled: true},
	StatusReady:     {StatusPickedUp: true, StatusNoShow: true, StatusCancelled: true},
	StatusPickedUp:  {},
	StatusNoShow:    {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition may leave the status.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0 && KnownStatus(s)
}

func KnownStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

// AllStatuses in lifecycle order; used by stats and the HTTP layer.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusReady,
	StatusPickedUp, StatusNoShow, StatusCancelled,
}

// InvalidTransitionError rejects a status change the lifecycle does not allow,
// e.g. reopening a picked-up order.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}
