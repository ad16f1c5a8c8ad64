package orders

import "time"

// Location is one of the physical stores an order can be picked up from.
type Location string

const (
	LocationCameronRd     Location = "cameron-rd"
	LocationWilliamCannon Location = "william-cannon"
	LocationSlaughterLn   Location = "slaughter-ln"
)

var knownLocations = map[Location]bool{
	LocationCameronRd:     true,
	LocationWilliamCannon: true,
	LocationSlaughterLn:   true,
}

func ValidLocation(l Location) bool { return knownLocations[l] }

type LineItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
	LineTotalCents int    `json:"line_total_cents"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Timeline records when an order entered each lifecycle stage. Every stamp is
// written at most once, by the transition that enters the matching status.
type Timeline struct {
	PlacedAt       *time.Time `json:"placed_at,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	ReadyAt        *time.Time `json:"ready_at,omitempty"`
	PickupDeadline *time.Time `json:"pickup_deadline,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// CommunicationEvent is one entry in the append-only customer-contact log.
type CommunicationEvent struct {
	Channel string    `json:"channel"` // e.g., "sms", "call", "system"
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
	SentBy  string    `json:"sent_by"`
}

type PickupOrder struct {
	ID     string `json:"id"`
	Number int64  `json:"number"` // human-facing, sequential, from orders:counter

	Customer Customer   `json:"customer"`
	Items    []LineItem `json:"items"`

	// Money is immutable once set by the placing collaborator.
	SubtotalCents int `json:"subtotal_cents"`
	TaxCents      int `json:"tax_cents"`
	TotalCents    int `json:"total_cents"`

	Location Location `json:"location"`
	Status   Status   `json:"status"`
	Timeline Timeline `json:"timeline"`

	StoreNotes     string               `json:"store_notes,omitempty"`
	Communications []CommunicationEvent `json:"communications,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is what the checkout collaborator hands us: everything except
// identity, status and bookkeeping, which the store assigns.
type Draft struct {
	Customer      Customer   `json:"customer"`
	Items         []LineItem `json:"items"`
	SubtotalCents int        `json:"subtotal_cents"`
	TaxCents      int        `json:"tax_cents"`
	TotalCents    int        `json:"total_cents"`
	Location      Location   `json:"location"`
	StoreNotes    string     `json:"store_notes,omitempty"`
}
