package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderExpired       = "OrderExpired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`                 // uuid
	EventType     string          `json:"event_type"`               // one of the consts above
	EventVersion  int             `json:"event_version"`            // 1
	OccurredAt    time.Time       `json:"occurred_at"`              // RFC3339
	Producer      string          `json:"producer"`                 // e.g., "pickup-api"
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string   `json:"order_id"`
	Number     int64    `json:"number"`
	Location   Location `json:"location"`
	Phone      string   `json:"phone"`
	TotalCents int      `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID  string   `json:"order_id"`
	Number   int64    `json:"number"`
	From     Status   `json:"from"`
	To       Status   `json:"to"`
	Phone    string   `json:"phone"`
	Location Location `json:"location"`
}

type OrderExpiredPayload struct {
	OrderID  string    `json:"order_id"`
	Number   int64     `json:"number"`
	Deadline time.Time `json:"deadline"`
}
