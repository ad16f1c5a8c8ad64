// Package notifier turns status-change events into entries in the order's
// customer-contact log. Real SMS delivery sits behind an out-of-scope
// gateway; what matters here is that every customer-facing transition leaves
// a trace on the order.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
)

type Service struct {
	Store       *orders.Store
	Redis       *redis.Client
	ServiceName string
}

// messages per customer-facing status; other statuses are staff-only and
// produce no contact.
var messages = map[orders.Status]string{
	orders.StatusConfirmed: "Your order #%d has been confirmed.",
	orders.StatusReady:     "Your order #%d is ready for pickup. Please collect it within 1 hour.",
	orders.StatusNoShow:    "Your order #%d was cancelled because it was not picked up in time.",
}

// HandleStatusChanged is wired as the consumer handler for
// pickup.order.status_changed.
func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	// dedup via Redis on event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	tmpl, ok := messages[p.To]
	if !ok {
		return nil
	}

	_, err = s.Store.AppendCommunication(ctx, p.OrderID, orders.CommunicationEvent{
		Channel: "sms",
		Message: fmt.Sprintf(tmpl, p.Number),
		SentAt:  time.Now().UTC(),
		SentBy:  s.ServiceName,
	})
	if errors.Is(err, orders.ErrNotFound) {
		return nil // purged before we got to it
	}
	return err
}
