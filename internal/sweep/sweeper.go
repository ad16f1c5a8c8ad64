// Package sweep reclaims ready orders whose pickup window lapsed. It is a
// batch procedure: an external scheduler (cron, cmd/sweeper) invokes Run and
// decides what to do with the summary.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/audit"
	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
)

// SystemNote is appended to every auto-expired order's staff notes.
const SystemNote = "auto-cancelled: not picked up within the pickup window"

type Sweeper struct {
	Store    *orders.Store
	Producer *kafkax.Producer // publish pickup.order.expired; nil disables
	Audit    *audit.Log       // nil-safe
	Service  string

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

type Failure struct {
	OrderID string `json:"order_id"`
	Err     string `json:"error"`
}

type Result struct {
	Checked int       `json:"checked"`
	Expired []string  `json:"expired"`
	Failed  []Failure `json:"failed,omitempty"`
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run examines every order in the ready index and transitions the expired
// ones to no-show. A bad order is recorded and skipped, never aborting the
// rest of the batch. Safe to re-run: transitioned orders leave the ready
// index, so the next sweep does not see them.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	ids, err := s.Store.ReadyOrderIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load ready orders: %w", err)
	}

	res := Result{Checked: len(ids)}
	now := s.now()

	for _, id := range ids {
		o, err := s.Store.GetOrder(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, Failure{OrderID: id, Err: err.Error()})
			continue
		}
		if o == nil || o.Status != orders.StatusReady {
			continue // raced with a manual transition or purge
		}
		if o.Timeline.PickupDeadline == nil {
			res.Failed = append(res.Failed, Failure{OrderID: id, Err: "ready order without pickup deadline"})
			continue
		}
		if _, left := orders.Remaining(*o.Timeline.PickupDeadline, now); left {
			continue
		}

		swept, err := s.Store.UpdateOrderStatus(ctx, id, orders.StatusNoShow, SystemNote)
		if err != nil {
			res.Failed = append(res.Failed, Failure{OrderID: id, Err: err.Error()})
			continue
		}
		res.Expired = append(res.Expired, id)
		s.Audit.Record(ctx, swept, orders.StatusReady, "sweeper")
		s.publishExpired(swept)
	}
	return res, nil
}

func (s *Sweeper) publishExpired(o *orders.PickupOrder) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderExpired,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderExpiredPayload{
			OrderID:  o.ID,
			Number:   o.Number,
			Deadline: *o.Timeline.PickupDeadline,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderExpired)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
