package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrInvalidDraft = errors.New("invalid order draft")

	// ErrConflict surfaces after the optimistic write keeps losing the race.
	ErrConflict = errors.New("order modified concurrently, retries exhausted")
)

const casRetries = 5

// Store owns the order documents and their indices in Redis:
//
//	order:{id}              JSON document
//	order:number:{n}        order number -> id
//	orders:counter          INCR-only number source
//	orders:all              master set of ids
//	orders:status:{s}       ids currently in status s
//	orders:location:{l}     ids for store location l
//	orders:phone:{p}        ids for customer phone p
//
// Every write that touches both a document and an index goes through a single
// MULTI/EXEC, so an id is never observed in a bucket that disagrees with the
// document's status.
type Store struct {
	RDB *redis.Client

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func keyOrder(id string) string { return fmt.Sprintf(redisx.KeyOrder, id) }

func keyNumber(n int64) string { return fmt.Sprintf(redisx.KeyOrderNumber, n) }

func keyStatus(st Status) string { return fmt.Sprintf(redisx.KeyStatusIndex, string(st)) }

func keyLocation(l Location) string { return fmt.Sprintf(redisx.KeyLocationIndex, string(l)) }

func keyPhone(p string) string { return fmt.Sprintf(redisx.KeyPhoneIndex, p) }

// CreateOrder assigns identity and bookkeeping to a draft and persists it.
// The order number comes from a single INCR on the shared counter; the
// document, number mapping and all index inserts are committed in one
// MULTI/EXEC so a crash cannot leave a half-indexed order.
func (s *Store) CreateOrder(ctx context.Context, d Draft) (*PickupOrder, error) {
	if d.Customer.Name == "" || d.Customer.Phone == "" || len(d.Items) == 0 {
		return nil, ErrInvalidDraft
	}
	if !ValidLocation(d.Location) {
		return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidDraft, d.Location)
	}

	number, err := s.RDB.Incr(ctx, redisx.KeyOrderCounter).Result()
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	now := s.now()
	o := &PickupOrder{
		ID:            uuid.NewString(),
		Number:        number,
		Customer:      d.Customer,
		Items:         d.Items,
		SubtotalCents: d.SubtotalCents,
		TaxCents:      d.TaxCents,
		TotalCents:    d.TotalCents,
		Location:      d.Location,
		Status:        StatusPending,
		StoreNotes:    d.StoreNotes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.Timeline.PlacedAt = &now

	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	_, err = s.RDB.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyOrder(o.ID), b, 0)
		pipe.Set(ctx, keyNumber(o.Number), o.ID, 0)
		pipe.SAdd(ctx, redisx.KeyAllOrders, o.ID)
		pipe.SAdd(ctx, keyStatus(o.Status), o.ID)
		pipe.SAdd(ctx, keyLocation(o.Location), o.ID)
		pipe.SAdd(ctx, keyPhone(o.Customer.Phone), o.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return o, nil
}

// GetOrder returns (nil, nil) when the id is unknown.
func (s *Store) GetOrder(ctx context.Context, id string) (*PickupOrder, error) {
	b, err := s.RDB.Get(ctx, keyOrder(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o PickupOrder
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return &o, nil
}

// GetOrderByNumber resolves via the number->id mapping maintained at create
// and delete, so no scan of the full order set is needed.
func (s *Store) GetOrderByNumber(ctx context.Context, number int64) (*PickupOrder, error) {
	id, err := s.RDB.Get(ctx, keyNumber(number)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, id)
}

// Patch is a partial update; nil fields are left untouched. Money and
// identity are deliberately not patchable.
type Patch struct {
	StoreNotes *string
	Location   *Location
	Customer   *Customer
}

// UpdateOrder merges a patch under an optimistic WATCH on the order key. When
// the location or phone changes, the index moves ride in the same MULTI/EXEC
// as the document write. Concurrent writers are retried a few times before
// giving up with ErrConflict.
func (s *Store) UpdateOrder(ctx context.Context, id string, p Patch) (*PickupOrder, error) {
	if p.Location != nil && !ValidLocation(*p.Location) {
		return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidDraft, *p.Location)
	}
	return s.mutate(ctx, id, func(o *PickupOrder) error {
		if p.StoreNotes != nil {
			o.StoreNotes = *p.StoreNotes
		}
		if p.Location != nil {
			o.Location = *p.Location
		}
		if p.Customer != nil {
			o.Customer = *p.Customer
		}
		return nil
	})
}

// UpdateOrderStatus runs the state machine, stamps the timeline and persists
// the result. Illegal transitions come back as *InvalidTransitionError before
// anything is written.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, to Status, note string) (*PickupOrder, error) {
	return s.mutate(ctx, id, func(o *PickupOrder) error {
		if err := ApplyTransition(o, to, s.now()); err != nil {
			return err
		}
		if note != "" {
			o.StoreNotes = appendNote(o.StoreNotes, note)
		}
		return nil
	})
}

// AppendCommunication adds one entry to the order's contact log.
func (s *Store) AppendCommunication(ctx context.Context, id string, ev CommunicationEvent) (*PickupOrder, error) {
	return s.mutate(ctx, id, func(o *PickupOrder) error {
		if ev.SentAt.IsZero() {
			ev.SentAt = s.now()
		}
		o.Communications = append(o.Communications, ev)
		return nil
	})
}

// mutate is the guarded read-modify-write every update goes through: WATCH
// the document, apply fn, write the document plus any index moves in one
// MULTI/EXEC, retry when another writer got there first.
func (s *Store) mutate(ctx context.Context, id string, fn func(*PickupOrder) error) (*PickupOrder, error) {
	key := keyOrder(id)
	var out *PickupOrder

	txn := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var o PickupOrder
		if err := json.Unmarshal(b, &o); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}

		prevStatus, prevLocation, prevPhone := o.Status, o.Location, o.Customer.Phone
		if err := fn(&o); err != nil {
			return err
		}
		o.UpdatedAt = s.now()

		nb, err := json.Marshal(&o)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, 0)
			if o.Status != prevStatus {
				pipe.SRem(ctx, keyStatus(prevStatus), id)
				pipe.SAdd(ctx, keyStatus(o.Status), id)
			}
			if o.Location != prevLocation {
				pipe.SRem(ctx, keyLocation(prevLocation), id)
				pipe.SAdd(ctx, keyLocation(o.Location), id)
			}
			if o.Customer.Phone != prevPhone {
				pipe.SRem(ctx, keyPhone(prevPhone), id)
				pipe.SAdd(ctx, keyPhone(o.Customer.Phone), id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = &o
		return nil
	}

	for i := 0; i < casRetries; i++ {
		err := s.RDB.Watch(ctx, txn, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

// DeleteOrder is the administrative purge: document, number mapping and every
// index membership go in one MULTI/EXEC. Not part of the normal lifecycle.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	key := keyOrder(id)
	txn := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var o PickupOrder
		if err := json.Unmarshal(b, &o); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.Del(ctx, keyNumber(o.Number))
			pipe.SRem(ctx, redisx.KeyAllOrders, id)
			pipe.SRem(ctx, keyStatus(o.Status), id)
			pipe.SRem(ctx, keyLocation(o.Location), id)
			pipe.SRem(ctx, keyPhone(o.Customer.Phone), id)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.RDB.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// Filters narrows ListOrders. Zero values mean "no constraint".
type Filters struct {
	Statuses     []Status
	Location     Location
	PlacedAfter  time.Time
	PlacedBefore time.Time
	Search       string // substring over number / name / phone, case-insensitive
}

// ListOrders loads candidate ids (the status index when that is the only
// constraint, otherwise orders:all), filters in memory and returns them
// newest-first. Fine at pickup-counter volume.
func (s *Store) ListOrders(ctx context.Context, f Filters) ([]*PickupOrder, error) {
	var ids []string
	var err error
	if len(f.Statuses) == 1 && f.Location == "" {
		ids, err = s.RDB.SMembers(ctx, keyStatus(f.Statuses[0])).Result()
	} else {
		ids, err = s.RDB.SMembers(ctx, redisx.KeyAllOrders).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("load order ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOrder(id)
	}
	vals, err := s.RDB.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	wantStatus := map[Status]bool{}
	for _, st := range f.Statuses {
		wantStatus[st] = true
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]*PickupOrder, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		var o PickupOrder
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		if len(wantStatus) > 0 && !wantStatus[o.Status] {
			continue
		}
		if f.Location != "" && o.Location != f.Location {
			continue
		}
		if !f.PlacedAfter.IsZero() && o.CreatedAt.Before(f.PlacedAfter) {
			continue
		}
		if !f.PlacedBefore.IsZero() && !o.CreatedAt.Before(f.PlacedBefore) {
			continue
		}
		if search != "" && !matchesSearch(&o, search) {
			continue
		}
		oc := o
		out = append(out, &oc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchesSearch(o *PickupOrder, q string) bool {
	return strings.Contains(strconv.FormatInt(o.Number, 10), q) ||
		strings.Contains(strings.ToLower(o.Customer.Name), q) ||
		strings.Contains(strings.ToLower(o.Customer.Phone), q)
}

// ReadyOrderIDs is the sweeper's view of the ready index.
func (s *Store) ReadyOrderIDs(ctx context.Context) ([]string, error) {
	return s.RDB.SMembers(ctx, keyStatus(StatusReady)).Result()
}

type StatsBucket struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByLocation map[Location]int `json:"by_location"`
}

type Stats struct {
	Today StatsBucket `json:"today"`
	Week  StatsBucket `json:"week"`
}

// OrderStats reduces this week's orders (week starts Monday) into today and
// week buckets by status and location.
func (s *Store) OrderStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))

	week, err := s.ListOrders(ctx, Filters{PlacedAfter: weekStart})
	if err != nil {
		return nil, err
	}

	st := &Stats{Today: newBucket(), Week: newBucket()}
	for _, o := range week {
		st.Week.add(o)
		if !o.CreatedAt.Before(dayStart) {
			st.Today.add(o)
		}
	}
	return st, nil
}

func newBucket() StatsBucket {
	return StatsBucket{ByStatus: map[Status]int{}, ByLocation: map[Location]int{}}
}

func (b *StatsBucket) add(o *PickupOrder) {
	b.Total++
	b.ByStatus[o.Status]++
	b.ByLocation[o.Location]++
}
