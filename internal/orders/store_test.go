package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
)

func newTestStore(t *testing.T) (*Store, *redis.Client, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cur := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) // a Monday
	s := &Store{RDB: rdb, Now: func() time.Time { return cur }}
	return s, rdb, &cur
}

func testDraft(phone string) Draft {
	return Draft{
		Customer: Customer{Name: "Dana Whitfield", Phone: phone},
		Items: []LineItem{
			{ProductID: "p1", Name: "Glass Jar", Qty: 2, UnitPriceCents: 1500, LineTotalCents: 3000},
			{ProductID: "p2", Name: "Grinder", Qty: 1, UnitPriceCents: 1250, LineTotalCents: 1250},
		},
		SubtotalCents: 4250,
		TaxCents:      351,
		TotalCents:    4601,
		Location:      LocationCameronRd,
	}
}

func inSet(t *testing.T, rdb *redis.Client, key, id string) bool {
	t.Helper()
	ok, err := rdb.SIsMember(context.Background(), key, id).Result()
	if err != nil {
		t.Fatalf("SISMEMBER %s: %v", key, err)
	}
	return ok
}

// assertOnlyStatusBucket checks the invariant that an id lives in exactly one
// status bucket, matching the order's status field.
func assertOnlyStatusBucket(t *testing.T, rdb *redis.Client, id string, want Status) {
	t.Helper()
	for _, st := range AllStatuses {
		key := fmt.Sprintf(redisx.KeyStatusIndex, string(st))
		got := inSet(t, rdb, key, id)
		if st == want && !got {
			t.Fatalf("id %s missing from %s bucket", id, st)
		}
		if st != want && got {
			t.Fatalf("id %s unexpectedly present in %s bucket (status is %s)", id, st, want)
		}
	}
}

func TestCreateOrderAssignsSequentialNumbers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	var numbers []int64
	for i := 0; i < 5; i++ {
		o, err := s.CreateOrder(ctx, testDraft(fmt.Sprintf("512-555-01%02d", i)))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		numbers = append(numbers, o.Number)
	}
	for i, n := range numbers {
		if n != int64(i+1) {
			t.Fatalf("numbers = %v, want consecutive starting at 1", numbers)
		}
	}
}

func TestCreateOrderDefaultsAndIndices(t *testing.T) {
	s, rdb, cur := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != StatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
	if o.Timeline.PlacedAt == nil || !o.Timeline.PlacedAt.Equal(*cur) {
		t.Fatalf("placedAt = %v, want %v", o.Timeline.PlacedAt, *cur)
	}
	if !o.CreatedAt.Equal(*cur) || !o.UpdatedAt.Equal(*cur) {
		t.Fatalf("bookkeeping stamps wrong: created=%v updated=%v", o.CreatedAt, o.UpdatedAt)
	}

	if !inSet(t, rdb, redisx.KeyAllOrders, o.ID) {
		t.Fatal("id missing from master set")
	}
	assertOnlyStatusBucket(t, rdb, o.ID, StatusPending)
	if !inSet(t, rdb, fmt.Sprintf(redisx.KeyLocationIndex, string(LocationCameronRd)), o.ID) {
		t.Fatal("id missing from location index")
	}
	if !inSet(t, rdb, fmt.Sprintf(redisx.KeyPhoneIndex, "512-555-0134"), o.ID) {
		t.Fatal("id missing from phone index")
	}

	byNum, err := s.GetOrderByNumber(ctx, o.Number)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byNum == nil || byNum.ID != o.ID {
		t.Fatalf("number lookup returned %+v", byNum)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	d := testDraft("512-555-0134")
	d.Customer.Name = ""
	if _, err := s.CreateOrder(ctx, d); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("missing name: err = %v, want ErrInvalidDraft", err)
	}

	d = testDraft("512-555-0134")
	d.Items = nil
	if _, err := s.CreateOrder(ctx, d); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("no items: err = %v, want ErrInvalidDraft", err)
	}

	d = testDraft("512-555-0134")
	d.Location = "sixth-street"
	if _, err := s.CreateOrder(ctx, d); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("bad location: err = %v, want ErrInvalidDraft", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	o, err := s.GetOrder(ctx, "nope")
	if err != nil || o != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", o, err)
	}
	o, err = s.GetOrderByNumber(ctx, 99)
	if err != nil || o != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", o, err)
	}
	if _, err := s.UpdateOrderStatus(ctx, "nope", StatusConfirmed, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing order: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteOrder(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing order: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateOrderStatusFlow(t *testing.T) {
	s, rdb, cur := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*cur = cur.Add(3 * time.Minute)
	o, err = s.UpdateOrderStatus(ctx, o.ID, StatusConfirmed, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if o.Timeline.ConfirmedAt == nil || !o.Timeline.ConfirmedAt.Equal(*cur) {
		t.Fatalf("confirmedAt = %v, want %v", o.Timeline.ConfirmedAt, *cur)
	}
	assertOnlyStatusBucket(t, rdb, o.ID, StatusConfirmed)

	readyAt := cur.Add(10 * time.Minute)
	*cur = readyAt
	o, err = s.UpdateOrderStatus(ctx, o.ID, StatusReady, "bagged and on the shelf")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if o.Timeline.ReadyAt == nil || !o.Timeline.ReadyAt.Equal(readyAt) {
		t.Fatalf("readyAt = %v, want %v", o.Timeline.ReadyAt, readyAt)
	}
	if o.Timeline.PickupDeadline == nil || !o.Timeline.PickupDeadline.Equal(readyAt.Add(time.Hour)) {
		t.Fatalf("pickupDeadline = %v, want readyAt+1h", o.Timeline.PickupDeadline)
	}
	if o.StoreNotes != "bagged and on the shelf" {
		t.Fatalf("note not applied: %q", o.StoreNotes)
	}
	assertOnlyStatusBucket(t, rdb, o.ID, StatusReady)

	// persisted copy agrees with the returned one
	stored, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusReady || !stored.Timeline.PickupDeadline.Equal(*o.Timeline.PickupDeadline) {
		t.Fatalf("stored copy diverged: %+v", stored)
	}
}

func TestUpdateOrderStatusRejectsIllegal(t *testing.T) {
	s, rdb, _ := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// skipping confirmed is not allowed
	if _, err := s.UpdateOrderStatus(ctx, o.ID, StatusReady, ""); err == nil {
		t.Fatal("pending -> ready must be rejected")
	}
	assertOnlyStatusBucket(t, rdb, o.ID, StatusPending)

	// terminal statuses never change again
	if _, err := s.UpdateOrderStatus(ctx, o.ID, StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, to := range []Status{StatusPending, StatusConfirmed, StatusReady, StatusPickedUp, StatusNoShow} {
		_, err := s.UpdateOrderStatus(ctx, o.ID, to, "")
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("cancelled -> %s: err = %v, want *InvalidTransitionError", to, err)
		}
	}
	assertOnlyStatusBucket(t, rdb, o.ID, StatusCancelled)
}

func TestUpdateOrderMovesIndices(t *testing.T) {
	s, rdb, _ := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	loc := LocationWilliamCannon
	cust := Customer{Name: "Dana Whitfield", Phone: "737-555-0199"}
	o, err = s.UpdateOrder(ctx, o.ID, Patch{Location: &loc, Customer: &cust})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if inSet(t, rdb, fmt.Sprintf(redisx.KeyLocationIndex, string(LocationCameronRd)), o.ID) {
		t.Fatal("id still in old location index")
	}
	if !inSet(t, rdb, fmt.Sprintf(redisx.KeyLocationIndex, string(LocationWilliamCannon)), o.ID) {
		t.Fatal("id missing from new location index")
	}
	if inSet(t, rdb, fmt.Sprintf(redisx.KeyPhoneIndex, "512-555-0134"), o.ID) {
		t.Fatal("id still in old phone index")
	}
	if !inSet(t, rdb, fmt.Sprintf(redisx.KeyPhoneIndex, "737-555-0199"), o.ID) {
		t.Fatal("id missing from new phone index")
	}
}

func TestAppendCommunication(t *testing.T) {
	s, _, cur := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	o, err = s.AppendCommunication(ctx, o.ID, CommunicationEvent{Channel: "call", Message: "left voicemail", SentBy: "alex"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	o, err = s.AppendCommunication(ctx, o.ID, CommunicationEvent{Channel: "sms", Message: "order ready", SentBy: "system"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if len(o.Communications) != 2 {
		t.Fatalf("communications = %d entries, want 2", len(o.Communications))
	}
	if o.Communications[0].Message != "left voicemail" || o.Communications[1].Message != "order ready" {
		t.Fatalf("log order wrong: %+v", o.Communications)
	}
	if !o.Communications[0].SentAt.Equal(*cur) {
		t.Fatalf("sentAt not defaulted: %v", o.Communications[0].SentAt)
	}
}

func TestListOrdersFiltersAndSearch(t *testing.T) {
	s, _, cur := newTestStore(t)
	ctx := context.Background()

	mk := func(name, phone string, loc Location) *PickupOrder {
		d := testDraft(phone)
		d.Customer.Name = name
		d.Location = loc
		o, err := s.CreateOrder(ctx, d)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		*cur = cur.Add(time.Minute)
		return o
	}

	a := mk("Dana Whitfield", "512-555-0134", LocationCameronRd)
	b := mk("Marc Ellison", "737-555-0188", LocationWilliamCannon)
	c := mk("Priya Anand", "512-555-0190", LocationCameronRd)

	if _, err := s.UpdateOrderStatus(ctx, b.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// search hits phone prefixes case-insensitively
	got, err := s.ListOrders(ctx, Filters{Search: "512"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("search 512: %d results, want 2", len(got))
	}
	for _, o := range got {
		if o.ID != a.ID && o.ID != c.ID {
			t.Fatalf("search 512 returned unexpected order %s", o.ID)
		}
	}

	// search matches name, any case
	got, err = s.ListOrders(ctx, Filters{Search: "ELLISON"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("search ELLISON: %+v", got)
	}

	// search matches order number
	got, err = s.ListOrders(ctx, Filters{Search: fmt.Sprintf("%d", c.Number)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) == 0 || got[0].ID != c.ID {
		t.Fatalf("search by number: %+v", got)
	}

	// single status filter uses the status index
	got, err = s.ListOrders(ctx, Filters{Statuses: []Status{StatusConfirmed}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("status filter: %+v", got)
	}

	// location filter
	got, err = s.ListOrders(ctx, Filters{Location: LocationCameronRd})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("location filter: %d results, want 2", len(got))
	}

	// newest-first
	got, err = s.ListOrders(ctx, Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != c.ID || got[2].ID != a.ID {
		t.Fatalf("ordering wrong: %v", ids(got))
	}

	// date range
	got, err = s.ListOrders(ctx, Filters{PlacedAfter: b.CreatedAt})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("date range: %d results, want 2", len(got))
	}
}

func ids(list []*PickupOrder) []string {
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.ID
	}
	return out
}

func TestOrderStats(t *testing.T) {
	s, _, cur := newTestStore(t)
	ctx := context.Background()

	// Monday: one order
	if _, err := s.CreateOrder(ctx, testDraft("512-555-0001")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Wednesday: two orders, one confirmed, one at another location
	*cur = cur.AddDate(0, 0, 2)
	o2, err := s.CreateOrder(ctx, testDraft("512-555-0002"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.UpdateOrderStatus(ctx, o2.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	d := testDraft("512-555-0003")
	d.Location = LocationSlaughterLn
	if _, err := s.CreateOrder(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	st, err := s.OrderStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Week.Total != 3 || st.Today.Total != 2 {
		t.Fatalf("totals: week=%d today=%d, want 3/2", st.Week.Total, st.Today.Total)
	}
	if st.Week.ByStatus[StatusPending] != 2 || st.Week.ByStatus[StatusConfirmed] != 1 {
		t.Fatalf("week by status: %v", st.Week.ByStatus)
	}
	if st.Today.ByLocation[LocationCameronRd] != 1 || st.Today.ByLocation[LocationSlaughterLn] != 1 {
		t.Fatalf("today by location: %v", st.Today.ByLocation)
	}
}

func TestDeleteOrderScrubsEverything(t *testing.T) {
	s, rdb, _ := newTestStore(t)
	ctx := context.Background()

	o, err := s.CreateOrder(ctx, testDraft("512-555-0134"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteOrder(ctx, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil || got != nil {
		t.Fatalf("order still readable: (%v, %v)", got, err)
	}
	if byNum, _ := s.GetOrderByNumber(ctx, o.Number); byNum != nil {
		t.Fatal("number mapping survived the purge")
	}
	if inSet(t, rdb, redisx.KeyAllOrders, o.ID) {
		t.Fatal("id still in master set")
	}
	for _, st := range AllStatuses {
		if inSet(t, rdb, fmt.Sprintf(redisx.KeyStatusIndex, string(st)), o.ID) {
			t.Fatalf("id still in %s bucket", st)
		}
	}
	if inSet(t, rdb, fmt.Sprintf(redisx.KeyLocationIndex, string(LocationCameronRd)), o.ID) {
		t.Fatal("id still in location index")
	}
	if inSet(t, rdb, fmt.Sprintf(redisx.KeyPhoneIndex, "512-555-0134"), o.ID) {
		t.Fatal("id still in phone index")
	}
}

func TestConcurrentCreatesUniqueNumbers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	const n = 20
	numbers := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			o, err := s.CreateOrder(ctx, testDraft(fmt.Sprintf("512-555-02%02d", i)))
			if err != nil {
				errs <- err
				return
			}
			numbers <- o.Number
		}(i)
	}

	seen := map[int64]bool{}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent create: %v", err)
		case num := <-numbers:
			if seen[num] {
				t.Fatalf("duplicate order number %d", num)
			}
			seen[num] = true
		}
	}
	// distinct and consecutive: exactly 1..n with no gaps
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Fatalf("missing order number %d; got %v", i, seen)
		}
	}
}
