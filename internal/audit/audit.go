// Package audit appends status transitions to Postgres for staff
// accountability. Writes are best-effort: a failed audit row never fails the
// transition it describes.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_status_log (
	id          BIGSERIAL PRIMARY KEY,
	order_id    TEXT        NOT NULL,
	order_number BIGINT     NOT NULL,
	prev_status TEXT        NOT NULL,
	new_status  TEXT        NOT NULL,
	changed_by  TEXT        NOT NULL,
	changed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS order_status_log_order_id ON order_status_log (order_id);
`

type Log struct {
	DB *pgxpool.Pool
}

func New(ctx context.Context, db *pgxpool.Pool) (*Log, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &Log{DB: db}, nil
}

// Record appends one transition row. Nil-safe so callers without a Postgres
// connection (tests, the notifier) can skip auditing entirely.
func (l *Log) Record(ctx context.Context, o *orders.PickupOrder, from orders.Status, changedBy string) {
	if l == nil || l.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := l.DB.Exec(ctx, `
		INSERT INTO order_status_log (order_id, order_number, prev_status, new_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Number, string(from), string(o.Status), changedBy, time.Now().UTC(),
	)
	if err != nil {
		log.Printf("audit insert order=%s: %v", o.ID, err)
	}
}
