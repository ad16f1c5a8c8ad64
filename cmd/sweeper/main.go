// One-shot expiration sweep, meant to be run by an external scheduler (cron
// or similar). Prints a summary and exits; a total store failure exits 1.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/audit"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/config"
	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/postgres"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/sweep"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepBatchTimeout)
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var auditLog *audit.Log
	if db, err := postgres.Connect(ctx, cfg.PostgresDSN); err != nil {
		// the sweep itself only needs Redis; keep going without the audit trail
		log.Printf("db connect: %v (continuing without audit)", err)
	} else {
		defer db.Close()
		if auditLog, err = audit.New(ctx, db); err != nil {
			log.Printf("audit schema: %v (continuing without audit)", err)
			auditLog = nil
		}
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderExpired, 256)
	prod.Start(ctx)

	sw := &sweep.Sweeper{
		Store:    &orders.Store{RDB: rdb},
		Producer: prod,
		Audit:    auditLog,
		Service:  cfg.ServiceName + "-sweeper",
	}

	res, err := sw.Run(ctx)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		os.Exit(1)
	}

	log.Printf("sweep done: checked=%d expired=%d failed=%d", res.Checked, len(res.Expired), len(res.Failed))
	for _, id := range res.Expired {
		log.Printf("expired: %s", id)
	}
	for _, f := range res.Failed {
		log.Printf("failed: %s: %s", f.OrderID, f.Err)
	}

	prod.Close()
	prod.WaitClosed()
}
