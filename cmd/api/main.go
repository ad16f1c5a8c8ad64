package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/audit"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/config"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/httpx"
	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/postgres"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis holds the orders themselves
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Postgres holds only the status audit trail
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	auditLog, err := audit.New(ctx, db)
	if err != nil {
		log.Fatalf("audit schema: %v", err)
	}

	// Kafka producers
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)

	// Store & handler
	store := &orders.Store{RDB: rdb}
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:           store,
		ProducerCreated: pCreated,
		ProducerStatus:  pStatus,
		Audit:           auditLog,
		Service:         cfg.ServiceName,
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pStatus.Close()
	cancel()
	pCreated.WaitClosed()
	pStatus.WaitClosed()
}
