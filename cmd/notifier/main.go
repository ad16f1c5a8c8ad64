package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shanthaneddula/zsmokeshop-sub000/internal/config"
	kafkax "github.com/shanthaneddula/zsmokeshop-sub000/internal/kafka"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/notifier"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/orders"
	"github.com/shanthaneddula/zsmokeshop-sub000/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Store:       &orders.Store{RDB: rdb},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderStatusChanged, cfg.NotifierWorkers)

	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d",
			cfg.NotifierGroup, orders.TopicOrderStatusChanged, cfg.NotifierWorkers)
		if err := cons.Start(ctx, svc.HandleStatusChanged); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
}
