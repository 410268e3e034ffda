package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/catalog"
	"github.com/Palaxis/MTUCI-EDA/internal/config"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/logger"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	"github.com/Palaxis/MTUCI-EDA/internal/stream"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("restaurant-worker")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.RestaurantTicket{}, &model.ProcessedEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. restaurant catalog client
	cat := catalog.NewHTTPCatalog(cfg.Catalog.BaseURL, cfg.Catalog.Timeout())

	// 5. consumer + health surface
	reg := health.NewRegistry(time.Minute)
	hb := reg.Register("lifecycle-consumer")
	repository := repo.NewRepository(gdb, nil, log)
	svc := service.NewRestaurantService(repository, cat, log)
	consumer := stream.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group,
		svc.HandleLifecycleEvent, log, hb, cfg.Consumer.MaxAttempts, cfg.Consumer.Backoff())

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.RestaurantPort)
		if err := http.ListenAndServe(addr, health.Router(reg)); err != nil {
			log.Errorf("health listen: %v", err)
		}
	}()

	// 6. run until cancelled; a handler stuck transient exits for
	// supervisor restart and broker redelivery
	log.Info("restaurant-worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consumer: %v", err)
	}
	log.Info("restaurant-worker stopped")
}
