package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/config"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/logger"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	httptransport "github.com/Palaxis/MTUCI-EDA/internal/transport/http"

	"github.com/go-redis/redis/v8"
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
	log, err := logger.NewLogger("order-server")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Order{}, &model.OutboxEvent{}, &model.ProcessedEvent{},
		&model.RestaurantTicket{}, &model.Notification{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo & service
	repository := repo.NewRepository(gdb, rdb, log)
	svc := service.NewOrderService(repository, log)

	// 6. gin router; the API has no loops, so readiness is process-up
	reg := health.NewRegistry(time.Minute)
	router := httptransport.NewRouter(svc, cfg.RateLimit, reg, log)

	// 7. serve
	addr := fmt.Sprintf(":%d", cfg.Server.OrderPort)
	log.Infof("order-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
