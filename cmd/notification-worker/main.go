package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/config"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/logger"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/notifier"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	"github.com/Palaxis/MTUCI-EDA/internal/taskqueue"

	amqp "github.com/rabbitmq/amqp091-go"
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
	log, err := logger.NewLogger("notification-worker")
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
	if err := gdb.AutoMigrate(&model.Notification{}, &model.ProcessedEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. rabbit
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		log.Fatalf("dial rabbit: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("open rabbit channel: %v", err)
	}

	// 5. dispatcher + health surface
	reg := health.NewRegistry(time.Minute)
	hb := reg.Register("notification-consumer")
	repository := repo.NewRepository(gdb, nil, log)
	sender := notifier.NewSMTPSender(cfg.Notifier.SMTPHost, cfg.Notifier.SMTPPort,
		cfg.Notifier.From, cfg.Notifier.Domain)
	svc := service.NewNotificationService(repository, sender, log)
	consumer, err := taskqueue.NewConsumer(ch, cfg.Rabbit, svc.HandleEvent,
		log, hb, cfg.Consumer.MaxAttempts, cfg.Consumer.Backoff())
	if err != nil {
		log.Fatalf("declare rabbit topology: %v", err)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.NotificationPort)
		if err := http.ListenAndServe(addr, health.Router(reg)); err != nil {
			log.Errorf("health listen: %v", err)
		}
	}()

	log.Info("notification-worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consumer: %v", err)
	}
	log.Info("notification-worker stopped")
}
