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
	"github.com/Palaxis/MTUCI-EDA/internal/publisher"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/Palaxis/MTUCI-EDA/internal/stream"
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
	log, err := logger.NewLogger("order-publisher")
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

	// 4. kafka sink
	kafkaSink := stream.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer kafkaSink.Close()

	// 5. rabbit sink
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		log.Fatalf("dial rabbit: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("open rabbit channel: %v", err)
	}
	rabbitSink, err := taskqueue.NewRabbitSink(ch, cfg.Rabbit)
	if err != nil {
		log.Fatalf("declare rabbit topology: %v", err)
	}

	// 6. drain loop + health surface
	reg := health.NewRegistry(time.Minute)
	hb := reg.Register("outbox-drain")
	repository := repo.NewRepository(gdb, nil, log)
	pub := publisher.New(repository, []publisher.Sink{kafkaSink, rabbitSink}, log,
		cfg.Publisher.Interval(), cfg.Publisher.BatchSize, cfg.Publisher.StuckAfter(), hb)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.PublisherPort)
		if err := http.ListenAndServe(addr, health.Router(reg)); err != nil {
			log.Errorf("health listen: %v", err)
		}
	}()

	log.Info("order-publisher started")
	if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("publisher: %v", err)
	}
	// leave a moment for in-flight broker writes
	time.Sleep(100 * time.Millisecond)
	log.Info("order-publisher stopped")
}
