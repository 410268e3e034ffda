package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Rabbit    RabbitConfig    `yaml:"rabbit"`
	Publisher PublisherConfig `yaml:"publisher"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	OrderPort        int `yaml:"order_port"`
	RestaurantPort   int `yaml:"restaurant_port"`
	NotificationPort int `yaml:"notification_port"`
	PublisherPort    int `yaml:"publisher_port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Group   string   `yaml:"group"`
}

type RabbitConfig struct {
	URL                string `yaml:"url"`
	Exchange           string `yaml:"exchange"`
	Queue              string `yaml:"queue"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
	DeadLetterQueue    string `yaml:"dead_letter_queue"`
}

type PublisherConfig struct {
	IntervalMS  int `yaml:"interval_ms"`
	BatchSize   int `yaml:"batch_size"`
	StuckAfterS int `yaml:"stuck_after_s"`
}

func (p PublisherConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

func (p PublisherConfig) StuckAfter() time.Duration {
	return time.Duration(p.StuckAfterS) * time.Second
}

type ConsumerConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BackoffMS   int `yaml:"backoff_ms"`
}

func (c ConsumerConfig) Backoff() time.Duration { return time.Duration(c.BackoffMS) * time.Millisecond }

type CatalogConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func (c CatalogConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

type NotifierConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort string `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Domain   string `yaml:"domain"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if url := os.Getenv("RABBIT_URL"); url != "" {
		cfg.Rabbit.URL = url
	}
	return &cfg, nil
}
