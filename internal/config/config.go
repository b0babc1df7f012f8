package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Auth     Auth     `yaml:"auth"`
	Worker   Worker   `yaml:"worker"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"lakomka"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port        string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	MetricsPort string `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9093"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"auth_db"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"user-events"`
}

type RabbitMQ struct {
	Host             string        `yaml:"host" env:"RABBITMQ_HOST" env-default:"rabbitmq"`
	Port             int           `yaml:"port" env:"RABBITMQ_PORT" env-default:"5672"`
	User             string        `yaml:"user" env:"RABBITMQ_USER" env-default:"guest"`
	Password         string        `yaml:"password" env:"RABBITMQ_PASSWORD" env-default:"guest"`
	VHost            string        `yaml:"vhost" env:"RABBITMQ_VHOST" env-default:"/"`
	Queue            string        `yaml:"queue" env:"RABBITMQ_QUEUE" env-default:"user_events"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"RABBITMQ_REQUEST_TIMEOUT" env-default:"5s"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" env:"RABBITMQ_RECONNECT_BACKOFF" env-default:"5s"`
	DialTimeout      time.Duration `yaml:"dial_timeout" env:"RABBITMQ_DIAL_TIMEOUT" env-default:"3s"`
	Prefetch         int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"1"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"your_secret_key"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"30m"`
}

type Worker struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"WORKER_POLL_INTERVAL" env-default:"2s"`
	BatchSize    int           `yaml:"batch_size" env:"WORKER_BATCH_SIZE" env-default:"10"`
}

func New() (*Config, error) {
	return Load("config.yaml")
}

// Load reads path if it exists and lets env vars override it. Without the
// file the config comes from env vars and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config env override: %w", err)
		}
	}

	return cfg, nil
}
