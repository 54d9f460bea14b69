// Package config предоставляет структуры и функцию для парсинга и загрузки конфига координатора
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Scheduler               `yaml:"scheduler"`
	Lifecycle               `yaml:"lifecycle"`
	Seed                    `yaml:"seed"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш статистики и блокировку входа.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ настройки ретрансляции событий между экземплярами.
// Пустой URL означает работу одного экземпляра без ретрансляции.
type RabbitMQ struct {
	URL          string        `yaml:"url" env:"RABBITMQ_URL"`
	Exchange     string        `yaml:"exchange" env-default:"coordinator.events"`
	DialRetries  int           `yaml:"dial_retries" env-default:"5"`
	DialDelay    time.Duration `yaml:"dial_delay" env-default:"2s"`
	PrefetchSize int           `yaml:"prefetch" env-default:"10"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey    string        `yaml:"jwt_secret_key" env:"JWT_SECRET"`
	TokenTTL        time.Duration `yaml:"token_ttl" env-default:"24h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
}

// Scheduler периодичность фоновых задач
type Scheduler struct {
	DrainInterval      time.Duration `yaml:"drain_interval" env-default:"2m"`
	WarningInterval    time.Duration `yaml:"warning_interval" env-default:"12h"`
	ExpirationInterval time.Duration `yaml:"expiration_interval" env-default:"24h"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env-default:"30s"`
	DrainBatchSize     int           `yaml:"drain_batch_size" env-default:"100"`
	DrainConcurrency   int           `yaml:"drain_concurrency" env-default:"8"`
	RunOnStart         bool          `yaml:"run_on_start" env-default:"true"`
}

// Lifecycle параметры пробного периода и предупреждений
type Lifecycle struct {
	GuestTrialDays int    `yaml:"guest_trial_days" env-default:"3"`
	DemoTrialDays  int    `yaml:"demo_trial_days" env-default:"30"`
	WarnDays       []int  `yaml:"warn_days" env-default:"3,1"`
	Timezone       string `yaml:"timezone" env-default:"UTC"`
}

// Seed учётные данные начальных аккаунтов
type Seed struct {
	AdminUsername string `yaml:"admin_username" env-default:"admin"`
	AdminPassword string `yaml:"admin_password" env:"SEED_ADMIN_PASSWORD" env-default:"admin123"`
	DemoUsername  string `yaml:"demo_username" env-default:"demo"`
	DemoPassword  string `yaml:"demo_password" env:"SEED_DEMO_PASSWORD" env-default:"demo123"`
}

// Location возвращает часовой пояс, в котором считаются календарные дни.
func (l Lifecycle) Location() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  Enabled: %t\n"+
			"  Exchange: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"  RefreshTokenTTL: %s\n"+
			"Scheduler:\n"+
			"  Drain: %s (batch %d)\n"+
			"  Warnings: %s\n"+
			"  Expiration: %s\n"+
			"  Heartbeat: %s\n",
		c.Env,
		c.AddressRedis,
		c.DB,
		c.RabbitMQ.URL != "",
		c.Exchange,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.RefreshTokenTTL,
		c.DrainInterval,
		c.DrainBatchSize,
		c.WarningInterval,
		c.ExpirationInterval,
		c.HeartbeatInterval,
	)
}
