package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	LLM      LLMConfig      `envPrefix:"LLM_"`
	Collab   CollabConfig   `envPrefix:"COLLAB_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowOrigins    []string      `env:"ALLOW_ORIGINS" envDefault:"*"`
}

type DatabaseConfig struct {
	// Driver is "mongo" or "memory".
	Driver       string   `env:"DRIVER" envDefault:"mongo"`
	Hosts        []string `env:"HOSTS" envDefault:"localhost:27017"`
	Direct       bool     `env:"DIRECT" envDefault:"true"`
	Username     string   `env:"USERNAME"`
	Password     string   `env:"PASSWORD"`
	AuthDB       string   `env:"AUTH_DB" envDefault:"admin"`
	Database     string   `env:"DATABASE" envDefault:"mindmap"`
	Transactions bool     `env:"TRANSACTIONS" envDefault:"false"`
}

type RedisConfig struct {
	// Empty Addrs keeps realtime fan-out in process.
	Addrs         []string `env:"ADDRS"`
	Password      string   `env:"PASSWORD"`
	DB            int      `env:"DB" envDefault:"0"`
	ChannelPrefix string   `env:"CHANNEL_PREFIX" envDefault:"mindmap:chat:"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"mindmap.graph-events"`
	GroupID string   `env:"GROUP_ID" envDefault:"mindmap-activity"`
}

type LLMConfig struct {
	GoogleAIAPIKey  string        `env:"GOOGLE_AI_API_KEY"`
	DefaultProvider string        `env:"DEFAULT_PROVIDER" envDefault:"googleai"`
	SystemPrompt    string        `env:"SYSTEM_PROMPT" envDefault:"You are a helpful assistant in a branching conversation."`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"120s"`
	Breaker         BreakerConfig `envPrefix:"BREAKER_"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `env:"MAX_REQUESTS" envDefault:"5"`
	Interval         time.Duration `env:"INTERVAL" envDefault:"30s"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"60s"`
	FailureThreshold float64       `env:"FAILURE_THRESHOLD" envDefault:"0.8"`
	MinRequests      uint32        `env:"MIN_REQUESTS" envDefault:"5"`
}

type CollabConfig struct {
	SweepCron         string        `env:"SWEEP_CRON" envDefault:"*/5 * * * *"`
	LivenessTimeout   time.Duration `env:"LIVENESS_TIMEOUT" envDefault:"3s"`
	PositionDebounce  time.Duration `env:"POSITION_DEBOUNCE" envDefault:"1s"`
	CursorRatePerSec  float64       `env:"CURSOR_RATE_PER_SEC" envDefault:"20"`
	CursorBurst       int           `env:"CURSOR_BURST" envDefault:"5"`
	ActivityInterval  time.Duration `env:"ACTIVITY_INTERVAL" envDefault:"30s"`
	ActivityPageLimit int           `env:"ACTIVITY_PAGE_LIMIT" envDefault:"100"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load reads .env (when present) and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Driver != "mongo" && cfg.Database.Driver != "memory" {
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	return cfg
}
