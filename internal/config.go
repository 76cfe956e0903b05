package internal

import (
	"fmt"
	"time"
)

// Config is the server configuration, read from the environment (and an
// optional .env file).
type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=localhost"`
	GrpcPort int    `env:"GRPC_PORT,default=9090"`
	HttpPort int    `env:"HTTP_PORT,default=8080"`
	// 0 disables the debug server
	DebugPort int `env:"DEBUG_PORT,default=0"`

	// badger or postgres
	StorageDriver  string `env:"STORAGE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	// empty keeps the user index in memory
	BlugeFilepath string `env:"BLUGE_FILEPATH"`
	DbURL         string `env:"DB_URL"`
	DbMaxConns    int    `env:"DB_MAX_CONNS,default=10"`

	// local or redis
	ChannelProvider string `env:"CHANNEL_PROVIDER,default=local"`
	RedisURL        string `env:"REDIS_URL"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	FanoutWorkers        int           `env:"FANOUT_WORKERS,default=4"`
	FanoutBufferSize     int           `env:"FANOUT_BUFFER_SIZE,default=1024"`
	PublishTimeout       time.Duration `env:"PUBLISH_TIMEOUT,default=2s"`
	SubscribeTimeout     time.Duration `env:"SUBSCRIBE_TIMEOUT,default=5s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=1m"`

	MaxContentLength          int     `env:"MAX_CONTENT_LENGTH,default=4000"`
	ModerationEnabled         bool    `env:"MODERATION_ENABLED,default=false"`
	ModerationCharReplacement string  `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	SendRatePerSecond         float64 `env:"SEND_RATE_PER_SECOND,default=0"`
	SendBurst                 int     `env:"SEND_BURST,default=5"`
	SeedDemo                  bool    `env:"SEED_DEMO,default=false"`
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case "badger":
	case "postgres":
		if c.DbURL == "" {
			return fmt.Errorf("DB_URL is required with STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.ChannelProvider {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required with CHANNEL_PROVIDER=redis")
		}
	default:
		return fmt.Errorf("unknown CHANNEL_PROVIDER %q", c.ChannelProvider)
	}
	if _, err := CharacterRune(c.ModerationCharReplacement); err != nil {
		return err
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q", str)
	}
	return r[0], nil
}
