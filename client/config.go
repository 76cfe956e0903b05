package client

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr  string `envconfig:"DM_ADDR" default:"localhost:9090"`
	Token string `envconfig:"DM_TOKEN" required:"true"`
	// DM_COLOURS tells own and received messages apart
	Colours        bool          `envconfig:"DM_COLOURS" default:"true"`
	ReconnectDelay time.Duration `envconfig:"DM_RECONNECT_DELAY" default:"2s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"INFO"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
